// Package world provides the village geometry: positions, bounds, the spatial
// grid used for neighbour queries, and noise fields used for placement and
// anomalies.
package world

import (
	"fmt"
	"math"
)

// Vec2 is a position or offset on the village plane.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Scale returns v * k.
func (v Vec2) Scale(k float64) Vec2 {
	return Vec2{X: v.X * k, Y: v.Y * k}
}

// Len returns the Euclidean length.
func (v Vec2) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// String implements fmt.Stringer.
func (v Vec2) String() string {
	return fmt.Sprintf("(%.1f, %.1f)", v.X, v.Y)
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Vec2) float64 {
	return a.Sub(b).Len()
}

// StepToward moves from toward to by at most step. The boolean reports
// whether the destination was reached.
func StepToward(from, to Vec2, step float64) (Vec2, bool) {
	d := to.Sub(from)
	dist := d.Len()
	if dist <= step || dist == 0 {
		return to, true
	}
	return from.Add(d.Scale(step / dist)), false
}

// Bounds is the rectangular extent of the village, anchored at the origin.
type Bounds struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Contains reports whether p lies inside the bounds.
func (b Bounds) Contains(p Vec2) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= b.Width && p.Y <= b.Height
}

// Clamp pulls p back inside the bounds.
func (b Bounds) Clamp(p Vec2) Vec2 {
	return Vec2{
		X: math.Max(0, math.Min(b.Width, p.X)),
		Y: math.Max(0, math.Min(b.Height, p.Y)),
	}
}

// Center returns the midpoint of the bounds.
func (b Bounds) Center() Vec2 {
	return Vec2{X: b.Width / 2, Y: b.Height / 2}
}
