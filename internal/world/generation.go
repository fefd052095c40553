// Spawn placement and the glitch field, both driven by layered simplex noise.
package world

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Placer picks spawn positions. Villagers cluster where the density noise is
// high, so the village grows in neighbourhoods instead of a uniform scatter.
type Placer struct {
	bounds  Bounds
	rng     *rand.Rand
	density opensimplex.Noise
	scale   float64
}

// NewPlacer creates a placer for the given bounds and seed.
func NewPlacer(bounds Bounds, seed int64) *Placer {
	return &Placer{
		bounds:  bounds,
		rng:     rand.New(rand.NewSource(seed + 300)),
		density: opensimplex.NewNormalized(seed + 1),
		scale:   0.004,
	}
}

// Density returns the settlement density at p in [0, 1].
func (p *Placer) Density(at Vec2) float64 {
	return octaveNoise(p.density, at.X*p.scale, at.Y*p.scale, 3, 1.0, 0.5)
}

// Next returns the next spawn position. It rejection-samples against the
// density field, giving up after a bounded number of tries.
func (p *Placer) Next() Vec2 {
	var best Vec2
	bestDensity := -1.0
	for i := 0; i < 16; i++ {
		c := Vec2{X: p.rng.Float64() * p.bounds.Width, Y: p.rng.Float64() * p.bounds.Height}
		d := p.Density(c)
		if p.rng.Float64() < d {
			return c
		}
		if d > bestDensity {
			best, bestDensity = c, d
		}
	}
	return best
}

// Near returns a position within radius of center, clamped to bounds.
func (p *Placer) Near(center Vec2, radius float64) Vec2 {
	off := Vec2{X: (p.rng.Float64()*2 - 1) * radius, Y: (p.rng.Float64()*2 - 1) * radius}
	return p.bounds.Clamp(center.Add(off))
}

// GlitchField marks places and moments where the world visibly misbehaves:
// a flicker, a repeated sound, a shadow at the wrong angle. Unaware villagers
// who witness one gain a little suspicion.
type GlitchField struct {
	noise     opensimplex.Noise
	scale     float64
	timeScale float64
	threshold float64
}

// NewGlitchField creates a glitch field. threshold is the normalized noise
// level above which a point counts as anomalous.
func NewGlitchField(seed int64, threshold float64) *GlitchField {
	return &GlitchField{
		noise:     opensimplex.NewNormalized(seed + 7),
		scale:     0.01,
		timeScale: 0.002,
		threshold: threshold,
	}
}

// Intensity returns the field value at p and tick in [0, 1].
func (g *GlitchField) Intensity(at Vec2, tick uint64) float64 {
	return g.noise.Eval3(at.X*g.scale, at.Y*g.scale, float64(tick)*g.timeScale)
}

// Anomaly reports whether p is glitching at tick, and how strongly (the
// excess above the threshold, rescaled to [0, 1]).
func (g *GlitchField) Anomaly(at Vec2, tick uint64) (float64, bool) {
	if g == nil || g.threshold >= 1 {
		return 0, false
	}
	v := g.Intensity(at, tick)
	if v <= g.threshold {
		return 0, false
	}
	return (v - g.threshold) / (1 - g.threshold), true
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
