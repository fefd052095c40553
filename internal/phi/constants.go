// Package phi provides the tuning constants derived from the golden ratio.
// Defaults for decay, drift and sensitivity all trace back to Φ so the
// cognition knobs stay in proportion to one another.
package phi

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Phi is the golden ratio.
const Phi = 1.6180339887498948

var (
	// Agnosis (Φ⁻³): the base rate of noise. ~0.236.
	Agnosis = math.Pow(Phi, -3)

	// Psyche (Φ⁻²): the threshold of meaningful connection. ~0.382.
	Psyche = math.Pow(Phi, -2)

	// Matter (Φ⁻¹): the fraction that persists through transformation. ~0.618.
	Matter = math.Pow(Phi, -1)

	// Being (Φ¹): growth factor. ~1.618.
	Being = Phi
)

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 bounds v to [0, 1].
func Clamp01[T constraints.Float](v T) T {
	return Clamp(v, 0, 1)
}
