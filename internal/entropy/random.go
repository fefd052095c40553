// Package entropy provides deterministic random streams for the simulation.
// Every stochastic choice draws from a stream keyed by (seed, tick, entity)
// so that decisions made in parallel still replay identically.
package entropy

import (
	"math/rand"
)

// Source derives reproducible random streams from a base seed.
type Source struct {
	seed int64
}

// NewSource creates a Source for the given world seed.
func NewSource(seed int64) *Source {
	return &Source{seed: seed}
}

// Seed returns the base seed.
func (s *Source) Seed() int64 {
	return s.seed
}

// Stream returns a generator private to one (tick, key) pair. Two calls with
// the same arguments yield identical sequences.
func (s *Source) Stream(tick uint64, key uint64) *rand.Rand {
	return rand.New(rand.NewSource(int64(Mix(uint64(s.seed), tick, key))))
}

// Float returns a single deterministic float64 in [0, 1) for (tick, key).
func (s *Source) Float(tick uint64, key uint64) float64 {
	n := Mix(uint64(s.seed), tick, key) >> 11
	return float64(n) / float64(1<<53)
}

// Mix folds the values into one well-distributed 64-bit word (splitmix64
// finalizer applied per input).
func Mix(values ...uint64) uint64 {
	h := uint64(0x9E3779B97F4A7C15)
	for _, v := range values {
		h ^= v + 0x9E3779B97F4A7C15 + (h << 6) + (h >> 2)
		h = splitmix(h)
	}
	return h
}

func splitmix(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}
