package npc

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/talgya/village-mind/internal/phi"
)

// Personality is the immutable trait vector assigned at spawn. All traits
// range over [0, 1]. Cognition and awareness read it as weighting
// coefficients; nothing writes it after spawn.
type Personality struct {
	Openness      float64 `json:"openness"`      // Receptive to the strange and new
	Sociability   float64 `json:"sociability"`   // Seeks company
	Agreeableness float64 `json:"agreeableness"` // Forgives, warms quickly
	Curiosity     float64 `json:"curiosity"`     // Explores, asks questions
	Suspicion     float64 `json:"suspicion"`     // Notices what others ignore
}

// NewPersonality creates a trait vector, clamping every trait to [0, 1].
func NewPersonality(openness, sociability, agreeableness, curiosity, suspicion float64) Personality {
	return Personality{
		Openness:      phi.Clamp01(openness),
		Sociability:   phi.Clamp01(sociability),
		Agreeableness: phi.Clamp01(agreeableness),
		Curiosity:     phi.Clamp01(curiosity),
		Suspicion:     phi.Clamp01(suspicion),
	}
}

// Validate reports the first trait outside [0, 1].
func (p Personality) Validate() error {
	traits := []struct {
		name string
		v    float64
	}{
		{"openness", p.Openness},
		{"sociability", p.Sociability},
		{"agreeableness", p.Agreeableness},
		{"curiosity", p.Curiosity},
		{"suspicion", p.Suspicion},
	}
	for _, t := range traits {
		if t.v < 0 || t.v > 1 || math.IsNaN(t.v) {
			return fmt.Errorf("personality: %s %.3f out of [0, 1]", t.name, t.v)
		}
	}
	return nil
}

// RandomPersonality draws a trait vector. Traits cluster around the middle;
// extremes are rare.
func RandomPersonality(rng *rand.Rand) Personality {
	trait := func() float64 {
		return 0.5 + rng.NormFloat64()*0.18
	}
	return NewPersonality(trait(), trait(), trait(), trait(), trait())
}

// Compatibility returns how alike two personalities are, in [0, 1]: the mean
// of 1-|difference| across traits.
func (p Personality) Compatibility(o Personality) float64 {
	sum := (1 - math.Abs(p.Openness-o.Openness)) +
		(1 - math.Abs(p.Sociability-o.Sociability)) +
		(1 - math.Abs(p.Agreeableness-o.Agreeableness)) +
		(1 - math.Abs(p.Curiosity-o.Curiosity)) +
		(1 - math.Abs(p.Suspicion-o.Suspicion))
	return sum / 5
}

// Warmth scales how strongly the villager takes a social outcome to heart.
// Agreeable, sociable villagers amplify positive outcomes.
func (p Personality) Warmth() float64 {
	return 0.5 + (p.Agreeableness+p.Sociability)/2
}

// Stability damps reactions to negative outcomes.
func (p Personality) Stability() float64 {
	return phi.Clamp01(p.Agreeableness*phi.Matter + (1-p.Suspicion)*phi.Psyche)
}
