package npc

import "github.com/talgya/village-mind/internal/phi"

// Needs tracks how satisfied a villager currently is. All values range from
// 0.0 (completely unmet) to 1.0 (fully satisfied).
type Needs struct {
	Belonging float64 `json:"belonging"` // Company, conversation
	Novelty   float64 `json:"novelty"`   // New places, new sights
	Purpose   float64 `json:"purpose"`   // Doing something that matters
}

// NeedType enumerates the need layers.
type NeedType uint8

const (
	NeedBelonging NeedType = iota
	NeedNovelty
	NeedPurpose
)

// DefaultNeeds returns the needs of a freshly spawned villager.
func DefaultNeeds() Needs {
	return Needs{Belonging: 0.7, Novelty: 0.7, Purpose: 0.7}
}

// Get returns the satisfaction of one need.
func (n Needs) Get(t NeedType) float64 {
	switch t {
	case NeedBelonging:
		return n.Belonging
	case NeedNovelty:
		return n.Novelty
	default:
		return n.Purpose
	}
}

// Deficit returns how unmet a need is, in [0, 1].
func (n Needs) Deficit(t NeedType) float64 {
	return 1 - n.Get(t)
}

// Priority returns the most urgent need. Ties go to the lower layer.
func (n Needs) Priority() NeedType {
	p := NeedBelonging
	if n.Novelty < n.Get(p) {
		p = NeedNovelty
	}
	if n.Purpose < n.Get(p) {
		p = NeedPurpose
	}
	return p
}

// Satisfy raises one need by amount, clamped.
func (n *Needs) Satisfy(t NeedType, amount float64) {
	switch t {
	case NeedBelonging:
		n.Belonging += amount
	case NeedNovelty:
		n.Novelty += amount
	default:
		n.Purpose += amount
	}
	n.clamp()
}

// Decay lowers every need slightly: the passage of one tick. Curious
// villagers tire of the familiar faster, sociable ones get lonely faster.
func (n *Needs) Decay(p Personality, rate float64) {
	n.Belonging -= rate * (0.5 + p.Sociability)
	n.Novelty -= rate * (0.5 + p.Curiosity)
	n.Purpose -= rate * phi.Matter
	n.clamp()
}

func (n *Needs) clamp() {
	n.Belonging = phi.Clamp01(n.Belonging)
	n.Novelty = phi.Clamp01(n.Novelty)
	n.Purpose = phi.Clamp01(n.Purpose)
}
