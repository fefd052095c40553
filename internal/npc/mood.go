package npc

import (
	"math"

	"github.com/talgya/village-mind/internal/phi"
)

// Mood is a villager's passing emotional state. Unlike personality it moves
// with every experience and settles back to calm when nothing happens.
type Mood struct {
	Valence float64 `json:"valence"` // -1 miserable .. 1 content
	Arousal float64 `json:"arousal"` // 0 calm .. 1 agitated
}

// Feel moves the mood toward valence by intensity in [0, 1]. Strongly
// coloured experiences stir the villager up; neutral ones do not.
func (m *Mood) Feel(valence, intensity float64) {
	intensity = phi.Clamp01(intensity)
	valence = phi.Clamp(valence, -1, 1)
	m.Valence += (valence - m.Valence) * intensity
	m.Arousal += (1 - m.Arousal) * intensity * math.Abs(valence)
	m.clamp()
}

// Settle decays the mood toward calm by rate: the passage of one tick.
func (m *Mood) Settle(rate float64) {
	keep := 1 - phi.Clamp01(rate)
	m.Valence *= keep
	m.Arousal *= keep
}

// Label names the mood for display.
func (m Mood) Label() string {
	switch {
	case m.Arousal > 0.5 && m.Valence < 0:
		return "agitated"
	case m.Arousal > 0.5:
		return "excited"
	case m.Valence > phi.Agnosis:
		return "content"
	case m.Valence < -phi.Agnosis:
		return "low"
	default:
		return "calm"
	}
}

func (m *Mood) clamp() {
	m.Valence = phi.Clamp(m.Valence, -1, 1)
	m.Arousal = phi.Clamp01(m.Arousal)
}
