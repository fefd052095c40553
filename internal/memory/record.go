package memory

import (
	"math"
	"strconv"
	"strings"

	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/phi"
)

// Subject is what a memory is about: another villager or a town event.
type Subject string

const (
	entityPrefix = "npc:"
	eventPrefix  = "event:"
)

// EntitySubject returns the subject for memories about a villager.
func EntitySubject(id npc.EntityID) Subject {
	return Subject(entityPrefix + strconv.FormatUint(uint64(id), 10))
}

// EventSubject returns the subject for memories about a town event or a
// place-bound happening such as a glitch.
func EventSubject(id string) Subject {
	return Subject(eventPrefix + id)
}

// Entity returns the villager the subject refers to, if any.
func (s Subject) Entity() (npc.EntityID, bool) {
	rest, ok := strings.CutPrefix(string(s), entityPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return npc.EntityID(id), true
}

// Kind classifies how a memory was formed.
type Kind string

const (
	KindSighting    Kind = "sighting"
	KindInteraction Kind = "interaction"
	KindDialogue    Kind = "dialogue"
	KindReveal      Kind = "reveal"   // Was told, or told someone, the truth
	KindWitness     Kind = "witness"  // Saw a reveal between others
	KindGlitch      Kind = "glitch"
	KindTownEvent   Kind = "town_event"
	KindGossip      Kind = "gossip" // Heard about someone second-hand
)

// Record is one remembered experience.
type Record struct {
	Subject        Subject `json:"subject"`
	Kind           Kind    `json:"kind"`
	Valence        float64 `json:"valence"`         // -1 (bad) .. 1 (good)
	Importance     float64 `json:"importance"`      // Current, after decay
	BaseImportance float64 `json:"base_importance"` // At last reinforcement
	CreatedTick    uint64  `json:"created_tick"`
	ReinforcedTick uint64  `json:"reinforced_tick"`
	DecayRate      float64 `json:"decay_rate"`
	Reinforcements int     `json:"reinforcements"`
	Content        string  `json:"content,omitempty"`
	LongTerm       bool    `json:"long_term"`
}

// decay sets importance from the time since last reinforcement.
func (r *Record) decay(now uint64, factor float64) {
	if now <= r.ReinforcedTick {
		r.Importance = r.BaseImportance
		return
	}
	age := float64(now - r.ReinforcedTick)
	r.Importance = r.BaseImportance * math.Exp(-r.DecayRate*factor*age)
}

func reinforce(r *Record, rec Record) {
	base := math.Max(r.Importance, clampImportance(rec.Importance))
	r.BaseImportance = base
	r.Importance = base
	r.Valence = clampValence(r.Valence*0.5 + rec.Valence*0.5)
	r.Reinforcements++
	if rec.CreatedTick > r.ReinforcedTick {
		r.ReinforcedTick = rec.CreatedTick
	}
	if rec.Content != "" {
		r.Content = rec.Content
	}
}

func clampImportance(v float64) float64 {
	return phi.Clamp01(v)
}

func clampValence(v float64) float64 {
	return phi.Clamp(v, -1, 1)
}
