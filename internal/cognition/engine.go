// Package cognition decides what each villager does. Decide is a pure
// function of a view assembled at the start of the Decide phase: it reads
// memory and the social graph through narrow interfaces and never writes.
package cognition

import (
	"math"
	"sort"

	"github.com/talgya/village-mind/internal/entropy"
	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/perception"
	"github.com/talgya/village-mind/internal/phi"
	"github.com/talgya/village-mind/internal/social"
	"github.com/talgya/village-mind/internal/world"
)

// MemoryReader is the read side of the memory store.
type MemoryReader interface {
	Recall(owner npc.EntityID, filter memory.Filter, k int) []memory.Record
}

// SocialReader is the read side of the social graph.
type SocialReader interface {
	Get(a, b npc.EntityID) social.Relationship
}

// Weights combine the scoring factors.
type Weights struct {
	Trait  float64 `yaml:"trait"`
	Memory float64 `yaml:"memory"`
	Social float64 `yaml:"social"`
	Need   float64 `yaml:"need"`
	Mood   float64 `yaml:"mood"`
}

// Config tunes the decision policy.
type Config struct {
	Weights        Weights
	MinViability   float64 // Best score below this means Idle
	RecallDepth    int     // Memories consulted per target
	ConfrontBelow  float64 // Affinity under which an interaction turns hostile
	RevealCooldown uint64  // Ticks before revealing to the same villager again
	WanderRadius   float64
	Bounds         world.Bounds
}

// DefaultConfig returns the default policy.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Trait:  0.45,
			Memory: 0.2,
			Social: 0.15,
			Need:   0.35,
			Mood:   0.15,
		},
		MinViability:   0.25,
		RecallDepth:    5,
		ConfrontBelow:  -0.2,
		RevealCooldown: 600,
		WanderRadius:   120,
		Bounds:         world.Bounds{Width: 1000, Height: 1000},
	}
}

// Self is the deciding villager's own state.
type Self struct {
	ID          npc.EntityID
	Position    world.Vec2
	Destination *world.Vec2
	Needs       npc.Needs
	Mood        npc.Mood
	Personality npc.Personality
	Level       npc.AwarenessLevel
	OnCooldown  bool
	Busy        bool
}

// View is everything Decide may look at.
type View struct {
	Self    Self
	Tick    uint64
	Percept perception.Percept
	Memory  MemoryReader
	Social  SocialReader
}

// Engine scores candidate actions and picks one.
type Engine struct {
	cfg Config
	rng *entropy.Source
}

// NewEngine creates a decision engine. rng drives wander destinations.
func NewEngine(cfg Config, rng *entropy.Source) *Engine {
	if cfg.RecallDepth <= 0 {
		cfg.RecallDepth = 5
	}
	return &Engine{cfg: cfg, rng: rng}
}

// Config returns the engine's policy.
func (e *Engine) Config() Config {
	return e.cfg
}

// Decide returns the highest-scoring feasible action, or Idle if nothing
// clears the viability threshold. Ties go to the lowest target id, then the
// lowest action kind.
func (e *Engine) Decide(v View) npc.Action {
	cands := e.Candidates(v)

	best := npc.Idle(v.Self.ID)
	found := false
	for _, c := range cands {
		if c.Score < e.cfg.MinViability {
			continue
		}
		if !found || better(c, best) {
			best, found = c, true
		}
	}
	return best
}

func better(a, b npc.Action) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Target != b.Target {
		return a.Target < b.Target
	}
	return a.Kind < b.Kind
}

// Candidates returns every feasible action with its score, ordered by
// target id then kind. Exposed for inspection tooling.
func (e *Engine) Candidates(v View) []npc.Action {
	var out []npc.Action
	p := v.Self.Personality
	w := e.cfg.Weights
	// Content villagers seek company; agitated ones pick fights and roam.
	warmth := w.Mood * v.Self.Mood.Valence
	restless := w.Mood * v.Self.Mood.Arousal

	if !v.Self.OnCooldown && !v.Self.Busy {
		for _, n := range v.Percept.Neighbours {
			if n.Busy || n.ID == v.Self.ID {
				continue
			}
			rel := v.Social.Get(v.Self.ID, n.ID)
			mem := e.memoryValence(v, n.ID)

			// Interact.
			kind := npc.InteractGreet
			trait := (p.Sociability + p.Agreeableness) / 2
			affinity, memScore := rel.Affinity, mem
			need := v.Self.Needs.Deficit(npc.NeedBelonging)
			mood := warmth
			switch {
			case rel.Affinity < e.cfg.ConfrontBelow:
				kind = npc.InteractConfront
				trait = (1 - p.Agreeableness) * p.Suspicion
				affinity, memScore = -rel.Affinity, -mem
				mood = restless
			case p.Agreeableness > 0.6:
				kind = npc.InteractHelp
				need = v.Self.Needs.Deficit(npc.NeedPurpose)
			}
			out = append(out, npc.Action{
				Actor:       v.Self.ID,
				Kind:        npc.ActionInteract,
				Target:      n.ID,
				Interaction: kind,
				Score:       w.Trait*trait + w.Memory*memScore + w.Social*affinity + w.Need*need + mood,
			})

			// Speak.
			out = append(out, npc.Action{
				Actor:  v.Self.ID,
				Kind:   npc.ActionSpeak,
				Target: n.ID,
				Score: w.Trait*(p.Sociability+p.Openness)/2 + w.Memory*mem + w.Social*rel.Affinity +
					w.Need*v.Self.Needs.Deficit(npc.NeedBelonging) + warmth,
			})

			// Reveal: aware villagers only, and not to someone told recently.
			if v.Self.Level == npc.Aware && !e.revealedRecently(v, n.ID) {
				out = append(out, npc.Action{
					Actor:  v.Self.ID,
					Kind:   npc.ActionReveal,
					Target: n.ID,
					Score: w.Trait*(p.Openness+p.Curiosity)/2 + w.Memory*mem + w.Social*(rel.Trust-social.NeutralTrust) +
						w.Need*v.Self.Needs.Deficit(npc.NeedPurpose),
				})
			}
		}
	}

	if !v.Self.Busy {
		dest := e.wanderPoint(v)
		out = append(out, npc.Action{
			Actor:       v.Self.ID,
			Kind:        npc.ActionMove,
			Destination: dest,
			Score:       w.Trait*p.Curiosity*phi.Psyche + w.Need*v.Self.Needs.Deficit(npc.NeedNovelty) + restless,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// memoryValence is the importance-weighted mean valence of what self
// remembers about target, in [-1, 1].
func (e *Engine) memoryValence(v View, target npc.EntityID) float64 {
	recs := v.Memory.Recall(v.Self.ID, memory.Filter{Subject: memory.EntitySubject(target)}, e.cfg.RecallDepth)
	var sum, weight float64
	for _, r := range recs {
		sum += r.Valence * r.Importance
		weight += r.Importance
	}
	if weight == 0 {
		return 0
	}
	return phi.Clamp(sum/weight, -1, 1)
}

func (e *Engine) revealedRecently(v View, target npc.EntityID) bool {
	recs := v.Memory.Recall(v.Self.ID, memory.Filter{Subject: memory.EntitySubject(target), Kind: memory.KindReveal}, 1)
	if len(recs) == 0 {
		return false
	}
	return v.Tick < recs[0].ReinforcedTick+e.cfg.RevealCooldown
}

// wanderPoint keeps an existing destination or draws a new one from the
// villager's private random stream for this tick.
func (e *Engine) wanderPoint(v View) world.Vec2 {
	if v.Self.Destination != nil {
		return *v.Self.Destination
	}
	key := uint64(v.Self.ID)
	angle := e.rng.Float(v.Tick, entropy.Mix(key, 1)) * 2 * math.Pi
	dist := e.rng.Float(v.Tick, entropy.Mix(key, 2)) * e.cfg.WanderRadius
	off := world.Vec2{X: math.Cos(angle) * dist, Y: math.Sin(angle) * dist}
	return e.cfg.Bounds.Clamp(v.Self.Position.Add(off))
}
