// Package awareness owns every villager's awareness state machine:
// Unaware → Suspecting → Aware. Evidence is queued as it is witnessed and
// only evaluated in Update, so villagers react on the tick after they see
// something.
package awareness

import (
	"fmt"
	"sort"
	"sync"

	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/phi"
)

// EvidenceKind classifies what a villager witnessed.
type EvidenceKind uint8

const (
	EvidenceReveal          EvidenceKind = iota // Was told directly
	EvidenceWitnessedReveal                     // Overheard a reveal to someone else
	EvidenceGlitch                              // Saw the world misbehave
	EvidenceMetaDialogue                        // Heard an aware villager talk strangely
	EvidenceRumour                              // Was told someone else talks strangely
)

// String implements fmt.Stringer.
func (k EvidenceKind) String() string {
	switch k {
	case EvidenceReveal:
		return "reveal"
	case EvidenceWitnessedReveal:
		return "witnessed_reveal"
	case EvidenceGlitch:
		return "glitch"
	case EvidenceMetaDialogue:
		return "meta_dialogue"
	case EvidenceRumour:
		return "rumour"
	default:
		return "unknown"
	}
}

// Evidence is one anomalous observation.
type Evidence struct {
	Kind     EvidenceKind
	Strength float64      // Raw weight before personality scaling
	Tick     uint64       // When it was witnessed
	Source   npc.EntityID // Who caused it, 0 for glitches
}

// Transition records a change of awareness level.
type Transition struct {
	ID   npc.EntityID       `json:"id"`
	From npc.AwarenessLevel `json:"from"`
	To   npc.AwarenessLevel `json:"to"`
	Tick uint64             `json:"tick"`
}

// Config tunes the state machine.
type Config struct {
	Threshold   float64 // Score needed to advance a level
	Sensitivity float64 // Evidence multiplier while Suspecting
	Timeout     uint64  // Ticks without evidence before Suspecting lapses
}

// DefaultConfig returns the default tuning at 60 ticks per second.
func DefaultConfig() Config {
	return Config{
		Threshold:   0.8,
		Sensitivity: 1.5,
		Timeout:     1800,
	}
}

type state struct {
	level        npc.AwarenessLevel
	score        float64
	proneness    float64
	lastEvidence uint64
	pending      []Evidence
}

// State is the persisted form of one villager's awareness.
type State struct {
	ID           npc.EntityID       `json:"id"`
	Level        npc.AwarenessLevel `json:"level"`
	Score        float64            `json:"score"`
	Proneness    float64            `json:"proneness"`
	LastEvidence uint64             `json:"last_evidence"`
}

// Controller holds the awareness of every villager. It is the only place
// awareness levels change.
type Controller struct {
	mu     sync.RWMutex
	cfg    Config
	states map[npc.EntityID]*state
}

// NewController creates an empty controller.
func NewController(cfg Config) *Controller {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.Sensitivity < 1 {
		cfg.Sensitivity = 1
	}
	return &Controller{cfg: cfg, states: make(map[npc.EntityID]*state)}
}

// Spawn registers a villager. proneness is its suspicion trait in [0, 1].
func (c *Controller) Spawn(id npc.EntityID, aware bool, proneness float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &state{proneness: phi.Clamp01(proneness)}
	if aware {
		s.level = npc.Aware
	}
	c.states[id] = s
}

// Witness queues evidence for id. It is evaluated on the next Update.
func (c *Controller) Witness(id npc.EntityID, ev Evidence) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.states[id]
	if s == nil {
		return fmt.Errorf("witness %s: %w", id, npc.ErrInvalidEntity)
	}
	if s.level == npc.Aware {
		return nil
	}
	s.pending = append(s.pending, ev)
	return nil
}

// Update evaluates all queued evidence at tick now and returns the level
// changes, ordered by villager id.
func (c *Controller) Update(now uint64) []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]npc.EntityID, 0, len(c.states))
	for id := range c.states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []Transition
	for _, id := range ids {
		out = append(out, c.advance(id, c.states[id], now)...)
	}
	return out
}

func (c *Controller) advance(id npc.EntityID, s *state, now uint64) []Transition {
	var out []Transition
	pending := s.pending
	s.pending = nil

	if s.level == npc.Aware {
		return nil
	}

	for _, ev := range pending {
		if s.level == npc.Aware {
			break
		}
		gain := ev.Strength * (1 + s.proneness)
		if s.level == npc.Suspecting {
			gain *= c.cfg.Sensitivity
		}
		if gain <= 0 {
			continue
		}
		s.score += gain
		s.lastEvidence = now

		if s.score >= c.cfg.Threshold {
			from := s.level
			s.level++
			s.score = 0
			out = append(out, Transition{ID: id, From: from, To: s.level, Tick: now})
		}
	}

	if len(pending) == 0 && s.level == npc.Suspecting && c.cfg.Timeout > 0 && now >= s.lastEvidence+c.cfg.Timeout {
		s.level = npc.Unaware
		s.score = 0
		out = append(out, Transition{ID: id, From: npc.Suspecting, To: npc.Unaware, Tick: now})
	}
	return out
}

// Level returns id's awareness level.
func (c *Controller) Level(id npc.EntityID) (npc.AwarenessLevel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.states[id]
	if s == nil {
		return npc.Unaware, false
	}
	return s.level, true
}

// Score returns id's accumulated suspicion toward the next level.
func (c *Controller) Score(id npc.EntityID) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if s := c.states[id]; s != nil {
		return s.score
	}
	return 0
}

// Reset is the external override: it returns id to Unaware from any level.
func (c *Controller) Reset(id npc.EntityID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.states[id]
	if s == nil {
		return fmt.Errorf("reset %s: %w", id, npc.ErrInvalidEntity)
	}
	s.level = npc.Unaware
	s.score = 0
	s.pending = nil
	return nil
}

// Forget drops id entirely.
func (c *Controller) Forget(id npc.EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, id)
}

// Counts returns how many villagers are at each level.
func (c *Controller) Counts() map[npc.AwarenessLevel]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := map[npc.AwarenessLevel]int{npc.Unaware: 0, npc.Suspecting: 0, npc.Aware: 0}
	for _, s := range c.states {
		out[s.level]++
	}
	return out
}

// States returns every villager's awareness, ordered by id.
func (c *Controller) States() []State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]State, 0, len(c.states))
	for id, s := range c.states {
		out = append(out, State{ID: id, Level: s.level, Score: s.score, Proneness: s.proneness, LastEvidence: s.lastEvidence})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore loads persisted states, replacing existing ones.
func (c *Controller) Restore(states []State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, st := range states {
		c.states[st.ID] = &state{
			level:        st.Level,
			score:        st.Score,
			proneness:    phi.Clamp01(st.Proneness),
			lastEvidence: st.LastEvidence,
		}
	}
}
