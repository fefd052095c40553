// Package perception gathers what each villager can see at the start of a
// tick: neighbours within the interaction radius, happenings from the last
// tick, and glitches in the world around it. It only reports behaviour;
// another villager's awareness is never visible.
package perception

import (
	"sync"

	"github.com/talgya/village-mind/internal/awareness"
	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/world"
)

// Observed is the outwardly visible state of one villager, captured at the
// start of the Perceive phase.
type Observed struct {
	ID         npc.EntityID
	Position   world.Vec2
	Busy       bool       // In a dialogue exchange
	LastAction npc.Action // What it did last tick
}

// Sighting is one neighbour as seen by the perceiver.
type Sighting struct {
	ID         npc.EntityID   `json:"id"`
	Position   world.Vec2     `json:"position"`
	Distance   float64        `json:"distance"`
	Busy       bool           `json:"busy"`
	LastAction npc.ActionKind `json:"last_action"`
	LastTarget npc.EntityID   `json:"last_target,omitempty"`
}

// EventKind classifies a witnessed happening.
type EventKind uint8

const (
	EventInteraction EventKind = iota
	EventSpeech
	EventReveal
	EventGlitch
)

// Event is something that happened near the perceiver.
type Event struct {
	Kind     EventKind    `json:"kind"`
	Actor    npc.EntityID `json:"actor,omitempty"`
	Target   npc.EntityID `json:"target,omitempty"`
	Position world.Vec2   `json:"position"`
	Strength float64      `json:"strength"`
	Tick     uint64       `json:"tick"`
}

// Percept is one villager's view of the world for one tick.
type Percept struct {
	Self       npc.EntityID
	Position   world.Vec2
	Tick       uint64
	Neighbours []Sighting // Ascending by id
	Events     []Event
}

// Neighbour returns the sighting for id, if it is in view.
func (p *Percept) Neighbour(id npc.EntityID) (Sighting, bool) {
	for _, s := range p.Neighbours {
		if s.ID == id {
			return s, true
		}
	}
	return Sighting{}, false
}

// Config tunes perception.
type Config struct {
	Radius           float64
	SightingCooldown uint64  // Minimum ticks between sighting memories of the same neighbour
	GlitchCooldown   uint64  // Minimum ticks between glitches a villager takes note of
	WitnessStrength  float64 // Evidence weight of an overheard reveal
	GlitchStrength   float64 // Evidence weight of a full-intensity glitch
}

// DefaultConfig returns the perception defaults at 60 ticks per second.
func DefaultConfig() Config {
	return Config{
		Radius:           50,
		SightingCooldown: 300,
		GlitchCooldown:   1200,
		WitnessStrength:  0.2,
		GlitchStrength:   0.1,
	}
}

// System answers perception queries against a spatial index rebuilt once
// per tick.
type System struct {
	cfg    Config
	glitch *world.GlitchField

	grid     *world.Grid
	observed map[npc.EntityID]Observed
	happened []Event

	mu         sync.Mutex
	lastSeen   map[[2]npc.EntityID]uint64
	lastGlitch map[npc.EntityID]uint64
}

// NewSystem creates a perception system. glitch may be nil.
func NewSystem(cfg Config, glitch *world.GlitchField) *System {
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultConfig().Radius
	}
	return &System{
		cfg:        cfg,
		glitch:     glitch,
		grid:       world.NewGrid(cfg.Radius),
		observed:   make(map[npc.EntityID]Observed),
		lastSeen:   make(map[[2]npc.EntityID]uint64),
		lastGlitch: make(map[npc.EntityID]uint64),
	}
}

// Radius returns the perception radius.
func (s *System) Radius() float64 {
	return s.cfg.Radius
}

// Grid returns the spatial index built by the last Index call.
func (s *System) Grid() *world.Grid {
	return s.grid
}

// Index rebuilds the spatial index from the villagers' visible state and
// the events of the previous tick.
func (s *System) Index(villagers []Observed, happened []Event) {
	s.grid = world.NewGrid(s.cfg.Radius)
	s.observed = make(map[npc.EntityID]Observed, len(villagers))
	for _, v := range villagers {
		s.grid.Insert(uint64(v.ID), v.Position)
		s.observed[v.ID] = v
	}
	s.happened = happened
}

// Perceive returns what self sees at tick. It reads only the index, so it
// is safe to call for many villagers concurrently.
func (s *System) Perceive(self npc.EntityID, tick uint64) Percept {
	me, ok := s.observed[self]
	if !ok {
		return Percept{Self: self, Tick: tick}
	}
	p := Percept{Self: self, Position: me.Position, Tick: tick}

	for _, raw := range s.grid.Within(me.Position, s.cfg.Radius) {
		id := npc.EntityID(raw)
		if id == self {
			continue
		}
		o := s.observed[id]
		p.Neighbours = append(p.Neighbours, Sighting{
			ID:         id,
			Position:   o.Position,
			Distance:   world.Distance(me.Position, o.Position),
			Busy:       o.Busy,
			LastAction: o.LastAction.Kind,
			LastTarget: o.LastAction.Target,
		})
	}

	for _, ev := range s.happened {
		if ev.Actor == self || ev.Target == self {
			continue
		}
		if world.Distance(me.Position, ev.Position) <= s.cfg.Radius {
			p.Events = append(p.Events, ev)
		}
	}

	if strength, ok := s.glitch.Anomaly(me.Position, tick); ok {
		p.Events = append(p.Events, Event{Kind: EventGlitch, Position: me.Position, Strength: strength, Tick: tick})
	}
	return p
}

// Remember writes the memorable parts of p into store. Sightings of the
// same neighbour are throttled by the sighting cooldown, glitches by the
// glitch cooldown.
func (s *System) Remember(store *memory.Store, p Percept) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range p.Neighbours {
		key := [2]npc.EntityID{p.Self, n.ID}
		if last, seen := s.lastSeen[key]; seen && p.Tick < last+s.cfg.SightingCooldown {
			continue
		}
		s.lastSeen[key] = p.Tick
		closeness := 1 - n.Distance/s.cfg.Radius
		store.Record(p.Self, memory.Record{
			Subject:     memory.EntitySubject(n.ID),
			Kind:        memory.KindSighting,
			Importance:  0.1 + 0.1*closeness,
			CreatedTick: p.Tick,
		})
	}

	for _, ev := range p.Events {
		switch ev.Kind {
		case EventReveal:
			store.Record(p.Self, memory.Record{
				Subject:     memory.EntitySubject(ev.Actor),
				Kind:        memory.KindWitness,
				Importance:  0.5,
				Valence:     -0.1,
				CreatedTick: p.Tick,
				Content:     "overheard " + ev.Actor.String() + " saying strange things to " + ev.Target.String(),
			})
		case EventGlitch:
			if !s.noticeGlitch(p.Self, p.Tick) {
				continue
			}
			store.Record(p.Self, memory.Record{
				Subject:     memory.EventSubject("glitch"),
				Kind:        memory.KindGlitch,
				Importance:  0.3 + 0.4*ev.Strength,
				Valence:     -0.2,
				CreatedTick: p.Tick,
				Content:     "saw the world flicker",
			})
		}
	}
}

// Evidence returns the awareness evidence carried by p. A villager standing
// in a glitch yields glitch evidence at most once per glitch cooldown.
func (s *System) Evidence(p Percept) []awareness.Evidence {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []awareness.Evidence
	for _, ev := range p.Events {
		switch ev.Kind {
		case EventReveal:
			out = append(out, awareness.Evidence{Kind: awareness.EvidenceWitnessedReveal, Strength: s.cfg.WitnessStrength, Tick: p.Tick, Source: ev.Actor})
		case EventGlitch:
			if !s.noticeGlitch(p.Self, p.Tick) {
				continue
			}
			out = append(out, awareness.Evidence{Kind: awareness.EvidenceGlitch, Strength: s.cfg.GlitchStrength * ev.Strength, Tick: p.Tick})
		}
	}
	return out
}

// noticeGlitch reports whether self takes note of a glitch at tick. The
// tick that was noticed keeps answering true so Remember and Evidence agree.
// Callers hold s.mu.
func (s *System) noticeGlitch(self npc.EntityID, tick uint64) bool {
	last, seen := s.lastGlitch[self]
	if seen && tick != last && tick < last+s.cfg.GlitchCooldown {
		return false
	}
	s.lastGlitch[self] = tick
	return true
}

// Forget drops throttle state involving id.
func (s *System) Forget(id npc.EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.lastGlitch, id)
	for k := range s.lastSeen {
		if k[0] == id || k[1] == id {
			delete(s.lastSeen, k)
		}
	}
}
