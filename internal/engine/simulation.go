// Town ties together every village system and runs them each tick.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/village-mind/internal/awareness"
	"github.com/talgya/village-mind/internal/cognition"
	"github.com/talgya/village-mind/internal/config"
	"github.com/talgya/village-mind/internal/dialogue"
	"github.com/talgya/village-mind/internal/entropy"
	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/perception"
	"github.com/talgya/village-mind/internal/social"
	"github.com/talgya/village-mind/internal/townevent"
	"github.com/talgya/village-mind/internal/world"
)

// ErrCapacity is returned when a spawn would exceed max_npcs or
// max_entities.
var ErrCapacity = errors.New("town at capacity")

// Option configures a Town.
type Option func(*Town)

// WithProvider sets the dialogue provider, overriding the configured one.
func WithProvider(p dialogue.Provider) Option {
	return func(t *Town) { t.provider = p }
}

// WithArchive enables write-behind snapshots to a.
func WithArchive(a Archive) Option {
	return func(t *Town) { t.archive = a }
}

// WithEventIDs replaces the town event id generator. Used for reproducible
// runs.
func WithEventIDs(f func() string) Option {
	return func(t *Town) { t.events.SetIDFunc(f) }
}

// Stats are running totals since the town started.
type Stats struct {
	Interactions     int64 `json:"interactions"`
	Dialogues        int64 `json:"dialogues"`
	DialogueFailures int64 `json:"dialogue_failures"`
	Reveals          int64 `json:"reveals"`
	Transitions      int64 `json:"transitions"`
	ClosedEvents     int64 `json:"closed_events"`
	Rumours          int64 `json:"rumours"`
}

// Line is one finished dialogue exchange.
type Line struct {
	Speaker  npc.EntityID `json:"speaker"`
	Listener npc.EntityID `json:"listener"`
	Text     string       `json:"text"`
	Meta     bool         `json:"meta,omitempty"`
}

// TickReport summarises what happened in one tick.
type TickReport struct {
	Tick        uint64                 `json:"tick"`
	Thought     bool                   `json:"thought"` // Decide ran this tick
	Actions     []npc.Action           `json:"actions,omitempty"`
	Dialogues   []Line                 `json:"dialogues,omitempty"`
	Transitions []awareness.Transition `json:"transitions,omitempty"`
	Tallies     []townevent.Tally      `json:"tallies,omitempty"`
}

// socialOutcome is a relationship change produced in Act and applied in
// Propagate.
type socialOutcome struct {
	a, b npc.EntityID
	o    social.Outcome
}

// Town holds the complete village state and runs the tick phases:
// Perceive, Decide, Act, Propagate, TownEvents. Exported methods are safe
// to call from other goroutines; they are serialised against ticks.
type Town struct {
	mu   sync.Mutex
	cfg  *config.Config
	tick uint64 // Last completed tick

	sched   *Scheduler
	rng     *entropy.Source
	spawner *npc.Spawner
	placer  *world.Placer

	villagers map[npc.EntityID]*npc.Entity
	order     []npc.EntityID // Ascending

	memory     *memory.Store
	social     *social.Graph
	awareness  *awareness.Controller
	perception *perception.System
	cognition  *cognition.Engine
	provider   dialogue.Provider
	broker     *dialogue.Broker
	events     *townevent.System

	lastActions map[npc.EntityID]npc.Action
	percepts    map[npc.EntityID]perception.Percept
	happened    []perception.Event // Acted this tick, perceived next tick
	outcomes    []socialOutcome

	archive   Archive
	writer    *archiveWriter
	closed    bool
	closeOnce sync.Once

	stats Stats
}

// NewTown validates cfg and builds an empty town.
func NewTown(cfg *config.Config, opts ...Option) (*Town, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Town{
		cfg:         cfg,
		sched:       NewScheduler(cfg.TickInterval(), cfg.Cognition.ThinkEvery),
		rng:         entropy.NewSource(cfg.Seed),
		spawner:     npc.NewSpawner(cfg.Seed),
		placer:      world.NewPlacer(cfg.WorldSize, cfg.Seed),
		villagers:   make(map[npc.EntityID]*npc.Entity),
		memory:      memory.NewStore(memoryConfig(cfg)),
		social:      social.NewGraph(),
		awareness:   awareness.NewController(awarenessConfig(cfg)),
		perception:  perception.NewSystem(perceptionConfig(cfg), world.NewGlitchField(cfg.Seed, cfg.Awareness.GlitchThreshold)),
		events:      townevent.NewSystem(),
		lastActions: make(map[npc.EntityID]npc.Action),
		percepts:    make(map[npc.EntityID]perception.Percept),
	}
	t.cognition = cognition.NewEngine(cognitionConfig(cfg), t.rng)

	for _, o := range opts {
		o(t)
	}
	if t.provider == nil {
		t.provider = providerFor(cfg.Dialogue)
	}

	bc := dialogue.DefaultBrokerConfig()
	bc.LatencyTicks = cfg.Dialogue.LatencyTicks
	bc.Timeout = cfg.Dialogue.Timeout
	bc.Workers = cfg.Dialogue.Workers
	t.broker = dialogue.NewBroker(t.provider, bc)

	if t.archive != nil {
		t.writer = newArchiveWriter(t.archive)
	}
	t.sched.OnTick = func() { t.Step() }

	return t, nil
}

func memoryConfig(cfg *config.Config) memory.Config {
	mc := memory.DefaultConfig()
	mc.ShortTermCapacity = cfg.Memory.ShortTermCapacity
	mc.LongTermCapacity = cfg.Memory.LongTermCapacity
	mc.PromoteAfter = cfg.Memory.PromoteAfter
	mc.SalienceThreshold = cfg.Memory.SalienceThreshold
	mc.DecayRate = cfg.MemoryDecayPerTick()
	mc.LongTermFactor = cfg.Memory.LongTermFactor
	mc.Floor = cfg.Memory.PruneFloor
	return mc
}

func awarenessConfig(cfg *config.Config) awareness.Config {
	return awareness.Config{
		Threshold:   cfg.AwarenessThreshold,
		Sensitivity: cfg.Awareness.SuspectingSensitivity,
		Timeout:     cfg.Awareness.SuspectTimeout,
	}
}

func perceptionConfig(cfg *config.Config) perception.Config {
	return perception.Config{
		Radius:           cfg.InteractionRadius,
		SightingCooldown: cfg.Memory.SightingCooldown,
		GlitchCooldown:   cfg.Awareness.GlitchCooldown,
		WitnessStrength:  cfg.Awareness.WitnessStrength,
		GlitchStrength:   cfg.Awareness.GlitchStrength,
	}
}

func cognitionConfig(cfg *config.Config) cognition.Config {
	cc := cognition.DefaultConfig()
	cc.Weights = cfg.Cognition.Weights
	cc.MinViability = cfg.Cognition.MinViability
	cc.RevealCooldown = cfg.Cognition.RevealCooldown
	cc.WanderRadius = cfg.Cognition.WanderRadius
	cc.Bounds = cfg.WorldSize
	return cc
}

// providerFor builds the configured dialogue provider, falling back to
// templates when remote generation is not available.
func providerFor(dc config.DialogueConfig) dialogue.Provider {
	if dc.Provider == "anthropic" {
		p := dialogue.NewAnthropicProvider(dc.APIKey,
			dialogue.WithModel(dc.Model),
			dialogue.WithRateLimit(dc.RateLimit),
		)
		if p.Enabled() {
			return p
		}
		slog.Warn("anthropic provider has no API key, using templates")
	}
	return dialogue.NewTemplateProvider()
}

// Config returns the town configuration.
func (t *Town) Config() *config.Config {
	return t.cfg
}

// Tick returns the last completed tick.
func (t *Town) Tick() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tick
}

// Step runs one full tick and returns what happened.
func (t *Town) Step() TickReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	tick := t.tick + 1
	r := TickReport{Tick: tick}

	t.perceive(tick, &r)
	var decisions []npc.Action
	if t.sched.ShouldThink(tick) {
		r.Thought = true
		decisions = t.decide(tick)
	}
	t.act(tick, decisions, &r)
	t.propagate(tick, &r)
	t.advanceEvents(tick, &r)

	t.tick = tick
	t.persist(tick)

	if every := uint64(t.cfg.TickRate) * 60; every > 0 && tick%every == 0 {
		t.logReport()
	}
	return r
}

// Run ticks at the configured rate until Stop is called or ctx is done,
// then drains the archive writer and dialogue workers. A second concurrent
// Run returns ErrRunning and leaves the town untouched.
func (t *Town) Run(ctx context.Context) error {
	err := t.sched.Run(ctx)
	if errors.Is(err, ErrRunning) {
		return err
	}
	t.Close()
	return err
}

// Stop ends Run after the current tick.
func (t *Town) Stop() {
	t.sched.Stop()
}

// Close stops the scheduler, writes a final snapshot, and waits for the
// archive writer and dialogue workers to finish. Step keeps working after
// Close, without persistence.
func (t *Town) Close() {
	t.closeOnce.Do(func() {
		t.sched.Stop()

		t.mu.Lock()
		t.closed = true
		var final *Snapshot
		if t.writer != nil {
			final = t.snapshotLocked()
		}
		t.mu.Unlock()

		if t.writer != nil {
			t.writer.close(final)
		}
		t.broker.Close()
	})
}

func (t *Town) logReport() {
	counts := t.awareness.Counts()
	slog.Info("town report",
		"tick", humanize.Comma(int64(t.tick)),
		"time", SimTime(t.tick, t.cfg.TickRate),
		"villagers", len(t.villagers),
		"aware", counts[npc.Aware],
		"suspecting", counts[npc.Suspecting],
		"interactions", humanize.Comma(t.stats.Interactions),
		"dialogues", humanize.Comma(t.stats.Dialogues),
		"reveals", humanize.Comma(t.stats.Reveals),
	)
}

// Status is a summary of the town.
type Status struct {
	Tick          uint64 `json:"tick"`
	Time          string `json:"time"`
	Villagers     int    `json:"villagers"`
	Unaware       int    `json:"unaware"`
	Suspecting    int    `json:"suspecting"`
	Aware         int    `json:"aware"`
	Relationships int    `json:"relationships"`
	OpenEvents    int    `json:"open_events"`
	InFlight      int    `json:"dialogues_in_flight"`
	Stats         Stats  `json:"stats"`
}

// Status returns a summary of the town.
func (t *Town) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := t.awareness.Counts()
	open := 0
	for _, e := range t.events.Events() {
		if !e.Closed(t.tick) {
			open++
		}
	}
	return Status{
		Tick:          t.tick,
		Time:          SimTime(t.tick, t.cfg.TickRate),
		Villagers:     len(t.villagers),
		Unaware:       counts[npc.Unaware],
		Suspecting:    counts[npc.Suspecting],
		Aware:         counts[npc.Aware],
		Relationships: t.social.Len(),
		OpenEvents:    open,
		InFlight:      t.broker.InFlight(),
		Stats:         t.stats,
	}
}

// VillagerInfo is the outward view of one villager.
type VillagerInfo struct {
	ID            npc.EntityID          `json:"id"`
	Name          string                `json:"name"`
	Position      world.Vec2            `json:"position"`
	Destination   *world.Vec2           `json:"destination,omitempty"`
	Needs         npc.Needs             `json:"needs"`
	Mood          npc.Mood              `json:"mood"`
	Feeling       string                `json:"feeling"`
	Personality   npc.Personality       `json:"personality"`
	Awareness     string                `json:"awareness"`
	CooldownUntil uint64                `json:"cooldown_until"`
	LastAction    string                `json:"last_action"`
	Memories      []memory.Record       `json:"memories,omitempty"`
	Relationships []social.Relationship `json:"relationships,omitempty"`
}

func (t *Town) infoLocked(v *npc.Entity) VillagerInfo {
	lvl, _ := t.awareness.Level(v.ID)
	info := VillagerInfo{
		ID:            v.ID,
		Name:          v.Name,
		Position:      v.Position,
		Needs:         v.Needs,
		Mood:          v.Mood,
		Feeling:       v.Mood.Label(),
		Personality:   v.Personality(),
		Awareness:     lvl.String(),
		CooldownUntil: v.CooldownUntil,
		LastAction:    t.lastActions[v.ID].String(),
	}
	if v.Destination != nil {
		d := *v.Destination
		info.Destination = &d
	}
	return info
}

// Villagers returns every villager, ascending by id.
func (t *Town) Villagers() []VillagerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]VillagerInfo, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.infoLocked(t.villagers[id]))
	}
	return out
}

// Villager returns one villager with its strongest memories and its
// relationships.
func (t *Town) Villager(id npc.EntityID) (VillagerInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := t.villagers[id]
	if v == nil {
		return VillagerInfo{}, fmt.Errorf("villager %s: %w", id, npc.ErrInvalidEntity)
	}
	info := t.infoLocked(v)
	info.Memories = t.memory.Recall(id, memory.Filter{}, 10)
	info.Relationships = t.social.Neighbours(id)
	return info, nil
}

// Recall queries a villager's memory.
func (t *Town) Recall(id npc.EntityID, filter memory.Filter, k int) []memory.Record {
	return t.memory.Recall(id, filter, k)
}

// Relationship returns a's view of b.
func (t *Town) Relationship(a, b npc.EntityID) social.Relationship {
	return t.social.Get(a, b)
}

// Awareness returns a villager's awareness level.
func (t *Town) Awareness(id npc.EntityID) (npc.AwarenessLevel, error) {
	lvl, ok := t.awareness.Level(id)
	if !ok {
		return npc.Unaware, fmt.Errorf("awareness %s: %w", id, npc.ErrInvalidEntity)
	}
	return lvl, nil
}

// Suspicion returns a villager's accumulated suspicion toward the next level.
func (t *Town) Suspicion(id npc.EntityID) float64 {
	return t.awareness.Score(id)
}

// ResetAwareness returns a villager to Unaware. This is the only way an
// Aware villager forgets.
func (t *Town) ResetAwareness(id npc.EntityID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.awareness.Reset(id); err != nil {
		return err
	}
	slog.Info("awareness reset", "npc", id, "tick", t.tick)
	return nil
}
