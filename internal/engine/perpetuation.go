// Perpetuation: snapshots handed to an Archive behind the tick, and
// rehydration from one at startup.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/village-mind/internal/awareness"
	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/social"
	"github.com/talgya/village-mind/internal/townevent"
	"github.com/talgya/village-mind/internal/world"
)

// ErrNoSnapshot is returned by an Archive that holds nothing yet.
var ErrNoSnapshot = errors.New("no snapshot")

// Archive stores town snapshots. Saves happen off the tick path; loads
// only at startup.
type Archive interface {
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// VillagerState is the persisted form of a villager.
type VillagerState struct {
	ID            npc.EntityID    `json:"id"`
	Name          string          `json:"name"`
	Position      world.Vec2      `json:"position"`
	Destination   *world.Vec2     `json:"destination,omitempty"`
	Needs         npc.Needs       `json:"needs"`
	Mood          npc.Mood        `json:"mood"`
	Personality   npc.Personality `json:"personality"`
	CooldownUntil uint64          `json:"cooldown_until"`
	SpawnTick     uint64          `json:"spawn_tick"`
	SpawnedAware  bool            `json:"spawned_aware"`
}

// MemoryState is one villager's memory, short-term first.
type MemoryState struct {
	Owner   npc.EntityID    `json:"owner"`
	Records []memory.Record `json:"records"`
}

// Snapshot is the complete persisted town.
type Snapshot struct {
	Tick          uint64                `json:"tick"`
	Seed          int64                 `json:"seed"`
	NextID        npc.EntityID          `json:"next_id"`
	SavedAt       time.Time             `json:"saved_at"`
	Villagers     []VillagerState       `json:"villagers"`
	Memories      []MemoryState         `json:"memories"`
	Relationships []social.Relationship `json:"relationships"`
	Awareness     []awareness.State     `json:"awareness"`
	Events        []townevent.Event     `json:"events"`
}

// Snapshot captures the town.
func (t *Town) Snapshot() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Town) snapshotLocked() *Snapshot {
	s := &Snapshot{
		Tick:          t.tick,
		Seed:          t.cfg.Seed,
		NextID:        t.spawner.NextID(),
		SavedAt:       time.Now().UTC(),
		Villagers:     make([]VillagerState, 0, len(t.order)),
		Relationships: t.social.All(),
		Awareness:     t.awareness.States(),
		Events:        t.events.Events(),
	}
	for _, id := range t.order {
		v := t.villagers[id]
		vs := VillagerState{
			ID:            v.ID,
			Name:          v.Name,
			Position:      v.Position,
			Needs:         v.Needs,
			Mood:          v.Mood,
			Personality:   v.Personality(),
			CooldownUntil: v.CooldownUntil,
			SpawnTick:     v.SpawnTick,
			SpawnedAware:  v.SpawnedAware,
		}
		if v.Destination != nil {
			d := *v.Destination
			vs.Destination = &d
		}
		s.Villagers = append(s.Villagers, vs)
	}
	for _, owner := range t.memory.Owners() {
		s.Memories = append(s.Memories, MemoryState{Owner: owner, Records: t.memory.All(owner)})
	}
	return s
}

// Restore loads a snapshot into an empty, unstarted town.
func (t *Town) Restore(s *Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.villagers) > 0 || t.tick > 0 {
		return errors.New("restore: town already started")
	}
	if s.Seed != t.cfg.Seed {
		slog.Warn("snapshot seed differs from config", "snapshot", s.Seed, "config", t.cfg.Seed)
	}

	next := s.NextID
	for _, vs := range s.Villagers {
		v := npc.NewEntity(vs.ID, vs.Name, vs.Position, vs.Personality)
		v.Needs = vs.Needs
		v.Mood = vs.Mood
		v.CooldownUntil = vs.CooldownUntil
		v.SpawnTick = vs.SpawnTick
		v.SpawnedAware = vs.SpawnedAware
		if vs.Destination != nil {
			d := *vs.Destination
			v.Destination = &d
		}
		t.addLocked(v)
		if vs.ID >= next {
			next = vs.ID + 1
		}
	}
	t.spawner.SetNextID(next)

	for _, m := range s.Memories {
		if _, ok := t.villagers[m.Owner]; ok {
			t.memory.Restore(m.Owner, m.Records, s.Tick)
		}
	}
	t.social.Restore(s.Relationships)
	t.awareness.Restore(s.Awareness)
	t.events.Restore(s.Events, s.Tick)
	t.tick = s.Tick

	slog.Info("town restored",
		"tick", s.Tick,
		"villagers", len(s.Villagers),
		"relationships", len(s.Relationships),
		"events", len(s.Events),
	)
	return nil
}

// Rehydrate restores the town from a's latest snapshot. An empty archive
// leaves the town as it is.
func (t *Town) Rehydrate(ctx context.Context, a Archive) error {
	s, err := a.LoadSnapshot(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		slog.Info("no snapshot to restore, starting fresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}
	return t.Restore(s)
}

// persist hands a snapshot to the archive writer every persist_every
// ticks. It never blocks: a writer still busy with the last snapshot
// means this one is skipped.
func (t *Town) persist(tick uint64) {
	every := t.cfg.Persistence.PersistEvery
	if t.writer == nil || t.closed || every == 0 || tick%every != 0 {
		return
	}
	if !t.writer.submit(t.snapshotLocked()) {
		slog.Warn("archive writer busy, snapshot skipped", "tick", tick)
	}
}

type archiveWriter struct {
	archive Archive
	saves   chan *Snapshot
	done    chan struct{}
}

func newArchiveWriter(a Archive) *archiveWriter {
	w := &archiveWriter{
		archive: a,
		saves:   make(chan *Snapshot, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *archiveWriter) run() {
	defer close(w.done)
	for s := range w.saves {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		start := time.Now()
		err := w.archive.SaveSnapshot(ctx, s)
		cancel()
		if err != nil {
			slog.Error("snapshot save failed", "tick", s.Tick, "error", err)
			continue
		}
		slog.Debug("snapshot saved", "tick", s.Tick, "villagers", len(s.Villagers), "took", time.Since(start))
	}
}

func (w *archiveWriter) submit(s *Snapshot) bool {
	select {
	case w.saves <- s:
		return true
	default:
		return false
	}
}

// close queues final, if any, and waits for every queued save to finish.
func (w *archiveWriter) close(final *Snapshot) {
	if final != nil {
		w.saves <- final
	}
	close(w.saves)
	<-w.done
}
