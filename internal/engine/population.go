// Population: villagers joining and leaving the town.
package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/world"
)

// SpawnSpec describes a new villager. Zero fields are filled in: a
// position from the spawn density field, a random personality, a
// generated name.
type SpawnSpec struct {
	Name        string           `json:"name,omitempty"`
	Position    *world.Vec2      `json:"position,omitempty"`
	Personality *npc.Personality `json:"personality,omitempty"`
	Aware       bool             `json:"aware"`
}

// AddNPC spawns a villager with a random personality at a generated
// position.
func (t *Town) AddNPC(aware bool) (npc.EntityID, error) {
	return t.Spawn(SpawnSpec{Aware: aware})
}

// Spawn adds a villager described by spec.
func (t *Town) Spawn(spec SpawnSpec) (npc.EntityID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.villagers); n >= t.cfg.MaxNPCs || n >= t.cfg.MaxEntities {
		return 0, fmt.Errorf("spawn: %d villagers: %w", n, ErrCapacity)
	}

	var pos world.Vec2
	if spec.Position != nil {
		pos = t.cfg.WorldSize.Clamp(*spec.Position)
	} else {
		pos = t.placer.Next()
	}

	v := t.spawner.Spawn(pos, spec.Personality, t.tick)
	if spec.Name != "" {
		v.Name = spec.Name
	}
	v.SpawnedAware = spec.Aware
	t.addLocked(v)
	t.awareness.Spawn(v.ID, spec.Aware, v.Personality().Suspicion)

	slog.Info("villager spawned",
		"id", v.ID,
		"name", v.Name,
		"aware", spec.Aware,
		"position", pos.String(),
	)
	return v.ID, nil
}

func (t *Town) addLocked(v *npc.Entity) {
	t.villagers[v.ID] = v
	t.order = append(t.order, v.ID)
	if n := len(t.order); n > 1 && t.order[n-1] < t.order[n-2] {
		sort.Slice(t.order, func(i, j int) bool { return t.order[i] < t.order[j] })
	}
	t.lastActions[v.ID] = npc.Idle(v.ID)
}

// RemoveNPC removes a villager and everything keyed by it: its memories,
// relationships, awareness, open votes and any dialogue in flight. Other
// villagers keep their memories of it.
func (t *Town) RemoveNPC(id npc.EntityID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := t.villagers[id]
	if v == nil {
		return fmt.Errorf("remove %s: %w", id, npc.ErrInvalidEntity)
	}

	delete(t.villagers, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	delete(t.lastActions, id)
	delete(t.percepts, id)

	t.memory.Forget(id)
	t.social.Forget(id)
	t.awareness.Forget(id)
	t.perception.Forget(id)
	t.broker.Drop(id)
	t.events.ForgetVoter(id)

	slog.Info("villager removed", "id", id, "name", v.Name, "tick", t.tick)
	return nil
}

// Population returns the number of villagers.
func (t *Town) Population() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.villagers)
}
