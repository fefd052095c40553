// Package npc provides the villager data model: identity, position,
// personality, needs, awareness levels and the actions a villager can take.
package npc

import (
	"errors"
	"strconv"

	"github.com/talgya/village-mind/internal/world"
)

// ErrInvalidEntity is returned when an API call references an unknown or
// removed entity id.
var ErrInvalidEntity = errors.New("invalid entity")

// EntityID is a unique identifier for a villager. Ids start at 1; 0 means
// "no entity".
type EntityID uint64

// String implements fmt.Stringer.
func (id EntityID) String() string {
	return "npc-" + strconv.FormatUint(uint64(id), 10)
}

// AwarenessLevel is a villager's degree of knowledge that its world is
// simulated.
type AwarenessLevel uint8

const (
	Unaware    AwarenessLevel = iota // Default. Lives the routine.
	Suspecting                       // Something is off; more sensitive to anomalies
	Aware                            // Knows. Terminal.
)

// String implements fmt.Stringer.
func (l AwarenessLevel) String() string {
	switch l {
	case Unaware:
		return "unaware"
	case Suspecting:
		return "suspecting"
	case Aware:
		return "aware"
	default:
		return "unknown"
	}
}

// Entity is a villager. It is owned by the Town; other subsystems refer to it
// only by id.
type Entity struct {
	ID   EntityID `json:"id"`
	Name string   `json:"name"`

	Position    world.Vec2  `json:"position"`
	Destination *world.Vec2 `json:"destination,omitempty"`

	Needs Needs `json:"needs"`
	Mood  Mood  `json:"mood"`

	// CooldownUntil is the first tick at which the villager may start a new
	// interaction.
	CooldownUntil uint64 `json:"cooldown_until"`

	SpawnTick    uint64 `json:"spawn_tick"`
	SpawnedAware bool   `json:"spawned_aware"`

	personality Personality
}

// NewEntity creates a villager with a fixed personality.
func NewEntity(id EntityID, name string, pos world.Vec2, p Personality) *Entity {
	return &Entity{
		ID:          id,
		Name:        name,
		Position:    pos,
		Needs:       DefaultNeeds(),
		personality: p,
	}
}

// Personality returns the villager's trait vector. It never changes after
// spawn.
func (e *Entity) Personality() Personality {
	return e.personality
}

// OnCooldown reports whether the villager is still recovering from its last
// interaction at tick now.
func (e *Entity) OnCooldown(now uint64) bool {
	return now < e.CooldownUntil
}
