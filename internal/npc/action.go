package npc

import (
	"fmt"

	"github.com/talgya/village-mind/internal/world"
)

// ActionKind enumerates what a villager can do in a tick.
type ActionKind uint8

const (
	ActionIdle     ActionKind = iota
	ActionMove                // Walk toward a destination
	ActionInteract            // Physical/social interaction with a neighbour
	ActionSpeak               // Start a dialogue exchange
	ActionReveal              // Aware only: tell a neighbour what the world is
)

// String implements fmt.Stringer.
func (k ActionKind) String() string {
	switch k {
	case ActionIdle:
		return "idle"
	case ActionMove:
		return "move"
	case ActionInteract:
		return "interact"
	case ActionSpeak:
		return "speak"
	case ActionReveal:
		return "reveal"
	default:
		return "unknown"
	}
}

// InteractionKind qualifies an Interact action.
type InteractionKind uint8

const (
	InteractGreet    InteractionKind = iota // Friendly small talk
	InteractHelp                            // Lend a hand
	InteractConfront                        // Argue, accuse
)

// String implements fmt.Stringer.
func (k InteractionKind) String() string {
	switch k {
	case InteractGreet:
		return "greet"
	case InteractHelp:
		return "help"
	case InteractConfront:
		return "confront"
	default:
		return "unknown"
	}
}

// Action is what a villager decided to do this tick. It is produced by
// cognition and consumed by the Act phase of the same tick.
type Action struct {
	Actor       EntityID        `json:"actor"`
	Kind        ActionKind      `json:"kind"`
	Target      EntityID        `json:"target,omitempty"`
	Interaction InteractionKind `json:"interaction,omitempty"`
	Destination world.Vec2      `json:"destination,omitempty"`
	Score       float64         `json:"score"`
}

// Idle returns the idle action for actor.
func Idle(actor EntityID) Action {
	return Action{Actor: actor, Kind: ActionIdle}
}

// Targeted reports whether the action is directed at another villager.
func (a Action) Targeted() bool {
	switch a.Kind {
	case ActionInteract, ActionSpeak, ActionReveal:
		return true
	default:
		return false
	}
}

// String returns a short human-readable description for event logs.
func (a Action) String() string {
	switch a.Kind {
	case ActionInteract:
		return fmt.Sprintf("%s %s %s", a.Actor, a.Interaction, a.Target)
	case ActionSpeak, ActionReveal:
		return fmt.Sprintf("%s %s %s", a.Actor, a.Kind, a.Target)
	case ActionMove:
		return fmt.Sprintf("%s move %s", a.Actor, a.Destination)
	default:
		return fmt.Sprintf("%s idle", a.Actor)
	}
}
