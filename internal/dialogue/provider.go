// Package dialogue defines the contract for generating what villagers say
// to each other, a local template generator, a remote generator backed by
// the Anthropic Messages API, and the Broker that keeps generation off the
// tick path.
package dialogue

import (
	"context"
	"errors"

	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/social"
)

// ErrGenerationUnavailable is returned when a provider fails, times out or
// is rate limited. The exchange is dropped; the simulation carries on.
var ErrGenerationUnavailable = errors.New("generation unavailable")

// ErrBusy is returned when either party already has an exchange in flight.
var ErrBusy = errors.New("dialogue partner busy")

// Participant identifies one side of an exchange.
type Participant struct {
	ID          npc.EntityID
	Name        string
	Personality npc.Personality
	Mood        npc.Mood
}

// Context is what both parties bring to the conversation: what they
// remember of each other and how they feel about each other.
type Context struct {
	SpeakerMemories  []memory.Record
	ListenerMemories []memory.Record
	Relationship     social.Relationship // Speaker's view of listener
	Reciprocal       social.Relationship // Listener's view of speaker
}

// Request asks a provider for one utterance.
type Request struct {
	ID           uint64
	Speaker      Participant
	Listener     Participant
	SpeakerAware bool
	Context      Context
	Tick         uint64
	Seed         uint64 // Fixed per request; providers must be deterministic under it
}

// Utterance is the generated line.
type Utterance struct {
	Text    string  `json:"text"`
	Valence float64 `json:"valence"` // Tone of the exchange, -1 .. 1
	Meta    bool    `json:"meta"`    // Hints that the world is not what it seems
}

// Provider generates utterances. Implementations may block; the Broker
// never calls a blocking provider from inside a tick.
type Provider interface {
	Generate(ctx context.Context, req Request) (Utterance, error)
}

// inliner is implemented by providers that are cheap and deterministic
// enough to evaluate synchronously.
type inliner interface {
	Inline() bool
}

func isInline(p Provider) bool {
	i, ok := p.(inliner)
	return ok && i.Inline()
}
