package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/village-mind/internal/npc"
)

func TestGetNeutralDefault(t *testing.T) {
	g := NewGraph()
	r := g.Get(1, 2)
	assert.Equal(t, Relationship{From: 1, To: 2, Trust: NeutralTrust}, r)
	assert.Equal(t, 0, g.Len())
}

func TestUpdateIsAsymmetric(t *testing.T) {
	g := NewGraph()
	ab, ba := g.Update(5, 2, Outcome{Affinity: 0.3, Trust: 0.1, ReciprocalAffinity: -0.2, ReciprocalTrust: -0.1, Tick: 7})

	assert.InDelta(t, 0.3, ab.Affinity, 1e-12)
	assert.InDelta(t, 0.6, ab.Trust, 1e-12)
	assert.InDelta(t, -0.2, ba.Affinity, 1e-12)
	assert.InDelta(t, 0.4, ba.Trust, 1e-12)

	assert.Equal(t, ab, g.Get(5, 2))
	assert.Equal(t, ba, g.Get(2, 5))
	assert.Equal(t, uint64(7), g.Get(2, 5).LastTick)
	assert.Equal(t, 1, g.Len())
}

func TestClampingUnderExtremeUpdates(t *testing.T) {
	g := NewGraph()
	extremes := []Outcome{
		{Affinity: 50, Trust: 50, ReciprocalAffinity: -50, ReciprocalTrust: -50},
		{Affinity: -1e9, Trust: -1e9, ReciprocalAffinity: 1e9, ReciprocalTrust: 1e9},
		{Affinity: 3, Trust: 0.2, ReciprocalAffinity: -3, ReciprocalTrust: 4},
	}
	for i := 0; i < 30; i++ {
		g.Update(1, 2, extremes[i%len(extremes)])
		for _, r := range []Relationship{g.Get(1, 2), g.Get(2, 1)} {
			assert.GreaterOrEqual(t, r.Affinity, -1.0)
			assert.LessOrEqual(t, r.Affinity, 1.0)
			assert.GreaterOrEqual(t, r.Trust, 0.0)
			assert.LessOrEqual(t, r.Trust, 1.0)
		}
	}

	// Clamping is idempotent: pushing past the edge again changes nothing.
	g.Update(1, 2, Outcome{Affinity: 10, Trust: 10})
	first := g.Get(1, 2)
	g.Update(1, 2, Outcome{Affinity: 10, Trust: 10})
	second := g.Get(1, 2)
	assert.Equal(t, first.Affinity, second.Affinity)
	assert.Equal(t, first.Trust, second.Trust)
	assert.Equal(t, 1.0, second.Affinity)
}

func TestDecayStale(t *testing.T) {
	g := NewGraph()
	g.Update(1, 2, Outcome{Affinity: 0.5, Trust: 0.3, Tick: 0})
	g.Update(3, 4, Outcome{Affinity: 0.5, Tick: 90})

	moved := g.DecayStale(100, 0.01, 100)
	assert.Equal(t, 1, moved, "only 1->2 is stale; 2->1 is already neutral")
	assert.InDelta(t, 0.495, g.Get(1, 2).Affinity, 1e-12)
	assert.InDelta(t, 0.5+0.3*0.99, g.Get(1, 2).Trust, 1e-12)
	assert.InDelta(t, 0.5, g.Get(3, 4).Affinity, 1e-12)
}

func TestNeighboursAllRestoreForget(t *testing.T) {
	g := NewGraph()
	g.Update(1, 3, Outcome{Affinity: 0.1})
	g.Update(2, 1, Outcome{Affinity: 0.2})
	g.Update(2, 3, Outcome{Affinity: 0.3})

	n := g.Neighbours(1)
	require.Len(t, n, 2)
	assert.Equal(t, npc.EntityID(2), n[0].To)
	assert.Equal(t, npc.EntityID(3), n[1].To)

	all := g.All()
	require.Len(t, all, 6)

	h := NewGraph()
	h.Restore(all)
	assert.Equal(t, all, h.All())

	h.Forget(1)
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, Neutral(1, 3), h.Get(1, 3))
}

func TestInteractionOutcomeSigns(t *testing.T) {
	p := npc.NewPersonality(0.5, 0.5, 0.5, 0.5, 0.5)
	help := InteractionOutcome(npc.InteractHelp, p, p, 1)
	assert.Greater(t, help.Affinity, 0.0)
	assert.Greater(t, help.ReciprocalTrust, 0.0)

	confront := InteractionOutcome(npc.InteractConfront, p, p, 1)
	assert.Less(t, confront.Affinity, 0.0)
	assert.Less(t, confront.ReciprocalAffinity, 0.0)

	warm := npc.NewPersonality(0.5, 1, 1, 0.5, 0.5)
	cold := npc.NewPersonality(0.5, 0, 0, 0.5, 0.5)
	assert.Greater(t, InteractionOutcome(npc.InteractGreet, warm, p, 1).Affinity,
		InteractionOutcome(npc.InteractGreet, cold, p, 1).Affinity)
}

func TestRevealOutcomeDependsOnOpenness(t *testing.T) {
	actor := npc.NewPersonality(0.5, 0.5, 0.5, 0.5, 0.5)
	open := RevealOutcome(actor, npc.NewPersonality(1, 0.5, 0.5, 0.5, 0), 1)
	closed := RevealOutcome(actor, npc.NewPersonality(0, 0.5, 0.5, 0.5, 1), 1)
	assert.Greater(t, open.ReciprocalAffinity, 0.0)
	assert.Less(t, closed.ReciprocalAffinity, 0.0)
	assert.Less(t, closed.ReciprocalTrust, open.ReciprocalTrust)
}
