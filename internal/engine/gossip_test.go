package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/social"
)

func spawnN(t *testing.T, town *Town, n int) []npc.EntityID {
	t.Helper()
	ids := make([]npc.EntityID, n)
	for i := range ids {
		id, err := town.AddNPC(false)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func TestGossipIsWeightedByTrust(t *testing.T) {
	town := newTestTown(t, testConfig())
	ids := spawnN(t, town, 4)
	a, b, c, d := ids[0], ids[1], ids[2], ids[3]

	town.memory.Record(a, memory.Record{
		Subject:     memory.EntitySubject(c),
		Kind:        memory.KindInteraction,
		Valence:     -0.6,
		Importance:  0.6,
		CreatedTick: 1,
		Content:     "c confronted me",
	})
	town.social.Update(b, a, social.Outcome{Trust: 0.3})

	require.True(t, town.gossip(town.villagers[a], town.villagers[b], 2))

	heard := town.Recall(b, memory.Filter{Subject: memory.EntitySubject(c), Kind: memory.KindGossip}, 1)
	require.Len(t, heard, 1)
	assert.InDelta(t, -0.6*0.8, heard[0].Valence, 1e-9)
	assert.InDelta(t, 0.6*0.8*gossipWeight, heard[0].Importance, 1e-9)
	assert.Contains(t, heard[0].Content, town.villagers[a].Name)
	assert.Less(t, town.villagers[b].Mood.Valence, 0.0)

	// Retold to a stranger it is weaker again.
	require.True(t, town.gossip(town.villagers[b], town.villagers[d], 3))
	retold := town.Recall(d, memory.Filter{Subject: memory.EntitySubject(c), Kind: memory.KindGossip}, 1)
	require.Len(t, retold, 1)
	assert.Less(t, retold[0].Importance, heard[0].Importance)
	assert.Less(t, retold[0].Valence, 0.0)
	assert.Greater(t, retold[0].Valence, heard[0].Valence)
}

func TestGossipNeedsAThirdVillager(t *testing.T) {
	town := newTestTown(t, testConfig())
	ids := spawnN(t, town, 2)
	a, b := ids[0], ids[1]

	town.memory.Record(a, memory.Record{Subject: memory.EntitySubject(b), Kind: memory.KindDialogue, Valence: 0.4, Importance: 0.5})
	town.memory.Record(a, memory.Record{Subject: memory.EntitySubject(a), Kind: memory.KindDialogue, Valence: 0.4, Importance: 0.5})
	town.memory.Record(a, memory.Record{Subject: memory.EventSubject("glitch"), Kind: memory.KindGlitch, Importance: 0.9})

	assert.False(t, town.gossip(town.villagers[a], town.villagers[b], 1))
	assert.Empty(t, town.Recall(b, memory.Filter{Kind: memory.KindGossip}, 5))
}

func TestGossipIgnoredWithoutTrust(t *testing.T) {
	town := newTestTown(t, testConfig())
	ids := spawnN(t, town, 3)
	a, b, c := ids[0], ids[1], ids[2]

	town.memory.Record(a, memory.Record{Subject: memory.EntitySubject(c), Kind: memory.KindInteraction, Valence: 0.5, Importance: 0.5})
	town.social.Update(b, a, social.Outcome{Trust: -1})

	assert.False(t, town.gossip(town.villagers[a], town.villagers[b], 1))
	assert.Empty(t, town.Recall(b, memory.Filter{Kind: memory.KindGossip}, 5))
}

func TestRevealRumourIsWeakEvidence(t *testing.T) {
	town := newTestTown(t, testConfig())
	ids := spawnN(t, town, 3)
	a, b, c := ids[0], ids[1], ids[2]

	town.memory.Record(a, memory.Record{
		Subject:     memory.EntitySubject(c),
		Kind:        memory.KindWitness,
		Valence:     -0.1,
		Importance:  0.5,
		CreatedTick: 1,
	})
	require.True(t, town.gossip(town.villagers[a], town.villagers[b], 2))

	town.awareness.Update(2)
	score := town.awareness.Score(b)
	assert.Positive(t, score)
	assert.LessOrEqual(t, score, town.cfg.Awareness.RumourStrength*2)
	lvl, _ := town.awareness.Level(b)
	assert.Equal(t, npc.Unaware, lvl)
}
