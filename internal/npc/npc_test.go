package npc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/village-mind/internal/world"
)

func TestNewPersonalityClamps(t *testing.T) {
	p := NewPersonality(-1, 2, 0.5, 0.25, 7)
	assert.Equal(t, Personality{Openness: 0, Sociability: 1, Agreeableness: 0.5, Curiosity: 0.25, Suspicion: 1}, p)
}

func TestPersonalityValidate(t *testing.T) {
	assert.NoError(t, NewPersonality(0, 1, 0.5, 0.2, 0.9).Validate())
	err := Personality{Openness: 0.5, Curiosity: 1.2}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "curiosity")
}

func TestRandomPersonalityInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		p := RandomPersonality(rng)
		for _, v := range []float64{p.Openness, p.Sociability, p.Agreeableness, p.Curiosity, p.Suspicion} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestCompatibility(t *testing.T) {
	a := NewPersonality(0.2, 0.4, 0.6, 0.8, 1)
	assert.InDelta(t, 1.0, a.Compatibility(a), 1e-9)

	b := NewPersonality(0.8, 0.4, 0.6, 0.8, 1)
	assert.InDelta(t, (0.4+4)/5, a.Compatibility(b), 1e-9)
	assert.InDelta(t, a.Compatibility(b), b.Compatibility(a), 1e-12)
}

func TestNeedsDecayAndPriority(t *testing.T) {
	n := Needs{Belonging: 0.9, Novelty: 0.5, Purpose: 0.01}
	assert.Equal(t, NeedPurpose, n.Priority())

	n.Decay(NewPersonality(0, 1, 0, 1, 0), 0.1)
	assert.InDelta(t, 0.75, n.Belonging, 1e-9)
	assert.InDelta(t, 0.35, n.Novelty, 1e-9)
	assert.Equal(t, 0.0, n.Purpose)

	n.Satisfy(NeedBelonging, 5)
	assert.Equal(t, 1.0, n.Belonging)
	assert.InDelta(t, 0.0, n.Deficit(NeedBelonging), 1e-12)
}

func TestMoodFeelAndSettle(t *testing.T) {
	var m Mood
	assert.Equal(t, "calm", m.Label())

	m.Feel(-1, 0.5)
	assert.InDelta(t, -0.5, m.Valence, 1e-12)
	assert.InDelta(t, 0.5, m.Arousal, 1e-12)

	m.Feel(-1, 0.5)
	assert.InDelta(t, -0.75, m.Valence, 1e-12)
	assert.InDelta(t, 0.75, m.Arousal, 1e-12)
	assert.Equal(t, "agitated", m.Label())

	// A neutral experience pulls valence back without stirring.
	m.Feel(0, 2)
	assert.Equal(t, 0.0, m.Valence)
	assert.InDelta(t, 0.75, m.Arousal, 1e-12)

	m = Mood{Valence: 0.8, Arousal: 0.4}
	for i := 0; i < 1000; i++ {
		m.Settle(0.01)
	}
	assert.Less(t, m.Valence, 0.001)
	assert.Less(t, m.Arousal, 0.001)
	assert.Equal(t, "calm", m.Label())
}

func TestSpawnerIDsAndDeterminism(t *testing.T) {
	a := NewSpawner(9)
	b := NewSpawner(9)

	e1 := a.Spawn(world.Vec2{X: 1, Y: 1}, nil, 0)
	e2 := a.Spawn(world.Vec2{X: 2, Y: 2}, nil, 4)
	require.Equal(t, EntityID(1), e1.ID)
	require.Equal(t, EntityID(2), e2.ID)
	assert.Equal(t, uint64(4), e2.SpawnTick)

	f1 := b.Spawn(world.Vec2{X: 1, Y: 1}, nil, 0)
	assert.Equal(t, e1.Name, f1.Name)
	assert.Equal(t, e1.Personality(), f1.Personality())

	fixed := NewPersonality(0.1, 0.2, 0.3, 0.4, 0.5)
	e3 := a.Spawn(world.Vec2{}, &fixed, 0)
	assert.Equal(t, fixed, e3.Personality())

	a.SetNextID(40)
	assert.Equal(t, EntityID(40), a.Spawn(world.Vec2{}, nil, 0).ID)
}

func TestActionString(t *testing.T) {
	a := Action{Actor: 1, Kind: ActionReveal, Target: 2}
	assert.Equal(t, "npc-1 reveal npc-2", a.String())
	assert.True(t, a.Targeted())
	assert.False(t, Idle(1).Targeted())
	assert.Equal(t, "npc-3 confront npc-4", Action{Actor: 3, Kind: ActionInteract, Target: 4, Interaction: InteractConfront}.String())
}

func TestEntityCooldown(t *testing.T) {
	e := NewEntity(1, "A", world.Vec2{}, Personality{})
	e.CooldownUntil = 10
	assert.True(t, e.OnCooldown(9))
	assert.False(t, e.OnCooldown(10))
	assert.Equal(t, "aware", Aware.String())
}
