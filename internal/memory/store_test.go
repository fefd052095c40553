package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/village-mind/internal/npc"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DecayRate = 0.05
	cfg.ShortTermCapacity = 4
	return cfg
}

func TestSubjectEntity(t *testing.T) {
	id, ok := EntitySubject(42).Entity()
	require.True(t, ok)
	assert.Equal(t, npc.EntityID(42), id)

	_, ok = EventSubject("harvest").Entity()
	assert.False(t, ok)
}

func TestImportanceNonIncreasingAndPruned(t *testing.T) {
	s := NewStore(testConfig())
	s.Record(1, Record{Subject: EntitySubject(2), Kind: KindSighting, Importance: 0.6, Valence: 0.2, CreatedTick: 0})

	prev := s.All(1)[0].Importance
	for tick := uint64(1); tick <= 200; tick++ {
		s.DecayAll(tick)
		recs := s.All(1)
		if len(recs) == 0 {
			break
		}
		cur := recs[0].Importance
		assert.Less(t, cur, prev, "tick %d", tick)
		prev = cur
		s.Prune()
	}

	assert.Empty(t, s.All(1))
	assert.Empty(t, s.Recall(1, Filter{}, 10))
}

func TestDecayIsExponential(t *testing.T) {
	s := NewStore(testConfig())
	s.Record(1, Record{Subject: EntitySubject(2), Kind: KindSighting, Importance: 0.5, DecayRate: 0.1})
	s.DecayAll(10)
	// 0.5 * e^-1
	assert.InDelta(t, 0.18393972, s.All(1)[0].Importance, 1e-6)
}

func TestImportanceDependentRate(t *testing.T) {
	s := NewStore(testConfig())
	s.Record(1, Record{Subject: EntitySubject(2), Kind: KindSighting, Importance: 1})
	s.Record(1, Record{Subject: EntitySubject(3), Kind: KindSighting, Importance: 0.1})
	recs := s.All(1)
	require.Len(t, recs, 2)
	assert.InDelta(t, 0.05*0.7, recs[0].DecayRate, 1e-12)
	assert.InDelta(t, 0.05*0.97, recs[1].DecayRate, 1e-12)
}

func TestReinforcementResetsDecayAndPromotes(t *testing.T) {
	s := NewStore(testConfig())
	subj := EntitySubject(7)
	s.Record(1, Record{Subject: subj, Kind: KindInteraction, Importance: 0.5, Valence: 0.4, CreatedTick: 0})
	s.DecayAll(10)
	faded := s.All(1)[0].Importance
	require.Less(t, faded, 0.5)

	for i, tick := range []uint64{10, 11, 12} {
		s.Record(1, Record{Subject: subj, Kind: KindInteraction, Importance: 0.3, Valence: 0.4, CreatedTick: tick})
		recs := s.All(1)
		require.Len(t, recs, 1)
		assert.Equal(t, i+1, recs[0].Reinforcements)
	}

	long := s.LongTerm(1)
	require.Len(t, long, 1)
	assert.True(t, long[0].LongTerm)
	assert.Equal(t, uint64(12), long[0].ReinforcedTick)
	assert.InDelta(t, faded, long[0].BaseImportance, 1e-12)
}

func TestSalientRecordPromotedOnCreation(t *testing.T) {
	s := NewStore(testConfig())
	s.Record(1, Record{Subject: EntitySubject(2), Kind: KindReveal, Importance: 0.9, Valence: -0.85})
	require.Len(t, s.LongTerm(1), 1)

	// Long-term records decay slower.
	s.Record(1, Record{Subject: EntitySubject(3), Kind: KindSighting, Importance: 0.9, Valence: 0.1})
	s.DecayAll(20)
	recs := s.All(1)
	require.Len(t, recs, 2)
	assert.Greater(t, recs[1].Importance, recs[0].Importance)
}

func TestOverflowEvictsLowestImportance(t *testing.T) {
	s := NewStore(testConfig())
	for i, imp := range []float64{0.5, 0.2, 0.7, 0.4} {
		require.True(t, s.Record(1, Record{Subject: EntitySubject(npc.EntityID(i + 10)), Kind: KindSighting, Importance: imp}))
	}

	// Less important than everything: dropped.
	assert.False(t, s.Record(1, Record{Subject: EntitySubject(99), Kind: KindSighting, Importance: 0.1}))

	assert.True(t, s.Record(1, Record{Subject: EntitySubject(98), Kind: KindSighting, Importance: 0.6}))
	recs := s.All(1)
	require.Len(t, recs, 4)
	for _, r := range recs {
		assert.NotEqual(t, EntitySubject(11), r.Subject)
	}
}

func TestRecallRanksAndFilters(t *testing.T) {
	s := NewStore(testConfig())
	s.Record(1, Record{Subject: EntitySubject(2), Kind: KindSighting, Importance: 0.3})
	s.Record(1, Record{Subject: EntitySubject(3), Kind: KindInteraction, Importance: 0.6, Valence: 0.5})
	s.Record(1, Record{Subject: EntitySubject(2), Kind: KindDialogue, Importance: 0.6, Valence: 0.1})

	all := s.Recall(1, Filter{}, 10)
	require.Len(t, all, 3)
	assert.Equal(t, EntitySubject(3), all[0].Subject)
	assert.Equal(t, KindDialogue, all[1].Kind)

	about2 := s.Recall(1, Filter{Subject: EntitySubject(2)}, 1)
	require.Len(t, about2, 1)
	assert.Equal(t, KindDialogue, about2[0].Kind)

	assert.Len(t, s.Recall(1, Filter{Kind: KindSighting}, 5), 1)
	assert.Nil(t, s.Recall(5, Filter{}, 5))
}

func TestRecallDoesNotMutate(t *testing.T) {
	s := NewStore(testConfig())
	s.Record(1, Record{Subject: EntitySubject(2), Kind: KindSighting, Importance: 0.3})
	before := s.All(1)
	got := s.Recall(1, Filter{}, 1)
	got[0].Importance = 1
	assert.Equal(t, before, s.All(1))
}

func TestConcurrentRecall(t *testing.T) {
	s := NewStore(DefaultConfig())
	for i := 0; i < 10; i++ {
		s.Record(npc.EntityID(i), Record{Subject: EntitySubject(99), Kind: KindSighting, Importance: 0.5, Content: fmt.Sprint(i)})
	}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id npc.EntityID) {
			defer wg.Done()
			assert.Len(t, s.Recall(id, Filter{}, 3), 1)
		}(npc.EntityID(i))
	}
	wg.Wait()
}

func TestRestoreAndForget(t *testing.T) {
	s := NewStore(testConfig())
	s.Restore(3, []Record{
		{Subject: EntitySubject(1), Kind: KindSighting, Importance: 0.4, BaseImportance: 0.4},
		{Subject: EntitySubject(2), Kind: KindReveal, Importance: 0.9, BaseImportance: 0.9, LongTerm: true},
	}, 50)
	assert.Equal(t, 2, s.Len(3))
	assert.Len(t, s.LongTerm(3), 1)
	assert.Equal(t, uint64(50), s.Now())
	assert.Equal(t, []npc.EntityID{3}, s.Owners())

	s.Forget(3)
	assert.Equal(t, 0, s.Len(3))
}
