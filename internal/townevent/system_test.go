package townevent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/village-mind/internal/npc"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("ev-%d", n)
	}
}

func newTestSystem() *System {
	s := NewSystem()
	s.SetIDFunc(sequentialIDs())
	return s
}

func TestProposeValidates(t *testing.T) {
	s := newTestSystem()
	s.Advance(10)

	_, err := s.Propose("  ", 20)
	assert.ErrorIs(t, err, ErrInvalidProposal)
	_, err = s.Propose("harvest festival", 10)
	assert.ErrorIs(t, err, ErrInvalidProposal)

	id, err := s.Propose("harvest festival", 11)
	require.NoError(t, err)
	e, err := s.Event(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), e.OpenTick)
	assert.Equal(t, "harvest festival", e.Description)
}

func TestUUIDIdsByDefault(t *testing.T) {
	s := NewSystem()
	a, err := s.Propose("a", 5)
	require.NoError(t, err)
	b, err := s.Propose("b", 5)
	require.NoError(t, err)
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestLastVoteWins(t *testing.T) {
	s := newTestSystem()
	id, err := s.Propose("new well", 100)
	require.NoError(t, err)

	require.NoError(t, s.Vote(id, 1, "yes"))
	require.NoError(t, s.Vote(id, 1, "no"))

	tally, err := s.Tally(id)
	require.NoError(t, err)
	assert.False(t, tally.Final)
	assert.Equal(t, map[string]int{"no": 1}, tally.Counts)
	assert.Equal(t, 1, tally.Total)
}

func TestVoteAfterDeadlineFails(t *testing.T) {
	s := newTestSystem()
	id, err := s.Propose("new well", 100)
	require.NoError(t, err)

	s.Advance(99)
	require.NoError(t, s.Vote(id, 1, "yes"))

	for _, tick := range []uint64{100, 101, 5000} {
		s.Advance(tick)
		assert.ErrorIs(t, s.Vote(id, 2, "yes"), ErrVoteClosed)
	}
	assert.ErrorIs(t, s.Vote("missing", 1, "yes"), ErrUnknownEvent)
}

func TestCancelClosesVoting(t *testing.T) {
	s := newTestSystem()
	id, err := s.Propose("tax the mill", 100)
	require.NoError(t, err)
	require.NoError(t, s.Vote(id, 1, "yes"))

	s.Advance(40)
	require.NoError(t, s.Cancel(id))
	assert.ErrorIs(t, s.Vote(id, 2, "no"), ErrVoteClosed)
	assert.ErrorIs(t, s.Cancel(id), ErrVoteClosed)

	tally, err := s.Tally(id)
	require.NoError(t, err)
	assert.True(t, tally.Final)
	assert.True(t, tally.Cancelled)
	assert.Equal(t, uint64(40), tally.ClosedTick)

	// Cancelled events are not reported again when the deadline passes.
	assert.Empty(t, s.Advance(100))
}

func TestVoteScenarioTallyIsFrozen(t *testing.T) {
	s := newTestSystem()
	id, err := s.Propose("build a bridge", 100)
	require.NoError(t, err)

	var closed []Tally
	for tick := uint64(1); tick <= 200; tick++ {
		closed = append(closed, s.Advance(tick)...)
		switch tick {
		case 10:
			require.NoError(t, s.Vote(id, 1, "yes"))
			require.NoError(t, s.Vote(id, 2, "no"))
		case 50:
			require.NoError(t, s.Vote(id, 2, "yes"))
		case 90:
			require.NoError(t, s.Vote(id, 3, "no"))
		case 100:
			at100, err := s.Tally(id)
			require.NoError(t, err)
			assert.True(t, at100.Final)
			assert.Equal(t, map[string]int{"yes": 2, "no": 1}, at100.Counts)
			assert.Equal(t, "yes", at100.Winner)
		}
	}

	require.Len(t, closed, 1)
	at200, err := s.Tally(id)
	require.NoError(t, err)
	again, err := s.Tally(id)
	require.NoError(t, err)
	assert.Equal(t, closed[0], at200)
	assert.Equal(t, at200, again)
}

func TestTallyIdempotentAcrossRestart(t *testing.T) {
	s := newTestSystem()
	id, err := s.Propose("rename the square", 50)
	require.NoError(t, err)
	for voter, choice := range map[npc.EntityID]string{1: "oak", 2: "elm", 3: "oak"} {
		require.NoError(t, s.Vote(id, voter, choice))
	}

	// Persisted before close: votes only.
	s.Advance(49)
	archived := s.Events()

	s.Advance(60)
	before, err := s.Tally(id)
	require.NoError(t, err)

	restarted := newTestSystem()
	restarted.Restore(archived, 49)
	restarted.Advance(60)
	after, err := restarted.Tally(id)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Persisted after close: frozen tally survives as-is.
	again := newTestSystem()
	again.Restore(s.Events(), 500)
	frozen, err := again.Tally(id)
	require.NoError(t, err)
	assert.Equal(t, before, frozen)
}

func TestWinnerTieBreak(t *testing.T) {
	s := newTestSystem()
	id, err := s.Propose("colour of the gate", 10)
	require.NoError(t, err)
	require.NoError(t, s.Vote(id, 1, "red"))
	require.NoError(t, s.Vote(id, 2, "blue"))
	require.NoError(t, s.Vote(id, 3, "green"))

	s.Advance(10)
	tally, err := s.Tally(id)
	require.NoError(t, err)
	assert.Equal(t, "blue", tally.Winner)
}

func TestNoVotesHasNoWinner(t *testing.T) {
	s := newTestSystem()
	id, err := s.Propose("nothing", 2)
	require.NoError(t, err)
	s.Advance(3)
	tally, err := s.Tally(id)
	require.NoError(t, err)
	assert.Equal(t, "", tally.Winner)
	assert.Equal(t, 0, tally.Total)
	assert.Equal(t, uint64(2), tally.ClosedTick)
}

func TestForgetVoterAndResults(t *testing.T) {
	s := newTestSystem()
	a, _ := s.Propose("a", 10)
	b, _ := s.Propose("b", 20)
	require.NoError(t, s.Vote(a, 1, "yes"))
	require.NoError(t, s.Vote(b, 1, "yes"))

	s.Advance(10)
	s.ForgetVoter(1)

	ta, _ := s.Tally(a)
	tb, _ := s.Tally(b)
	assert.Equal(t, 1, ta.Total)
	assert.Equal(t, 0, tb.Total)

	s.Advance(20)
	results := s.Results()
	require.Len(t, results, 2)
	assert.Equal(t, b, results[0].EventID)
}
