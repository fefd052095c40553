package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldThink(t *testing.T) {
	s := NewScheduler(time.Millisecond, 6)
	for _, tc := range []struct {
		tick uint64
		want bool
	}{
		{1, false}, {5, false}, {6, true}, {7, false}, {12, true},
	} {
		assert.Equal(t, tc.want, s.ShouldThink(tc.tick), "tick %d", tc.tick)
	}

	every := NewScheduler(time.Millisecond, 0)
	assert.True(t, every.ShouldThink(1))
	assert.True(t, every.ShouldThink(7))
}

func TestSchedulerRunsUntilStopped(t *testing.T) {
	s := NewScheduler(time.Millisecond, 1)
	var ticks atomic.Int64
	s.OnTick = func() {
		if ticks.Add(1) == 5 {
			s.Stop()
		}
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	// The stop check runs between ticks: the stopping tick completes and no
	// further tick starts.
	assert.Equal(t, int64(5), ticks.Load())
	assert.False(t, s.Running())
}

func TestSchedulerStopsOnContext(t *testing.T) {
	s := NewScheduler(time.Millisecond, 1)
	var ticks atomic.Int64
	s.OnTick = func() { ticks.Add(1) }

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Positive(t, ticks.Load())
}

func TestSchedulerRejectsSecondRun(t *testing.T) {
	s := NewScheduler(time.Millisecond, 1)
	started := make(chan struct{})
	var once atomic.Bool
	s.OnTick = func() {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
	}

	go s.Run(context.Background())
	<-started
	assert.ErrorIs(t, s.Run(context.Background()), ErrRunning)
	s.Stop()
}

func TestSimTime(t *testing.T) {
	assert.Equal(t, "Day 1, 0:00:00", SimTime(0, 60))
	assert.Equal(t, "Day 1, 0:01:30", SimTime(90*60, 60))
	assert.Equal(t, "Day 2, 1:00:00", SimTime(25*3600*60, 60))
}
