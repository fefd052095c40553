// Package engine provides the tick loop and the Town aggregate that owns
// every villager and subsystem.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// ErrRunning is returned by Run when the scheduler is already running.
var ErrRunning = errors.New("scheduler already running")

// Scheduler drives ticks at a fixed rate.
type Scheduler struct {
	Interval   time.Duration // Wall-clock time per tick
	ThinkEvery uint64        // Decide runs on ticks divisible by this

	// OnTick runs one full tick. It is never called concurrently.
	OnTick func()

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler.
func NewScheduler(interval time.Duration, thinkEvery uint64) *Scheduler {
	if thinkEvery == 0 {
		thinkEvery = 1
	}
	return &Scheduler{
		Interval:   interval,
		ThinkEvery: thinkEvery,
		stop:       make(chan struct{}),
	}
}

// ShouldThink reports whether tick is a Decide tick.
func (s *Scheduler) ShouldThink(tick uint64) bool {
	return s.ThinkEvery <= 1 || tick%s.ThinkEvery == 0
}

// Running reports whether Run is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Run starts the tick loop. Blocks until Stop is called or ctx is done.
// The stop check happens between ticks, so a tick in progress always
// completes.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer s.running.Store(false)

	slog.Info("scheduler started", "interval", s.Interval, "think_every", s.ThinkEvery)

	var ticks int64
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped", "reason", ctx.Err(), "ticks", humanize.Comma(ticks))
			return nil
		case <-s.stop:
			slog.Info("scheduler stopped", "reason", "stop requested", "ticks", humanize.Comma(ticks))
			return nil
		case <-timer.C:
		}

		start := time.Now()
		if s.OnTick != nil {
			s.OnTick()
		}
		ticks++

		// Sleep for the remainder of the tick interval.
		wait := s.Interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Stop halts the loop after the current tick. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// SimTime returns a human-readable simulation time from a tick number.
func SimTime(tick uint64, tickRate int) string {
	if tickRate <= 0 {
		tickRate = 1
	}
	secs := tick / uint64(tickRate)
	return fmt.Sprintf("Day %d, %d:%02d:%02d", secs/86400+1, secs/3600%24, secs/60%60, secs%60)
}
