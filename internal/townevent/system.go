// Package townevent runs community proposals: a description, a voting
// window that closes at a deadline tick, and a tally frozen at close.
package townevent

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/village-mind/internal/npc"
)

var (
	// ErrVoteClosed is returned for votes at or after the deadline, or on a
	// cancelled event.
	ErrVoteClosed = errors.New("vote closed")

	// ErrUnknownEvent is returned for an event id that was never proposed.
	ErrUnknownEvent = errors.New("unknown town event")

	// ErrInvalidProposal is returned for an empty description or a deadline
	// that is not in the future.
	ErrInvalidProposal = errors.New("invalid proposal")

	// ErrInvalidVote is returned for an empty choice.
	ErrInvalidVote = errors.New("invalid vote")
)

// Event is one proposal.
type Event struct {
	ID          string                  `json:"id"`
	Description string                  `json:"description"`
	OpenTick    uint64                  `json:"open_tick"`
	Deadline    uint64                  `json:"deadline"`
	Votes       map[npc.EntityID]string `json:"votes"`
	Cancelled   bool                    `json:"cancelled"`
	Tally       *Tally                  `json:"tally,omitempty"` // Set once, at close
}

// Closed reports whether voting has ended at tick now.
func (e *Event) Closed(now uint64) bool {
	return e.Cancelled || now >= e.Deadline
}

func (e *Event) clone() Event {
	c := *e
	c.Votes = make(map[npc.EntityID]string, len(e.Votes))
	for k, v := range e.Votes {
		c.Votes[k] = v
	}
	if e.Tally != nil {
		t := e.Tally.clone()
		c.Tally = &t
	}
	return c
}

// Tally is the count of an event's votes. Final tallies never change.
type Tally struct {
	EventID    string         `json:"event_id"`
	Counts     map[string]int `json:"counts"`
	Total      int            `json:"total"`
	Winner     string         `json:"winner"` // Empty when nobody voted
	Final      bool           `json:"final"`
	Cancelled  bool           `json:"cancelled"`
	ClosedTick uint64         `json:"closed_tick,omitempty"`
}

func (t Tally) clone() Tally {
	c := t
	c.Counts = make(map[string]int, len(t.Counts))
	for k, v := range t.Counts {
		c.Counts[k] = v
	}
	return c
}

func count(e *Event) Tally {
	t := Tally{EventID: e.ID, Counts: make(map[string]int), Cancelled: e.Cancelled}
	for _, choice := range e.Votes {
		t.Counts[choice]++
		t.Total++
	}
	best := 0
	for choice, n := range t.Counts {
		if n > best || (n == best && choice < t.Winner) {
			best, t.Winner = n, choice
		}
	}
	return t
}

// System holds every town event. Its clock is advanced by the town once per
// tick; votes and tallies are judged against that clock.
type System struct {
	mu     sync.RWMutex
	now    uint64
	events map[string]*Event
	newID  func() string
}

// NewSystem creates an empty system with uuid event ids.
func NewSystem() *System {
	return &System{events: make(map[string]*Event), newID: uuid.NewString}
}

// SetIDFunc replaces the id generator. Used for reproducible runs.
func (s *System) SetIDFunc(f func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newID = f
}

// Now returns the system clock.
func (s *System) Now() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

// Propose opens a new event that accepts votes until deadline.
func (s *System) Propose(description string, deadline uint64) (string, error) {
	description = strings.TrimSpace(description)

	s.mu.Lock()
	defer s.mu.Unlock()

	if description == "" {
		return "", fmt.Errorf("propose: empty description: %w", ErrInvalidProposal)
	}
	if deadline <= s.now {
		return "", fmt.Errorf("propose: deadline %d not after tick %d: %w", deadline, s.now, ErrInvalidProposal)
	}

	id := s.newID()
	s.events[id] = &Event{
		ID:          id,
		Description: description,
		OpenTick:    s.now,
		Deadline:    deadline,
		Votes:       make(map[npc.EntityID]string),
	}
	return id, nil
}

// Vote records voter's choice, replacing any earlier vote by the same voter.
func (s *System) Vote(id string, voter npc.EntityID, choice string) error {
	choice = strings.TrimSpace(choice)

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.events[id]
	if e == nil {
		return fmt.Errorf("vote on %s: %w", id, ErrUnknownEvent)
	}
	if e.Closed(s.now) {
		return fmt.Errorf("vote on %s at tick %d: %w", id, s.now, ErrVoteClosed)
	}
	if choice == "" {
		return fmt.Errorf("vote on %s: empty choice: %w", id, ErrInvalidVote)
	}
	e.Votes[voter] = choice
	return nil
}

// Tally returns the event's count. Once the event has closed the first call
// freezes the result and every later call returns the same value; before
// that the result is provisional (Final false).
func (s *System) Tally(id string) (Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.events[id]
	if e == nil {
		return Tally{}, fmt.Errorf("tally %s: %w", id, ErrUnknownEvent)
	}
	if !e.Closed(s.now) {
		return count(e), nil
	}
	s.freeze(e)
	return e.Tally.clone(), nil
}

func (s *System) freeze(e *Event) {
	if e.Tally != nil {
		return
	}
	t := count(e)
	t.Final = true
	t.ClosedTick = s.now
	if !e.Cancelled && e.Deadline < s.now {
		t.ClosedTick = e.Deadline
	}
	e.Tally = &t
}

// Cancel closes an open event early. Later votes fail with ErrVoteClosed.
func (s *System) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.events[id]
	if e == nil {
		return fmt.Errorf("cancel %s: %w", id, ErrUnknownEvent)
	}
	if e.Closed(s.now) {
		return fmt.Errorf("cancel %s: already closed: %w", id, ErrVoteClosed)
	}
	e.Cancelled = true
	s.freeze(e)
	return nil
}

// Advance moves the clock to now and freezes every event whose deadline has
// passed. The newly closed tallies are returned in deadline order.
func (s *System) Advance(now uint64) []Tally {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now > s.now {
		s.now = now
	}

	var due []*Event
	for _, e := range s.events {
		if e.Tally == nil && e.Closed(s.now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Deadline != due[j].Deadline {
			return due[i].Deadline < due[j].Deadline
		}
		return due[i].ID < due[j].ID
	})

	out := make([]Tally, 0, len(due))
	for _, e := range due {
		s.freeze(e)
		out = append(out, e.Tally.clone())
	}
	return out
}

// Event returns a copy of one event.
func (s *System) Event(id string) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.events[id]
	if e == nil {
		return Event{}, fmt.Errorf("event %s: %w", id, ErrUnknownEvent)
	}
	return e.clone(), nil
}

// Events returns copies of every event, oldest first.
func (s *System) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenTick != out[j].OpenTick {
			return out[i].OpenTick < out[j].OpenTick
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Results returns the frozen tallies of closed events, most recently closed
// first.
func (s *System) Results() []Tally {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Tally
	for _, e := range s.events {
		if e.Tally != nil {
			out = append(out, e.Tally.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClosedTick != out[j].ClosedTick {
			return out[i].ClosedTick > out[j].ClosedTick
		}
		return out[i].EventID < out[j].EventID
	})
	return out
}

// ForgetVoter removes an open vote cast by a villager who left the town.
// Frozen tallies keep it.
func (s *System) ForgetVoter(voter npc.EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.events {
		if !e.Closed(s.now) {
			delete(e.Votes, voter)
		}
	}
}

// Restore loads events from an archive and sets the clock.
func (s *System) Restore(events []Event, now uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range events {
		e := events[i].clone()
		if e.Votes == nil {
			e.Votes = make(map[npc.EntityID]string)
		}
		s.events[e.ID] = &e
	}
	if now > s.now {
		s.now = now
	}
}
