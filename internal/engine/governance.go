// Town events: proposals, votes and tallies, and what villagers remember of
// them once they close.
package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/townevent"
)

// Propose opens a town event that accepts votes until the deadline tick.
func (t *Town) Propose(description string, deadline uint64) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := t.events.Propose(description, deadline)
	if err != nil {
		return "", fmt.Errorf("propose: %w", err)
	}
	slog.Info("town event proposed", "id", id, "description", description, "deadline", deadline)
	return id, nil
}

// Vote records a villager's choice. The voter must live in the town.
func (t *Town) Vote(id string, voter npc.EntityID, choice string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.villagers[voter]; !ok {
		return fmt.Errorf("vote by %s: %w", voter, npc.ErrInvalidEntity)
	}
	return t.events.Vote(id, voter, choice)
}

// Tally returns an event's tally: provisional while voting is open, frozen
// after.
func (t *Town) Tally(id string) (townevent.Tally, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.events.Tally(id)
}

// Cancel closes an event early and freezes its tally.
func (t *Town) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.events.Cancel(id); err != nil {
		return err
	}
	tally, err := t.events.Tally(id)
	if err != nil {
		return err
	}
	t.closeOut(tally, t.tick)
	return nil
}

// Event returns one town event.
func (t *Town) Event(id string) (townevent.Event, error) {
	return t.events.Event(id)
}

// Events returns every town event, oldest first.
func (t *Town) Events() []townevent.Event {
	return t.events.Events()
}

// Results returns closed tallies, most recent first.
func (t *Town) Results() []townevent.Tally {
	return t.events.Results()
}

// advanceEvents closes events whose deadline has come.
func (t *Town) advanceEvents(tick uint64, r *TickReport) {
	for _, tally := range t.events.Advance(tick) {
		t.closeOut(tally, tick)
		r.Tallies = append(r.Tallies, tally)
	}
}

// closeOut logs a frozen tally and has each voter remember how it went for
// them. Callers hold t.mu.
func (t *Town) closeOut(tally townevent.Tally, tick uint64) {
	e, err := t.events.Event(tally.EventID)
	if err != nil {
		return
	}
	slog.Info("town event closed",
		"id", tally.EventID,
		"winner", tally.Winner,
		"votes", humanize.Comma(int64(tally.Total)),
		"cancelled", tally.Cancelled,
		"tick", tick,
	)

	content := fmt.Sprintf("the vote on %q went %q", e.Description, tally.Winner)
	if tally.Cancelled {
		content = fmt.Sprintf("the vote on %q was called off", e.Description)
	}
	for _, voter := range sortedVoters(e.Votes) {
		v, ok := t.villagers[voter]
		if !ok {
			continue
		}
		valence := 0.0
		switch {
		case tally.Cancelled:
		case e.Votes[voter] == tally.Winner:
			valence = 0.3
		default:
			valence = -0.2
		}
		t.memory.Record(voter, memory.Record{
			Subject:     memory.EventSubject(tally.EventID),
			Kind:        memory.KindTownEvent,
			Valence:     valence,
			Importance:  0.4,
			CreatedTick: tick,
			Content:     content,
		})
		v.Mood.Feel(valence, 0.3)
	}
	t.stats.ClosedEvents++
}

func sortedVoters(votes map[npc.EntityID]string) []npc.EntityID {
	out := make([]npc.EntityID, 0, len(votes))
	for id := range votes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
