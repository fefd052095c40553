// Propagate phase: queued relationship changes, relationship drift, and
// awareness transitions.
package engine

import (
	"log/slog"

	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/npc"
)

// propagate is single-writer: outcomes apply in the order Act queued them.
func (t *Town) propagate(tick uint64, r *TickReport) {
	for _, so := range t.outcomes {
		t.social.Update(so.a, so.b, so.o)
	}
	t.outcomes = t.outcomes[:0]

	if n := t.social.DecayStale(tick, t.cfg.Social.DecayRate, t.cfg.Social.StaleAfter); n > 0 {
		slog.Debug("relationships drifting", "views", n, "tick", tick)
	}

	for _, tr := range t.awareness.Update(tick) {
		slog.Info("awareness changed",
			"npc", tr.ID,
			"from", tr.From.String(),
			"to", tr.To.String(),
			"tick", tr.Tick,
		)
		if tr.To == npc.Aware {
			t.memory.Record(tr.ID, memory.Record{
				Subject:     memory.EventSubject("awakening"),
				Kind:        memory.KindReveal,
				Valence:     0.9,
				Importance:  1,
				CreatedTick: tick,
				Content:     "I see it now: the world is made",
			})
		}
		t.stats.Transitions++
		r.Transitions = append(r.Transitions, tr)
	}
}
