// Perceive and Decide phases.
package engine

import (
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/village-mind/internal/awareness"
	"github.com/talgya/village-mind/internal/cognition"
	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/perception"
	"github.com/talgya/village-mind/internal/social"
)

// perceive integrates finished dialogue, decays memory and needs, rebuilds
// the spatial index and records what every villager sees.
func (t *Town) perceive(tick uint64, r *TickReport) {
	t.integrateDialogue(tick, r)

	t.memory.DecayAll(tick)
	if n := t.memory.Prune(); n > 0 {
		slog.Debug("memories faded", "count", n, "tick", tick)
	}

	observed := make([]perception.Observed, 0, len(t.order))
	for _, id := range t.order {
		v := t.villagers[id]
		v.Needs.Decay(v.Personality(), t.cfg.Cognition.NeedDecay)
		v.Mood.Settle(t.cfg.Cognition.MoodDecay)
		observed = append(observed, perception.Observed{
			ID:         id,
			Position:   v.Position,
			Busy:       t.broker.Busy(id),
			LastAction: t.lastActions[id],
		})
	}
	t.perception.Index(observed, t.happened)
	t.happened = nil

	t.percepts = make(map[npc.EntityID]perception.Percept, len(t.order))
	for _, id := range t.order {
		p := t.perception.Perceive(id, tick)
		t.perception.Remember(t.memory, p)
		for _, ev := range t.perception.Evidence(p) {
			if err := t.awareness.Witness(id, ev); err != nil {
				slog.Warn("evidence dropped", "npc", id, "error", err)
			}
			t.villagers[id].Mood.Feel(-0.3, 0.1)
		}
		t.percepts[id] = p
	}
}

// integrateDialogue applies every exchange released at tick: both parties
// remember it, the relationship change is queued for Propagate, the speaker
// passes on some gossip, and meta lines from aware speakers count as
// evidence for the listener.
func (t *Town) integrateDialogue(tick uint64, r *TickReport) {
	for _, res := range t.broker.Collect(tick) {
		if res.Err != nil {
			t.stats.DialogueFailures++
			continue
		}
		sp, ls := res.Request.Speaker.ID, res.Request.Listener.ID
		speaker, listener := t.villagers[sp], t.villagers[ls]
		if speaker == nil || listener == nil {
			continue
		}

		u := res.Utterance
		importance := 0.35 + 0.25*math.Abs(u.Valence)
		t.memory.Record(sp, memory.Record{
			Subject:     memory.EntitySubject(ls),
			Kind:        memory.KindDialogue,
			Valence:     u.Valence,
			Importance:  importance,
			CreatedTick: tick,
			Content:     "I told " + listener.Name + ": " + u.Text,
		})
		t.memory.Record(ls, memory.Record{
			Subject:     memory.EntitySubject(sp),
			Kind:        memory.KindDialogue,
			Valence:     u.Valence,
			Importance:  importance,
			CreatedTick: tick,
			Content:     speaker.Name + " said: " + u.Text,
		})
		t.outcomes = append(t.outcomes, socialOutcome{
			a: sp,
			b: ls,
			o: social.DialogueOutcome(speaker.Personality(), listener.Personality(), u.Valence, tick),
		})
		speaker.Needs.Satisfy(npc.NeedBelonging, 0.1)
		listener.Needs.Satisfy(npc.NeedBelonging, 0.1)
		speaker.Mood.Feel(u.Valence, 0.15)
		listener.Mood.Feel(u.Valence, 0.15)
		if t.gossip(speaker, listener, tick) {
			t.stats.Rumours++
		}

		if u.Meta {
			ev := awareness.Evidence{
				Kind:     awareness.EvidenceMetaDialogue,
				Strength: t.cfg.Awareness.MetaDialogueStrength,
				Tick:     tick,
				Source:   sp,
			}
			if err := t.awareness.Witness(ls, ev); err != nil {
				slog.Warn("evidence dropped", "npc", ls, "error", err)
			}
		}

		t.stats.Dialogues++
		r.Dialogues = append(r.Dialogues, Line{Speaker: sp, Listener: ls, Text: u.Text, Meta: u.Meta})
	}
}

// decide runs the cognition engine for every villager. Views are built
// first; Decide itself runs in parallel over spatial-grid batches and each
// result lands in its own slot, aligned with t.order.
func (t *Town) decide(tick uint64) []npc.Action {
	decisions := make([]npc.Action, len(t.order))
	views := make([]cognition.View, len(t.order))
	slot := make(map[npc.EntityID]int, len(t.order))
	for i, id := range t.order {
		slot[id] = i
		views[i] = t.viewOf(id, tick)
		decisions[i] = npc.Idle(id)
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, batch := range t.perception.Grid().Partitions() {
		g.Go(func() error {
			for _, raw := range batch {
				i, ok := slot[npc.EntityID(raw)]
				if !ok {
					continue
				}
				decisions[i] = t.cognition.Decide(views[i])
			}
			return nil
		})
	}
	_ = g.Wait() // Decide cannot fail

	return decisions
}

func (t *Town) viewOf(id npc.EntityID, tick uint64) cognition.View {
	v := t.villagers[id]
	lvl, _ := t.awareness.Level(id)
	return cognition.View{
		Self: cognition.Self{
			ID:          id,
			Position:    v.Position,
			Destination: v.Destination,
			Needs:       v.Needs,
			Mood:        v.Mood,
			Personality: v.Personality(),
			Level:       lvl,
			OnCooldown:  v.OnCooldown(tick),
			Busy:        t.broker.Busy(id),
		},
		Tick:    tick,
		Percept: t.percepts[id],
		Memory:  t.memory,
		Social:  t.social,
	}
}
