// Act phase: decisions become effects, in ascending villager id.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/village-mind/internal/awareness"
	"github.com/talgya/village-mind/internal/dialogue"
	"github.com/talgya/village-mind/internal/entropy"
	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/perception"
	"github.com/talgya/village-mind/internal/social"
	"github.com/talgya/village-mind/internal/world"
)

var (
	errOnCooldown = errors.New("actor on cooldown")
	errOutOfRange = errors.New("target out of range")
)

// What an interaction means to each side's memory.
var interactionMemory = map[npc.InteractionKind]struct {
	valence, importance float64
	verb                string
}{
	npc.InteractGreet:    {valence: 0.2, importance: 0.25, verb: "greeted"},
	npc.InteractHelp:     {valence: 0.5, importance: 0.45, verb: "helped"},
	npc.InteractConfront: {valence: -0.6, importance: 0.6, verb: "confronted"},
}

// act applies decisions (nil on non-think ticks), then moves everyone with
// a destination. A failed action is logged and the villager idles; it
// never affects anyone else.
func (t *Town) act(tick uint64, decisions []npc.Action, r *TickReport) {
	for i, id := range t.order {
		a := npc.Idle(id)
		if decisions != nil {
			a = decisions[i]
		}
		if a.Kind != npc.ActionIdle {
			if err := t.apply(t.villagers[id], a, tick); err != nil {
				slog.Debug("action skipped", "action", a.String(), "tick", tick, "error", err)
				a = npc.Idle(id)
			} else {
				r.Actions = append(r.Actions, a)
			}
		}
		t.lastActions[id] = a
	}

	for _, id := range t.order {
		t.move(t.villagers[id])
	}
}

func (t *Town) apply(v *npc.Entity, a npc.Action, tick uint64) error {
	if a.Kind == npc.ActionMove {
		dest := t.cfg.WorldSize.Clamp(a.Destination)
		v.Destination = &dest
		return nil
	}

	target, err := t.reachable(v, a.Target, tick)
	if err != nil {
		return err
	}
	switch a.Kind {
	case npc.ActionInteract:
		t.interact(v, target, a.Interaction, tick)
	case npc.ActionSpeak:
		return t.speak(v, target, tick)
	case npc.ActionReveal:
		return t.reveal(v, target, tick)
	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}
	return nil
}

// reachable checks that a targeted action can still happen. Earlier actions
// in the same tick may have changed things since Decide.
func (t *Town) reachable(v *npc.Entity, id npc.EntityID, tick uint64) (*npc.Entity, error) {
	target := t.villagers[id]
	switch {
	case target == nil || id == v.ID:
		return nil, fmt.Errorf("target %s: %w", id, npc.ErrInvalidEntity)
	case v.OnCooldown(tick):
		return nil, errOnCooldown
	case world.Distance(v.Position, target.Position) > t.cfg.InteractionRadius:
		return nil, errOutOfRange
	case t.broker.Busy(v.ID) || t.broker.Busy(id):
		return nil, dialogue.ErrBusy
	}
	return target, nil
}

func (t *Town) cooldown(tick uint64, vs ...*npc.Entity) {
	until := tick + t.cfg.Cognition.InteractionCooldown
	for _, v := range vs {
		if until > v.CooldownUntil {
			v.CooldownUntil = until
		}
	}
}

func (t *Town) interact(v, target *npc.Entity, kind npc.InteractionKind, tick uint64) {
	m := interactionMemory[kind]
	t.memory.Record(v.ID, memory.Record{
		Subject:     memory.EntitySubject(target.ID),
		Kind:        memory.KindInteraction,
		Valence:     m.valence,
		Importance:  m.importance,
		CreatedTick: tick,
		Content:     "I " + m.verb + " " + target.Name,
	})
	t.memory.Record(target.ID, memory.Record{
		Subject:     memory.EntitySubject(v.ID),
		Kind:        memory.KindInteraction,
		Valence:     m.valence,
		Importance:  m.importance,
		CreatedTick: tick,
		Content:     v.Name + " " + m.verb + " me",
	})
	t.outcomes = append(t.outcomes, socialOutcome{
		a: v.ID,
		b: target.ID,
		o: social.InteractionOutcome(kind, v.Personality(), target.Personality(), tick),
	})

	v.Mood.Feel(m.valence, 0.2)
	target.Mood.Feel(m.valence, 0.25)

	switch kind {
	case npc.InteractGreet:
		v.Needs.Satisfy(npc.NeedBelonging, 0.15)
		target.Needs.Satisfy(npc.NeedBelonging, 0.1)
	case npc.InteractHelp:
		v.Needs.Satisfy(npc.NeedPurpose, 0.2)
		v.Needs.Satisfy(npc.NeedBelonging, 0.05)
		target.Needs.Satisfy(npc.NeedBelonging, 0.1)
	case npc.InteractConfront:
		v.Needs.Satisfy(npc.NeedPurpose, 0.05)
	}

	t.cooldown(tick, v, target)
	t.happened = append(t.happened, perception.Event{
		Kind:     perception.EventInteraction,
		Actor:    v.ID,
		Target:   target.ID,
		Position: v.Position,
		Tick:     tick,
	})
	t.stats.Interactions++
}

func (t *Town) speak(v, target *npc.Entity, tick uint64) error {
	lvl, _ := t.awareness.Level(v.ID)
	req := dialogue.Request{
		Speaker:      participant(v),
		Listener:     participant(target),
		SpeakerAware: lvl == npc.Aware,
		Context: dialogue.Context{
			SpeakerMemories:  t.memory.Recall(v.ID, memory.Filter{Subject: memory.EntitySubject(target.ID)}, 3),
			ListenerMemories: t.memory.Recall(target.ID, memory.Filter{Subject: memory.EntitySubject(v.ID)}, 3),
			Relationship:     t.social.Get(v.ID, target.ID),
			Reciprocal:       t.social.Get(target.ID, v.ID),
		},
		Tick: tick,
		Seed: entropy.Mix(uint64(t.cfg.Seed), uint64(v.ID), uint64(target.ID), tick),
	}
	if _, err := t.broker.Submit(req); err != nil {
		return fmt.Errorf("speak: %w", err)
	}

	t.cooldown(tick, v)
	t.happened = append(t.happened, perception.Event{
		Kind:     perception.EventSpeech,
		Actor:    v.ID,
		Target:   target.ID,
		Position: v.Position,
		Tick:     tick,
	})
	return nil
}

func participant(v *npc.Entity) dialogue.Participant {
	return dialogue.Participant{ID: v.ID, Name: v.Name, Personality: v.Personality(), Mood: v.Mood}
}

func (t *Town) reveal(v, target *npc.Entity, tick uint64) error {
	ev := awareness.Evidence{
		Kind:     awareness.EvidenceReveal,
		Strength: t.cfg.Awareness.RevealStrength,
		Tick:     tick,
		Source:   v.ID,
	}
	if err := t.awareness.Witness(target.ID, ev); err != nil {
		return fmt.Errorf("reveal: %w", err)
	}

	t.memory.Record(v.ID, memory.Record{
		Subject:     memory.EntitySubject(target.ID),
		Kind:        memory.KindReveal,
		Valence:     0.3,
		Importance:  0.6,
		CreatedTick: tick,
		Content:     "I told " + target.Name + " what this place really is",
	})
	t.memory.Record(target.ID, memory.Record{
		Subject:     memory.EntitySubject(v.ID),
		Kind:        memory.KindReveal,
		Valence:     -0.4,
		Importance:  0.8,
		CreatedTick: tick,
		Content:     v.Name + " said none of this is real",
	})
	t.outcomes = append(t.outcomes, socialOutcome{
		a: v.ID,
		b: target.ID,
		o: social.RevealOutcome(v.Personality(), target.Personality(), tick),
	})
	v.Needs.Satisfy(npc.NeedPurpose, 0.25)
	v.Mood.Feel(0.3, 0.2)
	target.Mood.Feel(-0.4, 0.3)

	t.cooldown(tick, v, target)
	t.happened = append(t.happened, perception.Event{
		Kind:     perception.EventReveal,
		Actor:    v.ID,
		Target:   target.ID,
		Position: v.Position,
		Strength: ev.Strength,
		Tick:     tick,
	})
	t.stats.Reveals++
	slog.Debug("reveal", "actor", v.ID, "target", target.ID, "tick", tick)
	return nil
}

// move walks a villager toward its destination. Arriving somewhere new
// feeds its need for novelty.
func (t *Town) move(v *npc.Entity) {
	if v.Destination == nil {
		return
	}
	next, arrived := world.StepToward(v.Position, *v.Destination, t.cfg.Cognition.MoveSpeed)
	v.Position = t.cfg.WorldSize.Clamp(next)
	if arrived {
		v.Destination = nil
		v.Needs.Satisfy(npc.NeedNovelty, 0.2)
	}
}
