// Gossip: after a conversation the speaker passes on what it remembers most
// strongly about somebody else.
package engine

import (
	"log/slog"

	"github.com/talgya/village-mind/internal/awareness"
	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/npc"
)

const (
	gossipDepth  = 8   // Speaker memories considered
	gossipWeight = 0.6 // Second-hand memories start this much weaker
)

// Memories worth repeating. Sightings are too dull; town events are not
// about anyone.
var gossipKinds = map[memory.Kind]bool{
	memory.KindInteraction: true,
	memory.KindDialogue:    true,
	memory.KindReveal:      true,
	memory.KindWitness:     true,
	memory.KindGossip:      true,
}

// gossip passes the speaker's strongest memory of a third villager to the
// listener. The listener believes it as far as it trusts the speaker, so a
// rumour loses weight with every retelling. Talk of reveals also counts as
// weak awareness evidence. Reports whether anything was passed on.
func (t *Town) gossip(speaker, listener *npc.Entity, tick uint64) bool {
	credence := t.social.Get(listener.ID, speaker.ID).Trust
	if credence <= 0 {
		return false
	}

	for _, src := range t.memory.Recall(speaker.ID, memory.Filter{}, gossipDepth) {
		if !gossipKinds[src.Kind] {
			continue
		}
		about, ok := src.Subject.Entity()
		if !ok || about == speaker.ID || about == listener.ID {
			continue
		}
		third := t.villagers[about]
		if third == nil {
			continue
		}

		valence := src.Valence * credence
		t.memory.Record(listener.ID, memory.Record{
			Subject:     src.Subject,
			Kind:        memory.KindGossip,
			Valence:     valence,
			Importance:  src.Importance * credence * gossipWeight,
			CreatedTick: tick,
			Content:     speaker.Name + " told me about " + third.Name,
		})
		listener.Mood.Feel(valence, 0.1)

		if src.Kind == memory.KindReveal || src.Kind == memory.KindWitness {
			ev := awareness.Evidence{
				Kind:     awareness.EvidenceRumour,
				Strength: t.cfg.Awareness.RumourStrength * credence,
				Tick:     tick,
				Source:   speaker.ID,
			}
			if err := t.awareness.Witness(listener.ID, ev); err != nil {
				slog.Warn("evidence dropped", "npc", listener.ID, "error", err)
			}
		}
		return true
	}
	return false
}
