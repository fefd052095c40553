package social

import (
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/phi"
)

// Base deltas per interaction kind, before personality weighting.
var interactionDeltas = map[npc.InteractionKind]struct{ affinity, trust float64 }{
	npc.InteractGreet:    {affinity: phi.Agnosis * 0.2, trust: phi.Agnosis * 0.1},  // +~0.047, +~0.024
	npc.InteractHelp:     {affinity: phi.Psyche * 0.25, trust: phi.Psyche * 0.15},  // +~0.096, +~0.057
	npc.InteractConfront: {affinity: -phi.Psyche * 0.3, trust: -phi.Agnosis * 0.3}, // -~0.115, -~0.071
}

// InteractionOutcome returns the effect of actor doing kind to target. The
// update is asymmetric: each side weighs the exchange through its own
// personality, and the receiving side also through how alike the two are.
func InteractionOutcome(kind npc.InteractionKind, actor, target npc.Personality, tick uint64) Outcome {
	d := interactionDeltas[kind]
	compat := actor.Compatibility(target)
	return Outcome{
		Affinity:           weigh(d.affinity, actor, 1),
		Trust:              weigh(d.trust, actor, 1),
		ReciprocalAffinity: weigh(d.affinity, target, 0.5+compat),
		ReciprocalTrust:    weigh(d.trust, target, 0.5+compat),
		Tick:               tick,
	}
}

// DialogueOutcome returns the effect of a finished conversation. Warm
// words, cold words: valence is the tone of the exchange in [-1, 1].
func DialogueOutcome(speaker, listener npc.Personality, valence float64, tick uint64) Outcome {
	base := phi.Agnosis * 0.15 * phi.Clamp(valence, -1, 1)
	compat := speaker.Compatibility(listener)
	return Outcome{
		Affinity:           weigh(base, speaker, 1),
		Trust:              weigh(base*0.5, speaker, 1),
		ReciprocalAffinity: weigh(base, listener, 0.5+compat),
		ReciprocalTrust:    weigh(base*0.5, listener, 0.5+compat),
		Tick:               tick,
	}
}

// RevealOutcome returns the effect of an aware villager telling target the
// truth. Open minds lean in; closed ones pull away from the teller.
func RevealOutcome(actor, target npc.Personality, tick uint64) Outcome {
	lean := target.Openness - 0.5
	return Outcome{
		Affinity:           phi.Agnosis * 0.1,
		Trust:              0,
		ReciprocalAffinity: lean * phi.Psyche * 0.4,
		ReciprocalTrust:    (lean - target.Suspicion*0.5) * phi.Agnosis * 0.3,
		Tick:               tick,
	}
}

// weigh scales a delta by personality. Positive deltas grow with warmth,
// negative ones shrink with stability.
func weigh(delta float64, p npc.Personality, k float64) float64 {
	if delta >= 0 {
		return delta * p.Warmth() * k
	}
	return delta * (1 - p.Stability()*0.5) * k
}
