// Package social tracks how villagers feel about one another. Each
// unordered pair is stored once with two directed views, so the graph never
// holds references between entities.
package social

import (
	"sort"
	"sync"

	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/phi"
)

// NeutralTrust is the trust a villager extends to a stranger.
const NeutralTrust = 0.5

// Relationship is one villager's view of another.
type Relationship struct {
	From         npc.EntityID `json:"from"`
	To           npc.EntityID `json:"to"`
	Affinity     float64      `json:"affinity"` // -1 (hostile) .. 1 (devoted)
	Trust        float64      `json:"trust"`    // 0 .. 1
	Interactions int          `json:"interactions"`
	LastTick     uint64       `json:"last_tick"`
}

// Neutral returns from's view of a stranger.
func Neutral(from, to npc.EntityID) Relationship {
	return Relationship{From: from, To: to, Trust: NeutralTrust}
}

func (r *Relationship) clamp() {
	r.Affinity = phi.Clamp(r.Affinity, -1, 1)
	r.Trust = phi.Clamp01(r.Trust)
}

// Outcome is the effect of one exchange. Affinity and Trust apply to the
// initiator's view; the Reciprocal fields to the other side's.
type Outcome struct {
	Affinity           float64
	Trust              float64
	ReciprocalAffinity float64
	ReciprocalTrust    float64
	Tick               uint64
}

type pairKey struct {
	lo, hi npc.EntityID
}

func keyOf(a, b npc.EntityID) pairKey {
	if a < b {
		return pairKey{lo: a, hi: b}
	}
	return pairKey{lo: b, hi: a}
}

// edge holds both directed views of a pair.
type edge struct {
	lohi Relationship
	hilo Relationship
}

func (e *edge) view(from npc.EntityID, k pairKey) *Relationship {
	if from == k.lo {
		return &e.lohi
	}
	return &e.hilo
}

// Graph is the town's social graph.
type Graph struct {
	mu    sync.RWMutex
	edges map[pairKey]*edge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[pairKey]*edge)}
}

// Update applies outcome to the pair, creating the edge if needed, and
// returns both resulting views (a's then b's). Self-updates are ignored.
func (g *Graph) Update(a, b npc.EntityID, o Outcome) (Relationship, Relationship) {
	if a == b {
		return Neutral(a, b), Neutral(b, a)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	k := keyOf(a, b)
	e := g.edges[k]
	if e == nil {
		e = &edge{lohi: Neutral(k.lo, k.hi), hilo: Neutral(k.hi, k.lo)}
		g.edges[k] = e
	}

	ab := e.view(a, k)
	ab.Affinity += o.Affinity
	ab.Trust += o.Trust
	ab.Interactions++
	ab.LastTick = o.Tick
	ab.clamp()

	ba := e.view(b, k)
	ba.Affinity += o.ReciprocalAffinity
	ba.Trust += o.ReciprocalTrust
	ba.Interactions++
	ba.LastTick = o.Tick
	ba.clamp()

	return *ab, *ba
}

// Get returns a's view of b, or the neutral default if they never met.
func (g *Graph) Get(a, b npc.EntityID) Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	k := keyOf(a, b)
	e := g.edges[k]
	if e == nil || a == b {
		return Neutral(a, b)
	}
	return *e.view(a, k)
}

// DecayStale drifts every view untouched for at least staleAfter ticks
// toward neutral by rate, and returns how many views moved.
func (g *Graph) DecayStale(now uint64, rate float64, staleAfter uint64) int {
	if rate <= 0 {
		return 0
	}
	keep := 1 - phi.Clamp01(rate)

	g.mu.Lock()
	defer g.mu.Unlock()

	moved := 0
	for _, e := range g.edges {
		for _, r := range []*Relationship{&e.lohi, &e.hilo} {
			if now < r.LastTick+staleAfter {
				continue
			}
			if r.Affinity == 0 && r.Trust == NeutralTrust {
				continue
			}
			r.Affinity *= keep
			r.Trust = NeutralTrust + (r.Trust-NeutralTrust)*keep
			r.clamp()
			moved++
		}
	}
	return moved
}

// Neighbours returns every view a holds, ordered by target id.
func (g *Graph) Neighbours(a npc.EntityID) []Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Relationship
	for k, e := range g.edges {
		if k.lo == a || k.hi == a {
			out = append(out, *e.view(a, k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out
}

// All returns every directed view, ordered by (From, To).
func (g *Graph) All() []Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Relationship, 0, len(g.edges)*2)
	for _, e := range g.edges {
		out = append(out, e.lohi, e.hilo)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Restore loads directed views from an archive, replacing any existing
// views for the same pairs.
func (g *Graph) Restore(views []Relationship) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, v := range views {
		if v.From == v.To {
			continue
		}
		k := keyOf(v.From, v.To)
		e := g.edges[k]
		if e == nil {
			e = &edge{lohi: Neutral(k.lo, k.hi), hilo: Neutral(k.hi, k.lo)}
			g.edges[k] = e
		}
		r := e.view(v.From, k)
		*r = v
		r.clamp()
	}
}

// Forget removes every edge touching id. Called when a villager leaves.
func (g *Graph) Forget(id npc.EntityID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for k := range g.edges {
		if k.lo == id || k.hi == id {
			delete(g.edges, k)
		}
	}
}

// Len returns the number of pairs with an edge.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}
