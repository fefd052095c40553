// Package memory holds what each villager remembers. Every owner has a
// bounded short-term ring and a long-term ledger; importance decays
// exponentially from the last reinforcement and faded records are pruned
// once per tick.
package memory

import (
	"math"
	"sort"
	"sync"

	"github.com/talgya/village-mind/internal/npc"
)

// Config tunes a Store. Rates are per tick.
type Config struct {
	ShortTermCapacity int     // Ring size per owner
	LongTermCapacity  int     // Ledger size per owner
	PromoteAfter      int     // Reinforcements needed for long-term
	SalienceThreshold float64 // |valence| at creation that promotes immediately
	DecayRate         float64 // Default per-tick decay coefficient
	LongTermFactor    float64 // Long-term records decay at DecayRate * LongTermFactor
	Floor             float64 // Prune below this importance
	RecencyScale      float64 // Ticks over which recall weight halves
}

// DefaultConfig returns the store defaults at 60 ticks per second.
func DefaultConfig() Config {
	return Config{
		ShortTermCapacity: 20,
		LongTermCapacity:  64,
		PromoteAfter:      3,
		SalienceThreshold: 0.8,
		DecayRate:         0.1 / 60,
		LongTermFactor:    0.1,
		Floor:             0.05,
		RecencyScale:      600,
	}
}

// Filter selects records in Recall. Zero fields match anything.
type Filter struct {
	Subject Subject
	Kind    Kind
}

func (f Filter) match(r *Record) bool {
	if f.Subject != "" && f.Subject != r.Subject {
		return false
	}
	if f.Kind != "" && f.Kind != r.Kind {
		return false
	}
	return true
}

type ledger struct {
	short []Record
	long  []Record
}

// Store is the memory of every villager in the town. Recall is safe for
// concurrent readers; writes happen in the Perceive and Act phases.
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	now     uint64
	ledgers map[npc.EntityID]*ledger
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	if cfg.ShortTermCapacity <= 0 {
		cfg.ShortTermCapacity = 20
	}
	if cfg.LongTermCapacity <= 0 {
		cfg.LongTermCapacity = 64
	}
	if cfg.PromoteAfter <= 0 {
		cfg.PromoteAfter = 3
	}
	if cfg.RecencyScale <= 0 {
		cfg.RecencyScale = 600
	}
	return &Store{cfg: cfg, ledgers: make(map[npc.EntityID]*ledger)}
}

// Config returns the store's tuning.
func (s *Store) Config() Config {
	return s.cfg
}

// Now returns the tick of the most recent DecayAll.
func (s *Store) Now() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

// Record stores rec for owner. A record with the same subject and kind as an
// existing one reinforces it instead of adding a new entry. It reports
// whether the memory was kept; a new record less important than everything
// in a full ring is dropped.
func (s *Store) Record(owner npc.EntityID, rec Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.ledgers[owner]
	if l == nil {
		l = &ledger{}
		s.ledgers[owner] = l
	}

	if i := find(l.long, rec.Subject, rec.Kind); i >= 0 {
		reinforce(&l.long[i], rec)
		return true
	}
	if i := find(l.short, rec.Subject, rec.Kind); i >= 0 {
		r := &l.short[i]
		reinforce(r, rec)
		if r.Reinforcements >= s.cfg.PromoteAfter {
			promoted := *r
			l.short = append(l.short[:i], l.short[i+1:]...)
			s.promote(l, promoted)
		}
		return true
	}

	rec.Importance = clampImportance(rec.Importance)
	rec.BaseImportance = rec.Importance
	rec.Valence = clampValence(rec.Valence)
	rec.ReinforcedTick = rec.CreatedTick
	if rec.DecayRate <= 0 {
		rec.DecayRate = s.cfg.DecayRate * (1 - rec.Importance*0.3)
	}

	if math.Abs(rec.Valence) >= s.cfg.SalienceThreshold {
		s.promote(l, rec)
		return true
	}

	var kept bool
	l.short, kept = insertBounded(l.short, rec, s.cfg.ShortTermCapacity)
	return kept
}

func (s *Store) promote(l *ledger, rec Record) {
	rec.LongTerm = true
	l.long, _ = insertBounded(l.long, rec, s.cfg.LongTermCapacity)
}

// DecayAll recomputes every record's importance at tick now.
func (s *Store) DecayAll(now uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = now
	for _, l := range s.ledgers {
		for i := range l.short {
			l.short[i].decay(now, 1)
		}
		for i := range l.long {
			l.long[i].decay(now, s.cfg.LongTermFactor)
		}
	}
}

// Prune removes every record whose importance fell below the floor and
// returns how many were removed.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, l := range s.ledgers {
		var n int
		l.short, n = dropFaded(l.short, s.cfg.Floor)
		removed += n
		l.long, n = dropFaded(l.long, s.cfg.Floor)
		removed += n
	}
	return removed
}

// Recall returns up to k of owner's records matching filter, most salient
// first. Salience is importance × (1+|valence|)/2, weighted by recency. It
// never mutates the store.
func (s *Store) Recall(owner npc.EntityID, filter Filter, k int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.ledgers[owner]
	if l == nil || k <= 0 {
		return nil
	}

	type scored struct {
		rec   Record
		score float64
	}
	var hits []scored
	for _, part := range [][]Record{l.short, l.long} {
		for i := range part {
			r := &part[i]
			if r.Importance < s.cfg.Floor || !filter.match(r) {
				continue
			}
			hits = append(hits, scored{rec: *r, score: s.salience(r)})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.rec.ReinforcedTick != b.rec.ReinforcedTick {
			return a.rec.ReinforcedTick > b.rec.ReinforcedTick
		}
		if a.rec.Subject != b.rec.Subject {
			return a.rec.Subject < b.rec.Subject
		}
		return a.rec.Kind < b.rec.Kind
	})

	if k > len(hits) {
		k = len(hits)
	}
	out := make([]Record, k)
	for i := range out {
		out[i] = hits[i].rec
	}
	return out
}

func (s *Store) salience(r *Record) float64 {
	age := 0.0
	if s.now > r.ReinforcedTick {
		age = float64(s.now - r.ReinforcedTick)
	}
	recency := s.cfg.RecencyScale / (s.cfg.RecencyScale + age)
	return r.Importance * (1 + math.Abs(r.Valence)) / 2 * recency
}

// All returns a copy of every record owner holds, short-term first.
func (s *Store) All(owner npc.EntityID) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.ledgers[owner]
	if l == nil {
		return nil
	}
	out := make([]Record, 0, len(l.short)+len(l.long))
	out = append(out, l.short...)
	return append(out, l.long...)
}

// LongTerm returns a copy of owner's long-term ledger.
func (s *Store) LongTerm(owner npc.EntityID) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.ledgers[owner]
	if l == nil {
		return nil
	}
	return append([]Record(nil), l.long...)
}

// Len returns how many records owner holds.
func (s *Store) Len(owner npc.EntityID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.ledgers[owner]
	if l == nil {
		return 0
	}
	return len(l.short) + len(l.long)
}

// Owners returns every owner with a ledger, ascending.
func (s *Store) Owners() []npc.EntityID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]npc.EntityID, 0, len(s.ledgers))
	for id := range s.ledgers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Restore replaces owner's memory with records loaded from an archive.
// Records keep their stored importance; the LongTerm flag picks the ledger.
func (s *Store) Restore(owner npc.EntityID, records []Record, now uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := &ledger{}
	for _, r := range records {
		if r.LongTerm {
			l.long = append(l.long, r)
		} else {
			l.short = append(l.short, r)
		}
	}
	s.ledgers[owner] = l
	if now > s.now {
		s.now = now
	}
}

// Forget drops everything owner remembers. Memories other villagers hold
// about owner fade on their own.
func (s *Store) Forget(owner npc.EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ledgers, owner)
}

func find(records []Record, subject Subject, kind Kind) int {
	for i := range records {
		if records[i].Subject == subject && records[i].Kind == kind {
			return i
		}
	}
	return -1
}

// insertBounded appends rec, evicting the lowest-importance record when the
// slice is full. The incoming record competes too: if it is the least
// important, it is the one dropped.
func insertBounded(records []Record, rec Record, capacity int) ([]Record, bool) {
	if len(records) < capacity {
		return append(records, rec), true
	}
	minIdx := 0
	for i := 1; i < len(records); i++ {
		if less(&records[i], &records[minIdx]) {
			minIdx = i
		}
	}
	if !less(&records[minIdx], &rec) {
		return records, false
	}
	records[minIdx] = rec
	return records, true
}

// less orders records for eviction: lower importance first, then older.
func less(a, b *Record) bool {
	if a.Importance != b.Importance {
		return a.Importance < b.Importance
	}
	return a.ReinforcedTick < b.ReinforcedTick
}

func dropFaded(records []Record, floor float64) ([]Record, int) {
	kept := records[:0]
	for _, r := range records {
		if r.Importance >= floor {
			kept = append(kept, r)
		}
	}
	removed := len(records) - len(kept)
	for i := len(kept); i < len(records); i++ {
		records[i] = Record{}
	}
	return kept, removed
}
