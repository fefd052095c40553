package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/talgya/village-mind/internal/npc"
)

// BrokerConfig tunes a Broker.
type BrokerConfig struct {
	LatencyTicks uint64        // Results are released no earlier than submit + latency
	Timeout      time.Duration // Per-call deadline for remote providers
	Workers      int
	QueueSize    int
}

// DefaultBrokerConfig returns the broker defaults.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		LatencyTicks: 1,
		Timeout:      10 * time.Second,
		Workers:      4,
		QueueSize:    64,
	}
}

// Result is a finished exchange. Err is non-nil (wrapping
// ErrGenerationUnavailable) when no line could be produced.
type Result struct {
	Request   Request
	Utterance Utterance
	Err       error
}

type pending struct {
	req     Request
	ready   uint64
	done    bool
	dropped bool
	result  Result
}

type job struct {
	id  uint64
	req Request
}

// Broker sits between the tick loop and a Provider. It allows one exchange
// per villager at a time, runs remote providers on worker goroutines, and
// hands results back to the tick that is allowed to see them.
type Broker struct {
	provider Provider
	cfg      BrokerConfig
	inline   bool

	mu      sync.Mutex
	nextID  uint64
	busy    map[npc.EntityID]uint64
	pending map[uint64]*pending

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	wg     sync.WaitGroup
	once   sync.Once
	closed bool
}

// NewBroker creates a broker. Workers start immediately for remote
// providers; local providers run inline in Submit.
func NewBroker(provider Provider, cfg BrokerConfig) *Broker {
	if cfg.LatencyTicks < 1 {
		cfg.LatencyTicks = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBrokerConfig().Timeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		provider: provider,
		cfg:      cfg,
		inline:   isInline(provider),
		nextID:   1,
		busy:     make(map[npc.EntityID]uint64),
		pending:  make(map[uint64]*pending),
		ctx:      ctx,
		cancel:   cancel,
	}
	if !b.inline {
		b.jobs = make(chan job, cfg.QueueSize)
		for i := 0; i < cfg.Workers; i++ {
			b.wg.Add(1)
			go b.worker()
		}
	}
	return b
}

// Busy reports whether id has an exchange in flight.
func (b *Broker) Busy(id npc.EntityID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.busy[id]
	return ok
}

// InFlight returns the number of exchanges not yet collected.
func (b *Broker) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Submit starts an exchange and returns its id. It fails with ErrBusy if
// either party is already in one.
func (b *Broker) Submit(req Request) (uint64, error) {
	b.mu.Lock()
	if _, ok := b.busy[req.Speaker.ID]; ok {
		b.mu.Unlock()
		return 0, fmt.Errorf("submit %s: %w", req.Speaker.ID, ErrBusy)
	}
	if _, ok := b.busy[req.Listener.ID]; ok {
		b.mu.Unlock()
		return 0, fmt.Errorf("submit %s: %w", req.Listener.ID, ErrBusy)
	}

	id := b.nextID
	b.nextID++
	req.ID = id
	p := &pending{req: req, ready: req.Tick + b.cfg.LatencyTicks}
	b.pending[id] = p
	b.busy[req.Speaker.ID] = id
	b.busy[req.Listener.ID] = id
	b.mu.Unlock()

	if b.inline {
		u, err := b.provider.Generate(b.ctx, req)
		b.finish(id, u, err)
		return id, nil
	}

	b.mu.Lock()
	queued := false
	if !b.closed {
		select {
		case b.jobs <- job{id: id, req: req}:
			queued = true
		default:
		}
	}
	b.mu.Unlock()
	if !queued {
		b.finish(id, Utterance{}, errors.New("dialogue queue full"))
	}
	return id, nil
}

func (b *Broker) worker() {
	defer b.wg.Done()
	for j := range b.jobs {
		ctx, cancel := context.WithTimeout(b.ctx, b.cfg.Timeout)
		u, err := b.provider.Generate(ctx, j.req)
		cancel()
		b.finish(j.id, u, err)
	}
}

func (b *Broker) finish(id uint64, u Utterance, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.pending[id]
	if p == nil {
		return
	}
	p.done = true
	p.result = Result{Request: p.req, Utterance: u}
	if err != nil {
		if !errors.Is(err, ErrGenerationUnavailable) {
			err = fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
		}
		p.result.Err = err
		slog.Warn("dialogue generation failed",
			"speaker", p.req.Speaker.ID,
			"listener", p.req.Listener.ID,
			"error", err,
		)
	}
}

// Collect returns every finished exchange whose release tick has come,
// ordered by request id, and frees both parties.
func (b *Broker) Collect(now uint64) []Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ids []uint64
	for id, p := range b.pending {
		if p.done && now >= p.ready {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		p := b.pending[id]
		b.release(id, p)
		if !p.dropped {
			out = append(out, p.result)
		}
	}
	return out
}

func (b *Broker) release(id uint64, p *pending) {
	delete(b.pending, id)
	for _, e := range []npc.EntityID{p.req.Speaker.ID, p.req.Listener.ID} {
		if b.busy[e] == id {
			delete(b.busy, e)
		}
	}
}

// Drop abandons every exchange involving id. Used when a villager leaves.
// Its result, if any arrives, is discarded.
func (b *Broker) Drop(id npc.EntityID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for rid, p := range b.pending {
		if p.req.Speaker.ID != id && p.req.Listener.ID != id {
			continue
		}
		p.dropped = true
		if p.done {
			b.release(rid, p)
		} else {
			// Free the other party now; the slot itself is reclaimed by Collect.
			for _, e := range []npc.EntityID{p.req.Speaker.ID, p.req.Listener.ID} {
				if b.busy[e] == rid {
					delete(b.busy, e)
				}
			}
		}
	}
}

// Close cancels outstanding calls and waits for the workers to exit.
func (b *Broker) Close() {
	b.once.Do(func() {
		b.cancel()
		b.mu.Lock()
		b.closed = true
		if b.jobs != nil {
			close(b.jobs)
		}
		b.mu.Unlock()
		b.wg.Wait()
	})
}
