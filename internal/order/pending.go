package order

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"market-gateway/pkg/logger"
)

const (
	DefaultHoldFor       = time.Second
	DefaultSweepInterval = 500 * time.Millisecond
)

type held[T any] struct {
	item T
	at   time.Time
}

// Pending holds order-changed pushes for orders the client has not seen
// yet while a submit is in flight, so a push racing ahead of its submit ack
// is not delivered for an order the caller does not know about. Held pushes
// are released in arrival order on the ack, or by the sweep once older than
// the hold duration.
type Pending[T any] struct {
	holdFor time.Duration
	known   func(orderID string) bool
	release func(orderID string, item T)
	log     *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	inflight int
	held     map[string][]held[T]
}

// NewPending builds a buffer. release is called with the buffer lock held
// and must not call back into it.
func NewPending[T any](holdFor time.Duration, known func(string) bool, release func(string, T), log *zap.Logger) *Pending[T] {
	if holdFor <= 0 {
		holdFor = DefaultHoldFor
	}
	return &Pending[T]{
		holdFor: holdFor,
		known:   known,
		release: release,
		log:     logger.OrNop(log).Named("order_pending"),
		now:     time.Now,
		held:    make(map[string][]held[T]),
	}
}

// BeginSubmit marks a submit as in flight. The returned func must be
// called exactly once with the acknowledged order id, or "" when the
// submit failed.
func (p *Pending[T]) BeginSubmit() func(orderID string) {
	p.mu.Lock()
	p.inflight++
	p.mu.Unlock()

	var once sync.Once
	return func(orderID string) {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.inflight--
			if orderID != "" {
				p.flush(orderID)
			}
		})
	}
}

// Offer delivers item now or holds it. It reports whether the item was
// held.
func (p *Pending[T]) Offer(orderID string, item T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, waiting := p.held[orderID]
	if !waiting && (p.inflight == 0 || p.known(orderID)) {
		p.release(orderID, item)
		return false
	}
	p.held[orderID] = append(p.held[orderID], held[T]{item: item, at: p.now()})
	return true
}

func (p *Pending[T]) flush(orderID string) {
	items := p.held[orderID]
	delete(p.held, orderID)
	for _, h := range items {
		p.release(orderID, h.item)
	}
}

// Sweep releases every order whose oldest held push has waited longer than
// the hold duration.
func (p *Pending[T]) Sweep(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, items := range p.held {
		if len(items) > 0 && now.Sub(items[0].at) >= p.holdFor {
			p.log.Debug("releasing unacknowledged order pushes",
				zap.String("order_id", id),
				zap.Int("count", len(items)))
			n += len(items)
			p.flush(id)
		}
	}
	return n
}

// Len returns the number of held pushes.
func (p *Pending[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, items := range p.held {
		n += len(items)
	}
	return n
}

// Run sweeps at interval until ctx is done, then releases everything.
func (p *Pending[T]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			for id := range p.held {
				p.flush(id)
			}
			p.mu.Unlock()
			return
		case now := <-ticker.C:
			p.Sweep(now)
		}
	}
}
