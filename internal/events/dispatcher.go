package events

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"market-gateway/pkg/logger"
)

// Kind is the push category a handler is registered for.
type Kind int

const (
	KindQuote Kind = iota
	KindDepth
	KindBrokers
	KindTrades
	KindCandlestick
	KindOrderChanged
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindQuote:
		return "quote"
	case KindDepth:
		return "depth"
	case KindBrokers:
		return "brokers"
	case KindTrades:
		return "trades"
	case KindCandlestick:
		return "candlestick"
	case KindOrderChanged:
		return "order_changed"
	default:
		return "unknown"
	}
}

// Push is one decoded push on its way to a user handler. Key selects the
// shard; pushes with the same key are delivered in order.
type Push struct {
	Kind    Kind
	Key     string
	Payload any
}

// Handler receives pushes on a shard worker goroutine.
type Handler func(Push)

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Shards    int
	QueueSize int
	// OnDrop is called when a shard queue is full and a push is discarded.
	OnDrop func(Push)
}

// Dispatcher delivers pushes to one handler per kind through a fixed set of
// shard workers with bounded queues.
type Dispatcher struct {
	handlers [kindCount]atomic.Pointer[Handler]
	shards   []chan Push
	onDrop   func(Push)
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	delivered atomic.Int64
	dropped   atomic.Int64
}

func NewDispatcher(cfg DispatcherConfig, log *zap.Logger) *Dispatcher {
	if cfg.Shards <= 0 {
		cfg.Shards = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	d := &Dispatcher{
		shards: make([]chan Push, cfg.Shards),
		onDrop: cfg.OnDrop,
		log:    logger.OrNop(log).Named("dispatcher"),
	}
	for i := range d.shards {
		ch := make(chan Push, cfg.QueueSize)
		d.shards[i] = ch
		d.wg.Add(1)
		go d.worker(ch)
	}
	return d
}

// SetHandler installs the handler for a kind, replacing any previous one.
// A nil handler clears the slot.
func (d *Dispatcher) SetHandler(kind Kind, h Handler) {
	if kind < 0 || kind >= kindCount {
		return
	}
	if h == nil {
		d.handlers[kind].Store(nil)
		return
	}
	d.handlers[kind].Store(&h)
}

// HasHandler reports whether a handler is installed for kind.
func (d *Dispatcher) HasHandler(kind Kind) bool {
	if kind < 0 || kind >= kindCount {
		return false
	}
	return d.handlers[kind].Load() != nil
}

// Dispatch queues a push without blocking. It returns false when the push
// was not queued: no handler, dispatcher closed, or shard queue full.
func (d *Dispatcher) Dispatch(p Push) bool {
	if !d.HasHandler(p.Kind) {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.shards[d.shardOf(p.Key)] <- p:
		return true
	default:
		d.dropped.Add(1)
		d.log.Warn("push dropped, shard queue full",
			zap.Stringer("kind", p.Kind),
			zap.String("key", p.Key))
		if d.onDrop != nil {
			d.onDrop(p)
		}
		return false
	}
}

func (d *Dispatcher) shardOf(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.shards)))
}

func (d *Dispatcher) worker(ch <-chan Push) {
	defer d.wg.Done()
	for p := range ch {
		hp := d.handlers[p.Kind].Load()
		if hp == nil {
			continue
		}
		d.invoke(*hp, p)
	}
}

func (d *Dispatcher) invoke(h Handler, p Push) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("push handler panicked",
				zap.Stringer("kind", p.Kind),
				zap.String("key", p.Key),
				zap.Any("panic", r))
		}
	}()
	h(p)
	d.delivered.Add(1)
}

// Stats returns delivered and dropped counts.
func (d *Dispatcher) Stats() (delivered, dropped int64) {
	return d.delivered.Load(), d.dropped.Load()
}

// Close stops accepting pushes, drains the queues and waits for the
// workers. It is idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
