package wsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"market-gateway/pkg/apierr"
	"market-gateway/pkg/logger"
	"market-gateway/pkg/protocol"
	"market-gateway/pkg/wire"
)

type result struct {
	body []byte
	err  error
}

// Pending is one in-flight request. It resolves exactly once.
type Pending struct {
	id       uint32
	cmd      uint8
	deadline time.Time

	done chan result
	once sync.Once
	c    *Correlator
}

func (p *Pending) ID() uint32          { return p.id }
func (p *Pending) Cmd() uint8          { return p.cmd }
func (p *Pending) Deadline() time.Time { return p.deadline }

func (p *Pending) resolve(body []byte, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.done <- result{body: body, err: err}
		resolved = true
	})
	return resolved
}

// Wait blocks until the response, the deadline sweep, a connection failure
// or ctx. A cancelled wait removes the entry so a late response is dropped.
func (p *Pending) Wait(ctx context.Context) ([]byte, error) {
	select {
	case r := <-p.done:
		return r.body, r.err
	case <-ctx.Done():
		p.c.Cancel(p.id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: cmd %d: %v", apierr.ErrTimeout, p.cmd, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// Correlator matches responses to requests by id.
type Correlator struct {
	mu      sync.Mutex
	nextID  uint32
	pending map[uint32]*Pending

	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

func NewCorrelator(defaultTimeout time.Duration, log *zap.Logger) *Correlator {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &Correlator{
		pending: make(map[uint32]*Pending),
		timeout: defaultTimeout,
		now:     time.Now,
		log:     logger.OrNop(log),
	}
}

// allocID returns the next free id. Ids never repeat while pending and
// skip 0 on wraparound. Caller holds mu.
func (c *Correlator) allocID() uint32 {
	for {
		c.nextID++
		if c.nextID == 0 {
			continue
		}
		if _, busy := c.pending[c.nextID]; !busy {
			return c.nextID
		}
	}
}

// NextID allocates an id that is not tracked, for handshake frames read
// synchronously.
func (c *Correlator) NextID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocID()
}

// Register tracks a new request. timeout <= 0 uses the default.
func (c *Correlator) Register(cmd uint8, timeout time.Duration) *Pending {
	if timeout <= 0 {
		timeout = c.timeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &Pending{
		id:       c.allocID(),
		cmd:      cmd,
		deadline: c.now().Add(timeout),
		done:     make(chan result, 1),
		c:        c,
	}
	c.pending[p.id] = p
	return p
}

func (c *Correlator) take(id uint32) *Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return p
}

// Resolve completes the request matching a response frame. It reports
// false for unknown ids.
func (c *Correlator) Resolve(pkt *wire.Packet) bool {
	p := c.take(pkt.RequestID)
	if p == nil {
		c.log.Debug("response for unknown request dropped",
			zap.Uint32("request_id", pkt.RequestID), zap.Uint8("cmd", pkt.Cmd))
		return false
	}
	if pkt.Status != 0 {
		return p.resolve(nil, decodeError(pkt))
	}
	return p.resolve(pkt.Body, nil)
}

func decodeError(pkt *wire.Packet) error {
	var e protocol.Error
	if err := protocol.Unmarshal(pkt.Body, &e); err != nil || (e.Code == 0 && e.Msg == "") {
		return &apierr.ServerError{Code: int64(pkt.Status), Message: fmt.Sprintf("cmd %d failed", pkt.Cmd)}
	}
	return &apierr.ServerError{Code: int64(e.Code), Message: e.Msg}
}

// Cancel forgets a request without resolving it.
func (c *Correlator) Cancel(id uint32) {
	c.take(id)
}

// Sweep fails every request whose deadline has passed and returns how many
// expired.
func (c *Correlator) Sweep(now time.Time) int {
	c.mu.Lock()
	var expired []*Pending
	for id, p := range c.pending {
		if !now.Before(p.deadline) {
			expired = append(expired, p)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, p := range expired {
		p.resolve(nil, fmt.Errorf("%w: cmd %d request %d", apierr.ErrTimeout, p.cmd, p.id))
	}
	return len(expired)
}

// FailAll resolves every pending request with err.
func (c *Correlator) FailAll(err error) int {
	c.mu.Lock()
	all := c.pending
	c.pending = make(map[uint32]*Pending)
	c.mu.Unlock()

	for _, p := range all {
		p.resolve(nil, err)
	}
	return len(all)
}

func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Run sweeps expired requests until ctx is done.
func (c *Correlator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(c.now()); n > 0 {
				c.log.Warn("requests timed out", zap.Int("count", n))
			}
		}
	}
}
