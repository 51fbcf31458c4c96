package order

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"market-gateway/internal/events"
	"market-gateway/internal/monitor"
	"market-gateway/pkg/logger"
)

type entry struct {
	status    Status
	updatedAt time.Time
}

// Tracker keeps the last known status per order id, fed by submit acks and
// order-changed pushes.
type Tracker struct {
	mu     sync.RWMutex
	orders map[string]entry
	bus    *events.Bus
	log    *zap.Logger
	now    func() time.Time
}

func NewTracker(bus *events.Bus, log *zap.Logger) *Tracker {
	return &Tracker{
		orders: make(map[string]entry),
		bus:    bus,
		log:    logger.OrNop(log).Named("order_tracker"),
		now:    time.Now,
	}
}

// Remember records an order acknowledged by submit. An existing entry is
// left alone since pushes may already have advanced it.
func (t *Tracker) Remember(orderID string, status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.orders[orderID]; ok {
		return
	}
	t.orders[orderID] = entry{status: status, updatedAt: t.now()}
}

// Apply moves an order to a new status. It returns false, leaving the
// stored status unchanged, when the transition is not allowed.
func (t *Tracker) Apply(orderID string, to Status) bool {
	t.mu.Lock()
	prev, ok := t.orders[orderID]
	if ok && !CanTransition(prev.status, to) {
		t.mu.Unlock()
		t.log.Warn("order status transition rejected",
			zap.String("order_id", orderID),
			zap.Stringer("from", prev.status),
			zap.Stringer("to", to))
		monitor.TransitionRejected()
		t.bus.Publish(events.EventOrderRejected, events.TransitionRejected{
			OrderID: orderID,
			From:    prev.status.String(),
			To:      to.String(),
		})
		return false
	}
	if !ok && !to.Valid() {
		t.mu.Unlock()
		t.log.Warn("unknown order status", zap.String("order_id", orderID), zap.String("status", string(to)))
		return false
	}
	t.orders[orderID] = entry{status: to, updatedAt: t.now()}
	t.mu.Unlock()
	return true
}

// Status returns the tracked status of an order.
func (t *Tracker) Status(orderID string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.orders[orderID]
	return e.status, ok
}

// Known reports whether the order has been seen.
func (t *Tracker) Known(orderID string) bool {
	_, ok := t.Status(orderID)
	return ok
}

// Prune drops terminal orders not updated within maxAge.
func (t *Tracker) Prune(maxAge time.Duration) int {
	cutoff := t.now().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, e := range t.orders {
		if e.status.IsTerminal() && e.updatedAt.Before(cutoff) {
			delete(t.orders, id)
			n++
		}
	}
	return n
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.orders)
}
