// Package persistence journals order-changed pushes and subscription state
// to the gateway database.
package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"market-gateway/pkg/db"
	"market-gateway/pkg/logger"
	"market-gateway/pkg/market"
)

// Journal records order events through a batch writer and keeps the
// subscription table in step with the registry.
type Journal struct {
	db     *db.Database
	writer *BatchWriter
	log    *zap.Logger
	now    func() time.Time
}

func NewJournal(database *db.Database, flushEvery time.Duration, log *zap.Logger) *Journal {
	log = logger.OrNop(log)
	return &Journal{
		db:     database,
		writer: NewBatchWriter(database, 100, flushEvery, log),
		log:    log.Named("journal"),
		now:    time.Now,
	}
}

// RecordOrderEvent queues an order event. A missing id or receive time is
// filled in.
func (j *Journal) RecordOrderEvent(ev db.OrderEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = j.now()
	}
	q, args := j.db.InsertOrderEventQuery(ev)
	j.writer.WriteQuery(q, args...)
}

// RecordSubscription persists one registry entry; an empty entry deletes
// the row.
func (j *Journal) RecordSubscription(ctx context.Context, symbol string, flags market.SubFlags, periods []market.Period) error {
	if flags.Empty() && len(periods) == 0 {
		err := j.db.DeleteSubscription(ctx, symbol)
		if err == db.ErrNotFound {
			return nil
		}
		return err
	}
	ps := make([]int32, len(periods))
	for i, p := range periods {
		ps[i] = int32(p)
	}
	return j.db.UpsertSubscription(ctx, db.Subscription{
		Symbol:    symbol,
		Flags:     uint8(flags),
		Periods:   ps,
		UpdatedAt: j.now(),
	})
}

// SavedSubscription is a persisted subscription in market types.
type SavedSubscription struct {
	Symbol  string
	Flags   market.SubFlags
	Periods []market.Period
}

// Subscriptions loads what was subscribed when the daemon last ran.
func (j *Journal) Subscriptions(ctx context.Context) ([]SavedSubscription, error) {
	rows, err := j.db.Subscriptions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SavedSubscription, 0, len(rows))
	for _, r := range rows {
		s := SavedSubscription{Symbol: r.Symbol, Flags: market.SubFlags(r.Flags) & market.SubAll}
		for _, p := range r.Periods {
			if period := market.Period(p); period.Valid() {
				s.Periods = append(s.Periods, period)
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// OrderEvents returns the journal of one order after flushing pending
// writes.
func (j *Journal) OrderEvents(ctx context.Context, orderID string) ([]db.OrderEvent, error) {
	if err := j.writer.Flush(); err != nil {
		j.log.Warn("flush before read failed", zap.Error(err))
	}
	return j.db.OrderEvents(ctx, orderID)
}

// RecentOrderEvents returns the newest journaled events.
func (j *Journal) RecentOrderEvents(ctx context.Context, limit int) ([]db.OrderEvent, error) {
	if err := j.writer.Flush(); err != nil {
		j.log.Warn("flush before read failed", zap.Error(err))
	}
	return j.db.RecentOrderEvents(ctx, limit)
}

func (j *Journal) Metrics() BatchWriterMetrics { return j.writer.GetMetrics() }

// Close flushes pending writes.
func (j *Journal) Close() error {
	return j.writer.Close()
}
