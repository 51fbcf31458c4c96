package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-gateway/pkg/db"
	"market-gateway/pkg/market"
)

func newJournal(t *testing.T) *Journal {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(database))
	j := NewJournal(database, time.Hour, nil)
	t.Cleanup(func() {
		j.Close()
		database.Close()
	})
	return j
}

func TestJournalOrderEvents(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()

	j.RecordOrderEvent(db.OrderEvent{OrderID: "1", Symbol: "700.HK", Status: "NewStatus", UpdatedAt: time.UnixMilli(1)})
	j.RecordOrderEvent(db.OrderEvent{OrderID: "1", Symbol: "700.HK", Status: "FilledStatus", UpdatedAt: time.UnixMilli(2)})
	j.RecordOrderEvent(db.OrderEvent{OrderID: "2", Symbol: "AAPL.US", Status: "NewStatus", UpdatedAt: time.UnixMilli(3)})

	events, err := j.OrderEvents(ctx, "1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)

	m := j.Metrics()
	assert.Equal(t, uint64(3), m.TotalWrites)
	assert.Zero(t, m.TotalErrors)
}

func TestJournalSubscriptions(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordSubscription(ctx, "700.HK", market.SubQuote|market.SubTrade, []market.Period{market.Period1Min}))
	require.NoError(t, j.RecordSubscription(ctx, "AAPL.US", market.SubDepth, nil))

	saved, err := j.Subscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "700.HK", saved[0].Symbol)
	assert.Equal(t, market.SubQuote|market.SubTrade, saved[0].Flags)
	assert.Equal(t, []market.Period{market.Period1Min}, saved[0].Periods)

	require.NoError(t, j.RecordSubscription(ctx, "AAPL.US", 0, nil))
	require.NoError(t, j.RecordSubscription(ctx, "AAPL.US", 0, nil), "deleting twice is not an error")
	saved, err = j.Subscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}
