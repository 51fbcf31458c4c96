package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-gateway/internal/events"
)

func TestTrackerRejectsInvalidTransition(t *testing.T) {
	bus := events.NewBus()
	rejected, unsub := bus.Subscribe(events.EventOrderRejected, 1)
	defer unsub()

	tr := NewTracker(bus, nil)
	require.True(t, tr.Apply("1", StatusNew))
	require.True(t, tr.Apply("1", StatusFilled))
	assert.False(t, tr.Apply("1", StatusPartialFilled))

	st, ok := tr.Status("1")
	require.True(t, ok)
	assert.Equal(t, StatusFilled, st)

	msg := (<-rejected).(events.TransitionRejected)
	assert.Equal(t, "1", msg.OrderID)
	assert.Equal(t, "FilledStatus", msg.From)
}

func TestTrackerRememberDoesNotOverwrite(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.Apply("7", StatusPartialFilled)
	tr.Remember("7", StatusUnknown)
	st, _ := tr.Status("7")
	assert.Equal(t, StatusPartialFilled, st)

	tr.Remember("8", StatusUnknown)
	assert.True(t, tr.Known("8"))
	assert.True(t, tr.Apply("8", StatusWaitToNew), "unknown status admits anything")
	assert.False(t, tr.Apply("9", Status("Bogus")))
	assert.False(t, tr.Known("9"))
}

func TestTrackerPrune(t *testing.T) {
	tr := NewTracker(nil, nil)
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return base }
	tr.Apply("done", StatusCanceled)
	tr.Apply("live", StatusNew)

	tr.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.Equal(t, 1, tr.Prune(time.Hour))
	assert.False(t, tr.Known("done"))
	assert.True(t, tr.Known("live"))
	assert.Equal(t, 1, tr.Len())
}
