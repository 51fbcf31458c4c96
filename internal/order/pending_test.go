package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) release(id string, item string) {
	r.mu.Lock()
	r.got = append(r.got, id+":"+item)
	r.mu.Unlock()
}

func (r *recorder) items() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestPendingPassesThroughWithoutSubmit(t *testing.T) {
	rec := &recorder{}
	p := NewPending[string](time.Second, func(string) bool { return false }, rec.release, nil)

	assert.False(t, p.Offer("1", "a"))
	assert.Equal(t, []string{"1:a"}, rec.items())
}

func TestPendingReleasesOnAck(t *testing.T) {
	rec := &recorder{}
	known := map[string]bool{"old": true}
	p := NewPending[string](time.Second, func(id string) bool { return known[id] }, rec.release, nil)

	ack := p.BeginSubmit()
	assert.True(t, p.Offer("42", "WaitToNew"))
	assert.True(t, p.Offer("42", "NewStatus"))
	assert.False(t, p.Offer("old", "FilledStatus"), "known orders are not held")
	assert.Equal(t, 2, p.Len())

	ack("42")
	ack("42")
	assert.Equal(t, []string{"old:FilledStatus", "42:WaitToNew", "42:NewStatus"}, rec.items())
	assert.Zero(t, p.Len())

	assert.False(t, p.Offer("42", "FilledStatus"))
}

func TestPendingSweepReleasesAfterHold(t *testing.T) {
	rec := &recorder{}
	p := NewPending[string](time.Second, func(string) bool { return false }, rec.release, nil)
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	ack := p.BeginSubmit()
	require.True(t, p.Offer("x", "1"))
	assert.Zero(t, p.Sweep(base.Add(500*time.Millisecond)))
	assert.Equal(t, 1, p.Sweep(base.Add(time.Second)))
	assert.Equal(t, []string{"x:1"}, rec.items())

	// a failed submit releases nothing extra
	ack("")
	assert.Zero(t, p.Len())
}

func TestPendingRunFlushesOnStop(t *testing.T) {
	rec := &recorder{}
	p := NewPending[string](time.Hour, func(string) bool { return false }, rec.release, nil)
	p.BeginSubmit()
	p.Offer("y", "held")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()
	<-done
	assert.Equal(t, []string{"y:held"}, rec.items())
}
