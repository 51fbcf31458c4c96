package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"market-gateway/internal/events"
	"market-gateway/pkg/logger"
)

// Monitor watches lifecycle events on the bus and emits alerts.
type Monitor struct {
	Bus  *events.Bus
	Sink AlertSink
	Log  *zap.Logger

	now func() time.Time
}

var watched = []events.Event{
	events.EventConnectionState,
	events.EventDispatchDropped,
	events.EventReplayFailed,
	events.EventOrderRejected,
}

// Start subscribes to the watched topics until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	log := logger.OrNop(m.Log).Named("monitor")
	if m.Bus == nil || m.Sink == nil {
		log.Info("monitor not fully configured; skipping")
		return
	}
	if m.now == nil {
		m.now = time.Now
	}
	for _, e := range watched {
		stream, unsub := m.Bus.Subscribe(e, 64)
		go func() {
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-stream:
					if !ok {
						return
					}
					text, alert := describe(msg)
					if !alert {
						continue
					}
					if err := m.Sink.Send(m.formatAlert(text)); err != nil {
						log.Warn("alert delivery failed", zap.Error(err))
					}
				}
			}
		}()
	}
}

func (m *Monitor) formatAlert(text string) string {
	return "[" + m.now().Format(time.RFC3339) + "] " + text
}

// describe renders an event; only conditions worth an operator's attention
// produce alerts.
func describe(msg any) (string, bool) {
	switch t := msg.(type) {
	case events.StateChange:
		if t.State != "reconnecting" && t.State != "disconnected" {
			return "", false
		}
		return fmt.Sprintf("%s connection %s", t.Context, t.State), true
	case events.Dropped:
		return fmt.Sprintf("%s push dropped for %s", t.Kind, t.Symbol), true
	case events.ReplayFailed:
		return fmt.Sprintf("%s subscription replay failed: %v", t.Context, t.Err), true
	case events.TransitionRejected:
		return fmt.Sprintf("order %s transition %s -> %s rejected", t.OrderID, t.From, t.To), true
	case string:
		return t, true
	default:
		return "", false
	}
}
