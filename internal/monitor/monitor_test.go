package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"market-gateway/internal/events"
)

func TestMonitorAlertsOnReconnect(t *testing.T) {
	bus := events.NewBus()
	alerts := make(chan string, 4)
	m := &Monitor{
		Bus:  bus,
		Sink: SinkFunc(func(s string) error { alerts <- s; return nil }),
		now:  func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	bus.Publish(events.EventConnectionState, events.StateChange{Context: "quote", State: "ready"})
	bus.Publish(events.EventConnectionState, events.StateChange{Context: "quote", State: "reconnecting"})

	select {
	case got := <-alerts:
		if got != "[2024-01-02T03:04:05Z] quote connection reconnecting" {
			t.Fatalf("alert = %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no alert")
	}
	select {
	case extra := <-alerts:
		t.Fatalf("unexpected alert %q", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name  string
		msg   any
		want  string
		alert bool
	}{
		{"ready is quiet", events.StateChange{Context: "trade", State: "ready"}, "", false},
		{"drop", events.Dropped{Kind: events.KindDepth, Symbol: "700.HK"}, "depth push dropped for 700.HK", true},
		{"replay", events.ReplayFailed{Context: "quote", Err: errors.New("boom")}, "quote subscription replay failed: boom", true},
		{"reject", events.TransitionRejected{OrderID: "1", From: "Filled", To: "New"}, "order 1 transition Filled -> New rejected", true},
		{"other", 42, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, alert := describe(tt.msg)
			if alert != tt.alert || !strings.EqualFold(got, tt.want) {
				t.Fatalf("describe = (%q, %v), want (%q, %v)", got, alert, tt.want, tt.alert)
			}
		})
	}
}
