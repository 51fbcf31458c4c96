package events

import "testing"

func TestBusPublishSubscribe(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventConnectionState, 1)

	if n := b.Publish(EventConnectionState, StateChange{Context: "quote", State: "ready"}); n != 1 {
		t.Fatalf("delivered to %d subscribers, want 1", n)
	}
	// buffer full: the second publish is dropped rather than blocking
	if n := b.Publish(EventConnectionState, StateChange{Context: "quote", State: "reconnecting"}); n != 0 {
		t.Fatalf("delivered to %d subscribers, want 0", n)
	}

	msg := (<-ch).(StateChange)
	if msg.State != "ready" {
		t.Fatalf("state = %q, want ready", msg.State)
	}

	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	if n := b.Publish(EventConnectionState, StateChange{}); n != 0 {
		t.Fatalf("delivered after unsubscribe: %d", n)
	}
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	if n := b.Publish(EventDispatchDropped, Dropped{}); n != 0 {
		t.Fatalf("nil bus delivered %d", n)
	}
}
