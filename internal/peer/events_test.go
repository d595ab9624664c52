package peer

import (
	"sync"
	"testing"
)

func TestEventBusDeliversToAllSubscribers(t *testing.T) {
	b := newEventBus()
	var mu sync.Mutex
	var received []any

	b.subscribe("connect", func(payload any) {
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
	})
	b.subscribe("connect", func(payload any) {
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
	})

	b.emit("connect", "hello")

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(received))
	}
}

func TestEventBusIgnoresUnrelatedKinds(t *testing.T) {
	b := newEventBus()
	called := false
	b.subscribe("connect", func(any) { called = true })

	b.emit("disconnect", nil)

	if called {
		t.Error("expected a subscriber on a different kind not to fire")
	}
}
