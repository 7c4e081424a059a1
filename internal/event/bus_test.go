package event

import (
	"sync"
	"testing"
)

func TestBusSubscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe(TypeLockAcquired, func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBusPublish(t *testing.T) {
	bus := NewBus()

	var received Event
	bus.Subscribe(TypeLockAcquired, func(e Event) {
		received = e
	})

	bus.Publish(NewLockAcquiredEvent("bracket.dwg", "alice", "rework flange"))

	if received == nil {
		t.Fatal("Handler should have received the event")
	}
	if received.EventType() != TypeLockAcquired {
		t.Errorf("EventType = %q, want %q", received.EventType(), TypeLockAcquired)
	}

	acquired, ok := received.(LockAcquiredEvent)
	if !ok {
		t.Fatalf("received event has type %T, want LockAcquiredEvent", received)
	}
	if acquired.Holder != "alice" {
		t.Errorf("Holder = %q, want %q", acquired.Holder, "alice")
	}
	if acquired.Timestamp().IsZero() {
		t.Error("event timestamp should be set")
	}
}

func TestBusPublishMultipleHandlers(t *testing.T) {
	bus := NewBus()

	callCount := 0
	bus.Subscribe(TypeLockReleased, func(e Event) { callCount++ })
	bus.Subscribe(TypeLockReleased, func(e Event) { callCount++ })

	bus.Publish(NewLockReleasedEvent("bracket.dwg", "alice"))

	if callCount != 2 {
		t.Errorf("callCount = %d, want 2", callCount)
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus()

	var types []string
	bus.SubscribeAll(func(e Event) {
		types = append(types, e.EventType())
	})

	bus.Publish(NewLockAcquiredEvent("a.dwg", "alice", ""))
	bus.Publish(NewRevisionAdvancedEvent("1001", "A", "B", "bob", nil))

	if len(types) != 2 {
		t.Fatalf("wildcard handler called %d times, want 2", len(types))
	}
	if types[0] != TypeLockAcquired || types[1] != TypeRevisionAdvanced {
		t.Errorf("types = %v", types)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe(TypeLockAcquired, func(e Event) {
		called = true
	})

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe should return true for a known ID")
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return false for an already-removed ID")
	}

	bus.Publish(NewLockAcquiredEvent("a.dwg", "alice", ""))
	if called {
		t.Error("unsubscribed handler should not be called")
	}
}

func TestBusPanicRecovery(t *testing.T) {
	bus := NewBus()

	secondCalled := false
	bus.Subscribe(TypeLockAcquired, func(e Event) {
		panic("handler bug")
	})
	bus.Subscribe(TypeLockAcquired, func(e Event) {
		secondCalled = true
	})

	bus.Publish(NewLockAcquiredEvent("a.dwg", "alice", ""))

	if !secondCalled {
		t.Error("a panicking handler should not block other handlers")
	}
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.Subscribe(TypeLockReleased, func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(NewLockReleasedEvent("a.dwg", "alice"))
		}()
	}
	wg.Wait()

	if count != 50 {
		t.Errorf("count = %d, want 50", count)
	}
}

func TestBusClear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TypeLockAcquired, func(e Event) {})
	bus.SubscribeAll(func(e Event) {})

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount after Clear = %d, want 0", bus.SubscriptionCount())
	}
}
