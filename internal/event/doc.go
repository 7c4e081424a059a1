// Package event provides a pub-sub event bus for decoupled inter-component
// communication in partvault.
//
// This package enables loose coupling between the coordination core, the
// notification dispatcher, and presentation surfaces by allowing them to
// communicate through events rather than direct method calls. Components can
// publish events without knowing who will receive them, and subscribe to
// events without knowing who will produce them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Lock lifecycle:
//   - [LockAcquiredEvent]: Emitted after a checkout publishes
//   - [LockReleasedEvent]: Emitted after a checkin publishes
//   - [LockForcedReleaseEvent]: Emitted after an administrative force-release
//
// Record changes:
//   - [MetadataUpdatedEvent]: Emitted after a metadata record update
//   - [RevisionAdvancedEvent]: Emitted after a part revision advances
//   - [SubscriptionChangedEvent]: Emitted when a subscription set changes
//
// Events are published only after the corresponding changeset has been
// committed and pushed: observers never see a state change that was not
// durably published.
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Multiple goroutines can publish
// and subscribe concurrently. Handlers are called synchronously and protected
// against panics - a panicking handler will not prevent other handlers from
// being called.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	// Subscribe to specific event types
//	bus.Subscribe(event.TypeRevisionAdvanced, func(e event.Event) {
//	    adv := e.(event.RevisionAdvancedEvent)
//	    log.Printf("part %s now at rev %s", adv.PartNumber, adv.NewRev)
//	})
//
//	// Subscribe to all events (useful for logging)
//	bus.SubscribeAll(func(e event.Event) {
//	    log.Printf("Event: %s at %v", e.EventType(), e.Timestamp())
//	})
//
//	// Publish events
//	bus.Publish(event.NewLockAcquiredEvent("bracket.dwg", "alice", "rework flange"))
package event
