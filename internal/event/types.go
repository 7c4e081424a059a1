// Package event defines event types for decoupling components in partvault.
// These events let the notifier, watch view, and logging observe state
// changes without direct dependencies on the components that produce them.
package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "lock.acquired", "revision.advanced")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type identifiers.
const (
	TypeLockAcquired        = "lock.acquired"
	TypeLockReleased        = "lock.released"
	TypeLockForcedRelease   = "lock.forced_release"
	TypeMetadataUpdated     = "metadata.updated"
	TypeRevisionAdvanced    = "revision.advanced"
	TypeSubscriptionChanged = "subscription.changed"
)

// -----------------------------------------------------------------------------
// Lock Events
// -----------------------------------------------------------------------------

// LockAcquiredEvent is emitted after a checkout publishes successfully.
type LockAcquiredEvent struct {
	baseEvent
	Filename string // File that was checked out
	Holder   string // Username that now holds the lock
	Message  string // Checkout message supplied by the holder
}

// NewLockAcquiredEvent creates a LockAcquiredEvent.
func NewLockAcquiredEvent(filename, holder, message string) LockAcquiredEvent {
	return LockAcquiredEvent{
		baseEvent: newBaseEvent(TypeLockAcquired),
		Filename:  filename,
		Holder:    holder,
		Message:   message,
	}
}

// LockReleasedEvent is emitted after a checkin publishes successfully.
type LockReleasedEvent struct {
	baseEvent
	Filename string // File that was checked in
	Holder   string // Username that held the lock
}

// NewLockReleasedEvent creates a LockReleasedEvent.
func NewLockReleasedEvent(filename, holder string) LockReleasedEvent {
	return LockReleasedEvent{
		baseEvent: newBaseEvent(TypeLockReleased),
		Filename:  filename,
		Holder:    holder,
	}
}

// LockForcedReleaseEvent is emitted when an administrator force-releases a
// lock held by another user. Distinct from LockReleasedEvent so observers
// can treat the override specially.
type LockForcedReleaseEvent struct {
	baseEvent
	Filename       string // File whose lock was released
	PreviousHolder string // Username whose lock was removed
	Admin          string // Administrator who forced the release
}

// NewLockForcedReleaseEvent creates a LockForcedReleaseEvent.
func NewLockForcedReleaseEvent(filename, previousHolder, admin string) LockForcedReleaseEvent {
	return LockForcedReleaseEvent{
		baseEvent:      newBaseEvent(TypeLockForcedRelease),
		Filename:       filename,
		PreviousHolder: previousHolder,
		Admin:          admin,
	}
}

// -----------------------------------------------------------------------------
// Metadata Events
// -----------------------------------------------------------------------------

// MetadataUpdatedEvent is emitted after a metadata record update publishes.
type MetadataUpdatedEvent struct {
	baseEvent
	Filename   string // File whose metadata changed
	Actor      string // Username that made the change
	NewVersion int    // Record version after the update
}

// NewMetadataUpdatedEvent creates a MetadataUpdatedEvent.
func NewMetadataUpdatedEvent(filename, actor string, newVersion int) MetadataUpdatedEvent {
	return MetadataUpdatedEvent{
		baseEvent:  newBaseEvent(TypeMetadataUpdated),
		Filename:   filename,
		Actor:      actor,
		NewVersion: newVersion,
	}
}

// -----------------------------------------------------------------------------
// Revision Events
// -----------------------------------------------------------------------------

// RevisionAdvancedEvent is emitted after a part revision advances. The
// subscriber list is captured at publish time so the notification fan-out
// sees the subscription state the mutation was committed against.
type RevisionAdvancedEvent struct {
	baseEvent
	PartNumber  string   // Part whose revision advanced
	PreviousRev string   // Revision before the advance ("" if first)
	NewRev      string   // Revision after the advance
	Actor       string   // Username that advanced the revision
	Subscribers []string // Usernames subscribed to the part
}

// NewRevisionAdvancedEvent creates a RevisionAdvancedEvent.
func NewRevisionAdvancedEvent(partNumber, previousRev, newRev, actor string, subscribers []string) RevisionAdvancedEvent {
	return RevisionAdvancedEvent{
		baseEvent:   newBaseEvent(TypeRevisionAdvanced),
		PartNumber:  partNumber,
		PreviousRev: previousRev,
		NewRev:      newRev,
		Actor:       actor,
		Subscribers: subscribers,
	}
}

// -----------------------------------------------------------------------------
// Subscription Events
// -----------------------------------------------------------------------------

// SubscriptionChangedEvent is emitted when a user subscribes to or
// unsubscribes from a part.
type SubscriptionChangedEvent struct {
	baseEvent
	PartNumber string // Part whose subscription set changed
	Username   string // User that subscribed or unsubscribed
	Subscribed bool   // true for subscribe, false for unsubscribe
}

// NewSubscriptionChangedEvent creates a SubscriptionChangedEvent.
func NewSubscriptionChangedEvent(partNumber, username string, subscribed bool) SubscriptionChangedEvent {
	return SubscriptionChangedEvent{
		baseEvent:  newBaseEvent(TypeSubscriptionChanged),
		PartNumber: partNumber,
		Username:   username,
		Subscribed: subscribed,
	}
}
