// Package vault is the service facade. It composes the lock manager,
// revision coordinator, subscription manager and audit trail into the
// operations the CLI exposes, each running as one published changeset.
package vault

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/partvault/partvault/internal/audit"
	"github.com/partvault/partvault/internal/errors"
	"github.com/partvault/partvault/internal/event"
	"github.com/partvault/partvault/internal/gitrepo"
	"github.com/partvault/partvault/internal/identity"
	"github.com/partvault/partvault/internal/lockmgr"
	"github.com/partvault/partvault/internal/logging"
	"github.com/partvault/partvault/internal/resolve"
	"github.com/partvault/partvault/internal/revision"
	"github.com/partvault/partvault/internal/store"
	"github.com/partvault/partvault/internal/subscription"
)

// Metadata is the stored payload of a document's metadata record.
type Metadata struct {
	Filename    string `json:"filename"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Revision    string `json:"revision,omitempty"`
}

// MetadataChange carries the fields of an UpdateMetadata call. Nil fields
// are left unchanged.
type MetadataChange struct {
	Description *string
	Author      *string
	Revision    *string
}

// MetadataRecord pairs a metadata payload with its stored version.
type MetadataRecord struct {
	Metadata
	Version int
}

// Service exposes the coordination operations. Every mutation
// synchronizes with the shared remote, applies its change together with
// an audit entry, and publishes the result as one changeset.
type Service struct {
	store *store.Store
	locks *lockmgr.Manager
	revs  *revision.Coordinator
	subs  *subscription.Manager
	bus   *event.Bus
	log   *logging.Logger
}

// New assembles a Service. A nil bus disables event publication; a nil
// logger disables logging.
func New(st *store.Store, bus *event.Bus, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NopLogger()
	}
	if bus == nil {
		bus = event.NewBus()
	}
	return &Service{
		store: st,
		locks: lockmgr.New(log),
		revs:  revision.NewCoordinator(log),
		subs:  subscription.New(log),
		bus:   bus,
		log:   log,
	}
}

// Bus returns the service's event bus for attaching observers.
func (s *Service) Bus() *event.Bus { return s.bus }

// Checkout acquires an exclusive lock on filename for actor.
func (s *Service) Checkout(ctx context.Context, actor identity.Identity, filename, message string) (lockmgr.Lock, error) {
	if err := actor.Validate(); err != nil {
		return lockmgr.Lock{}, err
	}

	var lock lockmgr.Lock
	_, err := s.store.RunUpdate(ctx, commitMessage("checkout", filename, actor), func(tx gitrepo.Tx) error {
		var err error
		lock, err = s.locks.Checkout(tx, filename, actor.Username, message)
		return err
	})
	if err != nil {
		return lockmgr.Lock{}, err
	}

	s.bus.Publish(event.NewLockAcquiredEvent(filename, actor.Username, message))
	return lock, nil
}

// Checkin releases the actor's own lock on filename.
func (s *Service) Checkin(ctx context.Context, actor identity.Identity, filename string) error {
	if err := actor.Validate(); err != nil {
		return err
	}

	_, err := s.store.RunUpdate(ctx, commitMessage("checkin", filename, actor), func(tx gitrepo.Tx) error {
		return s.locks.Checkin(tx, filename, actor.Username)
	})
	if err != nil {
		return err
	}

	s.bus.Publish(event.NewLockReleasedEvent(filename, actor.Username))
	return nil
}

// ForceRelease breaks someone else's lock on filename. The denied attempt
// of an unprivileged actor is itself recorded in the trail.
func (s *Service) ForceRelease(ctx context.Context, actor identity.Identity, filename string) error {
	if err := actor.Validate(); err != nil {
		return err
	}

	var previousHolder string
	_, err := s.store.RunUpdate(ctx, commitMessage("force-release", filename, actor), func(tx gitrepo.Tx) error {
		lock, held, lookupErr := s.locks.Get(tx, filename)
		if lookupErr == nil && held {
			previousHolder = lock.Holder
		}
		return s.locks.ForceRelease(tx, filename, actor)
	})
	if errors.Is(err, errors.ErrPermissionDenied) {
		s.recordDenied(ctx, actor, filename, err)
		return err
	}
	if err != nil {
		return err
	}

	s.bus.Publish(event.NewLockForcedReleaseEvent(filename, previousHolder, actor.Username))
	return nil
}

// recordDenied publishes a denied audit entry in its own changeset. The
// rejected operation staged nothing, so the trail write stands alone.
func (s *Service) recordDenied(ctx context.Context, actor identity.Identity, filename string, cause error) {
	_, err := s.store.RunUpdate(ctx, commitMessage("denied force-release", filename, actor), func(tx gitrepo.Tx) error {
		entry := audit.New(actor.Username, audit.ActionForcedRelease, filename).
			WithDetail("role", string(actor.Role)).
			Denied()
		return audit.Stage(tx, entry)
	})
	if err != nil {
		s.log.Warn("recording denied attempt failed", "filename", filename, "error", err)
	}
}

// UpdateMetadata edits a document's metadata record. The caller states
// the version it read; a stale version fails with ErrVersionMismatch and
// nothing is written. Creating a record uses expected version 0.
func (s *Service) UpdateMetadata(ctx context.Context, actor identity.Identity, filename string, expected int, change MetadataChange) (MetadataRecord, error) {
	if err := actor.Validate(); err != nil {
		return MetadataRecord{}, err
	}
	if err := store.ValidateName(filename); err != nil {
		return MetadataRecord{}, err
	}

	var out MetadataRecord
	_, err := s.store.RunUpdate(ctx, commitMessage("metadata update", filename, actor), func(tx gitrepo.Tx) error {
		version, err := resolve.ApplyUpdate(tx, store.MetadataKey(filename), expected, actor.Username,
			func(raw json.RawMessage) (any, error) {
				var meta Metadata
				if len(raw) > 0 {
					if err := json.Unmarshal(raw, &meta); err != nil {
						return nil, fmt.Errorf("decode metadata %s: %w", filename, err)
					}
				}
				meta.Filename = filename
				if change.Description != nil {
					meta.Description = *change.Description
				}
				if change.Author != nil {
					meta.Author = *change.Author
				}
				if change.Revision != nil {
					meta.Revision = *change.Revision
				}
				out.Metadata = meta
				return meta, nil
			})
		if err != nil {
			return err
		}
		out.Version = version
		return audit.Stage(tx, audit.New(actor.Username, audit.ActionMetadataUpdate, filename).
			WithDetail("version", version))
	})
	if err != nil {
		return MetadataRecord{}, err
	}

	s.bus.Publish(event.NewMetadataUpdatedEvent(filename, actor.Username, out.Version))
	return out, nil
}

// AdvanceRevision moves a part to a later revision. Subscribers are read
// inside the same transaction so the notified set matches the state the
// advance was applied against.
func (s *Service) AdvanceRevision(ctx context.Context, actor identity.Identity, partNumber, proposed, description string) (revision.Part, error) {
	if err := actor.Validate(); err != nil {
		return revision.Part{}, err
	}

	var part revision.Part
	var previous string
	var subscribers []string
	_, err := s.store.RunUpdate(ctx, commitMessage("revision advance", partNumber, actor), func(tx gitrepo.Tx) error {
		current, ok, err := s.revs.Get(tx, partNumber)
		if err != nil {
			return err
		}
		previous = ""
		if ok {
			previous = current.CurrentRev
		}

		part, err = s.revs.Advance(tx, partNumber, proposed, description, actor.Username)
		if err != nil {
			return err
		}

		subscribers, err = s.subs.Subscribers(tx, partNumber)
		return err
	})
	if err != nil {
		return revision.Part{}, err
	}

	s.bus.Publish(event.NewRevisionAdvancedEvent(partNumber, previous, proposed, actor.Username, subscribers))
	return part, nil
}

// Subscribe adds the actor to a part's subscriber list.
func (s *Service) Subscribe(ctx context.Context, actor identity.Identity, partNumber string) error {
	return s.editSubscription(ctx, actor, partNumber, true)
}

// Unsubscribe removes the actor from a part's subscriber list.
func (s *Service) Unsubscribe(ctx context.Context, actor identity.Identity, partNumber string) error {
	return s.editSubscription(ctx, actor, partNumber, false)
}

func (s *Service) editSubscription(ctx context.Context, actor identity.Identity, partNumber string, add bool) error {
	if err := actor.Validate(); err != nil {
		return err
	}

	verb := "subscribe"
	if !add {
		verb = "unsubscribe"
	}
	var changed bool
	_, err := s.store.RunUpdate(ctx, commitMessage(verb, partNumber, actor), func(tx gitrepo.Tx) error {
		var err error
		if add {
			changed, err = s.subs.Subscribe(tx, partNumber, actor.Username)
		} else {
			changed, err = s.subs.Unsubscribe(tx, partNumber, actor.Username)
		}
		return err
	})
	if err != nil {
		return err
	}

	if changed {
		s.bus.Publish(event.NewSubscriptionChangedEvent(partNumber, actor.Username, add))
	}
	return nil
}

// Locks returns every active lock after synchronizing with the remote.
func (s *Service) Locks(ctx context.Context) ([]lockmgr.Lock, error) {
	var locks []lockmgr.Lock
	err := s.store.View(ctx, func(tx gitrepo.ReadTx) error {
		var err error
		locks, err = s.locks.Active(tx)
		return err
	})
	return locks, err
}

// Lock returns the active lock on filename, if any.
func (s *Service) Lock(ctx context.Context, filename string) (lockmgr.Lock, bool, error) {
	var lock lockmgr.Lock
	var held bool
	err := s.store.View(ctx, func(tx gitrepo.ReadTx) error {
		var err error
		lock, held, err = s.locks.Get(tx, filename)
		return err
	})
	return lock, held, err
}

// Metadata returns a document's metadata record, if one exists.
func (s *Service) Metadata(ctx context.Context, filename string) (MetadataRecord, bool, error) {
	var rec MetadataRecord
	var found bool
	err := s.store.View(ctx, func(tx gitrepo.ReadTx) error {
		var meta Metadata
		env, ok, err := store.Get(tx, store.MetadataKey(filename), &meta)
		if err != nil {
			return err
		}
		if !ok || !env.Active() {
			return nil
		}
		rec = MetadataRecord{Metadata: meta, Version: env.Version}
		found = true
		return nil
	})
	return rec, found, err
}

// Part returns a part's revision record, if one exists.
func (s *Service) Part(ctx context.Context, partNumber string) (revision.Part, bool, error) {
	var part revision.Part
	var found bool
	err := s.store.View(ctx, func(tx gitrepo.ReadTx) error {
		var err error
		part, found, err = s.revs.Get(tx, partNumber)
		return err
	})
	return part, found, err
}

// Parts returns every known part.
func (s *Service) Parts(ctx context.Context) ([]revision.Part, error) {
	var parts []revision.Part
	err := s.store.View(ctx, func(tx gitrepo.ReadTx) error {
		var err error
		parts, err = s.revs.List(tx)
		return err
	})
	return parts, err
}

// Subscribers returns a part's subscriber list.
func (s *Service) Subscribers(ctx context.Context, partNumber string) ([]string, error) {
	var subs []string
	err := s.store.View(ctx, func(tx gitrepo.ReadTx) error {
		var err error
		subs, err = s.subs.Subscribers(tx, partNumber)
		return err
	})
	return subs, err
}

// AuditTrail returns audit entries matching the filter.
func (s *Service) AuditTrail(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var entries []audit.Entry
	err := s.store.View(ctx, func(tx gitrepo.ReadTx) error {
		var err error
		entries, err = audit.Read(tx, f)
		return err
	})
	return entries, err
}

func commitMessage(verb, target string, actor identity.Identity) string {
	return fmt.Sprintf("partvault: %s %s by %s", verb, target, actor.Username)
}
