// Package lockmgr implements exclusive document check-out. A lock is a
// versioned record under the locks directory; acquiring one creates the
// record, releasing one soft-deletes it. All decisions happen inside an
// open transaction, so two contenders racing for the same document are
// serialized by the publish critical section and exactly one wins.
package lockmgr

import (
	"time"

	"github.com/partvault/partvault/internal/audit"
	"github.com/partvault/partvault/internal/errors"
	"github.com/partvault/partvault/internal/gitrepo"
	"github.com/partvault/partvault/internal/identity"
	"github.com/partvault/partvault/internal/logging"
	"github.com/partvault/partvault/internal/store"
)

// Lock is the stored payload of an active check-out.
type Lock struct {
	Filename   string    `json:"filename"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	Message    string    `json:"message,omitempty"`
}

// Manager performs lock transitions within transactions.
type Manager struct {
	log *logging.Logger
}

// New returns a Manager. A nil logger disables logging.
func New(log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Manager{log: log}
}

// Checkout acquires the lock on filename for actor. Re-acquiring a lock the
// actor already holds succeeds without change. A lock held by someone else
// fails with ErrAlreadyLocked carrying the holder's name.
func (m *Manager) Checkout(tx gitrepo.Tx, filename, actor, message string) (Lock, error) {
	if err := store.ValidateName(filename); err != nil {
		return Lock{}, err
	}

	key := store.LockKey(filename)
	var existing Lock
	env, found, err := store.Get(tx, key, &existing)
	if err != nil {
		return Lock{}, err
	}

	if found && env.Active() {
		if existing.Holder == actor {
			m.log.WithActor(actor).Debug("checkout is idempotent, lock already held", "filename", filename)
			return existing, nil
		}
		return Lock{}, errors.NewLockError("document is checked out", errors.ErrAlreadyLocked).
			WithFilename(filename).
			WithHolder(existing.Holder)
	}

	// Absent records are created; soft-deleted ones are recreated over
	// the tombstone so the version history stays monotonic.
	expected := 0
	if found {
		expected = env.Version
	}

	lock := Lock{
		Filename:   filename,
		Holder:     actor,
		AcquiredAt: time.Now().UTC(),
		Message:    message,
	}
	if _, err := store.Put(tx, key, lock, &expected, actor); err != nil {
		return Lock{}, err
	}

	entry := audit.New(actor, audit.ActionCheckout, filename)
	if message != "" {
		entry = entry.WithDetail("message", message)
	}
	if err := audit.Stage(tx, entry); err != nil {
		return Lock{}, err
	}

	m.log.WithActor(actor).Info("document checked out", "filename", filename)
	return lock, nil
}

// Checkin releases the actor's own lock on filename.
func (m *Manager) Checkin(tx gitrepo.Tx, filename, actor string) error {
	if err := store.ValidateName(filename); err != nil {
		return err
	}

	lock, env, err := m.activeLock(tx, filename)
	if err != nil {
		return err
	}
	if lock.Holder != actor {
		return errors.NewLockError("lock is held by another user", errors.ErrNotHolder).
			WithFilename(filename).
			WithHolder(lock.Holder)
	}

	expected := env.Version
	if _, err := store.SoftDelete(tx, store.LockKey(filename), &expected, actor); err != nil {
		return err
	}
	if err := audit.Stage(tx, audit.New(actor, audit.ActionCheckin, filename)); err != nil {
		return err
	}

	m.log.WithActor(actor).Info("document checked in", "filename", filename)
	return nil
}

// ForceRelease removes someone else's lock. Only admins and supervisors may
// do this; the trail records who held the lock before it was broken.
func (m *Manager) ForceRelease(tx gitrepo.Tx, filename string, actor identity.Identity) error {
	if err := store.ValidateName(filename); err != nil {
		return err
	}
	if !actor.CanForceRelease() {
		return errors.NewPermissionError("role may not force-release locks", errors.ErrPermissionDenied).
			WithActor(actor.Username, string(actor.Role)).
			WithAction(string(audit.ActionForcedRelease))
	}

	lock, env, err := m.activeLock(tx, filename)
	if err != nil {
		return err
	}

	expected := env.Version
	if _, err := store.SoftDelete(tx, store.LockKey(filename), &expected, actor.Username); err != nil {
		return err
	}
	entry := audit.New(actor.Username, audit.ActionForcedRelease, filename).
		WithDetail("previous_holder", lock.Holder)
	if err := audit.Stage(tx, entry); err != nil {
		return err
	}

	m.log.WithActor(actor.Username).Warn("lock force-released",
		"filename", filename, "previous_holder", lock.Holder)
	return nil
}

// Get returns the active lock on filename, if any.
func (m *Manager) Get(tx gitrepo.ReadTx, filename string) (Lock, bool, error) {
	var lock Lock
	env, found, err := store.Get(tx, store.LockKey(filename), &lock)
	if err != nil {
		return Lock{}, false, err
	}
	if !found || !env.Active() {
		return Lock{}, false, nil
	}
	return lock, true, nil
}

// Active returns every live lock, ordered by filename.
func (m *Manager) Active(tx gitrepo.ReadTx) ([]Lock, error) {
	names, err := tx.List(store.LocksDir)
	if err != nil {
		return nil, err
	}

	var locks []Lock
	for _, name := range names {
		lock, held, err := m.Get(tx, store.TrimRecordName(name))
		if err != nil {
			return nil, err
		}
		if held {
			locks = append(locks, lock)
		}
	}
	return locks, nil
}

// activeLock loads the live lock on filename or fails with ErrNotLocked.
func (m *Manager) activeLock(tx gitrepo.ReadTx, filename string) (Lock, *store.Envelope, error) {
	var lock Lock
	env, found, err := store.Get(tx, store.LockKey(filename), &lock)
	if err != nil {
		return Lock{}, nil, err
	}
	if !found || !env.Active() {
		return Lock{}, nil, errors.NewLockError("document is not checked out", errors.ErrNotLocked).
			WithFilename(filename)
	}
	return lock, env, nil
}
