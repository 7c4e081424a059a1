// Package store provides versioned record storage inside the repository
// working copy. Records are JSON documents wrapped in an envelope carrying
// an optimistic-concurrency version, and every write routes through the
// repository accessor's publish step.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/partvault/partvault/internal/errors"
	"github.com/partvault/partvault/internal/gitrepo"
	"github.com/partvault/partvault/internal/logging"
)

// Root is the directory inside the repository that holds all structured
// records.
const Root = ".partvault"

// Record key helpers. Keys are restricted to a single path segment under
// their record directory; filenames and part numbers must not contain
// path separators.
func LockKey(filename string) string     { return Root + "/locks/" + filename + ".json" }
func MetadataKey(filename string) string { return Root + "/metadata/" + filename + ".json" }
func PartKey(partNumber string) string   { return Root + "/parts/" + partNumber + ".json" }
func SubscriptionKey(partNumber string) string {
	return Root + "/subscriptions/" + partNumber + ".json"
}

// AuditLogKey is the append-only audit trail.
const AuditLogKey = Root + "/audit/log.jsonl"

// Directories used for listing records of a type.
const (
	LocksDir         = Root + "/locks"
	MetadataDir      = Root + "/metadata"
	PartsDir         = Root + "/parts"
	SubscriptionsDir = Root + "/subscriptions"
)

// ValidateName rejects record names that would escape their directory or
// produce ambiguous keys.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", errors.ErrInvalidInput)
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("%w: name %q must not contain path separators", errors.ErrInvalidInput, name)
	}
	return nil
}

// TrimRecordName recovers the record name from a listed file name
// ("bracket.dwg.json" -> "bracket.dwg").
func TrimRecordName(fileName string) string {
	return strings.TrimSuffix(fileName, ".json")
}

// Envelope wraps every stored record with optimistic-concurrency metadata.
// Version starts at 1 on creation and increments on every successful write.
// Records are never physically deleted: DeletedAt marks soft deletion while
// preserving the document for concurrent readers and the audit trail.
type Envelope struct {
	Version   int             `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	UpdatedBy string          `json:"updated_by"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Active reports whether the record exists and is not soft-deleted.
func (e *Envelope) Active() bool {
	return e != nil && e.DeletedAt == nil
}

// Get reads and unmarshals the record at key from the transaction snapshot.
// An absent record is reported via the boolean, not an error. Soft-deleted
// records are returned with their envelope so callers can decide.
func Get(tx gitrepo.ReadTx, key string, out any) (*Envelope, bool, error) {
	raw, found, err := tx.ReadFile(key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("decode record %s: %w", key, err)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, false, fmt.Errorf("decode record data %s: %w", key, err)
		}
	}
	return &env, true, nil
}

// Put stages a versioned write of value at key.
//
// If expected is non-nil the write is a compare-and-swap: the stored version
// must equal *expected or the write fails with ErrVersionMismatch carrying
// the current version. An expected value of 0 means the record must not yet
// exist. A nil expected skips the check (blind write); inside the publish
// critical section a blind write is still serialized against all other
// writers.
//
// Returns the version the record will have once the transaction publishes.
func Put(tx gitrepo.Tx, key string, value any, expected *int, actor string) (int, error) {
	env, found, err := Get(tx, key, nil)
	if err != nil {
		return 0, err
	}

	current := 0
	if found {
		current = env.Version
	}

	if expected != nil && *expected != current {
		return 0, errors.NewConflictError("stored version does not match expected", errors.ErrVersionMismatch).
			WithKey(key).
			WithVersions(*expected, current)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("encode record %s: %w", key, err)
	}

	next := Envelope{
		Version:   current + 1,
		UpdatedAt: time.Now().UTC(),
		UpdatedBy: actor,
		Data:      data,
	}
	return next.Version, stageEnvelope(tx, key, next)
}

// SoftDelete stages a soft deletion of the record at key, preserving its
// data. The same compare-and-swap rules as Put apply.
func SoftDelete(tx gitrepo.Tx, key string, expected *int, actor string) (int, error) {
	env, found, err := Get(tx, key, nil)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errors.NewConflictError("cannot delete absent record", errors.ErrVersionMismatch).
			WithKey(key)
	}

	if expected != nil && *expected != env.Version {
		return 0, errors.NewConflictError("stored version does not match expected", errors.ErrVersionMismatch).
			WithKey(key).
			WithVersions(*expected, env.Version)
	}

	now := time.Now().UTC()
	next := Envelope{
		Version:   env.Version + 1,
		UpdatedAt: now,
		UpdatedBy: actor,
		DeletedAt: &now,
		Data:      env.Data,
	}
	return next.Version, stageEnvelope(tx, key, next)
}

// Append stages an append of one raw line to an append-only key.
func Append(tx gitrepo.Tx, key string, line []byte) {
	tx.Append(key, line)
}

// stageEnvelope marshals and stages an envelope write.
func stageEnvelope(tx gitrepo.Tx, key string, env Envelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", key, err)
	}
	tx.Write(key, append(data, '\n'))
	return nil
}

// -----------------------------------------------------------------------------
// Store - retrying transaction runner
// -----------------------------------------------------------------------------

// DefaultMaxAttempts bounds how many times a logical write is retried after
// transient failures (publish rejection, unreachable remote).
const DefaultMaxAttempts = 3

// DefaultBackoff is the initial retry backoff; it doubles per attempt.
const DefaultBackoff = 100 * time.Millisecond

// Store runs record transactions against the repository accessor with
// bounded retry for transient failures.
type Store struct {
	acc         gitrepo.Accessor
	log         *logging.Logger
	maxAttempts int
	backoff     time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts sets the retry bound for transient failures.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the initial retry backoff.
func WithBackoff(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.backoff = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// New creates a Store over the given accessor.
func New(acc gitrepo.Accessor, opts ...Option) *Store {
	s := &Store{
		acc:         acc,
		log:         logging.NopLogger(),
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Accessor exposes the underlying accessor for read-side helpers.
func (s *Store) Accessor() gitrepo.Accessor {
	return s.acc
}

// View runs a read-only transaction against the synchronized snapshot.
func (s *Store) View(ctx context.Context, fn func(gitrepo.ReadTx) error) error {
	return s.acc.View(ctx, fn)
}

// RunUpdate runs fn as a publishing transaction, retrying the whole
// transaction (re-synchronize, re-read, re-check, re-stage) after transient
// failures up to the attempt bound. Business errors (conflicts, lock and
// permission violations) surface immediately without retry.
func (s *Store) RunUpdate(ctx context.Context, message string, fn func(gitrepo.Tx) error) (gitrepo.CommitID, error) {
	var lastErr error
	backoff := s.backoff

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		commit, err := s.acc.Update(ctx, message, fn)
		if err == nil {
			return commit, nil
		}
		if !errors.IsRetryable(err) {
			return "", err
		}

		lastErr = err
		s.log.Warn("transient publish failure, retrying",
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"error", err)

		if attempt == s.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return "", errors.NewConflictError(
		fmt.Sprintf("gave up after %d attempts", s.maxAttempts),
		errors.Join(errors.ErrRetriesExhausted, lastErr))
}
