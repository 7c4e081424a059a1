package gitrepo

import (
	"context"
	"time"
)

// CommitID identifies a published commit in the backing repository.
type CommitID string

// Snapshot describes the synchronized state a transaction observes.
type Snapshot struct {
	// Commit is the repository HEAD after synchronization.
	Commit CommitID
	// SyncedAt is when the working copy was synchronized.
	SyncedAt time.Time
}

// ReadTx provides read access to the synchronized working copy.
// Paths are always relative to the repository root; implementations must
// reject paths that escape it.
type ReadTx interface {
	// ReadFile returns the contents of a file in the snapshot.
	// The boolean reports whether the file exists; absence is not an error.
	ReadFile(rel string) ([]byte, bool, error)

	// List returns the names of regular files directly inside the given
	// directory. A missing directory yields an empty list, not an error.
	List(relDir string) ([]string, error)

	// Snapshot returns the synchronized state this transaction observes.
	Snapshot() Snapshot
}

// Tx extends ReadTx with staged mutations. Staged writes and appends are not
// visible to ReadFile/List; they are applied, committed, and pushed as one
// atomic changeset when the transaction function returns nil. If the
// transaction function returns an error, nothing is applied.
type Tx interface {
	ReadTx

	// Write stages a full-file write.
	Write(rel string, data []byte)

	// Append stages an append to a file, creating it if absent.
	Append(rel string, data []byte)
}

// Accessor is the only component that touches the repository working copy.
// All repository state flows through its two entry points.
type Accessor interface {
	// View synchronizes the working copy with the remote and runs fn with
	// read access to the result. Reads may observe slightly stale data
	// relative to remote writes that land after synchronization.
	View(ctx context.Context, fn func(ReadTx) error) error

	// Update synchronizes, runs fn inside the process-wide publish critical
	// section, and publishes everything fn staged as one commit. Either the
	// entire changeset commits and pushes, or nothing does.
	//
	// Failure modes: errors.ErrPublishTimeout if the critical section cannot
	// be acquired in time, errors.ErrRemoteUnreachable / ErrHistoryDiverged
	// from synchronization, and errors.ErrPublishRejected if the remote
	// advanced past the synchronized state (callers retry from the top).
	Update(ctx context.Context, message string, fn func(Tx) error) (CommitID, error)

	// Root returns the working copy root directory.
	Root() string
}
