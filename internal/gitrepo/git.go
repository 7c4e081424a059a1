// Package gitrepo provides the repository accessor: synchronized, serialized
// access to a git-backed working copy.
//
// This file provides the concrete CLI implementation over actual git
// commands. The CommandExecutor abstraction allows tests to mock git
// without executing it.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/partvault/partvault/internal/errors"
	"github.com/partvault/partvault/internal/logging"
)

// -----------------------------------------------------------------------------
// Command Executor
// -----------------------------------------------------------------------------

// CommandExecutor abstracts command execution for testability.
// This allows tests to mock git commands without executing them.
type CommandExecutor interface {
	// Run executes a command and returns combined output.
	Run(dir string, name string, args ...string) ([]byte, error)
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// NewCLICommandExecutor creates a new CLI command executor.
func NewCLICommandExecutor() *CLICommandExecutor {
	return &CLICommandExecutor{}
}

// Run executes a command and returns combined output.
func (e *CLICommandExecutor) Run(dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// -----------------------------------------------------------------------------
// Repo - CLI implementation of the Accessor interface
// -----------------------------------------------------------------------------

// DefaultPublishTimeout bounds how long a caller waits for the publish
// critical section before failing with ErrPublishTimeout.
const DefaultPublishTimeout = 30 * time.Second

// Repo implements Accessor against a local clone of a remote git repository.
// All publish operations serialize through a single process-wide critical
// section: one publish in flight at a time, so the working copy is never
// mutated concurrently.
type Repo struct {
	root     string
	remote   string
	branch   string
	timeout  time.Duration
	executor CommandExecutor
	log      *logging.Logger

	// sem is the publish critical section: buffered to 1, holding the
	// token means owning the working copy.
	sem chan struct{}
}

// Option configures a Repo.
type Option func(*Repo)

// WithExecutor sets a custom command executor. This is primarily useful
// for testing.
func WithExecutor(executor CommandExecutor) Option {
	return func(r *Repo) {
		r.executor = executor
	}
}

// WithTimeout sets the critical section acquisition timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Repo) {
		r.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(r *Repo) {
		r.log = log
	}
}

// New creates a Repo for the working copy at root, tracking the given
// remote and branch.
func New(root, remote, branch string, opts ...Option) *Repo {
	r := &Repo{
		root:     root,
		remote:   remote,
		branch:   branch,
		timeout:  DefaultPublishTimeout,
		executor: NewCLICommandExecutor(),
		log:      logging.NopLogger(),
		sem:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the working copy root directory.
func (r *Repo) Root() string {
	return r.root
}

// acquire claims the publish critical section, failing with
// ErrPublishTimeout rather than blocking indefinitely.
func (r *Repo) acquire(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.NewPublishError("canceled waiting for critical section", ctx.Err())
	case <-time.After(r.timeout):
		return errors.NewPublishError(
			fmt.Sprintf("could not acquire critical section within %s", r.timeout),
			errors.ErrPublishTimeout)
	}
}

// release returns the critical section token.
func (r *Repo) release() {
	<-r.sem
}

// View synchronizes and runs fn with read access to the working copy.
func (r *Repo) View(ctx context.Context, fn func(ReadTx) error) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()

	snap, err := r.synchronize()
	if err != nil {
		return err
	}

	return fn(&fsTx{root: r.root, snap: snap})
}

// Update synchronizes, runs fn, and publishes everything fn staged as one
// commit. If fn returns an error nothing is applied.
func (r *Repo) Update(ctx context.Context, message string, fn func(Tx) error) (CommitID, error) {
	if err := r.acquire(ctx); err != nil {
		return "", err
	}
	defer r.release()

	snap, err := r.synchronize()
	if err != nil {
		return "", err
	}

	tx := &fsTx{root: r.root, snap: snap}
	if err := fn(tx); err != nil {
		return "", err
	}

	if len(tx.staged) == 0 {
		return snap.Commit, nil
	}

	if err := r.applyStaged(tx); err != nil {
		r.rollback()
		return "", err
	}

	return r.publish(message)
}

// synchronize fetches the latest remote state into the working copy.
// The caller must hold the critical section.
func (r *Repo) synchronize() (Snapshot, error) {
	out, err := r.executor.Run(r.root, "git", "fetch", r.remote, r.branch)
	if err != nil {
		return Snapshot{}, errors.NewSyncError("failed to fetch remote state", errors.ErrRemoteUnreachable).
			WithRemote(r.remote).
			WithGitOutput(string(out))
	}

	out, err = r.executor.Run(r.root, "git", "merge", "--ff-only", r.remote+"/"+r.branch)
	if err != nil {
		if isDivergedOutput(string(out)) {
			return Snapshot{}, errors.NewSyncError("cannot fast-forward to remote state", errors.ErrHistoryDiverged).
				WithRemote(r.remote).
				WithGitOutput(string(out)).
				WithRetryable(false)
		}
		return Snapshot{}, errors.NewSyncError("failed to merge remote state", err).
			WithRemote(r.remote).
			WithGitOutput(string(out))
	}

	head, err := r.executor.Run(r.root, "git", "rev-parse", "HEAD")
	if err != nil {
		return Snapshot{}, errors.NewSyncError("failed to resolve HEAD", err).
			WithGitOutput(string(head))
	}

	return Snapshot{
		Commit:   CommitID(strings.TrimSpace(string(head))),
		SyncedAt: time.Now(),
	}, nil
}

// applyStaged writes the transaction's staged changes into the working copy.
// Full-file writes go through a temp file and rename.
func (r *Repo) applyStaged(tx *fsTx) error {
	for _, op := range tx.staged {
		clean, err := safeRel(op.rel)
		if err != nil {
			return err
		}
		target := filepath.Join(r.root, clean)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return errors.NewPublishError("failed to create record directory", err).WithOperation("stage")
		}

		if op.append {
			f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return errors.NewPublishError("failed to open file for append", err).WithOperation("stage")
			}
			_, werr := f.Write(op.data)
			cerr := f.Close()
			if werr != nil {
				return errors.NewPublishError("failed to append record", werr).WithOperation("stage")
			}
			if cerr != nil {
				return errors.NewPublishError("failed to close record file", cerr).WithOperation("stage")
			}
			continue
		}

		tmp := target + ".tmp"
		if err := os.WriteFile(tmp, op.data, 0644); err != nil {
			return errors.NewPublishError("failed to write temp file", err).WithOperation("stage")
		}
		if err := os.Rename(tmp, target); err != nil {
			_ = os.Remove(tmp) // best-effort cleanup
			return errors.NewPublishError("failed to rename temp file", err).WithOperation("stage")
		}
	}
	return nil
}

// publish stages, commits, and pushes the working copy changes as one unit.
// The caller must hold the critical section.
func (r *Repo) publish(message string) (CommitID, error) {
	out, err := r.executor.Run(r.root, "git", "add", "-A")
	if err != nil {
		r.rollback()
		return "", errors.NewPublishError("failed to stage changes", err).
			WithOperation("add").
			WithGitOutput(string(out))
	}

	out, err = r.executor.Run(r.root, "git", "commit", "-m", message)
	if err != nil {
		if strings.Contains(string(out), "nothing to commit") {
			return r.head()
		}
		r.rollback()
		return "", errors.NewPublishError("failed to commit changes", err).
			WithOperation("commit").
			WithGitOutput(string(out))
	}

	out, err = r.executor.Run(r.root, "git", "push", r.remote, "HEAD:"+r.branch)
	if err != nil {
		r.rollback()
		if isRejectedOutput(string(out)) {
			return "", errors.NewPublishError("remote advanced past synchronized state", errors.ErrPublishRejected).
				WithOperation("push").
				WithGitOutput(string(out))
		}
		return "", errors.NewPublishError("failed to push changes", errors.ErrRemoteUnreachable).
			WithOperation("push").
			WithGitOutput(string(out))
	}

	return r.head()
}

// head resolves the current HEAD commit.
func (r *Repo) head() (CommitID, error) {
	out, err := r.executor.Run(r.root, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", errors.NewPublishError("failed to resolve HEAD", err).WithGitOutput(string(out))
	}
	return CommitID(strings.TrimSpace(string(out))), nil
}

// rollback restores the working copy to the remote tracking state so a
// retry starts clean. Best effort: failures are logged, not surfaced, since
// the triggering error is the one the caller needs.
func (r *Repo) rollback() {
	if out, err := r.executor.Run(r.root, "git", "reset", "--hard", r.remote+"/"+r.branch); err != nil {
		r.log.Warn("rollback reset failed", "error", err, "output", strings.TrimSpace(string(out)))
	}
	if out, err := r.executor.Run(r.root, "git", "clean", "-fd"); err != nil {
		r.log.Warn("rollback clean failed", "error", err, "output", strings.TrimSpace(string(out)))
	}
}

// isRejectedOutput reports whether git push output indicates the remote has
// advanced past our last known state.
func isRejectedOutput(out string) bool {
	for _, marker := range []string{
		"[rejected]",
		"non-fast-forward",
		"fetch first",
		"failed to push some refs",
	} {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}

// isDivergedOutput reports whether git merge output indicates histories that
// cannot be reconciled automatically.
func isDivergedOutput(out string) bool {
	for _, marker := range []string{
		"Not possible to fast-forward",
		"not possible to fast-forward",
		"divergent",
		"unrelated histories",
	} {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Filesystem transaction
// -----------------------------------------------------------------------------

// stagedOp is one staged mutation in declaration order.
type stagedOp struct {
	rel    string
	data   []byte
	append bool
}

// fsTx implements Tx over the synchronized working copy. Reads observe the
// snapshot on disk; staged mutations are buffered until the accessor applies
// them.
type fsTx struct {
	root   string
	snap   Snapshot
	staged []stagedOp
}

// ReadFile returns the contents of a file in the snapshot.
func (t *fsTx) ReadFile(rel string) ([]byte, bool, error) {
	clean, err := safeRel(rel)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(filepath.Join(t.root, clean))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", clean, err)
	}
	return data, true, nil
}

// List returns the names of regular files directly inside relDir.
// The result is sorted for deterministic iteration.
func (t *fsTx) List(relDir string) ([]string, error) {
	clean, err := safeRel(relDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(t.root, clean))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", clean, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Snapshot returns the synchronized state this transaction observes.
func (t *fsTx) Snapshot() Snapshot {
	return t.snap
}

// Write stages a full-file write.
func (t *fsTx) Write(rel string, data []byte) {
	t.staged = append(t.staged, stagedOp{rel: rel, data: data})
}

// Append stages an append, creating the file if absent.
func (t *fsTx) Append(rel string, data []byte) {
	t.staged = append(t.staged, stagedOp{rel: rel, data: data, append: true})
}

// safeRel cleans a relative path and rejects anything escaping the root.
func safeRel(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: path %q escapes repository root", errors.ErrInvalidInput, rel)
	}
	return clean, nil
}
