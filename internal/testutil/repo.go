// Package testutil provides test doubles shared across packages.
package testutil

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/partvault/partvault/internal/gitrepo"
)

// MemoryRepo is an in-memory gitrepo.Accessor for exercising record storage,
// lock, and revision logic without a git binary. It honors the accessor
// contract: transactions serialize through one critical section, a failed
// transaction applies nothing, and every published changeset is recorded.
type MemoryRepo struct {
	mu      sync.Mutex
	files   map[string][]byte
	commits int

	// Messages records the commit message of every published changeset,
	// in order.
	Messages []string

	// SyncErrs is a queue of errors returned by synchronization, one per
	// View/Update call, before any transaction work happens.
	SyncErrs []error

	// PublishErrs is a queue of errors returned at publish time, one per
	// Update call that staged changes. The staged changes are discarded,
	// matching the accessor's rollback behavior.
	PublishErrs []error
}

// NewMemoryRepo creates an empty in-memory repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{files: make(map[string][]byte)}
}

// Root implements gitrepo.Accessor.
func (m *MemoryRepo) Root() string { return "mem://" }

// FileCount returns how many files exist.
func (m *MemoryRepo) FileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// Commits returns how many changesets have been published.
func (m *MemoryRepo) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Seed writes a file directly, without publishing a changeset.
func (m *MemoryRepo) Seed(rel string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path.Clean(rel)] = append([]byte(nil), data...)
}

// View implements gitrepo.Accessor.
func (m *MemoryRepo) View(ctx context.Context, fn func(gitrepo.ReadTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popSyncErr(); err != nil {
		return err
	}
	return fn(&memTx{repo: m})
}

// Update implements gitrepo.Accessor.
func (m *MemoryRepo) Update(ctx context.Context, message string, fn func(gitrepo.Tx) error) (gitrepo.CommitID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popSyncErr(); err != nil {
		return "", err
	}

	tx := &memTx{repo: m}
	if err := fn(tx); err != nil {
		return "", err
	}

	if len(tx.staged) == 0 {
		return m.headLocked(), nil
	}

	if len(m.PublishErrs) > 0 {
		err := m.PublishErrs[0]
		m.PublishErrs = m.PublishErrs[1:]
		if err != nil {
			return "", err
		}
	}

	for _, op := range tx.staged {
		key := path.Clean(op.rel)
		if op.append {
			m.files[key] = append(m.files[key], op.data...)
		} else {
			m.files[key] = append([]byte(nil), op.data...)
		}
	}

	m.commits++
	m.Messages = append(m.Messages, message)
	return m.headLocked(), nil
}

// popSyncErr pops the next queued synchronization error, if any.
// The caller must hold the mutex.
func (m *MemoryRepo) popSyncErr() error {
	if len(m.SyncErrs) == 0 {
		return nil
	}
	err := m.SyncErrs[0]
	m.SyncErrs = m.SyncErrs[1:]
	return err
}

// headLocked returns a synthetic commit ID. The caller must hold the mutex.
func (m *MemoryRepo) headLocked() gitrepo.CommitID {
	return gitrepo.CommitID(fmt.Sprintf("commit-%d", m.commits))
}

// memOp is one staged mutation.
type memOp struct {
	rel    string
	data   []byte
	append bool
}

// memTx implements gitrepo.Tx over the in-memory file map. The caller
// (MemoryRepo) holds the mutex for the duration of the transaction.
type memTx struct {
	repo   *MemoryRepo
	staged []memOp
}

func (t *memTx) ReadFile(rel string) ([]byte, bool, error) {
	data, ok := t.repo.files[path.Clean(rel)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (t *memTx) List(relDir string) ([]string, error) {
	prefix := path.Clean(relDir) + "/"

	var names []string
	for key := range t.repo.files {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (t *memTx) Snapshot() gitrepo.Snapshot {
	return gitrepo.Snapshot{Commit: t.repo.headLocked(), SyncedAt: time.Now()}
}

func (t *memTx) Write(rel string, data []byte) {
	t.staged = append(t.staged, memOp{rel: rel, data: data})
}

func (t *memTx) Append(rel string, data []byte) {
	t.staged = append(t.staged, memOp{rel: rel, data: data, append: true})
}
