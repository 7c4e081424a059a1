package lockmgr

import (
	"context"
	"sync"
	"testing"

	"github.com/partvault/partvault/internal/audit"
	"github.com/partvault/partvault/internal/errors"
	"github.com/partvault/partvault/internal/gitrepo"
	"github.com/partvault/partvault/internal/identity"
	"github.com/partvault/partvault/internal/testutil"
)

func checkout(t *testing.T, repo *testutil.MemoryRepo, m *Manager, filename, actor string) error {
	t.Helper()
	_, err := repo.Update(context.Background(), "checkout", func(tx gitrepo.Tx) error {
		_, err := m.Checkout(tx, filename, actor, "")
		return err
	})
	return err
}

func checkin(t *testing.T, repo *testutil.MemoryRepo, m *Manager, filename, actor string) error {
	t.Helper()
	_, err := repo.Update(context.Background(), "checkin", func(tx gitrepo.Tx) error {
		return m.Checkin(tx, filename, actor)
	})
	return err
}

func TestCheckoutAndCheckin(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	m := New(nil)

	if err := checkout(t, repo, m, "bracket.dwg", "alice"); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	err := repo.View(context.Background(), func(tx gitrepo.ReadTx) error {
		lock, held, err := m.Get(tx, "bracket.dwg")
		if err != nil {
			return err
		}
		if !held {
			t.Fatal("lock not held after checkout")
		}
		if lock.Holder != "alice" {
			t.Errorf("holder = %q, want alice", lock.Holder)
		}
		if lock.AcquiredAt.IsZero() {
			t.Error("acquired_at not set")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	if err := checkin(t, repo, m, "bracket.dwg", "alice"); err != nil {
		t.Fatalf("checkin: %v", err)
	}

	err = repo.View(context.Background(), func(tx gitrepo.ReadTx) error {
		_, held, err := m.Get(tx, "bracket.dwg")
		if err != nil {
			return err
		}
		if held {
			t.Error("lock still held after checkin")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestCheckoutHeldByOther(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	m := New(nil)

	if err := checkout(t, repo, m, "bracket.dwg", "alice"); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	err := checkout(t, repo, m, "bracket.dwg", "bob")
	if !errors.Is(err, errors.ErrAlreadyLocked) {
		t.Fatalf("err = %v, want ErrAlreadyLocked", err)
	}
	var lockErr *errors.LockError
	if !errors.As(err, &lockErr) || lockErr.Holder != "alice" {
		t.Errorf("err = %v, want LockError naming alice as holder", err)
	}
}

func TestCheckoutIdempotentForHolder(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	m := New(nil)

	if err := checkout(t, repo, m, "bracket.dwg", "alice"); err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	if err := checkout(t, repo, m, "bracket.dwg", "alice"); err != nil {
		t.Fatalf("repeat checkout: %v", err)
	}

	entries := auditEntries(t, repo, audit.Filter{Action: audit.ActionCheckout})
	if len(entries) != 1 {
		t.Errorf("checkout audit entries = %d, want 1 (repeat is a no-op)", len(entries))
	}
}

func TestCheckinNotLocked(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	m := New(nil)

	err := checkin(t, repo, m, "bracket.dwg", "alice")
	if !errors.Is(err, errors.ErrNotLocked) {
		t.Errorf("err = %v, want ErrNotLocked", err)
	}
}

func TestCheckinWrongHolder(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	m := New(nil)

	if err := checkout(t, repo, m, "bracket.dwg", "alice"); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	err := checkin(t, repo, m, "bracket.dwg", "bob")
	if !errors.Is(err, errors.ErrNotHolder) {
		t.Fatalf("err = %v, want ErrNotHolder", err)
	}

	// The failed checkin must not have released alice's lock.
	err = repo.View(context.Background(), func(tx gitrepo.ReadTx) error {
		lock, held, err := m.Get(tx, "bracket.dwg")
		if err != nil {
			return err
		}
		if !held || lock.Holder != "alice" {
			t.Errorf("lock = %+v held=%v, want alice still holding", lock, held)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestReacquireAfterCheckin(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	m := New(nil)

	if err := checkout(t, repo, m, "bracket.dwg", "alice"); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := checkin(t, repo, m, "bracket.dwg", "alice"); err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if err := checkout(t, repo, m, "bracket.dwg", "bob"); err != nil {
		t.Fatalf("checkout after release: %v", err)
	}

	err := repo.View(context.Background(), func(tx gitrepo.ReadTx) error {
		lock, held, err := m.Get(tx, "bracket.dwg")
		if err != nil {
			return err
		}
		if !held || lock.Holder != "bob" {
			t.Errorf("lock = %+v held=%v, want bob holding", lock, held)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestForceRelease(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	m := New(nil)

	if err := checkout(t, repo, m, "bracket.dwg", "alice"); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	admin := identity.Identity{Username: "carol", Role: identity.RoleAdmin}
	_, err := repo.Update(context.Background(), "force release", func(tx gitrepo.Tx) error {
		return m.ForceRelease(tx, "bracket.dwg", admin)
	})
	if err != nil {
		t.Fatalf("ForceRelease: %v", err)
	}

	err = repo.View(context.Background(), func(tx gitrepo.ReadTx) error {
		_, held, err := m.Get(tx, "bracket.dwg")
		if err != nil {
			return err
		}
		if held {
			t.Error("lock still held after force release")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	entries := auditEntries(t, repo, audit.Filter{Action: audit.ActionForcedRelease})
	if len(entries) != 1 {
		t.Fatalf("forced-release entries = %d, want 1", len(entries))
	}
	if entries[0].Details["previous_holder"] != "alice" {
		t.Errorf("details = %v, want previous_holder alice", entries[0].Details)
	}
}

func TestForceReleaseRequiresRole(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	m := New(nil)

	if err := checkout(t, repo, m, "bracket.dwg", "alice"); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	user := identity.Identity{Username: "bob", Role: identity.RoleUser}
	_, err := repo.Update(context.Background(), "force release", func(tx gitrepo.Tx) error {
		return m.ForceRelease(tx, "bracket.dwg", user)
	})
	if !errors.Is(err, errors.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}

	err = repo.View(context.Background(), func(tx gitrepo.ReadTx) error {
		lock, held, err := m.Get(tx, "bracket.dwg")
		if err != nil {
			return err
		}
		if !held || lock.Holder != "alice" {
			t.Errorf("lock = %+v held=%v, want alice still holding", lock, held)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestActiveListsLiveLocksOnly(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	m := New(nil)

	for _, f := range []string{"a.dwg", "b.dwg", "c.dwg"} {
		if err := checkout(t, repo, m, f, "alice"); err != nil {
			t.Fatalf("checkout %s: %v", f, err)
		}
	}
	if err := checkin(t, repo, m, "b.dwg", "alice"); err != nil {
		t.Fatalf("checkin: %v", err)
	}

	err := repo.View(context.Background(), func(tx gitrepo.ReadTx) error {
		locks, err := m.Active(tx)
		if err != nil {
			return err
		}
		if len(locks) != 2 {
			t.Fatalf("active locks = %d, want 2", len(locks))
		}
		if locks[0].Filename != "a.dwg" || locks[1].Filename != "c.dwg" {
			t.Errorf("locks = %+v, want a.dwg and c.dwg in order", locks)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestConcurrentCheckoutOneWinner(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	m := New(nil)

	const contenders = 8
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.Update(context.Background(), "checkout", func(tx gitrepo.Tx) error {
				_, err := m.Checkout(tx, "bracket.dwg", username(i), "")
				return err
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, errors.ErrAlreadyLocked):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestCheckoutRejectsBadName(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	m := New(nil)

	for _, name := range []string{"", "../escape", "dir/file.dwg"} {
		if err := checkout(t, repo, m, name, "alice"); !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("checkout(%q) err = %v, want ErrInvalidInput", name, err)
		}
	}
}

func auditEntries(t *testing.T, repo *testutil.MemoryRepo, f audit.Filter) []audit.Entry {
	t.Helper()
	var out []audit.Entry
	err := repo.View(context.Background(), func(tx gitrepo.ReadTx) error {
		var err error
		out, err = audit.Read(tx, f)
		return err
	})
	if err != nil {
		t.Fatalf("reading audit trail: %v", err)
	}
	return out
}

func username(i int) string {
	return string(rune('a'+i)) + "-user"
}
