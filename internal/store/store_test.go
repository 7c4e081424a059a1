package store

import (
	"context"
	"testing"
	"time"

	"github.com/partvault/partvault/internal/errors"
	"github.com/partvault/partvault/internal/gitrepo"
	"github.com/partvault/partvault/internal/testutil"
)

type testRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func intptr(v int) *int { return &v }

func TestGetAbsentRecord(t *testing.T) {
	repo := testutil.NewMemoryRepo()

	err := repo.View(context.Background(), func(tx gitrepo.ReadTx) error {
		var rec testRecord
		env, found, err := Get(tx, MetadataKey("missing.dwg"), &rec)
		if err != nil {
			t.Errorf("Get: %v", err)
		}
		if found {
			t.Error("absent record reported as found")
		}
		if env != nil {
			t.Error("absent record should have nil envelope")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestPutCreateAndGet(t *testing.T) {
	repo := testutil.NewMemoryRepo()

	_, err := repo.Update(context.Background(), "create", func(tx gitrepo.Tx) error {
		version, err := Put(tx, MetadataKey("bracket.dwg"), testRecord{Name: "bracket", Count: 1}, intptr(0), "alice")
		if err != nil {
			return err
		}
		if version != 1 {
			t.Errorf("created version = %d, want 1", version)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = repo.View(context.Background(), func(tx gitrepo.ReadTx) error {
		var rec testRecord
		env, found, err := Get(tx, MetadataKey("bracket.dwg"), &rec)
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("record not found after create")
		}
		if env.Version != 1 {
			t.Errorf("Version = %d, want 1", env.Version)
		}
		if env.UpdatedBy != "alice" {
			t.Errorf("UpdatedBy = %q, want alice", env.UpdatedBy)
		}
		if !env.Active() {
			t.Error("new record should be active")
		}
		if rec.Name != "bracket" || rec.Count != 1 {
			t.Errorf("data = %+v", rec)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestPutVersionMismatch(t *testing.T) {
	repo := testutil.NewMemoryRepo()

	mustPut(t, repo, MetadataKey("a.dwg"), testRecord{Count: 1}, intptr(0), "alice")
	mustPut(t, repo, MetadataKey("a.dwg"), testRecord{Count: 2}, intptr(1), "alice")

	// Stale expected version must fail with the current version attached.
	_, err := repo.Update(context.Background(), "stale", func(tx gitrepo.Tx) error {
		_, err := Put(tx, MetadataKey("a.dwg"), testRecord{Count: 3}, intptr(1), "bob")
		return err
	})
	if !errors.Is(err, errors.ErrVersionMismatch) {
		t.Fatalf("err = %v, want ErrVersionMismatch", err)
	}

	var ce *errors.ConflictError
	if !errors.As(err, &ce) {
		t.Fatal("expected *ConflictError")
	}
	if ce.ExpectedVersion != 1 || ce.CurrentVersion != 2 {
		t.Errorf("versions = expected %d found %d, want expected 1 found 2", ce.ExpectedVersion, ce.CurrentVersion)
	}

	// The failed transaction must not have changed anything.
	err = repo.View(context.Background(), func(tx gitrepo.ReadTx) error {
		var rec testRecord
		env, _, err := Get(tx, MetadataKey("a.dwg"), &rec)
		if err != nil {
			return err
		}
		if env.Version != 2 || rec.Count != 2 {
			t.Errorf("record = v%d %+v, want v2 count 2", env.Version, rec)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestPutCreateRequiresAbsence(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	mustPut(t, repo, LockKey("a.dwg"), testRecord{}, intptr(0), "alice")

	_, err := repo.Update(context.Background(), "recreate", func(tx gitrepo.Tx) error {
		_, err := Put(tx, LockKey("a.dwg"), testRecord{}, intptr(0), "bob")
		return err
	})
	if !errors.Is(err, errors.ErrVersionMismatch) {
		t.Errorf("err = %v, want ErrVersionMismatch for expected=0 on existing record", err)
	}
}

func TestPutBlindWrite(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	mustPut(t, repo, PartKey("1001"), testRecord{Count: 1}, intptr(0), "alice")

	_, err := repo.Update(context.Background(), "blind", func(tx gitrepo.Tx) error {
		version, err := Put(tx, PartKey("1001"), testRecord{Count: 9}, nil, "bob")
		if err != nil {
			return err
		}
		if version != 2 {
			t.Errorf("version = %d, want 2", version)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	mustPut(t, repo, LockKey("a.dwg"), testRecord{Name: "lock"}, intptr(0), "alice")

	_, err := repo.Update(context.Background(), "delete", func(tx gitrepo.Tx) error {
		version, err := SoftDelete(tx, LockKey("a.dwg"), intptr(1), "alice")
		if err != nil {
			return err
		}
		if version != 2 {
			t.Errorf("version = %d, want 2", version)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = repo.View(context.Background(), func(tx gitrepo.ReadTx) error {
		var rec testRecord
		env, found, err := Get(tx, LockKey("a.dwg"), &rec)
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("soft-deleted record must still exist")
		}
		if env.Active() {
			t.Error("soft-deleted record should not be active")
		}
		if env.DeletedAt == nil {
			t.Error("DeletedAt should be set")
		}
		if rec.Name != "lock" {
			t.Error("soft delete must preserve record data")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestSoftDeleteAbsent(t *testing.T) {
	repo := testutil.NewMemoryRepo()

	_, err := repo.Update(context.Background(), "delete", func(tx gitrepo.Tx) error {
		_, err := SoftDelete(tx, LockKey("none.dwg"), nil, "alice")
		return err
	})
	if !errors.Is(err, errors.ErrVersionMismatch) {
		t.Errorf("err = %v, want ErrVersionMismatch for absent record", err)
	}
}

func TestRunUpdateRetriesTransientFailures(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	repo.PublishErrs = []error{
		errors.NewPublishError("contended", errors.ErrPublishRejected),
		errors.NewPublishError("contended", errors.ErrPublishRejected),
	}

	s := New(repo, WithBackoff(time.Millisecond))

	attempts := 0
	_, err := s.RunUpdate(context.Background(), "retry", func(tx gitrepo.Tx) error {
		attempts++
		_, err := Put(tx, PartKey("1001"), testRecord{Count: attempts}, nil, "alice")
		return err
	})
	if err != nil {
		t.Fatalf("RunUpdate: %v", err)
	}
	if attempts != 3 {
		t.Errorf("transaction ran %d times, want 3 (two rejected publishes, then success)", attempts)
	}
	if repo.Commits() != 1 {
		t.Errorf("commits = %d, want 1", repo.Commits())
	}
}

func TestRunUpdateExhaustsRetries(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	repo.PublishErrs = []error{
		errors.NewPublishError("contended", errors.ErrPublishRejected),
		errors.NewPublishError("contended", errors.ErrPublishRejected),
		errors.NewPublishError("contended", errors.ErrPublishRejected),
	}

	s := New(repo, WithMaxAttempts(3), WithBackoff(time.Millisecond))

	_, err := s.RunUpdate(context.Background(), "doomed", func(tx gitrepo.Tx) error {
		_, err := Put(tx, PartKey("1001"), testRecord{}, nil, "alice")
		return err
	})
	if !errors.Is(err, errors.ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if repo.Commits() != 0 {
		t.Errorf("commits = %d, want 0", repo.Commits())
	}
}

func TestRunUpdateBusinessErrorsSurfaceImmediately(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	s := New(repo, WithBackoff(time.Millisecond))

	attempts := 0
	_, err := s.RunUpdate(context.Background(), "conflict", func(tx gitrepo.Tx) error {
		attempts++
		_, err := Put(tx, MetadataKey("a.dwg"), testRecord{}, intptr(7), "alice")
		return err
	})
	if !errors.Is(err, errors.ErrVersionMismatch) {
		t.Fatalf("err = %v, want ErrVersionMismatch", err)
	}
	if attempts != 1 {
		t.Errorf("conflict retried %d times, want 1 (no blind retry)", attempts)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"bracket.dwg", false},
		{"1001", false},
		{"", true},
		{"a/b", true},
		{`a\b`, true},
		{".", true},
		{"..", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestTrimRecordName(t *testing.T) {
	if got := TrimRecordName("bracket.dwg.json"); got != "bracket.dwg" {
		t.Errorf("TrimRecordName = %q", got)
	}
}

// mustPut publishes a single record write or fails the test.
func mustPut(t *testing.T, repo *testutil.MemoryRepo, key string, value any, expected *int, actor string) {
	t.Helper()
	_, err := repo.Update(context.Background(), "test put "+key, func(tx gitrepo.Tx) error {
		_, err := Put(tx, key, value, expected, actor)
		return err
	})
	if err != nil {
		t.Fatalf("Put %s: %v", key, err)
	}
}
