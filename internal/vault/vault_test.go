package vault

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/partvault/partvault/internal/audit"
	"github.com/partvault/partvault/internal/errors"
	"github.com/partvault/partvault/internal/event"
	"github.com/partvault/partvault/internal/identity"
	"github.com/partvault/partvault/internal/store"
	"github.com/partvault/partvault/internal/testutil"
)

var (
	alice = identity.Identity{Username: "alice", Role: identity.RoleUser}
	bob   = identity.Identity{Username: "bob", Role: identity.RoleUser}
	carol = identity.Identity{Username: "carol", Role: identity.RoleAdmin}
)

func newService(t *testing.T) (*Service, *testutil.MemoryRepo, *eventRecorder) {
	t.Helper()
	repo := testutil.NewMemoryRepo()
	svc := New(store.New(repo, store.WithBackoff(time.Millisecond)), nil, nil)
	rec := &eventRecorder{}
	svc.Bus().SubscribeAll(rec.record)
	return svc, repo, rec
}

type eventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *eventRecorder) record(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

func (r *eventRecorder) last() event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func trail(t *testing.T, svc *Service, f audit.Filter) []audit.Entry {
	t.Helper()
	entries, err := svc.AuditTrail(context.Background(), f)
	if err != nil {
		t.Fatalf("AuditTrail: %v", err)
	}
	return entries
}

func TestCheckoutCheckinLifecycle(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()

	lock, err := svc.Checkout(ctx, alice, "bracket.dwg", "reworking flange")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if lock.Holder != "alice" || lock.Message != "reworking flange" {
		t.Errorf("lock = %+v, want alice with message", lock)
	}

	locks, err := svc.Locks(ctx)
	if err != nil {
		t.Fatalf("Locks: %v", err)
	}
	if len(locks) != 1 || locks[0].Filename != "bracket.dwg" {
		t.Errorf("locks = %+v, want bracket.dwg held", locks)
	}

	if err := svc.Checkin(ctx, alice, "bracket.dwg"); err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	if _, held, _ := svc.Lock(ctx, "bracket.dwg"); held {
		t.Error("lock still held after checkin")
	}

	got := rec.types()
	want := []string{event.TypeLockAcquired, event.TypeLockReleased}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("events = %v, want %v", got, want)
	}

	entries := trail(t, svc, audit.Filter{Target: "bracket.dwg"})
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	if entries[0].Action != audit.ActionCheckout || entries[1].Action != audit.ActionCheckin {
		t.Errorf("trail = %+v, want CHECKOUT then CHECKIN", entries)
	}
}

func TestCheckoutContention(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Checkout(ctx, alice, "bracket.dwg", ""); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	_, err := svc.Checkout(ctx, bob, "bracket.dwg", "")
	if !errors.Is(err, errors.ErrAlreadyLocked) {
		t.Fatalf("err = %v, want ErrAlreadyLocked", err)
	}
	var lockErr *errors.LockError
	if !errors.As(err, &lockErr) || lockErr.Holder != "alice" {
		t.Errorf("err = %v, want holder alice reported", err)
	}

	if err := svc.Checkin(ctx, bob, "bracket.dwg"); !errors.Is(err, errors.ErrNotHolder) {
		t.Errorf("Checkin by non-holder err = %v, want ErrNotHolder", err)
	}
}

func TestForceReleaseByAdmin(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()

	if _, err := svc.Checkout(ctx, alice, "bracket.dwg", ""); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if err := svc.ForceRelease(ctx, carol, "bracket.dwg"); err != nil {
		t.Fatalf("ForceRelease: %v", err)
	}

	if _, held, _ := svc.Lock(ctx, "bracket.dwg"); held {
		t.Error("lock still held after force release")
	}

	e, ok := rec.last().(event.LockForcedReleaseEvent)
	if !ok {
		t.Fatalf("last event = %T, want LockForcedReleaseEvent", rec.last())
	}
	if e.PreviousHolder != "alice" || e.Admin != "carol" {
		t.Errorf("event = %+v, want alice broken by carol", e)
	}

	entries := trail(t, svc, audit.Filter{Action: audit.ActionForcedRelease})
	if len(entries) != 1 || entries[0].Details["previous_holder"] != "alice" {
		t.Errorf("trail = %+v, want one FORCED_RELEASE naming alice", entries)
	}
}

func TestForceReleaseDeniedIsAudited(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()

	if _, err := svc.Checkout(ctx, alice, "bracket.dwg", ""); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	err := svc.ForceRelease(ctx, bob, "bracket.dwg")
	if !errors.Is(err, errors.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}

	if _, held, _ := svc.Lock(ctx, "bracket.dwg"); !held {
		t.Error("lock was released by a denied attempt")
	}

	entries := trail(t, svc, audit.Filter{Action: audit.ActionForcedRelease})
	if len(entries) != 1 || entries[0].Status != audit.StatusDenied {
		t.Fatalf("trail = %+v, want one denied FORCED_RELEASE", entries)
	}
	if entries[0].Actor != "bob" {
		t.Errorf("denied actor = %q, want bob", entries[0].Actor)
	}

	for _, typ := range rec.types() {
		if typ == event.TypeLockForcedRelease {
			t.Error("forced-release event published for a denied attempt")
		}
	}
}

func TestUpdateMetadataOptimisticConcurrency(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	desc := "mounting bracket"
	rec1, err := svc.UpdateMetadata(ctx, alice, "bracket.dwg", 0, MetadataChange{Description: &desc})
	if err != nil {
		t.Fatalf("create metadata: %v", err)
	}
	if rec1.Version != 1 {
		t.Errorf("version = %d, want 1", rec1.Version)
	}

	author := "alice"
	rec2, err := svc.UpdateMetadata(ctx, alice, "bracket.dwg", 1, MetadataChange{Author: &author})
	if err != nil {
		t.Fatalf("update metadata: %v", err)
	}
	if rec2.Version != 2 || rec2.Description != "mounting bracket" || rec2.Author != "alice" {
		t.Errorf("record = %+v, want version 2 merging both edits", rec2)
	}

	// A writer holding the stale version 1 must not clobber version 2.
	stale := "stale description"
	_, err = svc.UpdateMetadata(ctx, bob, "bracket.dwg", 1, MetadataChange{Description: &stale})
	if !errors.Is(err, errors.ErrVersionMismatch) {
		t.Fatalf("stale write err = %v, want ErrVersionMismatch", err)
	}
	var conflict *errors.ConflictError
	if !errors.As(err, &conflict) || conflict.CurrentVersion != 2 {
		t.Errorf("err = %v, want conflict reporting current version 2", err)
	}

	got, found, err := svc.Metadata(ctx, "bracket.dwg")
	if err != nil || !found {
		t.Fatalf("Metadata: found=%v err=%v", found, err)
	}
	if got.Description != "mounting bracket" {
		t.Errorf("description = %q, stale write leaked through", got.Description)
	}

	entries := trail(t, svc, audit.Filter{Action: audit.ActionMetadataUpdate})
	if len(entries) != 2 {
		t.Errorf("audit entries = %d, want 2 (failed write leaves no trail)", len(entries))
	}
}

func TestAdvanceRevisionNotifiesSubscribers(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()

	if err := svc.Subscribe(ctx, bob, "PN-1001"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	part, err := svc.AdvanceRevision(ctx, alice, "PN-1001", "A", "mounting bracket")
	if err != nil {
		t.Fatalf("AdvanceRevision: %v", err)
	}
	if part.CurrentRev != "A" {
		t.Errorf("rev = %q, want A", part.CurrentRev)
	}

	e, ok := rec.last().(event.RevisionAdvancedEvent)
	if !ok {
		t.Fatalf("last event = %T, want RevisionAdvancedEvent", rec.last())
	}
	if e.NewRev != "A" || len(e.Subscribers) != 1 || e.Subscribers[0] != "bob" {
		t.Errorf("event = %+v, want rev A with subscriber bob", e)
	}

	if _, err := svc.AdvanceRevision(ctx, alice, "PN-1001", "A", ""); !errors.Is(err, errors.ErrNotMonotonic) {
		t.Errorf("repeat advance err = %v, want ErrNotMonotonic", err)
	}
}

func TestSubscriptionRoundTrip(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()

	if err := svc.Subscribe(ctx, bob, "PN-1001"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := svc.Subscribe(ctx, bob, "PN-1001"); err != nil {
		t.Fatalf("repeat Subscribe: %v", err)
	}

	subs, err := svc.Subscribers(ctx, "PN-1001")
	if err != nil {
		t.Fatalf("Subscribers: %v", err)
	}
	if len(subs) != 1 || subs[0] != "bob" {
		t.Errorf("subscribers = %v, want [bob]", subs)
	}

	if err := svc.Unsubscribe(ctx, bob, "PN-1001"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	// One changed-subscription event per actual change, not per call.
	changes := 0
	for _, typ := range rec.types() {
		if typ == event.TypeSubscriptionChanged {
			changes++
		}
	}
	if changes != 2 {
		t.Errorf("subscription events = %d, want 2", changes)
	}
}

func TestPublishFailureLeavesNoTrace(t *testing.T) {
	svc, repo, rec := newService(t)
	ctx := context.Background()

	// The retry loop consumes one queued error per attempt; queue enough
	// to exhaust it so the operation fails outright.
	for i := 0; i < 3; i++ {
		repo.PublishErrs = append(repo.PublishErrs,
			errors.NewPublishError("push rejected", errors.ErrPublishRejected))
	}

	_, err := svc.Checkout(ctx, alice, "bracket.dwg", "")
	if !errors.Is(err, errors.ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}

	if _, held, _ := svc.Lock(ctx, "bracket.dwg"); held {
		t.Error("lock exists after failed publish")
	}
	if entries := trail(t, svc, audit.Filter{}); len(entries) != 0 {
		t.Errorf("audit entries = %d, want 0 after failed publish", len(entries))
	}
	if got := rec.types(); len(got) != 0 {
		t.Errorf("events = %v, want none after failed publish", got)
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	repo.PublishErrs = append(repo.PublishErrs,
		errors.NewPublishError("push rejected", errors.ErrPublishRejected))

	if _, err := svc.Checkout(ctx, alice, "bracket.dwg", ""); err != nil {
		t.Fatalf("Checkout with one transient failure: %v", err)
	}

	lock, held, err := svc.Lock(ctx, "bracket.dwg")
	if err != nil || !held || lock.Holder != "alice" {
		t.Errorf("lock = %+v held=%v err=%v, want alice holding", lock, held, err)
	}
}

func TestInvalidIdentityRejected(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	nobody := identity.Identity{Username: "", Role: identity.RoleUser}
	if _, err := svc.Checkout(ctx, nobody, "bracket.dwg", ""); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if repo.Commits() != 0 {
		t.Errorf("commits = %d, want 0", repo.Commits())
	}
}
