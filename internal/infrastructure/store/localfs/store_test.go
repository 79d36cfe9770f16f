package localfs

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/kirillkom/mailtriage/internal/core/domain"
	"github.com/kirillkom/mailtriage/internal/infrastructure/resilience"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		BreakerEnabled:      false,
	})
	store, err := New(t.TempDir(), executor)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func record(id string, status domain.RecordStatus) *domain.ContentRecord {
	return &domain.ContentRecord{
		MessageID:  id,
		Sender:     "a@example.com",
		Subject:    "subject",
		Body:       "body",
		Status:     status,
		ReceivedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := domain.RecordKey("m1")

	if err := store.Put(ctx, key, record("m1", domain.StatusPending)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.MessageID != "m1" || got.Status != domain.StatusPending {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestGetMissingIsNotFoundKind(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), domain.RecordKey("missing"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found kind, got %v", err)
	}
}

func TestPutReplacesWholeRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := domain.RecordKey("m1")

	first := record("m1", domain.StatusPending)
	first.LastResponse = "stale"
	if err := store.Put(ctx, key, first); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	second := record("m1", domain.StatusClassified)
	if err := store.Put(ctx, key, second); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != domain.StatusClassified {
		t.Fatalf("status not replaced: %q", got.Status)
	}
	if got.LastResponse != "" {
		t.Fatalf("old field survived the replace: %q", got.LastResponse)
	}
}

func TestListFiltersByStatusAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for id, status := range map[string]domain.RecordStatus{
		"a": domain.StatusPending,
		"b": domain.StatusClassified,
		"c": domain.StatusPending,
		"d": domain.StatusFailed,
	} {
		if err := store.Put(ctx, domain.RecordKey(id), record(id, status)); err != nil {
			t.Fatalf("Put(%s) error = %v", id, err)
		}
	}

	keys, err := store.List(ctx, domain.RecordPrefix, domain.StatusPending, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 pending keys, got %v", keys)
	}

	limited, err := store.List(ctx, domain.RecordPrefix, domain.StatusPending, 1)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit not honored: %v", limited)
	}
}

func TestPutRetriesTransientWriteFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := domain.RecordKey("m1")

	commit := store.rename
	var attempts int
	store.rename = func(oldpath, newpath string) error {
		attempts++
		if attempts == 1 {
			return syscall.EAGAIN
		}
		return commit(oldpath, newpath)
	}

	if err := store.Put(ctx, key, record("m1", domain.StatusPending)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected one retry after the transient failure, got %d attempts", attempts)
	}
	if _, err := store.Get(ctx, key); err != nil {
		t.Fatalf("record not durable after retry: %v", err)
	}
}

func TestPutExhaustedRetriesIsTransientKind(t *testing.T) {
	store := newTestStore(t)

	var attempts int
	store.rename = func(string, string) error {
		attempts++
		return syscall.EAGAIN
	}

	err := store.Put(context.Background(), domain.RecordKey("m1"), record("m1", domain.StatusPending))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTransient) {
		t.Fatalf("expected transient kind, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestPutPermanentWriteFailureIsNotRetried(t *testing.T) {
	store := newTestStore(t)

	var attempts int
	store.rename = func(string, string) error {
		attempts++
		return syscall.EACCES
	}

	err := store.Put(context.Background(), domain.RecordKey("m1"), record("m1", domain.StatusPending))
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTransient) {
		t.Fatalf("permission failure must not be transient: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestPutResultUsesAdjacentKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res := &domain.ClassificationResult{
		RecordKey:    domain.RecordKey("m1"),
		Label:        domain.LabelStandardFAQ,
		RawResponse:  "STANDARD_FAQ",
		ClassifiedAt: time.Now().UTC(),
		Attempts:     1,
	}
	if err := store.PutResult(ctx, res); err != nil {
		t.Fatalf("PutResult() error = %v", err)
	}

	keys, err := store.List(ctx, domain.ResultPrefix, "", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != domain.ResultKey("m1") {
		t.Fatalf("unexpected result keys %v", keys)
	}
}
