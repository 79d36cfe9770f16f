package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kirillkom/mailtriage/internal/core/domain"
)

type backendFake struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     int
}

func (f *backendFake) Classify(_ context.Context, subject, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[subject]; err != nil {
		return "", err
	}
	return f.responses[subject], nil
}

type notifierFake struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (f *notifierFake) PublishResult(_ context.Context, key string, status domain.RecordStatus, _ domain.Label) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, key+":"+string(status))
	return nil
}

func pendingRecord(id, subject, body string) *domain.ContentRecord {
	return &domain.ContentRecord{
		MessageID: id,
		Sender:    "someone@example.com",
		Subject:   subject,
		Body:      body,
		Status:    domain.StatusPending,
	}
}

func TestClassifyCommitsResultAndStatus(t *testing.T) {
	store := newStoreFake()
	key := domain.RecordKey("m1")
	store.records[key] = pendingRecord("m1", "Reset my password", "How do I reset my password?")
	backend := &backendFake{responses: map[string]string{"Reset my password": "STANDARD_FAQ"}}
	notifier := &notifierFake{}
	uc := NewClassifyUseCase(store, backend, notifier, 10, 3, 2)

	report, err := uc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Processed != 1 {
		t.Fatalf("expected 1 processed, got %+v", report)
	}

	res := store.results[key]
	if res == nil {
		t.Fatalf("classification result not written")
	}
	if res.Label != domain.LabelStandardFAQ {
		t.Fatalf("expected STANDARD_FAQ, got %q", res.Label)
	}
	if res.RawResponse != "STANDARD_FAQ" {
		t.Fatalf("raw response not kept: %q", res.RawResponse)
	}

	rec := store.records[key]
	if rec.Status != domain.StatusClassified {
		t.Fatalf("record status = %q", rec.Status)
	}
	if len(notifier.events) != 1 || notifier.events[0] != key+":classified" {
		t.Fatalf("unexpected notifier events %v", notifier.events)
	}
}

func TestClassifyCRMAdditionScenario(t *testing.T) {
	store := newStoreFake()
	key := domain.RecordKey("m2")
	store.records[key] = pendingRecord("m2", "Partnership inquiry", "Please add me as a new contact, jane@example.com")
	backend := &backendFake{responses: map[string]string{"Partnership inquiry": "CRM_ADDITION"}}
	uc := NewClassifyUseCase(store, backend, nil, 10, 3, 1)

	if _, err := uc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	res := store.results[key]
	if res == nil || res.Label != domain.LabelCRMAddition {
		t.Fatalf("expected CRM_ADDITION result, got %+v", res)
	}
}

func TestClassifyInvalidLabelSpendsAttemptBudgetThenFails(t *testing.T) {
	store := newStoreFake()
	key := domain.RecordKey("m3")
	store.records[key] = pendingRecord("m3", "Odd one", "???")
	backend := &backendFake{responses: map[string]string{"Odd one": "Unsure — could be FAQ or RAG"}}
	uc := NewClassifyUseCase(store, backend, nil, 10, 3, 1)

	for cycle := 0; cycle < 3; cycle++ {
		if _, err := uc.RunCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d error = %v", cycle, err)
		}
	}

	rec := store.records[key]
	if rec.Status != domain.StatusFailed {
		t.Fatalf("expected failed status after budget, got %q", rec.Status)
	}
	if rec.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", rec.Attempts)
	}
	if rec.LastResponse != "Unsure — could be FAQ or RAG" {
		t.Fatalf("last raw response not kept: %q", rec.LastResponse)
	}
	if _, ok := store.results[key]; ok {
		t.Fatalf("failed record must not produce a classification result")
	}

	// Budget exhausted: further cycles list nothing pending and never call
	// the backend again.
	callsBefore := backend.calls
	if _, err := uc.RunCycle(context.Background()); err != nil {
		t.Fatalf("post-failure cycle error = %v", err)
	}
	if backend.calls != callsBefore {
		t.Fatalf("failed record was retried")
	}
}

func TestClassifyStaysPendingWithinAttemptBudget(t *testing.T) {
	store := newStoreFake()
	key := domain.RecordKey("m4")
	store.records[key] = pendingRecord("m4", "Odd one", "???")
	backend := &backendFake{responses: map[string]string{"Odd one": "no label here"}}
	uc := NewClassifyUseCase(store, backend, nil, 10, 3, 1)

	report, err := uc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %+v", report)
	}
	rec := store.records[key]
	if rec.Status != domain.StatusPending {
		t.Fatalf("expected pending within budget, got %q", rec.Status)
	}
	if rec.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", rec.Attempts)
	}
}

func TestClassifyTransientBackendFailureDefersWithoutSpendingBudget(t *testing.T) {
	store := newStoreFake()
	key := domain.RecordKey("m5")
	store.records[key] = pendingRecord("m5", "Flaky", "body")
	backend := &backendFake{errs: map[string]error{
		"Flaky": domain.WrapError(domain.ErrTransient, "classify", errors.New("rate limited")),
	}}
	uc := NewClassifyUseCase(store, backend, nil, 10, 3, 1)

	report, err := uc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %+v", report)
	}
	rec := store.records[key]
	if rec.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %q", rec.Status)
	}
	if rec.Attempts != 0 {
		t.Fatalf("attempt budget spent on a transient failure: %d", rec.Attempts)
	}
}

func TestClassifyAbortsOnAuthError(t *testing.T) {
	store := newStoreFake()
	store.records[domain.RecordKey("m6")] = pendingRecord("m6", "Any", "body")
	backend := &backendFake{errs: map[string]error{
		"Any": domain.WrapError(domain.ErrAuth, "classify", errors.New("bad credentials")),
	}}
	uc := NewClassifyUseCase(store, backend, nil, 10, 3, 1)

	_, err := uc.RunCycle(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrAuth) {
		t.Fatalf("expected auth kind, got %v", err)
	}
}

func TestClassifyNotifierFailureDoesNotAffectState(t *testing.T) {
	store := newStoreFake()
	key := domain.RecordKey("m7")
	store.records[key] = pendingRecord("m7", "Reset my password", "How?")
	backend := &backendFake{responses: map[string]string{"Reset my password": "STANDARD_FAQ"}}
	notifier := &notifierFake{err: errors.New("nats down")}
	uc := NewClassifyUseCase(store, backend, notifier, 10, 3, 1)

	report, err := uc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Processed != 1 {
		t.Fatalf("expected 1 processed, got %+v", report)
	}
	if store.records[key].Status != domain.StatusClassified {
		t.Fatalf("record state must not depend on the notifier")
	}
}
