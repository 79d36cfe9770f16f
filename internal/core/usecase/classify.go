package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/mailtriage/internal/core/domain"
	"github.com/kirillkom/mailtriage/internal/core/ports"
)

// ClassifyUseCase drains pending records from the store, asks the model
// backend for a taxonomy label and commits the outcome back. Records are
// independent, so one cycle may fan out over a bounded worker pool; every
// state transition is a single full-record write, so an interrupted cycle
// leaves nothing torn.
type ClassifyUseCase struct {
	store    ports.RecordStore
	backend  ports.ModelBackend
	notifier ports.ResultNotifier

	batchSize   int
	maxAttempts int
	workers     int
}

func NewClassifyUseCase(
	store ports.RecordStore,
	backend ports.ModelBackend,
	notifier ports.ResultNotifier,
	batchSize, maxAttempts, workers int,
) *ClassifyUseCase {
	if batchSize <= 0 {
		batchSize = 25
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if workers <= 0 {
		workers = 1
	}
	return &ClassifyUseCase{
		store:       store,
		backend:     backend,
		notifier:    notifier,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		workers:     workers,
	}
}

func (uc *ClassifyUseCase) RunCycle(ctx context.Context) (domain.CycleReport, error) {
	var report domain.CycleReport

	keys, err := uc.store.List(ctx, domain.RecordPrefix, domain.StatusPending, uc.batchSize)
	if err != nil {
		return report, fmt.Errorf("list pending records: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		abortErr error
	)
	sem := make(chan struct{}, uc.workers)

	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(key string) {
			defer wg.Done()
			defer func() { <-sem }()

			err := uc.classifyRecord(ctx, key, &mu, &report)
			if err != nil && domain.IsKind(err, domain.ErrAuth) {
				mu.Lock()
				if abortErr == nil {
					abortErr = err
				}
				mu.Unlock()
				cancel()
			}
		}(key)
	}
	wg.Wait()

	if abortErr != nil {
		return report, fmt.Errorf("classification aborted: %w", abortErr)
	}
	return report, nil
}

func (uc *ClassifyUseCase) classifyRecord(ctx context.Context, key string, mu *sync.Mutex, report *domain.CycleReport) error {
	rec, err := uc.store.Get(ctx, key)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			// Listed a moment ago but gone now; nothing to do.
			return nil
		}
		slog.Warn("record_read_failed", "key", key, "error", err)
		mu.Lock()
		report.Skipped++
		mu.Unlock()
		return nil
	}
	if rec.Status != domain.StatusPending {
		// Another writer got here first; last write wins.
		return nil
	}

	raw, err := uc.backend.Classify(ctx, rec.Subject, rec.Body)
	if err != nil {
		if domain.IsKind(err, domain.ErrAuth) {
			return err
		}
		// The model never produced a response, so the attempt budget is
		// untouched; the record stays pending for the next cycle.
		slog.Warn("backend_call_failed", "key", key, "error", err)
		mu.Lock()
		report.Skipped++
		mu.Unlock()
		return nil
	}

	label, parseErr := domain.ParseLabel(raw)
	if parseErr != nil {
		uc.recordInvalidLabel(ctx, key, rec, raw, mu, report)
		return nil
	}

	uc.commitClassified(ctx, key, rec, label, raw, mu, report)
	return nil
}

// recordInvalidLabel spends one attempt from the record's budget. Within
// budget the record stays pending; at the bound it becomes failed with the
// last raw response kept for diagnosis.
func (uc *ClassifyUseCase) recordInvalidLabel(ctx context.Context, key string, rec *domain.ContentRecord, raw string, mu *sync.Mutex, report *domain.CycleReport) {
	rec.Attempts++
	rec.LastResponse = raw
	rec.UpdatedAt = time.Now().UTC()

	exhausted := rec.Attempts >= uc.maxAttempts
	if exhausted {
		rec.Status = domain.StatusFailed
		rec.Error = fmt.Sprintf("no single taxonomy label after %d attempts", rec.Attempts)
	}

	if err := uc.store.Put(ctx, key, rec); err != nil {
		slog.Warn("record_write_failed", "key", key, "error", err)
		mu.Lock()
		report.AddFailed(key)
		mu.Unlock()
		return
	}

	mu.Lock()
	if exhausted {
		report.AddFailed(key)
	} else {
		report.Skipped++
	}
	mu.Unlock()

	if exhausted {
		slog.Warn("classification_exhausted", "key", key, "attempts", rec.Attempts, "last_response", raw)
		uc.notify(ctx, key, domain.StatusFailed, "")
	}
}

func (uc *ClassifyUseCase) commitClassified(ctx context.Context, key string, rec *domain.ContentRecord, label domain.Label, raw string, mu *sync.Mutex, report *domain.CycleReport) {
	res := &domain.ClassificationResult{
		RecordKey:    key,
		Label:        label,
		RawResponse:  raw,
		ClassifiedAt: time.Now().UTC(),
		Attempts:     rec.Attempts + 1,
	}
	if err := uc.store.PutResult(ctx, res); err != nil {
		// Record stays pending; the next cycle re-classifies and the keyed
		// result write overwrites, keeping one result per record.
		slog.Warn("result_write_failed", "key", key, "error", err)
		mu.Lock()
		report.AddFailed(key)
		mu.Unlock()
		return
	}

	rec.Status = domain.StatusClassified
	rec.Attempts++
	rec.LastResponse = raw
	rec.Error = ""
	rec.UpdatedAt = res.ClassifiedAt
	if err := uc.store.Put(ctx, key, rec); err != nil {
		slog.Warn("record_write_failed", "key", key, "error", err)
		mu.Lock()
		report.AddFailed(key)
		mu.Unlock()
		return
	}

	mu.Lock()
	report.Processed++
	mu.Unlock()

	uc.notify(ctx, key, domain.StatusClassified, label)
}

// notify is advisory; the store already holds the authoritative state.
func (uc *ClassifyUseCase) notify(ctx context.Context, key string, status domain.RecordStatus, label domain.Label) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.PublishResult(ctx, key, status, label); err != nil {
		slog.Warn("result_notify_failed", "key", key, "error", err)
	}
}
