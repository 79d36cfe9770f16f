package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirillkom/mailtriage/internal/core/domain"
	"github.com/kirillkom/mailtriage/internal/core/ports"
)

// RetrieveUseCase exports unread mail into the record store. One RunCycle is
// one bounded batch; the mailbox read-flag is flipped only after the record
// write is durably acknowledged, so a crash between the two steps causes a
// safe re-export instead of silent loss.
type RetrieveUseCase struct {
	mailbox   ports.Mailbox
	store     ports.RecordStore
	batchSize int
}

func NewRetrieveUseCase(mailbox ports.Mailbox, store ports.RecordStore, batchSize int) *RetrieveUseCase {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &RetrieveUseCase{
		mailbox:   mailbox,
		store:     store,
		batchSize: batchSize,
	}
}

func (uc *RetrieveUseCase) RunCycle(ctx context.Context) (domain.CycleReport, error) {
	var report domain.CycleReport

	items, err := uc.mailbox.ListUnread(ctx, uc.batchSize)
	if err != nil {
		return report, fmt.Errorf("list unread: %w", err)
	}

	// Oldest first, to bound staleness of the backlog.
	sort.Slice(items, func(i, j int) bool {
		return items[i].ReceivedAt.Before(items[j].ReceivedAt)
	})

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := uc.exportItem(ctx, item, &report); err != nil {
			// Only auth failures abort the remaining batch.
			return report, fmt.Errorf("export message %s: %w", item.ID, err)
		}
	}
	return report, nil
}

func (uc *RetrieveUseCase) exportItem(ctx context.Context, item domain.MailItem, report *domain.CycleReport) error {
	body, err := uc.mailbox.FetchBody(ctx, item.ID)
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrAuth):
		return err
	case domain.IsKind(err, domain.ErrData):
		// Undecodable content never becomes readable by retrying; park the
		// record as failed so the message stops cycling.
		return uc.exportFailed(ctx, item, err, report)
	default:
		slog.Warn("fetch_body_failed", "message_id", item.ID, "error", err)
		report.Skipped++
		return nil
	}

	rec := newRecord(item, body, domain.StatusPending)
	if err := uc.writeRecord(ctx, rec); err != nil {
		if domain.IsKind(err, domain.ErrAuth) {
			return err
		}
		// Leave the message unread so the next cycle retries it.
		slog.Warn("record_write_failed", "message_id", item.ID, "error", err)
		report.AddFailed(item.ID)
		return nil
	}

	if err := uc.mailbox.MarkRead(ctx, item.ID); err != nil {
		if domain.IsKind(err, domain.ErrAuth) {
			return err
		}
		// The record is durable; re-export is an idempotent overwrite.
		slog.Warn("mark_read_failed", "message_id", item.ID, "error", err)
	}
	report.Processed++
	return nil
}

// exportFailed writes a terminal failed record for malformed content and
// marks the message read so it stops being re-listed.
func (uc *RetrieveUseCase) exportFailed(ctx context.Context, item domain.MailItem, cause error, report *domain.CycleReport) error {
	rec := newRecord(item, "", domain.StatusFailed)
	rec.Error = cause.Error()
	if err := uc.writeRecord(ctx, rec); err != nil {
		if domain.IsKind(err, domain.ErrAuth) {
			return err
		}
		slog.Warn("record_write_failed", "message_id", item.ID, "error", err)
		report.AddFailed(item.ID)
		return nil
	}
	if err := uc.mailbox.MarkRead(ctx, item.ID); err != nil {
		if domain.IsKind(err, domain.ErrAuth) {
			return err
		}
		slog.Warn("mark_read_failed", "message_id", item.ID, "error", err)
	}
	report.AddFailed(item.ID)
	return nil
}

// writeRecord performs the idempotent keyed overwrite. A record that already
// reached a terminal status keeps it: re-export must never downgrade
// classified or failed work back to pending. Attempt state always survives a
// re-export, so a still-unread message never refunds spent attempts.
func (uc *RetrieveUseCase) writeRecord(ctx context.Context, rec *domain.ContentRecord) error {
	key := domain.RecordKey(rec.MessageID)

	existing, err := uc.store.Get(ctx, key)
	switch {
	case err == nil:
		rec.CreatedAt = existing.CreatedAt
		rec.Attempts = existing.Attempts
		rec.LastResponse = existing.LastResponse
		if existing.Terminal() {
			rec.Status = existing.Status
			rec.Error = existing.Error
		}
	case domain.IsKind(err, domain.ErrNotFound):
	default:
		return fmt.Errorf("read existing record: %w", err)
	}

	if err := uc.store.Put(ctx, key, rec); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func newRecord(item domain.MailItem, body string, status domain.RecordStatus) *domain.ContentRecord {
	now := time.Now().UTC()
	return &domain.ContentRecord{
		MessageID:  item.ID,
		Sender:     item.Sender,
		Subject:    item.Subject,
		Body:       body,
		ReceivedAt: item.ReceivedAt,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
