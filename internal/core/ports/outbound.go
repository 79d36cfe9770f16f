package ports

import (
	"context"

	"github.com/kirillkom/mailtriage/internal/core/domain"
)

// Mailbox is the capability contract over the mail provider. Implementations
// must distinguish auth, transient and not-found failures via the domain
// error kinds.
type Mailbox interface {
	// ListUnread returns up to max unread items, oldest first.
	ListUnread(ctx context.Context, max int) ([]domain.MailItem, error)
	// FetchBody returns the plain-text body for one message.
	FetchBody(ctx context.Context, id string) (string, error)
	// MarkRead flips the provider-side unread flag.
	MarkRead(ctx context.Context, id string) error
}

// RecordStore is the durable rendezvous point between the two pipeline
// halves. Put is a full-record replace; Get reports absence as
// domain.ErrNotFound.
type RecordStore interface {
	Put(ctx context.Context, key string, rec *domain.ContentRecord) error
	Get(ctx context.Context, key string) (*domain.ContentRecord, error)
	// List returns up to limit record keys under prefix whose status matches.
	// A zero limit means no bound.
	List(ctx context.Context, prefix string, status domain.RecordStatus, limit int) ([]string, error)
	PutResult(ctx context.Context, res *domain.ClassificationResult) error
}

// ModelBackend classifies mail content. The response is opaque text; label
// extraction is the caller's concern.
type ModelBackend interface {
	Classify(ctx context.Context, subject, body string) (string, error)
}

// ResultNotifier publishes advisory events for terminal classification
// transitions. Store state stays authoritative; publish failures must never
// affect pipeline state.
type ResultNotifier interface {
	PublishResult(ctx context.Context, key string, status domain.RecordStatus, label domain.Label) error
}
