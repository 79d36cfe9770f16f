package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks failures worth retrying with backoff.
	ErrTransient = errors.New("transient failure")
	// ErrAuth marks invalid credentials or sessions; aborts the remaining cycle.
	ErrAuth = errors.New("authentication failure")
	// ErrNotFound marks expected absence, e.g. a record not written yet.
	ErrNotFound = errors.New("not found")
	// ErrInvalidLabel marks a model response with zero or multiple taxonomy labels.
	ErrInvalidLabel = errors.New("invalid label")
	// ErrData marks message content that cannot be normalized.
	ErrData = errors.New("malformed data")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
