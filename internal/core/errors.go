package core

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Every error crossing a component boundary is wrapped so
// that errors.Is can route it: transient failures are retried, structural
// failures stop the tenant, content failures stop the document, and a
// partial commit is surfaced for manual reconciliation.
var (
	// ErrTransient marks failures of external services that are worth
	// retrying with backoff (network errors, 429s, 5xx responses).
	ErrTransient = errors.New("transient failure")

	// ErrStructural marks a ledger whose schema drifted from what the
	// updater expects. Terminal for the tenant; nothing is written.
	ErrStructural = errors.New("structural ledger failure")

	// ErrContent marks a document that produced no usable extraction
	// result. Terminal for the document only.
	ErrContent = errors.New("content failure")

	// ErrPartialCommit marks a commit whose aggregate cells were updated
	// but whose detail append failed. The cells are not rolled back.
	ErrPartialCommit = errors.New("partial commit")
)

// MarkTransient wraps err so that errors.Is(err, ErrTransient) holds.
// A nil err stays nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
