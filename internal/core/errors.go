package core

import (
	"errors"

	"billing-engine/internal/money"
)

// Error taxonomy. Call sites wrap these with fmt.Errorf("%w: ...") so callers
// can branch with errors.Is while the message keeps the detail.
var (
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInconsistentTaxConfig = errors.New("inconsistent tax config")
	ErrInvalidQuantity       = money.ErrInvalidQuantity
	ErrInvalidAmount         = money.ErrInvalidAmount
	ErrDuplicateLedgerEntry  = errors.New("duplicate ledger entry")
	ErrAlreadyVoided         = errors.New("already voided")
	ErrNotFound              = errors.New("not found")
	ErrContention            = errors.New("contention")

	ErrInvoiceNotDraft  = errors.New("invoice is not a draft")
	ErrInvoiceNotPosted = errors.New("invoice is not posted")
	ErrInvoiceVoided    = errors.New("invoice is void")
	ErrMissingReference = errors.New("reference id is required")
	ErrInvalidInvoice   = errors.New("invalid invoice")
	ErrDuplicateNumber  = errors.New("invoice number already in use")
	ErrInvalidInput     = errors.New("invalid input")

	// ErrConflict is returned by Tx implementations when a concurrent
	// transaction touched the same rows. Store.WithTx retries on it and turns
	// the final failure into ErrContention; it never reaches callers.
	ErrConflict = errors.New("concurrent update conflict")
)

// IsRetryable reports whether the whole operation may be retried with the same
// idempotence key.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention) || errors.Is(err, ErrConflict)
}
