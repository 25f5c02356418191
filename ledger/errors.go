/*
errors.go - Centralized error types for the deal engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Every operation returns success or one of these kinds; nothing is
  swallowed and nothing is retried internally.

ERROR CATEGORIES:
  1. Workflow errors - invalid transitions (already closed, bad size)
  2. Lookup errors - unknown deal IDs
  3. Authorization errors - delete without admin rights
  4. Persistence errors - durable store failures

USAGE:
  Callers branch on kinds with errors.Is/As:

    if errors.Is(err, ledger.ErrAlreadyClosed) {
        // duplicate close, render a rejection message
    }

SEE ALSO:
  - ledger.go: Returns these errors
  - api/handlers.go: Maps these kinds to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when no deal exists for the given ID.
	ErrNotFound = errors.New("deal not found")

	// ErrAlreadyClosed is returned on a duplicate close attempt. Closing
	// twice must never double-count, so the second close is rejected.
	ErrAlreadyClosed = errors.New("deal already closed")

	// ErrInvalidSize is returned when a close carries a system size that is
	// not a positive finite number.
	ErrInvalidSize = errors.New("invalid system size")

	// ErrUnauthorized is returned when a delete is attempted by a requester
	// the authorizer does not admit.
	ErrUnauthorized = errors.New("requester not authorized")

	// ErrPersistence is returned when the durable store cannot complete a
	// read or write. In-memory state is rolled back before this surfaces.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError reports the missing deal ID.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("deal %d not found", e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AlreadyClosedError reports who closed the deal and when, so the caller
// can explain the rejection.
type AlreadyClosedError struct {
	ID         int64
	CloserName string
	ClosedAt   time.Time
}

func (e *AlreadyClosedError) Error() string {
	return fmt.Sprintf("deal %d already closed by %s at %s",
		e.ID, e.CloserName, e.ClosedAt.Format(time.RFC3339))
}

func (e *AlreadyClosedError) Unwrap() error { return ErrAlreadyClosed }

// InvalidSizeError reports the rejected size value.
type InvalidSizeError struct {
	Size decimal.Decimal
}

func (e *InvalidSizeError) Error() string {
	return fmt.Sprintf("invalid system size %s: must be a positive finite number", e.Size)
}

func (e *InvalidSizeError) Unwrap() error { return ErrInvalidSize }

// UnauthorizedError reports the rejected requester.
type UnauthorizedError struct {
	RequesterID RepID
	Action      string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("requester %s not authorized for %s", e.RequesterID, e.Action)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// PersistenceError wraps a durable store failure with the failing operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistence }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry. Validation
// errors are user mistakes, not transient faults; only store failures may
// clear up.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAlreadyClosed) ||
		errors.Is(err, ErrInvalidSize) ||
		errors.Is(err, ErrUnauthorized)
}

// IsNotFound returns true if the error indicates a missing deal.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
