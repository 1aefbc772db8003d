/*
errors.go - Error taxonomy for the inventory engine

PURPOSE:
  All error types in one place. Every structured error unwraps to a
  sentinel so callers can branch with errors.Is and still get the details
  with errors.As.

ERROR CATEGORIES:
  1. Input errors      - ValidationError
  2. Stock errors      - InsufficientStockError, NotFoundError
  3. Workflow errors   - NotPendingError, AlreadyReconciledError, IncompleteReconciliationError
  4. Access errors     - AccessDeniedError
  5. Upstream errors   - UpstreamError (store or evidence failures, caller retries)

  Alerts are NOT errors. See alerts.go.

MESSAGES:
  Messages name the field or the business rule ("closing weight required",
  "duplicate barcode A1"), never an internal code.
*/
package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/barstock/shift"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation               = errors.New("validation failed")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrNotFound                 = errors.New("not found")
	ErrNotPending               = errors.New("label is not pending reconciliation")
	ErrAlreadyReconciled        = errors.New("label already reconciled for shift")
	ErrIncompleteReconciliation = errors.New("shift has unreconciled labels")
	ErrAccessDenied             = errors.New("access denied")
	ErrUpstream                 = errors.New("upstream failure")

	// ErrConcurrentModification is returned by stores when the optimistic
	// version check fails. The ledger retries it internally.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError reports a retire or pour that exceeds what the
// label has available.
type InsufficientStockError struct {
	Action    string // "retire" or "pour"
	Label     string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	if e.Action == "pour" {
		return fmt.Sprintf("cannot pour from %s: no bottle with remaining weight", e.Label)
	}
	return fmt.Sprintf("cannot retire %d bottles of %s: only %d in stock",
		e.Requested, e.Label, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// NotFoundError reports a missing label or unit.
type NotFoundError struct {
	Kind string // "label" or "unit"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type NotPendingError struct {
	Label string
	Shift shift.ID
}

func (e *NotPendingError) Error() string {
	return fmt.Sprintf("%s has no movements awaiting reconciliation in shift %s", e.Label, e.Shift)
}

func (e *NotPendingError) Unwrap() error { return ErrNotPending }

type AlreadyReconciledError struct {
	Label string
	Shift shift.ID
}

func (e *AlreadyReconciledError) Error() string {
	return fmt.Sprintf("%s was already reconciled for shift %s", e.Label, e.Shift)
}

func (e *AlreadyReconciledError) Unwrap() error { return ErrAlreadyReconciled }

// IncompleteReconciliationError lists every pending label that was not closed.
type IncompleteReconciliationError struct {
	Shift   shift.ID
	Missing []string
}

func (e *IncompleteReconciliationError) Error() string {
	return fmt.Sprintf("shift %s cannot close: missing closing weight for %s",
		e.Shift, strings.Join(e.Missing, ", "))
}

func (e *IncompleteReconciliationError) Unwrap() error { return ErrIncompleteReconciliation }

type AccessDeniedError struct {
	Actor  ActorID
	Reason string
}

func (e *AccessDeniedError) Error() string { return "access denied: " + e.Reason }

func (e *AccessDeniedError) Unwrap() error { return ErrAccessDenied }

// UpstreamError wraps a persistence or evidence-store failure. It matches
// both ErrUpstream and the wrapped cause.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if resubmitting the same request may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstream) || errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input
// or a business rule the caller violated.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrNotPending) ||
		errors.Is(err, ErrAlreadyReconciled) ||
		errors.Is(err, ErrIncompleteReconciliation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
