/*
errors.go - Business error taxonomy for the rewards core

PURPOSE:
  Every failure the core raises on purpose is one of five kinds. Each kind
  carries a stable Code the UI can render verbatim and unwraps to a
  sentinel so callers can branch with errors.Is.

ERROR KINDS:
  NotFoundError    Entity missing, or owned by another tenant
  EligibilityError Tier, status or usage gate failed
  ConflictError    Duplicate claim, entry or one-shot action
  ValidationError  Malformed payload or request
  InternalError    Persistence or transaction failure

  The core never encodes transport status. The api package maps kinds to
  HTTP codes.

STORE SENTINELS:
  Store implementations return ErrDuplicateClaim / ErrDuplicateEntry when a
  uniqueness constraint rejects a write. Those constraints are the
  authoritative backstop; service pre-checks only produce nicer messages.

SEE ALSO:
  - store.go: persistence interfaces returning the store sentinels
  - api/errors.go: kind to HTTP status mapping
*/
package loyalty

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound    = errors.New("not found")
	ErrNotEligible = errors.New("not eligible")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation failed")
	ErrInternal    = errors.New("internal error")

	// ErrDuplicateClaim is returned by a store when a second non-terminal
	// redemption with the same claim key is written.
	ErrDuplicateClaim = errors.New("duplicate active redemption")

	// ErrDuplicateEntry is returned by a store when a user enters the same
	// raffle twice.
	ErrDuplicateEntry = errors.New("duplicate raffle participation")

	// ErrWinnerAlreadySelected is returned when a raffle winner is drawn twice.
	ErrWinnerAlreadySelected = errors.New("raffle winner already selected")

	// ErrInvalidTransition is returned when a redemption would move backwards.
	ErrInvalidTransition = errors.New("invalid redemption transition")

	// ErrInvalidRewardValue is returned when a reward's value data does not
	// match its type.
	ErrInvalidRewardValue = errors.New("invalid reward value")
)

// =============================================================================
// CODES
// =============================================================================

const (
	CodeNotFound               = "NOT_FOUND"
	CodeNotEligible            = "NOT_ELIGIBLE"
	CodeAlreadyClaimed         = "ALREADY_CLAIMED"
	CodeAlreadyEntered         = "ALREADY_ENTERED"
	CodeNotARaffle             = "NOT_A_RAFFLE"
	CodeInvalidPayload         = "INVALID_PAYLOAD"
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeLimitReached           = "LIMIT_REACHED"
	CodePaymentAccountMismatch = "PAYMENT_ACCOUNT_MISMATCH"
	CodePaymentInfoNotRequired = "PAYMENT_INFO_NOT_REQUIRED"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeWinnerAlreadySelected  = "WINNER_ALREADY_SELECTED"
	CodeInternal               = "INTERNAL"
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError reports a missing or cross-tenant entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// EligibilityError reports a failed tier, status or usage gate.
type EligibilityError struct {
	Code    string
	Message string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EligibilityError) Unwrap() error { return ErrNotEligible }

// ConflictError reports a duplicate claim, entry or repeated one-shot action.
type ConflictError struct {
	Code    string
	Message string
	Err     error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both ErrConflict and the underlying store error.
func (e *ConflictError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConflict}
	}
	return []error{ErrConflict, e.Err}
}

// ValidationError reports a malformed request or payload.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InternalError wraps an unexpected persistence failure.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() []error { return []error{ErrInternal, e.Err} }

// =============================================================================
// CONSTRUCTORS
// =============================================================================

func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

func NotEligible(code, format string, args ...any) error {
	return &EligibilityError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Conflict(code string, err error, format string, args ...any) error {
	return &ConflictError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func Invalid(code, field, format string, args ...any) error {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps err unless it already belongs to the business taxonomy.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsBusiness(err) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict returns true for duplicate claims, entries and one-shot repeats.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsClientError returns true if the error is due to the caller's request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNotEligible) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation)
}

// IsBusiness returns true for any error in the taxonomy.
func IsBusiness(err error) bool {
	return IsClientError(err) || errors.Is(err, ErrInternal)
}

// CodeOf returns the stable code carried by err, or CodeInternal.
func CodeOf(err error) string {
	var (
		nf *NotFoundError
		el *EligibilityError
		cf *ConflictError
		va *ValidationError
		tr *TransitionError
	)
	switch {
	case errors.As(err, &nf):
		return CodeNotFound
	case errors.As(err, &el):
		return el.Code
	case errors.As(err, &cf):
		return cf.Code
	case errors.As(err, &va):
		return va.Code
	case errors.As(err, &tr):
		return CodeInvalidTransition
	default:
		return CodeInternal
	}
}
