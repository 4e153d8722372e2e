/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with errors.Is/As; the HTTP layer maps these to
  status codes.

ERROR CATEGORIES:
  1. Validation errors - bad ranges, missing policy/calendar, notice violations
  2. Balance errors - insufficient balance on reserve/consume
  3. Workflow errors - invalid transitions, wrong approver role
  4. Store errors - idempotency conflicts, concurrent modification

No error in this package is process-fatal; everything is recoverable at the
request boundary.
*/
package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a reservation or consumption
	// would drive remaining below zero and the policy forbids it.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidTransition is returned when a workflow operation targets a
	// request already in a terminal state.
	ErrInvalidTransition = errors.New("invalid request transition")

	// ErrUnauthorizedRole is returned when the deciding role is not the next
	// pending step in the request's approval flow.
	ErrUnauthorizedRole = errors.New("role not authorized for this step")

	// ErrPolicyNotFound is returned when no policy is configured for a
	// leave type at the given effective date.
	ErrPolicyNotFound = errors.New("leave policy not found")

	// ErrCalendarNotFound is returned when no calendar is configured for a year.
	ErrCalendarNotFound = errors.New("calendar not found")

	// ErrRequestNotFound is returned when a request ID does not resolve.
	ErrRequestNotFound = errors.New("leave request not found")

	// ErrLeaveTypeNotFound is returned when a leave type ID does not resolve.
	ErrLeaveTypeNotFound = errors.New("leave type not found")

	// ErrDuplicateIdempotencyKey is returned when a ledger entry with the same
	// idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConcurrencyConflict is returned by optimistic stores when a write
	// loses a race on a serialized key.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")
)

// =============================================================================
// VALIDATION ERROR - Submission-time rule violations
// =============================================================================

// Validation failure codes.
const (
	CodeInvalidRange      = "invalid_date_range"
	CodeMissingPolicy     = "missing_policy"
	CodeMissingCalendar   = "missing_calendar"
	CodeNoticeTooShort    = "notice_period_violation"
	CodeBlockedPeriod     = "blocked_period_conflict"
	CodeMissingAttachment = "missing_attachment"
	CodeZeroWorkingDays   = "zero_working_days"
	CodeBadAmount         = "bad_amount"
	CodeMissingActor      = "missing_actor"
)

// ValidationError is surfaced to the caller and never retried automatically.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Year        int
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Requested.Sub(e.Available))
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// TransitionError records which transition was refused and why.
type TransitionError struct {
	RequestID RequestID
	Status    RequestStatus
	Attempted string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s request %s in status %s", e.Attempted, e.RequestID, e.Status)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// RoleError records which role was refused for which step.
type RoleError struct {
	RequestID RequestID
	Role      string
	Expected  string
}

func (e *RoleError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("role %q is not part of the approval flow for request %s", e.Role, e.RequestID)
	}
	return fmt.Sprintf("role %q cannot decide request %s: next step belongs to %q", e.Role, e.RequestID, e.Expected)
}

func (e *RoleError) Unwrap() error {
	return ErrUnauthorizedRole
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid caller input or a
// business-rule violation, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrUnauthorizedRole) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing configuration or record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrCalendarNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrLeaveTypeNotFound)
}
