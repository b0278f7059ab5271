/*
errors.go - Domain errors for the workforce rules

PURPOSE:
  Business-rule violations raised by the workforce package. Store failures
  are not repeated here: they come from the tabular package and are matched
  with tabular.ErrNotFound, tabular.ErrQuotaExceeded and friends.

ERROR CATEGORIES:
  1. Validation  - malformed input (missing fields, bad ranges)
  2. Lifecycle   - illegal status changes (not pending, bad bug transition)
  3. Half-day    - HalfDayRejection carrying a machine-readable reason

SEE ALSO:
  - halfday.go: Produces HalfDayRejection
  - applications.go, bugs.go: Produce lifecycle errors
  - tabular/errors.go: Store-level taxonomy
*/
package workforce

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input fails a field-level check.
	ErrValidation = errors.New("validation failed")

	// ErrNotPending is returned when approving or rejecting an application
	// that has already been decided.
	ErrNotPending = errors.New("application is not pending")

	// ErrApproverRequired is returned when a decision names no approver.
	ErrApproverRequired = errors.New("approver is required")

	// ErrInvalidTransition is returned for a bug status change the
	// lifecycle does not allow, and for a task set to Delayed by hand.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrHalfDayRejected is the sentinel behind every HalfDayRejection.
	ErrHalfDayRejected = errors.New("half-day request rejected")

	// ErrInactiveUser is returned when an operation needs an active user.
	ErrInactiveUser = errors.New("user is inactive")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// RejectionReason is why a half-day request was refused.
type RejectionReason string

const (
	ReasonMultiDay RejectionReason = "multi_day"
	ReasonHoliday  RejectionReason = "holiday"
	ReasonPastDate RejectionReason = "past_date"
)

// HalfDayRejection is returned by ValidateHalfDay.
type HalfDayRejection struct {
	Reason RejectionReason
	Date   Date
}

func (e *HalfDayRejection) Error() string {
	switch e.Reason {
	case ReasonMultiDay:
		return "half-day requests must start and end on the same date"
	case ReasonHoliday:
		return fmt.Sprintf("%s is a holiday, half-day requests need a working day", e.Date)
	case ReasonPastDate:
		return fmt.Sprintf("%s is in the past, half-day requests cannot be backdated", e.Date)
	}
	return fmt.Sprintf("half-day request rejected: %s", e.Reason)
}

func (e *HalfDayRejection) Unwrap() error { return ErrHalfDayRejected }

// TransitionError names the refused bug status change.
type TransitionError struct {
	From BugStatus
	To   BugStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move bug from %q to %q", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
