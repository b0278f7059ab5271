/*
errors.go - Error taxonomy for the tabular data-access layer

PURPOSE:
  All store-level errors in one place. The retry policy classifies raw
  backend failures into these categories; everything above the client
  matches on them with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Permanent     - NotFound, SchemaMismatch (never retried)
  2. Fail-fast     - AuthFailure, Timeout (never retried)
  3. Rate limited  - QuotaExceeded (retried with long backoff, then surfaced)
  4. Transient     - everything else (retried with short backoff, then surfaced)

USAGE:
    rows, err := client.ListAll(ctx, table, headers)
    if errors.Is(err, tabular.ErrQuotaExceeded) {
        // tell the user to try again in a few minutes
    }

SEE ALSO:
  - retry.go: Classification and retry strategies
  - backend.go: StatusError produced by backends
*/
package tabular

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when no row carries the requested key.
	ErrNotFound = errors.New("row not found")

	// ErrSchemaMismatch is returned when stored headers differ from the
	// expected header list and the table has not been bootstrapped.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrQuotaExceeded is returned when the remote store keeps rate limiting
	// after the quota retry budget is spent.
	ErrQuotaExceeded = errors.New("remote store quota exceeded")

	// ErrAuthFailure is returned for 401/403 responses. Never retried.
	ErrAuthFailure = errors.New("remote store rejected credentials")

	// ErrTimeout is returned when a remote call hits its deadline. Never retried.
	ErrTimeout = errors.New("remote store call timed out")

	// ErrTransient is returned when a generic failure survives all retries.
	ErrTransient = errors.New("remote store unavailable")

	// ErrDuplicateKey is returned when a create would reuse an existing key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnknownColumn is returned when a partial write names a column the
	// schema does not have.
	ErrUnknownColumn = errors.New("unknown column")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StatusError is a non-2xx response from a backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote store returned status %d", e.Code)
	}
	return fmt.Sprintf("remote store returned status %d: %s", e.Code, e.Message)
}

// NotFoundError names the missing key.
type NotFoundError struct {
	Table     string
	KeyColumn string
	Key       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no row with %s=%q", e.Table, e.KeyColumn, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// SchemaMismatchError carries both header lists so operators can see the drift.
type SchemaMismatchError struct {
	Table    string
	Expected []string
	Actual   []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: headers [%s] do not match expected [%s]",
		e.Table, strings.Join(e.Actual, ", "), strings.Join(e.Expected, ", "))
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// QuotaExceededError is raised once the quota retry budget is exhausted.
type QuotaExceededError struct {
	Op       string
	Attempts int
	Cause    error
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: quota exceeded after %d attempts, try again in a few minutes: %v",
		e.Op, e.Attempts, e.Cause)
}

// Unwrap exposes both the sentinel and the last backend error.
func (e *QuotaExceededError) Unwrap() []error { return []error{ErrQuotaExceeded, e.Cause} }

// ClassifiedError tags a backend failure with its retry class.
type ClassifiedError struct {
	Op       string
	Class    ErrorClass
	Attempts int
	Cause    error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempt(s): %v", e.Op, e.Class, e.Attempts, e.Cause)
}

func (e *ClassifiedError) Unwrap() []error {
	var sentinel error
	switch e.Class {
	case ClassAuth:
		sentinel = ErrAuthFailure
	case ClassTimeout:
		sentinel = ErrTimeout
	case ClassQuota:
		sentinel = ErrQuotaExceeded
	default:
		sentinel = ErrTransient
	}
	return []error{sentinel, e.Cause}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsQuota returns true if the caller should be told to try again shortly.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsRetryable returns true if a later attempt might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrTransient)
}
