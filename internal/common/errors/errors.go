// Package errors provides the standardized error taxonomy for the lifecycle
// engine. Business-rule violations are expected outcomes: they are returned
// to callers as typed values for direct user messaging, never panics. Only
// infrastructure failures are retryable.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed      ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidTransition     ErrorCode = "INVALID_TRANSITION"
	ErrCodeNotFound              ErrorCode = "NOT_FOUND"
	ErrCodeThreadClosed          ErrorCode = "THREAD_CLOSED"
	ErrCodeConcurrencyConflict   ErrorCode = "CONCURRENCY_CONFLICT"
	ErrCodeInfrastructureFailure ErrorCode = "INFRASTRUCTURE_FAILURE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// Error Constructors
// ==========================

// NewValidationError creates a non-retryable malformed-input error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError creates a non-retryable error for an action not
// allowed from the record's current derived status.
func NewInvalidTransitionError(action, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   fmt.Sprintf("Action '%s' is not allowed from the current status", action),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable missing-record error.
func NewNotFoundError(collection, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("Record not found in %s", collection),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewThreadClosedError creates a non-retryable error for a reply attempted on
// a closed thread.
func NewThreadClosedError(threadID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeThreadClosed,
		Message:   "Thread is closed and accepts no further replies",
		Details:   fmt.Sprintf("threadId: %s", threadID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConflictError creates a non-retryable lost-race error, e.g. a slot
// booked by another requester between read and write. Callers must re-check
// current state before trying again; a blind retry is never safe here.
func NewConflictError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConcurrencyConflict,
		Message:   "Record was modified concurrently",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInfrastructureError creates a retryable error for subscription drops,
// write timeouts and similar transport failures.
func NewInfrastructureError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInfrastructureFailure,
		Message:   fmt.Sprintf("Infrastructure failure during '%s'", operation),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Predicates
// ==========================

// CodeOf extracts the ErrorCode from err, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

func IsValidation(err error) bool        { return CodeOf(err) == ErrCodeValidationFailed }
func IsInvalidTransition(err error) bool { return CodeOf(err) == ErrCodeInvalidTransition }
func IsNotFound(err error) bool          { return CodeOf(err) == ErrCodeNotFound }
func IsThreadClosed(err error) bool      { return CodeOf(err) == ErrCodeThreadClosed }
func IsConflict(err error) bool          { return CodeOf(err) == ErrCodeConcurrencyConflict }
func IsInfrastructure(err error) bool    { return CodeOf(err) == ErrCodeInfrastructureFailure }

// IsRetryable reports whether err may be retried without re-checking state.
// Idempotent operations tolerate a retry after an infrastructure failure;
// non-idempotent ones (book) still must re-read first.
func IsRetryable(err error) bool {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return false
}
