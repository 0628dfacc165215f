// Package errors provides the standardized error taxonomy for the lifecycle
// and reminder engine. Codes are stable so external callers can automate
// retries (retryable codes only).
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidTransition      ErrorCode = "INVALID_TRANSITION"
	ErrCodeInvalidSchedule        ErrorCode = "INVALID_SCHEDULE"
	ErrCodeRequestClosed          ErrorCode = "REQUEST_CLOSED"
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodeDispatchFailed         ErrorCode = "DISPATCH_FAILED"
	ErrCodeAlreadyReviewed        ErrorCode = "ALREADY_REVIEWED"
	ErrCodeMissingRemarks         ErrorCode = "MISSING_REMARKS"
	ErrCodeUnauthorized           ErrorCode = "UNAUTHORIZED"
	ErrCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrCodeDuplicateEntity        ErrorCode = "DUPLICATE_ENTITY"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// HasCode reports whether err is a StandardError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsRetryable reports whether the error is safe for the caller to retry.
func IsRetryable(err error) bool {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// NewInvalidTransitionError creates a non-retryable state machine rule violation.
func NewInvalidTransitionError(entity, from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "State transition not permitted",
		Details:   fmt.Sprintf("entity: %s, from: %s, to: %s", entity, from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidScheduleError creates a non-retryable recurrence rule error.
func NewInvalidScheduleError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidSchedule,
		Message:   "Malformed or contradictory recurrence rule",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRequestClosedError signals a mutation attempted on a cancelled or
// completed request.
func NewRequestClosedError(requestID, status string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRequestClosed,
		Message:   "Request no longer accepts transitions",
		Details:   fmt.Sprintf("requestId: %s, status: %s", requestID, status),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConcurrentModificationError signals a lost race on an atomic update.
// Safe for the caller to retry.
func NewConcurrentModificationError(entity, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConcurrentModification,
		Message:   "Lost race on atomic update",
		Details:   fmt.Sprintf("entity: %s, id: %s", entity, id),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDispatchFailure creates a retryable channel dispatch error. Handled
// internally by the reminder engine until retries are exhausted.
func NewDispatchFailure(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDispatchFailed,
		Message:   "Channel dispatch failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlreadyReviewedError signals a decision on an approval that already
// carries one.
func NewAlreadyReviewedError(approvalID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlreadyReviewed,
		Message:   "Approval already reviewed",
		Details:   fmt.Sprintf("approvalId: %s", approvalID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingRemarksError signals a rejection without mandatory remarks.
func NewMissingRemarksError(approvalID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingRemarks,
		Message:   "Remarks are mandatory for this decision",
		Details:   fmt.Sprintf("approvalId: %s", approvalID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnauthorizedError signals the actor's role does not permit the operation.
func NewUnauthorizedError(actorID, action string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorized,
		Message:   "Actor not authorized for operation",
		Details:   fmt.Sprintf("actor: %s, action: %s", actorID, action),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError signals a missing entity.
func NewNotFoundError(entity, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   "Entity not found",
		Details:   fmt.Sprintf("entity: %s, id: %s", entity, id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationFailedError signals malformed input data.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateEntityError signals a uniqueness violation. Occurrence
// generation treats this as a no-op, not a failure.
func NewDuplicateEntityError(entity, key string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateEntity,
		Message:   "Entity already exists",
		Details:   fmt.Sprintf("entity: %s, key: %s", entity, key),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
