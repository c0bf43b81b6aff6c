// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package saga

import (
	"errors"
	"fmt"
)

// predefined error codes
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeIllegalState       = "ILLEGAL_STATE"
	ErrCodeDelivery           = "DELIVERY_ERROR"
	ErrCodeOrphanEvent        = "ORPHAN_EVENT"
	ErrCodeCompensationFailed = "COMPENSATION_FAILED"
	ErrCodeSagaNotFound       = "SAGA_NOT_FOUND"
	ErrCodeRetryExhausted     = "RETRY_EXHAUSTED"
	ErrCodeStorage            = "STORAGE_ERROR"
)

// Error is the structured error type used across the saga engine.
// Code classifies the failure, Retryable tells callers whether another
// attempt can succeed, and Cause preserves the underlying error for
// errors.Is / errors.As inspection.
type Error struct {
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewValidationError reports a malformed request or an unknown saga type.
// The saga is never created; the caller gets the error synchronously.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewIllegalStateError reports a state transition that the saga state machine
// does not permit, e.g. a duplicate startStep or a write against a terminal
// instance. These indicate a programming or race bug; the triggering event is
// dropped and the saga is left unchanged.
func NewIllegalStateError(format string, args ...interface{}) *Error {
	return &Error{Code: ErrCodeIllegalState, Message: fmt.Sprintf(format, args...)}
}

// NewDeliveryError reports that the participant gateway could not deliver a
// command. Delivery errors are retryable by the orchestrator's backoff policy.
func NewDeliveryError(cause error, format string, args ...interface{}) *Error {
	return &Error{Code: ErrCodeDelivery, Message: fmt.Sprintf(format, args...), Retryable: true, Cause: cause}
}

// NewOrphanEventError reports an event that references an unknown saga or
// does not correlate to any outstanding step. Orphan events are logged and
// dropped; they never mutate state.
func NewOrphanEventError(sagaID, eventID string) *Error {
	return &Error{
		Code:    ErrCodeOrphanEvent,
		Message: fmt.Sprintf("event %s references unknown or stale saga %s", eventID, sagaID),
	}
}

// NewCompensationFailedError reports that a compensating command failed or
// exhausted its retries. The saga moves to FAILED and is surfaced for manual
// operator remediation.
func NewCompensationFailedError(stepName string, cause error) *Error {
	return &Error{
		Code:    ErrCodeCompensationFailed,
		Message: fmt.Sprintf("compensation for step %q failed", stepName),
		Cause:   cause,
	}
}

// NewSagaNotFoundError reports a lookup for a saga id that does not exist.
func NewSagaNotFoundError(sagaID string) *Error {
	return &Error{Code: ErrCodeSagaNotFound, Message: fmt.Sprintf("saga %q not found", sagaID)}
}

// NewRetryExhaustedError reports that an operation ran out of retry attempts.
func NewRetryExhaustedError(operation string, attempts int, cause error) *Error {
	return &Error{
		Code:    ErrCodeRetryExhausted,
		Message: fmt.Sprintf("retry attempts exhausted for %q after %d attempts", operation, attempts),
		Cause:   cause,
	}
}

// NewStorageError wraps a failure of the underlying audit store.
func NewStorageError(operation string, cause error) *Error {
	return &Error{
		Code:      ErrCodeStorage,
		Message:   fmt.Sprintf("audit store operation %q failed", operation),
		Retryable: true,
		Cause:     cause,
	}
}

// hasCode reports whether err is a saga *Error carrying the given code.
func hasCode(err error, code string) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsIllegalState reports whether err is an illegal state transition.
func IsIllegalState(err error) bool { return hasCode(err, ErrCodeIllegalState) }

// IsDelivery reports whether err is a command delivery failure.
func IsDelivery(err error) bool { return hasCode(err, ErrCodeDelivery) }

// IsOrphanEvent reports whether err marks an uncorrelatable event.
func IsOrphanEvent(err error) bool { return hasCode(err, ErrCodeOrphanEvent) }

// IsCompensationFailed reports whether err marks a failed compensation.
func IsCompensationFailed(err error) bool { return hasCode(err, ErrCodeCompensationFailed) }

// IsSagaNotFound reports whether err marks a missing saga instance.
func IsSagaNotFound(err error) bool { return hasCode(err, ErrCodeSagaNotFound) }

// IsRetryExhausted reports whether err marks exhausted retries.
func IsRetryExhausted(err error) bool { return hasCode(err, ErrCodeRetryExhausted) }

// IsRetryable reports whether another attempt of the failed operation can
// succeed.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
