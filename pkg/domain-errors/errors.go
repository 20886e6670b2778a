// Package domainerrors carries coded errors across service boundaries.
//
// Services return *Error values (or wrap infrastructure errors with Wrap) so
// transports can map a Code onto a status without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport translation and result reporting.
type Code string

const (
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeBadRequest         Code = "bad_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"

	// Pipeline outcomes.
	CodeUnresolvedIdentity    Code = "unresolved_identity"
	CodeDuplicatePunch        Code = "duplicate_punch"
	CodeNoCheckIn             Code = "no_check_in"
	CodeDuplicateCheckIn      Code = "duplicate_checkin"
	CodeSequenceViolation     Code = "sequence_violation"
	CodeTamperSuspected       Code = "tamper_suspected"
	CodeQueueSaturated        Code = "queue_saturated"
	CodeDependencyUnavailable Code = "dependency_unavailable"
	CodeAuditWriteFailed      Code = "audit_write_failed"

	// Warnings attached to accepted punches.
	CodeLowVerificationQuality Code = "low_verification_quality"
	CodeShiftUnavailable       Code = "shift_unavailable"
	CodeOpenBreakClosed        Code = "open_break_closed"
)

// Error is a coded domain error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if errors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.Err
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is is errors.Is, re-exported so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
