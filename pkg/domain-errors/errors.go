// Package domainerrors defines coded errors for the settlement pipeline.
//
// Every caller-facing failure carries exactly one Code so the command surface
// and tests can branch on the kind of failure without string matching.
// Infrastructure facts (sentinel errors) are wrapped into these at the
// engine boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation covers malformed or missing ids and sender==receiver.
	// Detected before any mutation; fully recoverable.
	CodeValidation Code = "validation"
	// CodeNotFound covers unknown wallet/token/voucher/transfer ids.
	CodeNotFound Code = "not_found"
	// CodeNotOwner means the sender does not own the token being moved.
	CodeNotOwner Code = "not_owner"
	// CodeVoucherRejected means the voucher is unusable: wrong owner,
	// already used, or over its spend limit.
	CodeVoucherRejected Code = "voucher_rejected"
	// CodeExecutionFailure means an ownership move or voucher redemption
	// failed after validation passed. Partial mutations may have committed.
	CodeExecutionFailure Code = "execution_failure"
	// CodeSignatureMismatch covers offline signing with a non-participant
	// wallet or a signature that does not match the canonical payload.
	CodeSignatureMismatch Code = "signature_mismatch"
	// CodeInvalidInput covers out-of-range values (non-positive token value
	// or voucher limit).
	CodeInvalidInput Code = "invalid_input"
	// CodeInternal is the catch-all for unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// Error is a domain error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
