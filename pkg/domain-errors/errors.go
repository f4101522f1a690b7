// Package domainerrors provides coded errors for the flow domain. Services
// and machines return these so transport layers can map them to responses
// and callers can branch on the code without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeInternal           Code = "internal"
	CodeValidation         Code = "validation"
	CodeInvalidInput       Code = "invalid_input"
	CodeBadRequest         Code = "bad_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	// CodeConfigInvalid marks a tenant configuration that fails validation.
	// Terminal for the flow instance; only a full restart recovers.
	CodeConfigInvalid Code = "config_invalid"

	// CodeChallengeFailed marks a wrong or expired challenge code. Local and
	// recoverable; the challenge token stays usable until it expires.
	CodeChallengeFailed Code = "challenge_failed"

	// CodeBusinessRule marks a specific server-declared business rejection
	// (e.g. "business not owned by this user"), distinct from generic
	// onboarding failures so the UI can show a targeted message.
	CodeBusinessRule Code = "business_rule"

	// CodeTransport marks a network-level failure on an upstream request,
	// distinct from a business failure carried in a well-formed response.
	CodeTransport Code = "transport"
)

// Error is a coded domain error with an optional wrapped cause.
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
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil when err is nil so
// call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err carries
// none.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// Is defers to errors.Is so callers can keep a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
