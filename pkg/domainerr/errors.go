// Package domainerr provides coded domain errors.
//
// Stores return sentinel errors (pkg/platform/sentinel) describing
// infrastructure facts; services translate them into coded errors that
// transports can map onto status codes. A coded error carries a stable Code,
// a human message, optional key/value metadata (field paths for validation
// failures) and an optional wrapped cause.
package domainerr

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Codes are stable and part of the API
// contract with transports.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeValidation         Code = "validation"
	CodeInvalidInput       Code = "invalid_input"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTenantMismatch     Code = "tenant_mismatch"
	CodeDependencyMissing  Code = "dependency_missing"
	CodeNotAvailable       Code = "not_available"
	CodeLeakedDiffs        Code = "leaked_diffs"
	CodeTimeout            Code = "timeout"
	CodeUnauthorized       Code = "unauthorized"
	CodeInternal           Code = "internal"
)

// Error is a coded domain error. Construct with New or Wrap.
type Error struct {
	Code    Code
	Message string
	Meta    map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause remains
// reachable through errors.Is / errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err is (or wraps) a coded domain error.
func Is(err error) bool {
	var de *Error
	return errors.As(err, &de)
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	if de.Code == code {
		return true
	}
	return HasCode(de.cause, code)
}

// CodeOf returns the outermost code of err, or CodeInternal when err is
// not a coded error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Add attaches a key/value pair to a coded error. Non-coded errors are
// wrapped as CodeInternal first so metadata is never silently dropped.
func Add(err error, key, value string) error {
	if err == nil {
		return nil
	}
	var de *Error
	if !errors.As(err, &de) {
		de = &Error{Code: CodeInternal, Message: err.Error(), cause: err}
	}
	if de.Meta == nil {
		de.Meta = make(map[string]string)
	}
	de.Meta[key] = value
	return de
}

// Load reads a metadata value attached with Add.
func Load(err error, key string) (string, bool) {
	var de *Error
	if !errors.As(err, &de) {
		return "", false
	}
	v, ok := de.Meta[key]
	return v, ok
}

// FieldKey is the conventional metadata key for the offending field path of
// a validation failure.
const FieldKey = "field"

// Validation constructs a validation failure pointing at a field path.
func Validation(field, message string) error {
	return Add(New(CodeValidation, message), FieldKey, field)
}
