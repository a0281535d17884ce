// Package errors provides structured error types for the sublime workspace engine.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI, library, and daemon
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes map one-to-one onto the user-visible failure kinds of the workspace
// engine: configuration problems, discovery failures, graph findings, planner
// failures, task failures, and transport errors.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeManifestShape, "missing name in %s", path)
//	if errors.Is(err, errors.ErrCodeManifestShape) {
//	    // Handle malformed manifest
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeTimeout, origErr, "running %s in %s", task, pkg)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different failure categories.
const (
	// Configuration and discovery
	ErrCodeConfigInvalid Code = "CONFIG_INVALID"
	ErrCodeNotAProject   Code = "NOT_A_PROJECT"
	ErrCodeManifestParse Code = "MANIFEST_PARSE"
	ErrCodeManifestShape Code = "MANIFEST_SHAPE"

	// Graph and resolution
	ErrCodeCycle           Code = "CYCLE"
	ErrCodeSelfDependency  Code = "SELF_DEPENDENCY"
	ErrCodeVersionConflict Code = "VERSION_CONFLICT"
	ErrCodeUnresolvable    Code = "UNRESOLVABLE"

	// Changesets
	ErrCodeChangesetInvalid   Code = "CHANGESET_INVALID"
	ErrCodeChangesetCollision Code = "CHANGESET_COLLISION"
	ErrCodeChangesetNotFound  Code = "CHANGESET_NOT_FOUND"

	// Execution
	ErrCodeTaskFailed Code = "TASK_FAILED"
	ErrCodeTimeout    Code = "TIMEOUT"
	ErrCodeCancelled  Code = "CANCELLED"

	// Daemon transport
	ErrCodeDaemonUnreachable Code = "DAEMON_UNREACHABLE"
	ErrCodeInvalidMessage    Code = "INVALID_MESSAGE"

	// Generic
	ErrCodeNotFound    Code = "NOT_FOUND"
	ErrCodeNetwork     Code = "NETWORK_ERROR"
	ErrCodeRateLimited Code = "RATE_LIMITED"
	ErrCodeInternal    Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// CLI exit codes.
const (
	ExitOK         = 0
	ExitGeneric    = 1
	ExitConfig     = 2
	ExitValidation = 3
	ExitTask       = 4
	ExitCancelled  = 5
)

// ExitCode maps an error to the CLI exit code contract:
// 0 success, 1 generic failure, 2 configuration error, 3 validation failure,
// 4 task failure, 5 cancellation.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch GetCode(err) {
	case ErrCodeConfigInvalid:
		return ExitConfig
	case ErrCodeChangesetInvalid, ErrCodeManifestShape, ErrCodeVersionConflict:
		return ExitValidation
	case ErrCodeTaskFailed:
		return ExitTask
	case ErrCodeCancelled:
		return ExitCancelled
	default:
		return ExitGeneric
	}
}

// RateLimitedError provides additional information for rate-limited registry responses.
type RateLimitedError struct {
	RetryAfter int // Seconds to wait before retrying
	Message    string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfter)
	}
	return "rate limited"
}

// Code returns the error code for this error type.
func (e *RateLimitedError) Code() Code {
	return ErrCodeRateLimited
}
