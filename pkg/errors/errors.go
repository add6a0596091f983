// Package errors provides structured error types for stackpm.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the install engine
//   - Machine-readable error codes for programmatic handling
//   - A clear split between user errors and operational errors
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures
//   - NOT_*: Missing resources or state
//   - NETWORK_*, INTEGRITY, UNAUTHORIZED: Operational failures
//   - INTERNAL_*: Unexpected internal errors
//
// # User vs operational errors
//
// User errors (bad input, ambiguous selectors, lock contention) are reported
// directly and never retried. Operational errors (network, registry, source)
// are wrapped with the package being installed at every recursion level so the
// final message reads as a causal chain:
//
//	unable to install "left": unable to install "right": NETWORK_ERROR: ...
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidName, "invalid package name %q", s)
//	if errors.Is(err, errors.ErrCodeInvalidName) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "failed to fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidName     Code = "INVALID_NAME"
	ErrCodeInvalidTarget   Code = "INVALID_TARGET"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidPath     Code = "INVALID_PATH"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"

	// User errors raised by the installer
	ErrCodeAmbiguousSelector Code = "AMBIGUOUS_SELECTOR"
	ErrCodeBusy              Code = "BUSY"
	ErrCodeLocked            Code = "LOCKED"
	ErrCodeNotInstalled      Code = "NOT_INSTALLED"
	ErrCodeLinked            Code = "LINKED"
	ErrCodeCheckedOut        Code = "CHECKED_OUT"

	// Resolution errors
	ErrCodeNoResolution Code = "NO_RESOLUTION"
	ErrCodeNotFound     Code = "NOT_FOUND"

	// Operational errors
	ErrCodeNetwork       Code = "NETWORK_ERROR"
	ErrCodeTimeout       Code = "TIMEOUT"
	ErrCodeIntegrity     Code = "INTEGRITY"
	ErrCodeUnauthorized  Code = "UNAUTHORIZED"
	ErrCodeForbidden     Code = "FORBIDDEN"
	ErrCodeInstallFailed Code = "INSTALL_FAILED"
	ErrCodeRegistry      Code = "REGISTRY_ERROR"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// userCodes are reported to the user as-is and never retried.
var userCodes = map[Code]bool{
	ErrCodeInvalidInput:      true,
	ErrCodeInvalidName:       true,
	ErrCodeInvalidTarget:     true,
	ErrCodeInvalidManifest:   true,
	ErrCodeInvalidPath:       true,
	ErrCodeInvalidConfig:     true,
	ErrCodeAmbiguousSelector: true,
	ErrCodeBusy:              true,
	ErrCodeLocked:            true,
	ErrCodeNotInstalled:      true,
	ErrCodeLinked:            true,
	ErrCodeCheckedOut:        true,
}

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

// coder is implemented by typed errors that carry a code, such as
// *IntegrityError and the name errors of package pkgname.
type coder interface {
	Code() Code
}

// codeOf returns the code carried directly by err, without unwrapping.
func codeOf(err error) (Code, bool) {
	switch e := err.(type) {
	case *Error:
		return e.Code, true
	case coder:
		return e.Code(), true
	}
	return "", false
}

// Is reports whether err has the given error code anywhere in its chain.
func Is(err error, code Code) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		if c, ok := codeOf(err); ok && c == code {
			return true
		}
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if no error in the chain carries a code.
func GetCode(err error) Code {
	for ; err != nil; err = errors.Unwrap(err) {
		if c, ok := codeOf(err); ok {
			return c
		}
	}
	return ""
}

// IsUserError reports whether the outermost coded error in err's chain is a
// user error. Wrapped install failures are unwrapped until a user code or a
// non-install code is found.
func IsUserError(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		c, ok := codeOf(err)
		if !ok {
			continue
		}
		if userCodes[c] {
			return true
		}
		if c != ErrCodeInstallFailed {
			return false
		}
	}
	return false
}

// UserMessage returns a user-friendly message for the error.
// For *Error types the code prefix is dropped at every level of the chain.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + UserMessage(e.Cause)
}

// IntegrityError reports a digest mismatch for downloaded content.
type IntegrityError struct {
	Source   string // Locator that was downloaded
	Expected string // Digest from the integrity fragment
	Actual   string // Digest computed while streaming
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %s, got %s", e.Source, e.Expected, e.Actual)
}

// Code returns the error code for this error type.
func (e *IntegrityError) Code() Code {
	return ErrCodeIntegrity
}
