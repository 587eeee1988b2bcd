// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Invalid parameters and configuration
//   - Data/Resource errors (200-299): Historical data, journal and query failures
//   - Indicator errors (300-399): Indicator calculation and sample ordering errors
//   - Trading errors (500-599): Broker requests, rejections and reconciliation
//   - Notification errors (800-899): Outbound alert delivery failures
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidConfiguration, "symbol is required")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeOutOfOrderSample, "sample at %s is not after %s", ts, last)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeBrokerRequest, "failed to list open orders", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeBrokerRejection) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// HasCodeInChain reports whether any *Error in err's chain carries code.
// Unlike HasCode it looks past the outermost coded error.
func HasCodeInChain(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}

		if e.Code == code {
			return true
		}

		err = e.Cause
	}

	return false
}

// IsBrokerRequest reports whether err is a transient broker request failure.
func IsBrokerRequest(err error) bool {
	return HasCodeInChain(err, ErrCodeBrokerRequest)
}

// IsBrokerRejection reports whether the broker semantically rejected the request.
func IsBrokerRejection(err error) bool {
	return HasCodeInChain(err, ErrCodeBrokerRejection)
}

// IsDefect reports whether err signals a programming or data defect that must
// abort the current cycle instead of being retried silently.
func IsDefect(err error) bool {
	return HasCodeInChain(err, ErrCodeOutOfOrderSample) ||
		HasCodeInChain(err, ErrCodeReconciliationConflict)
}
