package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for the failure taxonomy
const (
	// General errors
	ErrUnknown  ErrorCode = "UNKNOWN"
	ErrInternal ErrorCode = "INTERNAL"
	// ErrAborted: the user declined a confirmation; nothing was touched.
	ErrAborted ErrorCode = "ABORTED"

	// Configuration errors (pre-flight, fatal)
	ErrConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Remote errors
	ErrRemoteCommand  ErrorCode = "REMOTE_COMMAND"
	ErrNoArtifact     ErrorCode = "NO_ARTIFACT"
	ErrTransferFailed ErrorCode = "TRANSFER_FAILED"
	// ErrTransferUnverified means the transfer subprocess reported success
	// but the destination file never became visible locally.
	ErrTransferUnverified ErrorCode = "TRANSFER_UNVERIFIED"

	// Pipeline errors
	ErrDecryptionFailed ErrorCode = "DECRYPTION_FAILED"
	ErrExpansionFailed  ErrorCode = "EXPANSION_FAILED"

	// Disposal errors
	ErrDisposalIncomplete ErrorCode = "DISPOSAL_INCOMPLETE"
	// ErrManualIntervention is terminal: cleanup retries exhausted while
	// confidential material may still be on disk.
	ErrManualIntervention ErrorCode = "MANUAL_INTERVENTION"
)

// BackhaulError represents a structured error with code and details
type BackhaulError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *BackhaulError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *BackhaulError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *BackhaulError) Is(target error) bool {
	var targetErr *BackhaulError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new BackhaulError with the given code and message
func New(code ErrorCode, message string) *BackhaulError {
	return &BackhaulError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new BackhaulError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *BackhaulError {
	return &BackhaulError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a BackhaulError
func Wrap(err error, code ErrorCode, message string) *BackhaulError {
	if err == nil {
		return nil
	}
	return &BackhaulError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *BackhaulError {
	if err == nil {
		return nil
	}
	return &BackhaulError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail key-value pair to the error
func (e *BackhaulError) WithDetail(key string, value interface{}) *BackhaulError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetCode extracts the error code from an error, returning ErrUnknown
// for errors that are not BackhaulErrors
func GetCode(err error) ErrorCode {
	var bhErr *BackhaulError
	if errors.As(err, &bhErr) {
		return bhErr.Code
	}
	return ErrUnknown
}

// IsCode checks whether err carries the given code anywhere in its chain
func IsCode(err error, code ErrorCode) bool {
	var bhErr *BackhaulError
	if errors.As(err, &bhErr) {
		return bhErr.Code == code
	}
	return false
}
