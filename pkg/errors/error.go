package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType defines distinct categories for errors originating from rtsp2hls components.
type ErrorType string

const (
	// InvalidInput represents a missing or malformed source URL. It is always
	// reported before any encoder process is spawned.
	InvalidInput ErrorType = "invalid_input"
	// EncoderStartupFailure represents an encoder that could not be spawned or
	// that exited before the liveness check passed.
	EncoderStartupFailure ErrorType = "encoder_startup_failure"
	// EncoderRuntimeFailure represents an encoder that exited while running
	// without being asked to stop.
	EncoderRuntimeFailure ErrorType = "encoder_runtime_failure"
	// SystemError represents underlying system issues, such as output directory
	// creation or file deletion problems.
	SystemError ErrorType = "system_error"
)

// StructuredError represents a detailed error originating from rtsp2hls operations.
// It includes a type, message, optional details, timestamp, and a specific error code.
// It implements the standard Go `error` interface.
type StructuredError struct {
	// Type categorizes the error (e.g., InvalidInput, EncoderStartupFailure).
	Type ErrorType `json:"type"`
	// Message provides a concise, human-readable description of the error.
	Message string `json:"message"`
	// Details offers additional context, such as encoder diagnostic output.
	Details string `json:"details,omitempty"`
	// Timestamp marks when the error occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
	// Code provides a specific integer code unique to the error source within its type.
	Code int `json:"code"`

	cause error
}

// Error implements the standard `error` interface for StructuredError.
// It returns a formatted string including the error type, message, and details.
func (e *StructuredError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Message, e.Details)
}

// Unwrap returns the error passed to Wrap, if any.
func (e *StructuredError) Unwrap() error {
	return e.cause
}

// JSON returns the StructuredError serialized as a JSON string.
// Returns an empty string and an error if marshalling fails.
func (e *StructuredError) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// New creates a new StructuredError instance.
// It automatically sets the Timestamp to the current time.
func New(errorType ErrorType, message, details string, code int) *StructuredError {
	return &StructuredError{
		Type:      errorType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Format(time.RFC3339),
		Code:      code,
	}
}

// Wrap creates a new StructuredError, using the message from an existing standard Go error
// as the Details field. The original error stays reachable through errors.Unwrap.
// If the input error `err` is nil, Details will be empty.
func Wrap(err error, errorType ErrorType, message string, code int) *StructuredError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	se := New(errorType, message, details, code)
	se.cause = err
	return se
}

// As extracts the first StructuredError in err's chain.
func As(err error) (*StructuredError, bool) {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsType reports whether err carries a StructuredError of the given type.
func IsType(err error, errorType ErrorType) bool {
	se, ok := As(err)
	return ok && se.Type == errorType
}
