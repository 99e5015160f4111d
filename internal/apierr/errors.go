// Package apierr provides the adapter-facing error type. The telemetry
// core itself never returns these; it signals rejection with a
// documented sentinel (nil/absent), and the HTTP adapter maps those
// sentinels to an APIError when it chooses to reject a request.
package apierr

import (
	"fmt"
	"net/http"
)

// APIError represents an adapter-facing error with an HTTP status code.
type APIError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// New creates a new APIError.
func New(code, message string, status int) *APIError {
	return &APIError{Code: code, Message: message, Status: status}
}

// Wrap wraps an error with APIError information.
func Wrap(err error, code, message string, status int) *APIError {
	return &APIError{Code: code, Message: message, Status: status, Err: err}
}

// Predefined adapter errors for the telemetry ingestion surface.
var (
	ErrInvalidPayload  = New("INVALID_PAYLOAD", "malformed sensor packet", http.StatusBadRequest)
	ErrUnknownDevice   = New("UNKNOWN_DEVICE", "device not found", http.StatusNotFound)
	ErrInternal        = New("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
)
