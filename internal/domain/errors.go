// Package domain defines core types, interfaces, and errors for the
// provisioning service.
package domain

import "fmt"

// NotFoundError indicates a required reference object is absent.
// Optional-existence lookups return a nil result instead of this error.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid or contradictory input. Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a duplicate creation where policy forbids it.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// RemoteAPIError indicates the platform returned a non-2xx response.
// It carries the upstream status and body for audit evidence.
type RemoteAPIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s %s failed: %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// TransportError indicates the platform was unreachable after the retry
// budget was exhausted.
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Message  string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s network error after %d attempts: %s", e.Method, e.URL, e.Attempts, e.Message)
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
