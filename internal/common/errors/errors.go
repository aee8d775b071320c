// Package errors provides standardized error handling for the catalog client.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamBadStatus   ErrorCode = "UPSTREAM_BAD_STATUS"
	ErrCodeUpstreamTooLarge    ErrorCode = "UPSTREAM_BODY_TOO_LARGE"

	ErrCodeInvalidSearchRequest ErrorCode = "INVALID_SEARCH_REQUEST"

	ErrCodeCacheFailure ErrorCode = "CACHE_FAILURE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the transport error, if any, to errors.Is / errors.As.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. Error Constructors
// ==========================

// NewUpstreamUnavailableError creates a retryable connection-level error.
func NewUpstreamUnavailableError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamUnavailable,
		Message:   "Catalog upstream unreachable",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Metadata:  map[string]interface{}{"operation": operation},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewUpstreamTimeoutError creates a retryable timeout error.
func NewUpstreamTimeoutError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamTimeout,
		Message:   "Catalog upstream timeout",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Metadata:  map[string]interface{}{"operation": operation},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewUpstreamStatusError maps an HTTP status to an error. Server errors and
// throttling are retryable, other client errors are not.
func NewUpstreamStatusError(operation string, status int) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamBadStatus,
		Message:   "Catalog upstream returned unexpected status",
		Details:   fmt.Sprintf("operation: %s, status: %d", operation, status),
		Retryable: status >= http.StatusInternalServerError || status == http.StatusTooManyRequests,
		Metadata:  map[string]interface{}{"operation": operation, "status": status},
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamBodyTooLargeError reports a response body over the read limit.
// Retrying would fetch the same body, so it is not retryable.
func NewUpstreamBodyTooLargeError(operation string, limit int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamTooLarge,
		Message:   "Catalog upstream body exceeds the read limit",
		Details:   fmt.Sprintf("operation: %s, limit: %d bytes", operation, limit),
		Retryable: false,
		Metadata:  map[string]interface{}{"operation": operation, "limit": limit},
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidSearchRequestError creates a non-retryable validation error.
func NewInvalidSearchRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidSearchRequest,
		Message:   "Invalid search request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheFailureError wraps a cache backend failure. These are logged, never returned to callers.
func NewCacheFailureError(backend string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheFailure,
		Message:   "Response cache backend failure",
		Details:   fmt.Sprintf("backend: %s, error: %s", backend, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// FromTransportError classifies an error returned by http.Client.Do.
func FromTransportError(operation string, err error) *StandardError {
	if isTimeout(err) {
		return NewUpstreamTimeoutError(operation, err)
	}
	return NewUpstreamUnavailableError(operation, err)
}

// ==========================
// 3. Utility Functions
// ==========================

// IsRetryable reports whether err is a transient failure worth retrying.
// Caller cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}

	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}

	if isTimeout(err) {
		return true
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) || stderrors.Is(err, syscall.ECONNRESET) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{"connection refused", "connection reset", "broken pipe", "eof"} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// CodeOf returns the error code carried by err, or an empty code.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TIMEOUT"):
		return "TIMEOUT"
	case strings.Contains(codeStr, "UPSTREAM"):
		return "UPSTREAM"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	default:
		return "OTHER"
	}
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Client.Timeout") || strings.Contains(msg, "deadline exceeded")
}
