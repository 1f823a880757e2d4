package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All components MUST use these constants instead of hardcoded strings.
const (
	// Transport faults (retried, never fatal once running)
	ErrCodeTransportConnect   ErrorCode = "transport_connect_failed"
	ErrCodeTransportSubscribe ErrorCode = "transport_subscribe_failed"
	ErrCodeTransportReceive   ErrorCode = "transport_receive_failed"

	// Decode/validation faults (discarded at the listener)
	ErrCodeValidationDecode          ErrorCode = "validation_decode_failed"
	ErrCodeValidationMissingField    ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidSeverity ErrorCode = "validation_invalid_severity"
	ErrCodeValidationNotCritical     ErrorCode = "validation_not_critical"

	// Backpressure faults
	ErrCodeQueueFull   ErrorCode = "queue_full"
	ErrCodeQueueClosed ErrorCode = "queue_closed"

	// Persistence faults
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"

	// Lifecycle faults
	ErrCodeLifecycleInvalidState    ErrorCode = "lifecycle_invalid_state"
	ErrCodeLifecycleShutdownTimeout ErrorCode = "lifecycle_shutdown_timeout"

	// Upstream (fan-out hook, dead-letter queue)
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRejected    ErrorCode = "upstream_rejected"

	// Ops endpoints
	ErrCodeEndpointNotConfigured ErrorCode = "endpoint_not_configured"
)

// HTTPStatus maps an ErrorCode to the status returned by the ops endpoints.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "queue_"):
		return http.StatusServiceUnavailable
	case strings.HasPrefix(s, "transport_"):
		return http.StatusServiceUnavailable
	case s == string(ErrCodeLifecycleInvalidState):
		return http.StatusConflict
	case s == string(ErrCodeEndpointNotConfigured):
		return http.StatusNotFound
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type used throughout the pipeline.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the ErrorCode carried by err, or "" when err is not (and
// does not wrap) an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
