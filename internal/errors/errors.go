// Package errors defines the service error type shared by handlers, middleware
// and services. A ServiceError carries the HTTP status it maps to so transport
// code never has to guess.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, machine readable error identifier.
type ErrorCode string

const (
	CodeBadRequest       ErrorCode = "BAD_REQUEST"
	CodeValidation       ErrorCode = "VALIDATION_FAILED"
	CodeInvalidFormat    ErrorCode = "INVALID_FORMAT"
	CodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken     ErrorCode = "INVALID_TOKEN"
	CodeForbidden        ErrorCode = "FORBIDDEN"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeConflict         ErrorCode = "CONFLICT"
	CodePayloadTooLarge  ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMedia ErrorCode = "UNSUPPORTED_MEDIA_TYPE"
	CodeRateLimited      ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
	CodeUnavailable      ErrorCode = "SERVICE_UNAVAILABLE"
)

// ServiceError is an error with a code, a client-safe message and an HTTP status.
type ServiceError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with an extra detail attached.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	clone := *e
	clone.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

// New creates a ServiceError.
func New(code ErrorCode, message string, status int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap creates a ServiceError around a cause.
func Wrap(err error, code ErrorCode, message string, status int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func BadRequest(message string) *ServiceError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

// Validation reports an invalid field value.
func Validation(field, message string) *ServiceError {
	return New(CodeValidation, fmt.Sprintf("%s: %s", field, message), http.StatusBadRequest).
		WithDetails("field", field)
}

func InvalidFormat(field, expected string) *ServiceError {
	return New(CodeInvalidFormat, fmt.Sprintf("invalid %s format", field), http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("expected", expected)
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidToken(err error) *ServiceError {
	return Wrap(err, CodeInvalidToken, "invalid or expired token", http.StatusUnauthorized)
}

func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "access denied"
	}
	return New(CodeForbidden, message, http.StatusForbidden)
}

// NotFound reports a missing resource of the given kind.
func NotFound(resource, id string) *ServiceError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(CodeConflict, message, http.StatusConflict)
}

func PayloadTooLarge(limit int64) *ServiceError {
	return New(CodePayloadTooLarge, "payload too large", http.StatusRequestEntityTooLarge).
		WithDetails("limit_bytes", limit)
}

func UnsupportedMedia(got string) *ServiceError {
	return New(CodeUnsupportedMedia, "unsupported media type", http.StatusUnsupportedMediaType).
		WithDetails("content_type", got)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(CodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "internal server error"
	}
	return Wrap(err, CodeInternal, message, http.StatusInternalServerError)
}

func Unavailable(message string) *ServiceError {
	return New(CodeUnavailable, message, http.StatusServiceUnavailable)
}

// GetServiceError extracts a ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatus returns the status an error maps to; unknown errors are 500.
func HTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
