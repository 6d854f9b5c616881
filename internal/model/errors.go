package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrUpstreamError    = errors.New("upstream error")
	ErrAuthExpired      = errors.New("auth expired")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrNotConfigured    = errors.New("not configured")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// UpstreamError carries the status and body returned by a remote API.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstreamError
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: http.StatusUnauthorized,
		Err:        ErrUnauthorized,
	}
}

// NewForbiddenError creates a 403 error for credentials that were checked and rejected.
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:       "FORBIDDEN",
		Message:    reason,
		StatusCode: http.StatusForbidden,
		Err:        ErrForbidden,
	}
}

// NewSignatureError creates an error for a webhook signature that failed verification.
// Mismatched digests map to 403; missing or malformed headers map to 401.
func NewSignatureError(reason string, mismatch bool) *APIError {
	status := http.StatusUnauthorized
	if mismatch {
		status = http.StatusForbidden
	}
	return &APIError{
		Code:       "SIGNATURE_INVALID",
		Message:    reason,
		StatusCode: status,
		Err:        ErrSignatureInvalid,
	}
}

// NewUpstreamError creates a 500 error for transport-level backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: http.StatusInternalServerError,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewUpstreamRejection creates a 500 error for a remote API that answered with
// a 4xx/5xx status. The upstream status and body stay reachable via errors.As.
func NewUpstreamRejection(service string, statusCode int, body []byte) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: http.StatusInternalServerError,
		Err: &UpstreamError{
			Service:    service,
			StatusCode: statusCode,
			Body:       truncate(string(body), 2048),
		},
	}
}

// NewAuthExpiredError creates the error surfaced when a bearer token is still
// rejected after a forced refresh.
func NewAuthExpiredError(service string, body []byte) *APIError {
	return &APIError{
		Code:       "AUTH_EXPIRED",
		Message:    fmt.Sprintf("%s rejected the refreshed token", service),
		StatusCode: http.StatusInternalServerError,
		Err: fmt.Errorf("%w: %w", ErrAuthExpired, &UpstreamError{
			Service:    service,
			StatusCode: http.StatusUnauthorized,
			Body:       truncate(string(body), 2048),
		}),
	}
}

// NewNotConfiguredError creates a 503 error for an integration that was
// disabled at startup because its configuration is missing.
func NewNotConfiguredError(integration string) *APIError {
	return &APIError{
		Code:       "NOT_CONFIGURED",
		Message:    fmt.Sprintf("%s integration is not configured", integration),
		StatusCode: http.StatusServiceUnavailable,
		Err:        ErrNotConfigured,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
