// Copyright (c) 2026 Castellan Authors. All rights reserved.

/*
Package apperr defines the centralized error handling framework for Castellan.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing machine-readable ErrorCode and user-friendly messages.
  - Taxonomy: Dedicated constructors for every authentication and authorization
    failure class, so handlers never invent ad-hoc status codes.
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"net/http"
)

// AppError is the canonical error type for the Castellan API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "TOKEN_EXPIRED").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// # Credential Verification Failures (401/403)

// InvalidCredentials creates a 401 [AppError] with a deliberately generic
// message. "User not found" and "wrong password" are indistinguishable to
// prevent username enumeration.
func InvalidCredentials() *AppError {
	return &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Invalid username or password",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// AccountDisabled creates a 403 [AppError]. The caller is already identified
// at this point, so the message names the actual reason.
func AccountDisabled() *AppError {
	return &AppError{
		Code:       "ACCOUNT_DISABLED",
		Message:    "This account has been disabled",
		HTTPStatus: http.StatusForbidden,
	}
}

// DepartmentDisabled creates a 403 [AppError] for users whose department is disabled.
func DepartmentDisabled() *AppError {
	return &AppError{
		Code:       "DEPARTMENT_DISABLED",
		Message:    "This account's department has been disabled",
		HTTPStatus: http.StatusForbidden,
	}
}

// NoActiveRole creates a 403 [AppError] for users whose assigned roles are all disabled.
func NoActiveRole() *AppError {
	return &AppError{
		Code:       "NO_ACTIVE_ROLE",
		Message:    "This account has no enabled role",
		HTTPStatus: http.StatusForbidden,
	}
}

// # Token Failures (401)

// TokenExpired creates a 401 [AppError] for tokens past their expiry or
// no longer present in the session store.
func TokenExpired() *AppError {
	return &AppError{
		Code:       "TOKEN_EXPIRED",
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// TokenMalformed creates a 401 [AppError] for structurally invalid or
// badly signed tokens.
func TokenMalformed() *AppError {
	return &AppError{
		Code:       "TOKEN_MALFORMED",
		Message:    "Token is invalid",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// TokenIncomplete creates a 401 [AppError] for tokens missing required claims.
func TokenIncomplete() *AppError {
	return &AppError{
		Code:       "TOKEN_INCOMPLETE",
		Message:    "Token is missing required claims",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// RefreshTokenInvalid creates a 401 [AppError] for refresh tokens that are
// expired, malformed, already rotated, or unknown to the session store.
func RefreshTokenInvalid() *AppError {
	return &AppError{
		Code:       "REFRESH_TOKEN_INVALID",
		Message:    "Refresh token is invalid or expired",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// # Authorization Failures (401/403)

// Unauthenticated creates a 401 [AppError] for requests without a valid credential.
func Unauthenticated(msg string) *AppError {
	return &AppError{
		Code:       "UNAUTHENTICATED",
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// StaffRequired creates a 403 [AppError] for mutating requests by non-staff users.
func StaffRequired() *AppError {
	return &AppError{
		Code:       "STAFF_REQUIRED",
		Message:    "This operation requires back-office staff access",
		HTTPStatus: http.StatusForbidden,
	}
}

// PermissionDenied creates a 403 [AppError] for missing permission strings.
func PermissionDenied() *AppError {
	return &AppError{
		Code:       "PERMISSION_DENIED",
		Message:    "Insufficient permissions for this operation",
		HTTPStatus: http.StatusForbidden,
	}
}

// # Generic Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("User") // Returns "User not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// RateLimited creates a 429 [AppError].
func RateLimited() *AppError {
	return &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Too many requests",
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
//
// Store and cache connectivity failures surface through this constructor
// rather than as denials, so infrastructure outages are never masked as
// authorization decisions.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// ServiceUnavailable creates a 503 [AppError] for degraded dependencies.
func ServiceUnavailable(msg string) *AppError {
	return &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}
