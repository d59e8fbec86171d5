package apierror

import (
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure for status mapping and client display.
type Kind string

// Failure kinds recognized by the gateway boundary.
const (
	KindValidation     Kind = "validation_error"
	KindAuthentication Kind = "authentication_error"
	KindAuthorization  Kind = "authorization_error"
	KindNotFound       Kind = "not_found"
	KindRateLimit      Kind = "rate_limit_error"
	KindProvider       Kind = "provider_error"
	KindTimeout        Kind = "timeout_error"
	KindConfiguration  Kind = "configuration_error"
	KindInternal       Kind = "internal_error"
)

// Error is the structured failure value that crosses component boundaries.
type Error struct {
	Kind       Kind   `json:"error_type"`
	Message    string `json:"message"`
	Code       string `json:"error_code,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	if e == nil {
		return http.StatusOK
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindProvider:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Severity reports the logging severity for the error kind.
func (e *Error) Severity() string {
	if e == nil {
		return "info"
	}
	switch e.Kind {
	case KindConfiguration, KindInternal:
		return "error"
	case KindProvider, KindTimeout:
		return "warning"
	default:
		return "info"
	}
}

// Validation builds a 400-class error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Authentication builds a 401-class error.
func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// Authorization builds a 403-class error.
func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NotFound builds a 404-class error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// RateLimited builds a 429-class error carrying the retry delay in seconds.
func RateLimited(retryAfter int) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Message:    "rate limit exceeded, slow down",
		RetryAfter: retryAfter,
	}
}

// Provider builds a 502-class error for upstream failures.
func Provider(provider, message string) *Error {
	return &Error{Kind: KindProvider, Code: provider, Message: message}
}

// Timeout builds a 504-class error.
func Timeout(provider string) *Error {
	return &Error{Kind: KindTimeout, Code: provider, Message: "upstream request timed out"}
}

// Configuration builds a 500-class error for server misconfiguration.
func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Internal builds a generic 500-class error. Details stay server-side.
func Internal() *Error {
	return &Error{Kind: KindInternal, Message: "an unexpected error occurred"}
}
