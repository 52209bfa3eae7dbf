// Package apierror defines the transport-independent error kinds the
// upload coordinator raises, and their mapping onto HTTP status and the
// stable snake_case error_code token carried in every non-2xx body.
package apierror

import (
	"fmt"
	"net/http"
)

// Kind classifies an error independent of transport.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindAuthz      Kind = "authz"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "state_conflict"
	KindThrottled  Kind = "throttled"
	KindRange      Kind = "range_error"
	KindUpstream   Kind = "upstream"
	KindTimeout    Kind = "timeout"
	KindInternal   Kind = "internal"
)

// Error is the typed error every apierror constructor returns. Handlers
// classify any error via errors.As and map it to the response body.
type Error struct {
	Kind    Kind
	Code    string
	Status  int
	Message string

	// RateLimitReason is set only for Throttled errors, and becomes the
	// X-RateLimit-Reason header value.
	RateLimitReason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(kind Kind, code string, status int, msg string) *Error {
	return &Error{Kind: kind, Code: code, Status: status, Message: msg}
}

func Validation(msg string) *Error {
	return newError(KindValidation, "invalid_request", http.StatusBadRequest, msg)
}

func MissingCredential(msg string) *Error {
	return newError(KindAuth, "missing_api_key", http.StatusUnauthorized, msg)
}

func InvalidCredential(msg string) *Error {
	return newError(KindAuth, "invalid_credential", http.StatusUnauthorized, msg)
}

func Forbidden(msg string) *Error {
	return newError(KindAuthz, "forbidden", http.StatusForbidden, msg)
}

func NotFound(msg string) *Error {
	return newError(KindNotFound, "not_found", http.StatusNotFound, msg)
}

func Conflict(msg string) *Error {
	return newError(KindConflict, "conflict", http.StatusConflict, msg)
}

// Throttled builds a 429 whose RateLimitReason becomes the
// X-RateLimit-Reason header; every throttled response also carries
// Retry-After: 1, written by the caller.
func Throttled(reason string) *Error {
	e := newError(KindThrottled, "throttled", http.StatusTooManyRequests, "request throttled: "+reason)
	e.RateLimitReason = reason
	return e
}

func RangeError(msg string) *Error {
	return newError(KindRange, "invalid_range", http.StatusRequestedRangeNotSatisfiable, msg)
}

func Upstream(msg string) *Error {
	return newError(KindUpstream, "upstream_error", http.StatusInternalServerError, msg)
}

func Timeout(msg string) *Error {
	return newError(KindTimeout, "timeout", http.StatusGatewayTimeout, msg)
}

func Internal(msg string) *Error {
	return newError(KindInternal, "internal_error", http.StatusInternalServerError, msg)
}
