package twitter

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an upstream API failure.
type Kind string

// Failure kinds. Only Transient is retryable.
const (
	KindNotFound       Kind = "not_found"
	KindRateLimited    Kind = "rate_limited"
	KindUnauthorized   Kind = "unauthorized"
	KindQuotaExhausted Kind = "quota_exhausted"
	KindTransient      Kind = "transient"
)

// APIError describes a failed call to the upstream API.
type APIError struct {
	Kind       Kind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("twitter api: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("twitter api: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the failure may succeed on a retry.
func (e *APIError) Retryable() bool {
	return e.Kind == KindTransient
}

// ErrorKind extracts the failure kind from err, or "" if err is not an
// APIError.
func ErrorKind(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsRetryable reports whether err is a retryable upstream failure.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

func classifyStatus(code int) Kind {
	switch code {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusPaymentRequired:
		return KindQuotaExhausted
	default:
		// 5xx and anything unexpected is treated as transient.
		return KindTransient
	}
}
