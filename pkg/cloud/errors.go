package cloud

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a cloud API failure for the connector's recovery
// policy: network errors retry with backoff, auth errors stop export
// attempts, rate limiting pauses sends, server errors fall through to the
// offline queue.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindAuth         ErrorKind = "auth"
	KindTokenExpired ErrorKind = "token_expired"
	KindRateLimited  ErrorKind = "rate_limited"
	KindServer       ErrorKind = "server"
	KindStorage      ErrorKind = "storage"
	KindValidation   ErrorKind = "validation"
)

// Sentinel errors for errors.Is comparisons against connector state.
var (
	ErrNoCredentials   = errors.New("cloud: no credentials enrolled")
	ErrCredentialsGone = errors.New("cloud: credentials expired and re-enrollment required")
)

// APIError wraps a cloud wire-protocol failure with enough context for the
// connector's error-kind-driven recovery.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string // well-known codes: invalid_api_key, token_expired, ...
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("cloud: %s (%s, http %d): %s", e.Kind, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("cloud: %s (http %d): %s", e.Kind, e.StatusCode, e.Message)
}

// Retryable reports whether the caller's retry-with-backoff loop should
// attempt this request again (network and 5xx errors), as opposed to
// failing fast (auth, validation).
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindServer, KindRateLimited:
		return true
	default:
		return false
	}
}

// errorBody is the well-known {code, message, details?} error response
// shape the cloud API returns.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// classifyStatus maps an HTTP status + parsed error body to an ErrorKind.
func classifyStatus(status int, body errorBody, retryAfter time.Duration) *APIError {
	kind := KindServer
	switch {
	case status == 401:
		kind = KindAuth
	case status == 403:
		kind = KindTokenExpired
	case status == 429:
		kind = KindRateLimited
	case status >= 500:
		kind = KindServer
	case status >= 400:
		kind = KindValidation
	}
	if body.Code == "token_expired" {
		kind = KindTokenExpired
	}
	if body.Code == "invalid_api_key" {
		kind = KindAuth
	}
	return &APIError{Kind: kind, StatusCode: status, Code: body.Code, Message: body.Message, RetryAfter: retryAfter}
}
