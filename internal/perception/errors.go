package perception

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies a provider failure for retry decisions.
type ErrorKind string

const (
	// KindAuth is an invalid or missing API key. Never retried.
	KindAuth ErrorKind = "auth"

	// KindRateLimit is HTTP 429. Retried, honoring Retry-After when sent.
	KindRateLimit ErrorKind = "rate_limit"

	// KindTimeout is a request deadline or network timeout. Retried.
	KindTimeout ErrorKind = "timeout"

	// KindServer is a 5xx from the provider. Retried.
	KindServer ErrorKind = "server"

	// KindMalformed is an unparseable provider response. Never retried:
	// the same request would get the same garbage.
	KindMalformed ErrorKind = "malformed"

	// KindInvalidRequest is a 4xx other than auth or rate limit. Never
	// retried.
	KindInvalidRequest ErrorKind = "invalid_request"
)

// ProviderError is a classified failure from an LLM provider.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error

	// retryAfter is the provider's requested backoff, zero when unset.
	retryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the retry policy should re-attempt the request.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTimeout, KindServer:
		return true
	default:
		return false
	}
}

// RetryAfter returns the provider-requested backoff when one was sent.
func (e *ProviderError) RetryAfter() (time.Duration, bool) {
	return e.retryAfter, e.retryAfter > 0
}

// classifyStatus maps an HTTP status to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindServer
	default:
		return KindInvalidRequest
	}
}

// statusError builds a ProviderError from an HTTP error response, honoring
// the Retry-After header on 429s.
func statusError(provider string, status int, message string, retryAfterHeader string) *ProviderError {
	e := &ProviderError{
		Provider:   provider,
		Kind:       classifyStatus(status),
		StatusCode: status,
		Message:    message,
	}
	if e.Kind == KindRateLimit && retryAfterHeader != "" {
		if secs, err := time.ParseDuration(retryAfterHeader + "s"); err == nil {
			e.retryAfter = secs
		}
	}
	return e
}
