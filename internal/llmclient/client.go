// Package llmclient adapts third-party LLM provider SDKs to turn.LLMClient,
// the provider-agnostic boundary internal/turn calls against. Each adapter
// owns one provider's message format, tool-schema translation and streaming
// loop; internal/turn never imports an SDK directly.
package llmclient

import (
	"fmt"
	"net/http"
	"strings"
)

// RateLimitError wraps a provider rejection caused by exceeding a rate
// limit. Retrying after a delay is expected to succeed.
type RateLimitError struct{ Err error }

func (e *RateLimitError) Error() string { return fmt.Sprintf("rate limited: %v", e.Err) }
func (e *RateLimitError) Unwrap() error { return e.Err }

// TransientError wraps a provider failure (timeout, 5xx, network hiccup)
// expected to succeed on retry without any change on the caller's part.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return fmt.Sprintf("transient provider error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError wraps a provider rejection (bad request, auth failure) that
// will not succeed on retry without a code or configuration change.
type FatalError struct{ Err error }

func (e *FatalError) Error() string { return fmt.Sprintf("fatal provider error: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// ContextOverflowError wraps a provider rejection caused by the submitted
// history exceeding the model's context window.
type ContextOverflowError struct{ Err error }

func (e *ContextOverflowError) Error() string { return fmt.Sprintf("context window exceeded: %v", e.Err) }
func (e *ContextOverflowError) Unwrap() error { return e.Err }

// classifyByStatusCode maps an HTTP status code from a provider response to
// one of the typed errors above. Shared by every provider adapter so
// internal/turn's provider-error wrapping (models.NewProviderError, which
// names the error's Go type) reports a consistent class across providers.
func classifyByStatusCode(statusCode int, err error) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &RateLimitError{Err: err}
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusConflict:
		return &TransientError{Err: err}
	case statusCode >= 400 && statusCode < 500:
		return &FatalError{Err: err}
	case statusCode >= 500:
		return &TransientError{Err: err}
	default:
		return &TransientError{Err: err}
	}
}

// classifyGenericError falls back to message heuristics when a provider
// error does not carry a usable HTTP status code (network errors, SDK
// errors raised before a response exists).
func classifyGenericError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context_length"), strings.Contains(msg, "maximum context length"), strings.Contains(msg, "context window"):
		return &ContextOverflowError{Err: err}
	case strings.Contains(msg, "rate_limit"), strings.Contains(msg, "rate limit"):
		return &RateLimitError{Err: err}
	default:
		return &TransientError{Err: err}
	}
}
