// Package providers abstracts interchangeable chat backends behind a common
// interface and an ordered fallback chain.
package providers

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAllProvidersExhausted indicates every provider in the chain failed.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrMalformedOutput indicates a structured response that could not be
	// parsed even after stripping code fences.
	ErrMalformedOutput = errors.New("malformed model output")
)

// Message is one turn in a chat conversation. Role is "system", "user", or
// "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries the shared prompt and generation parameters handed to
// each provider in turn. Temperature is a pointer so an explicit 0
// (deterministic sampling) is distinguishable from unset.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// ChatResult is a normalized completion.
type ChatResult struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
}

// ChatProvider is one interchangeable chat backend. Implementations make a
// single attempt per call; retry-elsewhere decisions belong to the
// orchestrator.
type ChatProvider interface {
	// Name identifies the provider in results and logs.
	Name() string

	// Model returns the target model identifier.
	Model() string

	// Chat produces a completion. Rate-limit and server-side failures are
	// reported as retryable; see IsRetryable.
	Chat(ctx context.Context, req ChatRequest) (*ChatResult, error)
}

// retryableError marks failures that the next provider in the chain may not
// share: rate limits, quota exhaustion, 5xx responses, transport errors.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// IsRetryable reports whether a provider failure is worth trying elsewhere.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
