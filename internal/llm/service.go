// Package llm is the AI text-completion collaborator. It speaks the
// OpenAI-, Anthropic-, and Ollama-compatible HTTP APIs and classifies
// failures so the caller's retry policy can tell transient rate-limit and
// server errors from permanent ones.
package llm

import (
	"context"
	"time"

	"github.com/askdb/askdb/internal/errors"
)

// Options tune a single completion call. Zero fields fall back to the
// client's configured defaults. Temperature is a pointer because zero is a
// legitimate value to request: nil means "use the configured default".
type Options struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

// Service is the completion contract the engine depends on
type Service interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// IsRetryable reports whether a completion failure is worth retrying.
// Only rate-limit and server/transport errors qualify; validation and
// client-side errors never do.
func IsRetryable(err error) bool {
	return errors.IsType(err, errors.ErrTypeRateLimit) ||
		errors.IsType(err, errors.ErrTypeNetwork)
}
