// Package retry provides a reusable retry policy with exponential backoff.
// The policy is independent of what it wraps; callers supply a predicate
// deciding which errors are worth retrying.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/askdb/askdb/internal/logging"
)

// Policy describes how an operation is retried
type Policy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	Retryable      func(error) bool
	Logger         *logging.Logger
}

// DefaultPolicy returns a policy suitable for transient network failures
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       8 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// Do runs operation under the policy, sleeping between attempts.
// A nil Retryable predicate retries every error.
func Do(ctx context.Context, p Policy, operation func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}

	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}

	if p.MaxDelay <= 0 {
		p.MaxDelay = 8 * time.Second
	}

	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}

	var lastErr error

	delay := p.InitialDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			if attempt > 1 && p.Logger != nil {
				p.Logger.Debugf("operation succeeded on attempt %d", attempt)
			}

			return nil
		}

		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}

		if attempt == p.MaxAttempts {
			break
		}

		if p.Logger != nil {
			p.Logger.Warnf("attempt %d/%d failed, retrying in %s: %v",
				attempt, p.MaxAttempts, delay, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(addJitter(delay, p.JitterFraction)):
		}

		delay = time.Duration(math.Min(float64(p.MaxDelay), float64(delay)*p.Multiplier))
	}

	return lastErr
}

// DoWithResult runs operation under the policy and returns its result
func DoWithResult[T any](ctx context.Context, p Policy, operation func() (T, error)) (T, error) {
	var result T

	err := Do(ctx, p, func() error {
		var err error
		result, err = operation()

		return err
	})

	return result, err
}

// addJitter spreads retries out so concurrent callers do not thunder in sync
func addJitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}

	jitter := time.Duration(rand.Float64() * float64(duration) * jitterFraction)
	if rand.Intn(2) == 0 {
		return duration - jitter
	}

	return duration + jitter
}
