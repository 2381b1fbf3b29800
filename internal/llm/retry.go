package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures both the retry loop and the circuit breaker
// that wraps a provider (spec §4.6).
type RetryPolicy struct {
	MaxAttempts         int
	PerAttemptTimeout   time.Duration // 30s per spec §4.6
	BreakerThreshold    int           // K consecutive failures
	BreakerOpenDuration time.Duration // T seconds
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		PerAttemptTimeout:   30 * time.Second,
		BreakerThreshold:    5,
		BreakerOpenDuration: 30 * time.Second,
	}
}

// retryableError marks errors that should trigger another attempt:
// rate-limited, connection error, timeout, or 5xx (spec §4.6).
type retryableError struct{ err error }

func (r retryableError) Error() string { return r.err.Error() }
func (r retryableError) Unwrap() error { return r.err }

// Retryable wraps err so withRetry treats it as transient. The OpenAI,
// Anthropic and Gemini providers wrap every error their SDK call returns,
// so all provider failures are retried; non-transient errors (for
// example a 4xx other than 429) are not told apart from transient ones.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

func isRetryable(err error) bool {
	var re retryableError
	if errors.As(err, &re) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "rate limit", "429", "connection reset", "temporarily unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry runs fn with exponential backoff and jitter, via
// cenkalti/backoff/v4, bounded by policy.MaxAttempts and a
// per-attempt timeout.
func withRetry(ctx context.Context, policy RetryPolicy, fn func(context.Context) (string, error)) (string, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.PerAttemptTimeout <= 0 {
		policy.PerAttemptTimeout = 30 * time.Second
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(policy.MaxAttempts-1))

	var result string
	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.PerAttemptTimeout)
		defer cancel()

		answer, err := fn(attemptCtx)
		if err == nil {
			result = answer
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	return result, nil
}
