package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := newBreaker(3, 50*time.Millisecond)
	for i := 0; i < 3; i++ {
		if !b.allow() {
			t.Fatalf("attempt %d should be allowed before breaker opens", i)
		}
		b.recordFailure()
	}
	if b.allow() {
		t.Error("breaker should be open after reaching threshold")
	}
}

func TestBreakerHalfOpensAfterDuration(t *testing.T) {
	b := newBreaker(1, 10*time.Millisecond)
	b.recordFailure()
	if b.allow() {
		t.Fatal("breaker should be open immediately after one failure at threshold 1")
	}
	time.Sleep(20 * time.Millisecond)
	if !b.allow() {
		t.Error("breaker should half-open (allow probe) after openFor elapses")
	}
}

func TestBreakerRecordSuccessResetsFailures(t *testing.T) {
	b := newBreaker(3, time.Second)
	b.recordFailure()
	b.recordFailure()
	b.recordSuccess()
	b.recordFailure()
	if !b.allow() {
		t.Error("breaker should still allow after success reset failure count")
	}
}

func TestIsRetryableWrappedError(t *testing.T) {
	err := Retryable(errors.New("rate limited"))
	if !isRetryable(err) {
		t.Error("Retryable-wrapped error should be retryable")
	}
}

func TestIsRetryableByMessageMarker(t *testing.T) {
	if !isRetryable(errors.New("request timeout exceeded")) {
		t.Error("timeout message should be retryable")
	}
	if !isRetryable(errors.New("429 too many requests")) {
		t.Error("429 message should be retryable")
	}
}

func TestIsRetryableFalseForGenericError(t *testing.T) {
	if isRetryable(errors.New("invalid api key")) {
		t.Error("generic non-transient error should not be retryable")
	}
}

func TestWithRetrySucceedsOnSecondAttempt(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", Retryable(errors.New("rate limit"))
		}
		return "ok", nil
	}
	result, err := withRetry(context.Background(), RetryPolicy{MaxAttempts: 3}, fn)
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if result != "ok" || attempts != 2 {
		t.Errorf("result=%q attempts=%d, want ok/2", result, attempts)
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	wantErr := errors.New("invalid api key")
	fn := func(ctx context.Context) (string, error) {
		attempts++
		return "", wantErr
	}
	_, err := withRetry(context.Background(), RetryPolicy{MaxAttempts: 3}, fn)
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (non-retryable errors must not retry)", attempts)
	}
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestWithRetryExhaustsMaxAttempts(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) (string, error) {
		attempts++
		return "", Retryable(fmt.Errorf("rate limit attempt %d", attempts))
	}
	_, err := withRetry(context.Background(), RetryPolicy{MaxAttempts: 2}, fn)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}
