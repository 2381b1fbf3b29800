package llm

import (
	"errors"
	"sync"
	"time"
)

// errLLMUnavailable is returned while a provider's breaker is open (spec
// §4.6 "Circuit breaker" — surfaced to callers as apperr.LLMUnavailable).
var errLLMUnavailable = errors.New("llm_unavailable")

// classifierTimeout is the hard per-attempt ceiling for the intent
// classifier call (spec §4.6).
const classifierTimeout = 8 * time.Second

// breaker is a minimal consecutive-failure circuit breaker: after
// threshold consecutive failures it opens for openFor. The first call
// after openFor has elapsed is let through as a probe and the breaker
// closes with its failure count reset, so it opens again only after
// another threshold consecutive failures.
type breaker struct {
	mu          sync.Mutex
	threshold   int
	openFor     time.Duration
	failures    int
	openedAt    time.Time
	open        bool
}

func newBreaker(threshold int, openFor time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &breaker{threshold: threshold, openFor: openFor}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if time.Since(b.openedAt) >= b.openFor {
		// openFor elapsed: close and reset the failure count
		b.open = false
		b.failures = 0
		return true
	}
	return false
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.open = true
		b.openedAt = time.Now()
	}
}
