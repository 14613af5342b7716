// Package resources holds the shared per-process resource guards: circuit
// breakers around error boundaries and the transient-resource memory
// manager.
package resources

import (
	"fmt"
	"sync"
	"time"
)

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// OpenError is returned when the breaker rejects a call outright.
type OpenError struct {
	Name    string
	RetryAt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit %q is open until %s", e.Name, e.RetryAt.Format(time.RFC3339))
}

// Breaker implements the classical closed → open → half-open → closed
// cycle with a failure threshold and a reset window. One breaker guards one
// error boundary; callers ask Allow before the call and report the outcome
// after.
type Breaker struct {
	name      string
	threshold int
	window    time.Duration

	mu          sync.Mutex
	state       string
	failures    int
	lastFailure time.Time
	nextAttempt time.Time
}

// NewBreaker builds a closed breaker. threshold is the consecutive failure
// count that opens it; window is how long it stays open before probing.
func NewBreaker(name string, threshold int, window time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, window: window, state: StateClosed}
}

// Allow reports whether a call may proceed. In the open state it returns an
// OpenError until the reset window elapses, then admits a single probe in
// half-open state.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Now().Before(b.nextAttempt) {
			return &OpenError{Name: b.name, RetryAt: b.nextAttempt}
		}
		b.state = StateHalfOpen
	}
	return nil
}

// Success reports a successful call, closing the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
}

// Failure reports a failed call. The breaker opens once the consecutive
// failure count reaches the threshold, or immediately when a half-open
// probe fails.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
		b.nextAttempt = time.Now().Add(b.window)
	}
}

// State returns the current state name.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
