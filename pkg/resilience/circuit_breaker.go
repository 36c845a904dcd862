// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/jllopis/spendlens/pkg/errors"
)

// CircuitBreakerState is the state of a CircuitBreaker.
type CircuitBreakerState string

const (
	// StateClosed lets every call through.
	StateClosed CircuitBreakerState = "closed"
	// StateOpen rejects calls until the cool-down elapses.
	StateOpen CircuitBreakerState = "open"
	// StateHalfOpen lets trial calls through to test recovery.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in errors and logs.
	Name string
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker (default 5).
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it
	// again (default 2).
	SuccessThreshold int
	// Timeout is the cool-down before an open breaker goes half-open
	// (default 30s).
	Timeout time.Duration
	// OnStateChange, when set, is called after every transition. It runs
	// under the breaker's lock and must not call back into it.
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// CircuitBreaker stops calling a failing dependency for a while. The
// protected call runs outside the lock, so concurrent runs are not serialized.
// Cancellation by the caller's context is not counted as a failure.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     CircuitBreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "circuit_breaker"
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Call runs fn unless the breaker is open, in which case it returns a
// recoverable UNAVAILABLE error without calling fn.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	cb.mu.Lock()
	cb.refresh()
	if cb.state == StateOpen {
		retryIn := cb.cfg.Timeout - time.Since(cb.openedAt)
		cb.mu.Unlock()
		return errors.New(errors.CodeUnavailable, "circuit breaker open", nil).
			WithContext("breaker", cb.cfg.Name).
			WithContext("retry_in", retryIn.Round(time.Millisecond).String()).
			WithRecoverable(true)
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case err == nil:
		cb.recordSuccess()
	case ctx.Err() != nil && stderrors.Is(err, ctx.Err()):
		// The caller gave up; the dependency did not fail.
	default:
		cb.recordFailure()
	}
	return err
}

func (cb *CircuitBreaker) recordSuccess() {
	if cb.state != StateHalfOpen {
		cb.failures = 0
		return
	}
	cb.successes++
	if cb.successes >= cb.cfg.SuccessThreshold {
		cb.transition(StateClosed)
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = time.Now()
		cb.transition(StateOpen)
	}
}

// refresh moves an open breaker to half-open once the cool-down elapsed.
// Must be called under lock.
func (cb *CircuitBreaker) refresh() {
	if cb.state == StateOpen && time.Since(cb.openedAt) > cb.cfg.Timeout {
		cb.transition(StateHalfOpen)
	}
}

// transition resets the counters and notifies the hook. Must be called under
// lock.
func (cb *CircuitBreaker) transition(to CircuitBreakerState) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current state. An open breaker whose cool-down elapsed
// reports half-open.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	return cb.state
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
}
