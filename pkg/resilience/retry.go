// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/jllopis/spendlens/pkg/errors"
)

// RetryConfig controls retries with exponential backoff.
type RetryConfig struct {
	// MaxAttempts counts the first call; values below 1 mean a single attempt.
	MaxAttempts int

	InitialDelay time.Duration
	// MaxDelay caps a single backoff; zero means no cap.
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts (default 2).
	Multiplier float64
	// Jitter spreads each delay by ±Jitter of its value, 0.1 means ±10%.
	Jitter float64

	// IsRecoverable reports whether err is worth another attempt. When nil,
	// untyped errors are retried and typed errors follow their Recoverable flag.
	IsRecoverable func(error) bool

	// OnRetry, when set, is called before each backoff with the attempt that
	// just failed (starting at 1), its error and the delay about to be slept.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the retry configuration used for gateway calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.1,
		IsRecoverable: isRecoverableDefault,
	}
}

// WithMaxAttempts returns a copy with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(max int) RetryConfig {
	rc.MaxAttempts = max
	return rc
}

// WithInitialDelay returns a copy with InitialDelay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithOnRetry returns a copy that reports each retry to fn.
func (rc RetryConfig) WithOnRetry(fn func(attempt int, err error, delay time.Duration)) RetryConfig {
	rc.OnRetry = fn
	return rc
}

// Do calls fn until it succeeds, returns a non-recoverable error, or the
// attempts run out. The last error is returned; a context cancelled while
// waiting yields CONTEXT_LOST.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	attempts := max(rc.MaxAttempts, 1)
	recoverable := rc.IsRecoverable
	if recoverable == nil {
		recoverable = isRecoverableDefault
	}

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= attempts || !recoverable(err) {
			return err
		}

		wait := rc.backoff(attempt)
		if rc.OnRetry != nil {
			rc.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.New(errors.CodeContextLost, "context canceled during retry", ctx.Err()).
				WithContext("attempt", attempt).
				WithContext("max_attempts", attempts)
		case <-timer.C:
		}
	}
}

// DoValue is Do for functions that produce a value.
func DoValue[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	err := rc.Do(ctx, func() error {
		value, err := fn()
		if err == nil {
			result = value
		}
		return err
	})
	return result, err
}

// backoff is the delay after the given failed attempt.
func (rc RetryConfig) backoff(attempt int) time.Duration {
	mult := rc.Multiplier
	if mult == 0 {
		mult = 2.0
	}
	d := float64(rc.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if rc.MaxDelay > 0 {
		d = math.Min(d, float64(rc.MaxDelay))
	}
	if rc.Jitter > 0 {
		d += d * rc.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

func isRecoverableDefault(err error) bool {
	if err == nil {
		return false
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Recoverable
	}
	return true
}
