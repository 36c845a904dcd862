// SPDX-License-Identifier: Apache-2.0
// Package resilience provides timeout, retry, circuit breaker and layered
// fallback helpers shared by the planner, executor, gateway and sandbox.
package resilience

import (
	"context"
	"time"

	"github.com/jllopis/spendlens/pkg/errors"
)

// WithTimeout executes fn with a timeout boundary. fn receives the derived
// context and should stop when it is done; the call returns on expiry even if
// fn does not. A zero duration runs fn with the parent context.
// Returns errors.CodeTimeout if the deadline is exceeded.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, deadlineError(ctx, d)
	case res := <-done:
		// fn may observe the deadline and return first.
		if res.err != nil && ctx.Err() != nil {
			return res.value, deadlineError(ctx, d)
		}
		return res.value, res.err
	}
}

func deadlineError(ctx context.Context, d time.Duration) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	}
	return errors.New(errors.CodeContextLost, "operation canceled", ctx.Err())
}
