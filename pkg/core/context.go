// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	taskIDKey
)

// WithRunID attaches a run id to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID returns the run id carried by ctx, if any.
func RunID(ctx context.Context) (string, bool) {
	return stringValue(ctx, runIDKey)
}

// EnsureRunID returns ctx unchanged when it already carries a run id and
// otherwise attaches a fresh one.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if id, ok := RunID(ctx); ok {
		return ctx, id
	}
	id := "run-" + uuid.NewString()
	return WithRunID(ctx, id), id
}

// WithTaskID marks ctx as belonging to the plan task id. Capabilities invoked
// by the executor receive it, so their logs can be tied back to the task.
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskID returns the task id carried by ctx, if any.
func TaskID(ctx context.Context) (string, bool) {
	return stringValue(ctx, taskIDKey)
}

func stringValue(ctx context.Context, key ctxKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}
