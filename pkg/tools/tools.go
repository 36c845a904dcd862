// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package tools defines the capability model and the registry the executor
// resolves plan tasks against.
package tools

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/jllopis/spendlens/pkg/errors"
)

// Kind distinguishes capabilities that complete inline from those that
// complete later.
type Kind string

const (
	KindSync  Kind = "sync"
	KindAsync Kind = "async"
)

// Spec describes a capability.
type Spec struct {
	Name        string
	Kind        Kind
	Description string
	// Parameters lists parameter names in order. Empty means unknown.
	Parameters []string
}

// Capability is a named unit of work invocable by the executor.
type Capability interface {
	Spec() Spec
	Invoke(ctx context.Context, params Params) (any, error)
}

// Result is the value delivered by an async capability.
type Result struct {
	Value any
	Err   error
}

// SyncFunc implements a sync capability.
type SyncFunc func(ctx context.Context, params Params) (any, error)

// AsyncFunc implements an async capability. It must eventually send exactly
// one Result on the returned channel or close it.
type AsyncFunc func(ctx context.Context, params Params) <-chan Result

type syncCapability struct {
	spec Spec
	fn   SyncFunc
}

func (c *syncCapability) Spec() Spec { return c.spec }

func (c *syncCapability) Invoke(ctx context.Context, params Params) (any, error) {
	return c.fn(ctx, params)
}

type asyncCapability struct {
	spec Spec
	fn   AsyncFunc
}

func (c *asyncCapability) Spec() Spec { return c.spec }

// Invoke awaits the async result, giving up when ctx is done.
func (c *asyncCapability) Invoke(ctx context.Context, params Params) (any, error) {
	ch := c.fn(ctx, params)
	if ch == nil {
		return nil, fmt.Errorf("tool %q returned no result channel", c.spec.Name)
	}
	select {
	case res, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("tool %q closed its result channel without a value", c.spec.Name)
		}
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, errors.New(errors.CodeContextLost, "awaiting async tool", ctx.Err()).
			WithContext("tool", c.spec.Name)
	}
}

// Sync builds a sync capability.
func Sync(spec Spec, fn SyncFunc) Capability {
	spec.Kind = KindSync
	return &syncCapability{spec: spec, fn: fn}
}

// Async builds an async capability.
func Async(spec Spec, fn AsyncFunc) Capability {
	spec.Kind = KindAsync
	return &asyncCapability{spec: spec, fn: fn}
}

// Go runs fn on a new goroutine and delivers its outcome as an async Result.
func Go(fn func() (any, error)) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				ch <- Result{Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn()
		ch <- Result{Value: v, Err: err}
	}()
	return ch
}

// Invoke calls c with params, converting a panic into an error.
func Invoke(ctx context.Context, c Capability, params Params) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.CodeInternal, "tool %q panicked: %v", c.Spec().Name, r).
				WithContext("stack", string(debug.Stack()))
		}
	}()
	if params == nil {
		params = Params{}
	}
	return c.Invoke(ctx, params)
}
