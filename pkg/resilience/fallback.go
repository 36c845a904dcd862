// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"fmt"
)

// Layer is one step of a layered fallback. Run is only invoked when every
// earlier layer failed.
type Layer[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// LayerError records why a layer did not produce a value.
type LayerError struct {
	Layer string
	Err   error
}

// Error implements error.
func (e LayerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Layer, e.Err)
}

// Unwrap returns the layer failure.
func (e LayerError) Unwrap() error {
	return e.Err
}

// Outcome is the result of walking a layer chain.
type Outcome[T any] struct {
	Value T
	// Layer is the name of the layer that produced Value, or "" when all failed.
	Layer string
	// Index is the position of that layer, or -1 when all failed.
	Index  int
	Errors []LayerError
}

// Succeeded reports whether some layer produced a value.
func (o Outcome[T]) Succeeded() bool {
	return o.Index >= 0
}

// RunLayers tries layers in order and stops at the first success. A panic in a
// layer counts as that layer's failure.
func RunLayers[T any](ctx context.Context, layers ...Layer[T]) Outcome[T] {
	out := Outcome[T]{Index: -1}
	for i, layer := range layers {
		if err := ctx.Err(); err != nil {
			out.Errors = append(out.Errors, LayerError{Layer: layer.Name, Err: err})
			continue
		}
		value, err := runLayer(ctx, layer)
		if err != nil {
			out.Errors = append(out.Errors, LayerError{Layer: layer.Name, Err: err})
			continue
		}
		out.Value = value
		out.Layer = layer.Name
		out.Index = i
		return out
	}
	return out
}

func runLayer[T any](ctx context.Context, layer Layer[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return layer.Run(ctx)
}
