// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails screens text crossing the model boundary.
//
// Goals are checked before they are formatted into the planning prompt, and
// model narratives are filtered before they reach reports:
//
//	guard := guardrails.New(
//	    guardrails.WithInputChecker(guardrails.NewInjectionDetector()),
//	    guardrails.WithOutputFilter(guardrails.NewPIIFilter(guardrails.PIIMask)),
//	)
//	if res := guard.CheckInput(ctx, goal); res.Blocked {
//	    return res.Reason
//	}
//	narrative := guard.FilterOutput(ctx, text).Content
package guardrails

import (
	"context"
	"sync"

	"github.com/jllopis/spendlens/pkg/llm"
)

// CheckResult is the outcome of an input check.
type CheckResult struct {
	Blocked     bool
	Reason      string
	GuardrailID string
	Matches     []string
}

// FilterResult is the outcome of output filtering.
type FilterResult struct {
	Content    string
	Modified   bool
	Redactions []Redaction
}

// Redaction describes one replaced span of the original text.
type Redaction struct {
	Type        string
	Replacement string
	Position    int
}

// InputChecker validates text before it reaches the model.
type InputChecker interface {
	CheckInput(ctx context.Context, input string) CheckResult
	ID() string
}

// OutputFilter rewrites model output.
type OutputFilter interface {
	FilterOutput(ctx context.Context, output string) FilterResult
	ID() string
}

// Guard runs input checkers and output filters in registration order.
type Guard struct {
	mu       sync.RWMutex
	checkers []InputChecker
	filters  []OutputFilter
	failOpen bool
}

// Option configures a Guard.
type Option func(*Guard)

// New creates a Guard.
func New(opts ...Option) *Guard {
	g := &Guard{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Default returns a Guard with the injection detector and a masking PII
// filter.
func Default() *Guard {
	return New(
		WithInputChecker(NewInjectionDetector()),
		WithOutputFilter(NewPIIFilter(PIIMask)),
	)
}

// WithInputChecker adds an input checker.
func WithInputChecker(c InputChecker) Option {
	return func(g *Guard) { g.checkers = append(g.checkers, c) }
}

// WithOutputFilter adds an output filter.
func WithOutputFilter(f OutputFilter) Option {
	return func(g *Guard) { g.filters = append(g.filters, f) }
}

// WithFailOpen lets input through when the context ends mid-check. The
// default blocks.
func WithFailOpen(failOpen bool) Option {
	return func(g *Guard) { g.failOpen = failOpen }
}

// CheckInput returns the first blocking result, or an unblocked result.
func (g *Guard) CheckInput(ctx context.Context, input string) CheckResult {
	if g == nil {
		return CheckResult{}
	}
	g.mu.RLock()
	checkers := g.checkers
	g.mu.RUnlock()

	for _, c := range checkers {
		if ctx.Err() != nil {
			if g.failOpen {
				return CheckResult{}
			}
			return CheckResult{Blocked: true, Reason: "guardrail check cancelled", GuardrailID: "system"}
		}
		if res := c.CheckInput(ctx, input); res.Blocked {
			res.GuardrailID = c.ID()
			return res
		}
	}
	return CheckResult{}
}

// FilterOutput chains the filters, each seeing the previous one's output.
func (g *Guard) FilterOutput(ctx context.Context, output string) FilterResult {
	result := FilterResult{Content: output}
	if g == nil {
		return result
	}
	g.mu.RLock()
	filters := g.filters
	g.mu.RUnlock()

	for _, f := range filters {
		if ctx.Err() != nil {
			break
		}
		fr := f.FilterOutput(ctx, result.Content)
		if fr.Modified {
			result.Content = fr.Content
			result.Modified = true
			result.Redactions = append(result.Redactions, fr.Redactions...)
		}
	}
	return result
}

// AddInputChecker adds a checker at runtime.
func (g *Guard) AddInputChecker(c InputChecker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkers = append(g.checkers, c)
}

// AddOutputFilter adds a filter at runtime.
func (g *Guard) AddOutputFilter(f OutputFilter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filters = append(g.filters, f)
}

// WrapInvoker returns an Invoker whose responses pass through the output
// filters. A nil Guard returns inv unchanged.
func (g *Guard) WrapInvoker(inv llm.Invoker) llm.Invoker {
	if g == nil || inv == nil {
		return inv
	}
	return llm.InvokerFunc(func(ctx context.Context, prompt string) (string, error) {
		out, err := inv.Invoke(ctx, prompt)
		if err != nil {
			return out, err
		}
		return g.FilterOutput(ctx, out).Content, nil
	})
}
