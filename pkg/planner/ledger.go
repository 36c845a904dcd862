// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"encoding/json"
	"time"

	"github.com/jllopis/spendlens/pkg/core"
)

// TaskResult is the outcome of one task.
type TaskResult struct {
	TaskID     string          `json:"task_id"`
	Tool       string          `json:"tool"`
	Status     core.TaskStatus `json:"status"`
	Value      any             `json:"value,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`

	err error
}

// Succeeded reports whether the task succeeded.
func (r TaskResult) Succeeded() bool {
	return r.Status == core.TaskStatusSucceeded
}

// Err returns the typed error behind a failed result.
func (r TaskResult) Err() error {
	return r.err
}

// ExecutionContext holds task results for one run in execution order. Entries
// are only appended.
type ExecutionContext struct {
	order []string
	byID  map[string]TaskResult
}

func newExecutionContext(capacity int) *ExecutionContext {
	return &ExecutionContext{
		order: make([]string, 0, capacity),
		byID:  make(map[string]TaskResult, capacity),
	}
}

func (c *ExecutionContext) add(r TaskResult) {
	if _, exists := c.byID[r.TaskID]; exists {
		return
	}
	c.order = append(c.order, r.TaskID)
	c.byID[r.TaskID] = r
}

// Get returns the result recorded for id.
func (c *ExecutionContext) Get(id string) (TaskResult, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// Len returns the number of recorded results.
func (c *ExecutionContext) Len() int {
	return len(c.order)
}

// Results returns the results in execution order.
func (c *ExecutionContext) Results() []TaskResult {
	out := make([]TaskResult, len(c.order))
	for i, id := range c.order {
		out[i] = c.byID[id]
	}
	return out
}

// Ledger is the record of one plan execution. It is not modified after Run
// returns; accessors return copies.
type Ledger struct {
	runID     string
	plan      *Plan
	results   *ExecutionContext
	artifacts map[string]string
}

// RunID returns the run identifier.
func (l *Ledger) RunID() string {
	return l.runID
}

// Plan returns a copy of the executed plan.
func (l *Ledger) Plan() *Plan {
	return l.plan.Clone()
}

// Results returns task results in execution order.
func (l *Ledger) Results() []TaskResult {
	return l.results.Results()
}

// Result returns the result of task id.
func (l *Ledger) Result(id string) (TaskResult, bool) {
	return l.results.Get(id)
}

// Artifacts returns a copy of the artifact name to path mapping.
func (l *Ledger) Artifacts() map[string]string {
	out := make(map[string]string, len(l.artifacts))
	for k, v := range l.artifacts {
		out[k] = v
	}
	return out
}

// Failed returns the failed results in execution order.
func (l *Ledger) Failed() []TaskResult {
	var out []TaskResult
	for _, r := range l.results.Results() {
		if !r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

// AllSucceeded reports whether every task succeeded.
func (l *Ledger) AllSucceeded() bool {
	return len(l.Failed()) == 0
}

// MarshalJSON implements json.Marshaler.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RunID     string            `json:"run_id"`
		Plan      *Plan             `json:"plan"`
		Results   []TaskResult      `json:"results"`
		Artifacts map[string]string `json:"artifacts"`
	}{
		RunID:     l.runID,
		Plan:      l.plan,
		Results:   l.results.Results(),
		Artifacts: l.artifacts,
	})
}
