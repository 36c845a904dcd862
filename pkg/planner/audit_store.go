// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// AuditEvent is one task state change: a running row when the task starts
// and a terminal row when it ends.
type AuditEvent struct {
	PlanID     string
	RunID      string
	TaskID     string
	Tool       string
	Status     string
	Output     any
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Elapsed is the task's run time, zero until it finished.
func (ev AuditEvent) Elapsed() time.Duration {
	if ev.StartedAt.IsZero() || ev.FinishedAt.IsZero() {
		return 0
	}
	return ev.FinishedAt.Sub(ev.StartedAt)
}

// AuditStore persists task audit events.
type AuditStore interface {
	Record(ctx context.Context, event AuditEvent) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// AuditFilter selects audit events; empty fields match everything and a
// positive Limit caps the result.
type AuditFilter struct {
	PlanID string
	RunID  string
	TaskID string
	Status string
	Limit  int
}

// fields pairs each filter value with the event column it constrains.
func (f AuditFilter) fields() [4][2]string {
	return [4][2]string{
		{"plan_id", f.PlanID},
		{"run_id", f.RunID},
		{"task_id", f.TaskID},
		{"status", f.Status},
	}
}

func (f AuditFilter) matches(ev AuditEvent) bool {
	values := map[string]string{
		"plan_id": ev.PlanID,
		"run_id":  ev.RunID,
		"task_id": ev.TaskID,
		"status":  ev.Status,
	}
	for _, kv := range f.fields() {
		if kv[1] != "" && values[kv[0]] != kv[1] {
			return false
		}
	}
	return true
}

// MemoryAuditStore keeps audit events in process, for tests and for runs
// configured with executor.audit=memory.
type MemoryAuditStore struct {
	mu     sync.Mutex
	events []AuditEvent
}

// NewMemoryAuditStore returns an empty in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) Record(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *MemoryAuditStore) List(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, ev := range s.events {
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
		if filter.matches(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// summarizeOutput keeps audit rows small. Scalars, paths and path maps are
// stored as they are; other collections, such as fetched transactions, are
// reduced to their type and size.
func summarizeOutput(value any) any {
	switch v := value.(type) {
	case nil, string, bool, int, int64, float64, []string, map[string]string:
		return v
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return map[string]any{"type": fmt.Sprintf("%T", value), "items": rv.Len()}
	default:
		return map[string]any{"type": fmt.Sprintf("%T", value)}
	}
}

// encodeAuditOutput returns the JSON stored for an output; values that
// cannot be encoded are stored as null.
func encodeAuditOutput(output any) string {
	data, err := json.Marshal(output)
	if err != nil {
		return "null"
	}
	return string(data)
}
