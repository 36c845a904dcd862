// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"sync"
	"time"
)

// EventType identifies a semantic event emitted during a run.
type EventType string

const (
	EventPlanGenerated EventType = "plan.generated"
	EventPlanFallback  EventType = "plan.fallback"
	EventTaskStarted   EventType = "task.started"
	EventTaskSucceeded EventType = "task.succeeded"
	EventTaskFailed    EventType = "task.failed"
	EventRunCompleted  EventType = "run.completed"
)

// Event captures a semantic streaming/logging event.
type Event struct {
	Type      EventType
	RunID     string
	TaskID    string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(context.Context, Event) {}

// EventRecorder keeps every emitted event in memory.
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements EventEmitter.
func (r *EventRecorder) Emit(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// NewEvent builds an event stamped with the run id from ctx.
func NewEvent(ctx context.Context, eventType EventType, taskID string, payload map[string]any) Event {
	runID, _ := RunID(ctx)
	return Event{
		Type:      eventType,
		RunID:     runID,
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
