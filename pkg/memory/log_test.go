// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLogAppendAndRecent(t *testing.T) {
	log := NewLog()
	for i := 0; i < 5; i++ {
		log.Append(context.Background(), fmt.Sprintf("action.%d", i), map[string]any{"n": i})
	}

	if log.Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", log.Len())
	}

	recent := log.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].Action != "action.3" || recent[1].Action != "action.4" {
		t.Fatalf("unexpected order: %s, %s", recent[0].Action, recent[1].Action)
	}

	if got := len(log.Recent(0)); got != 5 {
		t.Fatalf("expected all entries for n=0, got %d", got)
	}
	if got := len(log.Recent(50)); got != 5 {
		t.Fatalf("expected all entries for large n, got %d", got)
	}
}

func TestLogTimestampsAndPayloadCopy(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	log := NewLog(WithClock(func() time.Time { return fixed }))

	payload := map[string]any{"task_id": "1"}
	entry := log.Append(context.Background(), "task.succeeded", payload)
	payload["task_id"] = "mutated"

	if !entry.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected timestamp %v", entry.Timestamp)
	}
	if got := log.Recent(1)[0].Payload["task_id"]; got != "1" {
		t.Fatalf("payload should be copied on append, got %v", got)
	}
}

func TestLogFilter(t *testing.T) {
	log := NewLog()
	log.Append(context.Background(), "task.succeeded", nil)
	log.Append(context.Background(), "task.failed", nil)
	log.Append(context.Background(), "task.succeeded", nil)

	if got := len(log.Filter("task.succeeded")); got != 2 {
		t.Fatalf("expected 2 succeeded entries, got %d", got)
	}
}

func TestLogConcurrentAppend(t *testing.T) {
	log := NewLog()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				log.Append(context.Background(), "tick", nil)
			}
		}()
	}
	wg.Wait()

	if log.Len() != 1000 {
		t.Fatalf("expected 1000 entries, got %d", log.Len())
	}
}

type failingSink struct{}

func (failingSink) Write(context.Context, Entry) error { return fmt.Errorf("disk full") }

func TestLogSinkFailureDoesNotFailAppend(t *testing.T) {
	log := NewLog(WithSink(failingSink{}))
	log.Append(context.Background(), "plan.generated", nil)
	if log.Len() != 1 {
		t.Fatalf("entry should be kept when the sink fails")
	}
}
