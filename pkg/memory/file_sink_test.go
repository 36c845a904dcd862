// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestFileSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(filepath.Join(dir, "nested", "memory.jsonl"))
	log := NewLog(WithSink(sink))

	log.Append(context.Background(), "plan.generated", map[string]any{"tasks": 4})
	log.Append(context.Background(), "task.succeeded", map[string]any{"task_id": "1"})

	entries, err := LoadFile(sink.Path())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Action != "task.succeeded" {
		t.Fatalf("unexpected action %q", entries[1].Action)
	}
	if entries[0].Payload["tasks"] != float64(4) {
		t.Fatalf("unexpected payload %v", entries[0].Payload)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
