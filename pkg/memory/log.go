// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides the append-only action log shared by the planner,
// executor and sandbox.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one record in the log.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Sink mirrors log entries to durable storage.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// Log is an unbounded, in-process, append-only log safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	sink    Sink
	now     func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithSink mirrors every appended entry to s. Sink failures are logged and
// never fail the append.
func WithSink(s Sink) Option {
	return func(l *Log) { l.sink = s }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// NewLog creates an empty log.
func NewLog(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records action with payload and returns the stored entry.
func (l *Log) Append(ctx context.Context, action string, payload map[string]any) Entry {
	entry := Entry{
		Timestamp: l.now().UTC(),
		Action:    action,
		Payload:   clonePayload(payload),
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		if err := sink.Write(ctx, entry); err != nil {
			slog.WarnContext(ctx, "memory.sink.write.failed",
				slog.String("action", action),
				slog.String("error", err.Error()),
			)
		}
	}
	return entry
}

// Recent returns the last n entries, oldest first. n <= 0 returns all entries.
func (l *Log) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if n > 0 && n < len(l.entries) {
		start = len(l.entries) - n
	}
	out := make([]Entry, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Filter returns every entry whose action equals action, oldest first.
func (l *Log) Filter(action string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func clonePayload(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
