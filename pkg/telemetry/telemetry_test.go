// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/jllopis/spendlens/pkg/core"
	"github.com/jllopis/spendlens/pkg/errors"
)

func TestInitNone(t *testing.T) {
	shutdown, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: "none"})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: "stdout", Writer: &buf})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	_, span := otel.Tracer("spendlens/test").Start(context.Background(), "Runtime.RunPlan")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Runtime.RunPlan") {
		t.Fatalf("expected the span in the exporter output, got %q", buf.String())
	}
}

func TestInitUnknownExporter(t *testing.T) {
	if _, err := InitWithConfig("svc", "v0", Config{Exporter: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
	if _, err := InitWithConfig("svc", "v0", Config{Exporter: "otlp"}); err == nil {
		t.Fatalf("expected error for otlp without endpoint")
	}
}

func TestSlogAddsRunID(t *testing.T) {
	var buf bytes.Buffer
	SetLogLevel("info")
	logger := slog.New(newSlogHandler(&buf, "json"))

	ctx := core.WithRunID(context.Background(), "run-42")
	logger.InfoContext(ctx, "executor.task.succeeded", slog.String("task_id", "1"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json log: %v", err)
	}
	if rec["run_id"] != "run-42" || rec["task_id"] != "1" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestSlogTaskIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	SetLogLevel("info")
	logger := slog.New(newSlogHandler(&buf, "json"))

	ctx := core.WithTaskID(core.WithRunID(context.Background(), "run-7"), "3")
	logger.InfoContext(ctx, "sandbox.layer.failed")
	logger.InfoContext(ctx, "executor.task.failed", slog.String("task_id", "override"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d", len(lines))
	}
	var first, second map[string]any
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("invalid json log: %v", err)
	}
	if err := json.Unmarshal(lines[1], &second); err != nil {
		t.Fatalf("invalid json log: %v", err)
	}
	if first["task_id"] != "3" || first["run_id"] != "run-7" {
		t.Fatalf("unexpected record %v", first)
	}
	if second["task_id"] != "override" {
		t.Fatalf("explicit attribute should win, got %v", second)
	}
}

func TestSetLogLevelAppliesToExistingLoggers(t *testing.T) {
	var buf bytes.Buffer
	SetLogLevel("warn")
	defer SetLogLevel("info")
	logger := slog.New(newSlogHandler(&buf, "text"))

	logger.Info("config.reloaded")
	if buf.Len() != 0 {
		t.Fatalf("info record should be filtered at warn: %s", buf.String())
	}
	SetLogLevel("debug")
	logger.Debug("config.reloaded")
	if buf.Len() == 0 {
		t.Fatalf("expected debug record after lowering the level")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordTask(ctx, "generate_charts", "succeeded", time.Millisecond)
	m.RecordSandboxLayer(ctx, "template")
	m.RecordError(ctx, stderrors.New("x"), "executor")
	m.RecordRecovery(ctx, errors.CodePlanParse)
	m.RecordHealth(ctx, "llm", 2)
}

func TestMetricsRecord(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.RecordTask(ctx, "fetch_transactions", "failed", 5*time.Millisecond)
	m.RecordError(ctx, errors.ToolNotRegistered("nope"), "executor")
	m.RecordError(ctx, nil, "executor")
	m.RecordRecovery(ctx, errors.CodePlanParse)
	if DefaultMetrics() == nil {
		t.Fatalf("expected default metrics")
	}
}

func TestAttributes(t *testing.T) {
	attrs := PlanAttributes("plan-1", strings.Repeat("g", 300), 4, true)
	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}
	for _, a := range attrs {
		if string(a.Key) == AttrGoal && len(a.Value.AsString()) != maxGoalLen+3 {
			t.Fatalf("goal should be truncated, got %d chars", len(a.Value.AsString()))
		}
	}
	if got := len(TaskAttributes("", "1", "analyze_data")); got != 2 {
		t.Fatalf("expected 2 task attributes without run id, got %d", got)
	}
}
