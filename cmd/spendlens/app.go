// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/jllopis/spendlens/pkg/artifact"
	"github.com/jllopis/spendlens/pkg/config"
	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/finance"
	"github.com/jllopis/spendlens/pkg/guardrails"
	"github.com/jllopis/spendlens/pkg/llm"
	"github.com/jllopis/spendlens/pkg/memory"
	"github.com/jllopis/spendlens/pkg/orchestrator"
	"github.com/jllopis/spendlens/pkg/planner"
	"github.com/jllopis/spendlens/pkg/resilience"
	"github.com/jllopis/spendlens/pkg/sandbox"
	"github.com/jllopis/spendlens/pkg/telemetry"
)

// app holds what a command needs for one invocation.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	source   *finance.SQLiteSource
	memory   *memory.Log
	runtime  *orchestrator.Runtime
	shutdown telemetry.ShutdownFunc
}

// appOption adjusts the runtime options a command builds.
type appOption func(*orchestrator.Options)

// withProgress streams run events to w.
func withProgress(w io.Writer) appOption {
	return func(o *orchestrator.Options) { o.Emitter = newProgressPrinter(w) }
}

// openApp wires storage, telemetry, the model gateway and the runtime from
// cfg. Logs and stdout telemetry go to logOut so stdout stays free for
// results and MCP traffic.
func openApp(cfg *config.Config, logOut io.Writer, opts ...appOption) (*app, error) {
	telemetry.ConfigureSlog(logOut, cfg.Log.Level, cfg.Log.Format)

	shutdown, err := telemetry.InitWithConfig(cfg.Telemetry.ServiceName, version, telemetry.Config{
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		MetricInterval: cfg.Telemetry.MetricInterval,
		Writer:         logOut,
	})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "initialize telemetry", err)
	}
	a := &app{cfg: cfg, shutdown: shutdown}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		slog.Warn("telemetry.metrics.disabled", slog.String("error", err.Error()))
		metrics = nil
	}

	a.db, err = openDB(cfg.Storage.SQLitePath)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	a.source, err = finance.NewSQLiteSource(a.db)
	if err != nil {
		a.Close(context.Background())
		return nil, errors.New(errors.CodeInternal, "prepare transaction store", err)
	}

	var audit planner.AuditStore
	switch cfg.Executor.Audit {
	case "sqlite":
		store, err := planner.NewSQLiteAuditStore(a.db)
		if err != nil {
			a.Close(context.Background())
			return nil, errors.New(errors.CodeInternal, "prepare audit store", err)
		}
		audit = store
	case "memory":
		audit = planner.NewMemoryAuditStore()
	}

	var memOpts []memory.Option
	if cfg.Storage.MemoryLogPath != "" {
		memOpts = append(memOpts, memory.WithSink(memory.NewFileSink(cfg.Storage.MemoryLogPath)))
	}
	a.memory = memory.NewLog(memOpts...)

	rtOpts := orchestrator.Options{
		Source:        a.source,
		Gateway:       newGateway(cfg.LLM),
		Memory:        a.memory,
		Store:         artifact.NewFSStore(cfg.Storage.ArtifactDir),
		ChartDir:      cfg.Sandbox.OutputDir,
		ReportDir:     cfg.Storage.ReportDir,
		SandboxLimits: sandboxLimits(cfg.Sandbox),
		SandboxWorker: sandboxWorker(cfg.Sandbox),
		AllowedTools:  cfg.Executor.AllowedTools,
		DeniedTools:   cfg.Executor.DeniedTools,
		Audit:         audit,
		Metrics:       metrics,
		TaskTimeout:   cfg.Executor.TaskTimeout,
		Guard:         newGuard(cfg.Guardrails),
	}
	for _, opt := range opts {
		opt(&rtOpts)
	}
	a.runtime, err = orchestrator.New(rtOpts)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

// Close flushes telemetry and closes the database.
func (a *app) Close(ctx context.Context) {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("storage.close.failed", slog.String("error", err.Error()))
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			slog.Warn("telemetry.shutdown.failed", slog.String("error", err.Error()))
		}
	}
}

func openDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(errors.CodeInternal, "create database directory", err).WithContext("path", path)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "open database", err).WithContext("path", path)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.New(errors.CodeInternal, "configure database", err).WithContext("path", path)
	}
	return db, nil
}

func newGateway(cfg config.LLMConfig) llm.Invoker {
	var provider llm.Provider
	switch cfg.Provider {
	case "mock":
		provider = &llm.MockProvider{Response: "mock response"}
	default:
		provider = llm.NewOllama(cfg.BaseURL, cfg.Timeout)
	}
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	return llm.NewGateway(provider, llm.GatewayConfig{
		Model:         cfg.Model,
		Temperature:   cfg.Temperature,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
		Retry:         resilience.DefaultRetryConfig().WithMaxAttempts(attempts),
	})
}

// newGuard returns nil when guardrails are disabled.
func newGuard(cfg config.GuardrailsConfig) *guardrails.Guard {
	if !cfg.Enabled {
		return nil
	}
	opts := []guardrails.Option{guardrails.WithInputChecker(guardrails.NewInjectionDetector())}
	switch cfg.PII {
	case "mask":
		opts = append(opts, guardrails.WithOutputFilter(guardrails.NewPIIFilter(guardrails.PIIMask)))
	case "redact":
		opts = append(opts, guardrails.WithOutputFilter(guardrails.NewPIIFilter(guardrails.PIIRedact)))
	}
	return guardrails.New(opts...)
}

func sandboxLimits(cfg config.SandboxConfig) sandbox.Limits {
	limits := sandbox.DefaultLimits()
	if cfg.MaxSteps > 0 {
		limits.MaxSteps = cfg.MaxSteps
	}
	if cfg.Timeout > 0 {
		limits.Timeout = cfg.Timeout
	}
	if cfg.MaxRows > 0 {
		limits.MaxRows = cfg.MaxRows
	}
	if cfg.MaxPoints > 0 {
		limits.MaxPoints = cfg.MaxPoints
	}
	if cfg.MaxMemoryMB > 0 {
		limits.MaxMemory = int64(cfg.MaxMemoryMB) << 20
	}
	return limits
}

// sandboxWorker re-executes this binary as the chart worker. Nil keeps chart
// code in-process.
func sandboxWorker(cfg config.SandboxConfig) *sandbox.Worker {
	if !cfg.Isolate {
		return nil
	}
	exe, err := os.Executable()
	if err != nil {
		slog.Warn("sandbox.worker.disabled", slog.String("error", err.Error()))
		return nil
	}
	return &sandbox.Worker{Path: exe, Args: []string{sandbox.WorkerCommand}}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
