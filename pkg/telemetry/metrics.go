// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/spendlens/pkg/errors"
)

// Metrics records task, sandbox and error instruments. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	tasks        metric.Int64Counter
	taskDuration metric.Float64Histogram
	sandboxLayer metric.Int64Counter
	errorCounter metric.Int64Counter
	recovered    metric.Int64Counter
	health       metric.Int64Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics returns a process-wide recorder bound to the global meter
// provider, or nil if instruments could not be created.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics()
		if err == nil {
			defaultMetrics = m
		}
	})
	return defaultMetrics
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("spendlens")

	tasks, err := meter.Int64Counter(
		"spendlens.tasks.total",
		metric.WithDescription("Executed plan tasks by tool and status"),
	)
	if err != nil {
		return nil, err
	}
	taskDuration, err := meter.Float64Histogram(
		"spendlens.task.duration_ms",
		metric.WithDescription("Plan task duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	sandboxLayer, err := meter.Int64Counter(
		"spendlens.sandbox.layer",
		metric.WithDescription("Chart renders by the fallback layer that produced the artifact"),
	)
	if err != nil {
		return nil, err
	}
	errorCounter, err := meter.Int64Counter(
		"spendlens.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}
	recovered, err := meter.Int64Counter(
		"spendlens.errors.recovered",
		metric.WithDescription("Errors recovered locally by code"),
	)
	if err != nil {
		return nil, err
	}
	health, err := meter.Int64Gauge(
		"spendlens.health.status",
		metric.WithDescription("Component health status (0=unhealthy, 1=degraded, 2=healthy)"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		tasks:        tasks,
		taskDuration: taskDuration,
		sandboxLayer: sandboxLayer,
		errorCounter: errorCounter,
		recovered:    recovered,
		health:       health,
	}, nil
}

// RecordTask counts a finished task and its duration.
func (m *Metrics) RecordTask(ctx context.Context, tool, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrTaskTool, tool),
		attribute.String(AttrTaskStatus, status),
	)
	m.tasks.Add(ctx, 1, attrs)
	m.taskDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// RecordSandboxLayer counts a render by its producing layer.
func (m *Metrics) RecordSandboxLayer(ctx context.Context, layer string) {
	if m == nil {
		return
	}
	m.sandboxLayer.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrSandboxLayer, layer)))
}

// RecordError counts err under component.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	code, recoverable := "UNKNOWN", "unknown"
	if e := errors.As(err); e != nil && e.Code != errors.CodeInternal {
		code, recoverable = string(e.Code), e.RecoverableString()
	}
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", code),
		attribute.String("component", component),
		attribute.String("recoverable", recoverable),
	))
}

// RecordRecovery counts an error handled without failing the caller, such as
// a plan parse failure replaced by the fallback plan.
func (m *Metrics) RecordRecovery(ctx context.Context, code errors.ErrorCode) {
	if m == nil {
		return
	}
	m.recovered.Add(ctx, 1, metric.WithAttributes(attribute.String("error.code", string(code))))
}

// RecordHealth records a component health level (0=unhealthy, 1=degraded, 2=healthy).
func (m *Metrics) RecordHealth(ctx context.Context, component string, level int64) {
	if m == nil {
		return
	}
	m.health.Record(ctx, level, metric.WithAttributes(attribute.String("component", component)))
}
