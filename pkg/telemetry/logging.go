// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/spendlens/pkg/core"
)

// logLevel backs every handler built here, so SetLogLevel reaches loggers
// that already exist.
var logLevel = new(slog.LevelVar)

// ConfigureSlog installs the default slog logger writing to output. Records
// logged with a context carry the run, task and span identifiers it holds.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	SetLogLevel(level)
	logger := slog.New(newSlogHandler(output, format))
	slog.SetDefault(logger)
	return logger
}

// SetLogLevel changes the level of loggers built by ConfigureSlog.
func SetLogLevel(level string) {
	logLevel.Set(parseLogLevel(level))
}

func newSlogHandler(output io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: logLevel}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return correlatingHandler{slog.NewJSONHandler(output, opts)}
	}
	return correlatingHandler{slog.NewTextHandler(output, opts)}
}

// correlatingHandler adds the run and span identifiers found in the record's
// context. Attributes the caller set explicitly win.
type correlatingHandler struct {
	slog.Handler
}

func (h correlatingHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx != nil {
		ids := correlationIDs(ctx)
		if len(ids) > 0 {
			record.Attrs(func(a slog.Attr) bool {
				delete(ids, a.Key)
				return len(ids) > 0
			})
			for _, key := range []string{"run_id", "task_id", "trace_id", "span_id"} {
				if v, ok := ids[key]; ok {
					record.AddAttrs(slog.String(key, v))
				}
			}
		}
	}
	return h.Handler.Handle(ctx, record)
}

func (h correlatingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return correlatingHandler{h.Handler.WithAttrs(attrs)}
}

func (h correlatingHandler) WithGroup(name string) slog.Handler {
	return correlatingHandler{h.Handler.WithGroup(name)}
}

func correlationIDs(ctx context.Context) map[string]string {
	ids := map[string]string{}
	if runID, ok := core.RunID(ctx); ok {
		ids["run_id"] = runID
	}
	if taskID, ok := core.TaskID(ctx); ok {
		ids["task_id"] = taskID
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ids["trace_id"] = sc.TraceID().String()
		ids["span_id"] = sc.SpanID().String()
	}
	return ids
}

// parseLogLevel maps a config level name to a slog level; unknown names are
// info.
func parseLogLevel(level string) slog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
