// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox renders chart artifacts from model-authored Starlark code.
//
// Scripts run in a restricted interpreter with no load statement, no
// filesystem or network access and a reduced builtin set. Execution is bounded
// by a step budget and a wall-clock deadline. With a Worker configured, model
// code runs in a child process that also carries an operating system memory
// and CPU quota. When the supplied code does not
// produce a chart a canned template is tried, and when that fails too a
// placeholder image is written, so Render always returns an existing file.
package sandbox

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/spendlens/pkg/artifact"
	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/memory"
	"github.com/jllopis/spendlens/pkg/resilience"
	"github.com/jllopis/spendlens/pkg/telemetry"
)

// Layers that can produce a render.
const (
	LayerModel       = "model"
	LayerTemplate    = "template"
	LayerPlaceholder = "placeholder"
	// LayerEmergency means the placeholder could not be stored through the
	// artifact store and was written to the temp directory.
	LayerEmergency = "emergency"
)

// Renderer turns code and data into a chart file.
type Renderer interface {
	Render(ctx context.Context, req Request) Result
}

// Request is one render call.
type Request struct {
	// Code is the model-authored script. It may be empty.
	Code    string
	Dataset Dataset
	// Goal is the originating request text, used to pick a template.
	Goal string
}

// Result describes a render. Path always names an existing file.
type Result struct {
	Path   string
	Layer  string
	Stdout string
	Errors []string
}

// Limits bound a single script execution.
type Limits struct {
	MaxSteps uint64
	Timeout  time.Duration
	// MaxRows truncates the dataset; a truncation is reported in Result.Errors.
	MaxRows   int
	MaxPoints int
	MaxSeries int
	MaxStdout int
	// MaxMemory is the heap budget in bytes. It is enforced only for scripts
	// run through a Worker.
	MaxMemory int64
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxSteps:  2_000_000,
		Timeout:   5 * time.Second,
		MaxRows:   100_000,
		MaxPoints: 5_000,
		MaxSeries: 16,
		MaxStdout: 64 << 10,
		MaxMemory: 512 << 20,
	}
}

// StarlarkRenderer is the Renderer backed by the Starlark interpreter.
type StarlarkRenderer struct {
	store   artifact.Store
	dir     string
	limits  Limits
	worker  *Worker
	memory  *memory.Log
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a StarlarkRenderer.
type Option func(*StarlarkRenderer)

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(r *StarlarkRenderer) { r.limits = l }
}

// WithWorker runs model code through w instead of in-process.
func WithWorker(w Worker) Option {
	return func(r *StarlarkRenderer) { r.worker = &w }
}

// WithMemory records every render on log.
func WithMemory(log *memory.Log) Option {
	return func(r *StarlarkRenderer) { r.memory = log }
}

// WithMetrics counts renders by layer.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *StarlarkRenderer) { r.metrics = m }
}

// WithClock sets the time source used for file names.
func WithClock(now func() time.Time) Option {
	return func(r *StarlarkRenderer) { r.now = now }
}

// New creates a renderer writing into dir of store.
func New(store artifact.Store, dir string, opts ...Option) *StarlarkRenderer {
	r := &StarlarkRenderer{
		store:  store,
		dir:    dir,
		limits: DefaultLimits(),
		tracer: otel.Tracer("spendlens/sandbox"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render runs req through the model, template and placeholder layers in turn.
func (r *StarlarkRenderer) Render(ctx context.Context, req Request) (res Result) {
	ctx, span := r.tracer.Start(ctx, "Sandbox.Render")
	defer span.End()

	var stdout strings.Builder
	defer func() {
		if rec := recover(); rec != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("render panic: %v", rec))
			res = r.placeholder(ctx, res, MessageFailed)
		}
		res.Stdout = stdout.String()
		span.SetAttributes(telemetry.SandboxAttributes(res.Layer, req.Dataset.Len())...)
		r.record(ctx, req, res)
	}()

	if req.Dataset.Len() == 0 {
		return r.placeholder(ctx, res, MessageNoData)
	}
	ds := req.Dataset
	if n := r.limits.MaxRows; n > 0 && ds.Len() > n {
		res.Errors = append(res.Errors, fmt.Sprintf("dataset truncated to %d of %d rows", n, ds.Len()))
		slog.WarnContext(ctx, "sandbox.dataset.truncated", "rows", ds.Len(), "max_rows", n)
		ds = Dataset{Columns: ds.Columns, Rows: ds.Rows[:n]}
	}

	// Templates are trusted and stay in-process, so a broken worker still
	// yields a chart.
	model := execute
	if r.worker != nil {
		model = r.worker.execute
	}
	outcome := resilience.RunLayers(ctx,
		r.scriptLayer(LayerModel, req.Code, ds, model, &stdout),
		r.scriptLayer(LayerTemplate, TemplateCode(TemplateTag(req.Goal), r.now()), ds, execute, &stdout),
	)
	for _, le := range outcome.Errors {
		res.Errors = append(res.Errors, le.Error())
		slog.DebugContext(ctx, "sandbox.layer.failed", "layer", le.Layer, "error", le.Err)
	}
	if outcome.Succeeded() {
		res.Path = outcome.Value
		res.Layer = outcome.Layer
		return res
	}
	return r.placeholder(ctx, res, MessageFailed)
}

type executeFunc func(context.Context, run) (output, error)

func (r *StarlarkRenderer) scriptLayer(name, code string, ds Dataset, exec executeFunc, stdout *strings.Builder) resilience.Layer[string] {
	return resilience.Layer[string]{
		Name: name,
		Run: func(ctx context.Context) (string, error) {
			if strings.TrimSpace(code) == "" {
				return "", errors.New(errors.CodeSandboxExecution, "no code supplied", nil)
			}
			now := r.now()
			out, err := exec(ctx, run{
				code:      code,
				filename:  ResolveFilename(code, now),
				outputDir: r.dir,
				dataset:   ds,
				limits:    r.limits,
				now:       now,
			})
			stdout.WriteString(out.stdout)
			if err != nil {
				return "", errors.New(errors.CodeSandboxExecution, "script failed", err).WithContext("layer", name)
			}
			return r.store.Write(ctx, out.png, r.dir, out.name)
		},
	}
}

// placeholder stores a labelled image. Cancellation of ctx does not prevent
// it from being written.
func (r *StarlarkRenderer) placeholder(ctx context.Context, res Result, message string) Result {
	ctx = context.WithoutCancel(ctx)
	data := placeholderPNG(message)
	tag := "chart_failed"
	if message == MessageNoData {
		tag = "no_data"
	}
	name := fmt.Sprintf("%s_%s.png", tag, r.now().Format("20060102_150405"))

	res.Layer = LayerPlaceholder
	path, err := r.writeStore(ctx, data, name)
	if err == nil {
		res.Path = path
		return res
	}
	res.Errors = append(res.Errors, err.Error())
	slog.ErrorContext(ctx, "sandbox.placeholder.persist.failed", "error", err)

	res.Layer = LayerEmergency
	res.Path, err = r.writeEmergency(data, tag)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		slog.ErrorContext(ctx, "sandbox.emergency.persist.failed", "error", err)
	}
	return res
}

func (r *StarlarkRenderer) writeStore(ctx context.Context, data []byte, name string) (path string, err error) {
	if r.store == nil {
		return "", errors.New(errors.CodeArtifactPersist, "no artifact store", nil)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("artifact store panic: %v", rec)
		}
	}()
	return r.store.Write(ctx, data, r.dir, name)
}

// writeEmergency writes data straight to the filesystem, trying the temp
// directory first and then the output directory and the working directory.
func (r *StarlarkRenderer) writeEmergency(data []byte, tag string) (string, error) {
	var errs []error
	for _, dir := range []string{os.TempDir(), r.dir, "."} {
		if dir == "" {
			continue
		}
		path, err := writeTemp(dir, data, tag)
		if err == nil {
			return path, nil
		}
		errs = append(errs, err)
	}
	return "", errors.New(errors.CodeArtifactPersist, "emergency placeholder not written", stderrors.Join(errs...))
}

func writeTemp(dir string, data []byte, tag string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "spendlens_"+tag+"_*.png")
	if err != nil {
		return "", err
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return filepath.Abs(f.Name())
}

func (r *StarlarkRenderer) record(ctx context.Context, req Request, res Result) {
	r.metrics.RecordSandboxLayer(ctx, res.Layer)
	if res.Layer != LayerModel {
		r.metrics.RecordRecovery(ctx, errors.CodeSandboxExecution)
	}
	slog.InfoContext(ctx, "sandbox.render", "layer", res.Layer, "path", res.Path, "rows", req.Dataset.Len())
	if r.memory == nil {
		return
	}
	r.memory.Append(ctx, "sandbox.render", map[string]any{
		"goal":   req.Goal,
		"layer":  res.Layer,
		"path":   res.Path,
		"rows":   req.Dataset.Len(),
		"stdout": res.Stdout,
		"errors": append([]string(nil), res.Errors...),
	})
}
