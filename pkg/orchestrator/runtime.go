// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator wires the capability registry, planner, executor and
// chart renderer into one Runtime that turns a goal into an executed plan.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/spendlens/pkg/analysis"
	"github.com/jllopis/spendlens/pkg/artifact"
	"github.com/jllopis/spendlens/pkg/core"
	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/finance"
	"github.com/jllopis/spendlens/pkg/guardrails"
	"github.com/jllopis/spendlens/pkg/llm"
	"github.com/jllopis/spendlens/pkg/memory"
	"github.com/jllopis/spendlens/pkg/planner"
	"github.com/jllopis/spendlens/pkg/prompt"
	"github.com/jllopis/spendlens/pkg/sandbox"
	"github.com/jllopis/spendlens/pkg/telemetry"
	"github.com/jllopis/spendlens/pkg/tools"
)

// DefaultChartDir is where charts are written inside the artifact store.
const DefaultChartDir = "charts"

// Options are the collaborators of a Runtime. Source and Store are required.
type Options struct {
	Source finance.Source
	// Gateway is optional; without it every plan is the fallback plan.
	Gateway   llm.Invoker
	Prompts   *prompt.Store
	Memory    *memory.Log
	Store     artifact.Store
	ChartDir  string
	ReportDir string
	// SandboxLimits applies when Renderer is nil. Zero uses the defaults.
	SandboxLimits sandbox.Limits
	// SandboxWorker runs model chart code out of process when Renderer is nil.
	SandboxWorker *sandbox.Worker
	Renderer      sandbox.Renderer
	// AllowedTools and DeniedTools gate which capabilities plans may call.
	// Both empty allows everything.
	AllowedTools []string
	DeniedTools  []string
	Audit        planner.AuditStore
	Emitter      core.EventEmitter
	Metrics      *telemetry.Metrics
	TaskTimeout  time.Duration
	Now          func() time.Time
	// Guard screens goals and model narratives. Nil disables both.
	Guard *guardrails.Guard
	// Extra capabilities registered after the analysis set.
	Extra []tools.Capability
}

// Runtime is built once at startup and shared by concurrent runs. Its
// registry is not modified after New returns.
type Runtime struct {
	registry *tools.Registry
	prompts  *prompt.Store
	memory   *memory.Log
	gateway  llm.Invoker
	source   finance.Source
	store    artifact.Store
	planner  *planner.Planner
	executor *planner.Executor
	renderer sandbox.Renderer
	filter   *planner.ToolFilter
	metrics  *telemetry.Metrics
	guard    *guardrails.Guard
	health   *core.HealthRegistry
	tracer   trace.Tracer
}

// New builds a Runtime from opts.
func New(opts Options) (*Runtime, error) {
	if opts.Source == nil {
		return nil, errors.New(errors.CodeInvalidInput, "transaction source is required", nil)
	}
	if opts.Store == nil {
		return nil, errors.New(errors.CodeInvalidInput, "artifact store is required", nil)
	}
	if opts.Prompts == nil {
		opts.Prompts = prompt.Defaults()
	}
	if opts.Memory == nil {
		opts.Memory = memory.NewLog()
	}
	if opts.ChartDir == "" {
		opts.ChartDir = DefaultChartDir
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TaskTimeout == 0 {
		opts.TaskTimeout = planner.DefaultTaskTimeout
	}

	renderer := opts.Renderer
	if renderer == nil {
		limits := opts.SandboxLimits
		if limits == (sandbox.Limits{}) {
			limits = sandbox.DefaultLimits()
		}
		sbOpts := []sandbox.Option{
			sandbox.WithLimits(limits),
			sandbox.WithMemory(opts.Memory),
			sandbox.WithMetrics(opts.Metrics),
			sandbox.WithClock(opts.Now),
		}
		if opts.SandboxWorker != nil {
			sbOpts = append(sbOpts, sandbox.WithWorker(*opts.SandboxWorker))
		}
		renderer = sandbox.New(opts.Store, opts.ChartDir, sbOpts...)
	}

	deps := analysis.Deps{
		Source:    opts.Source,
		Gateway:   opts.Gateway,
		Prompts:   opts.Prompts,
		Renderer:  renderer,
		Store:     opts.Store,
		ReportDir: opts.ReportDir,
		Now:       opts.Now,
	}
	if opts.Guard != nil {
		deps.Scrub = func(ctx context.Context, text string) string {
			return opts.Guard.FilterOutput(ctx, text).Content
		}
	}
	registry := tools.NewRegistry()
	if err := analysis.Register(registry, deps); err != nil {
		return nil, err
	}
	for _, c := range opts.Extra {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	execOpts := []planner.ExecutorOption{
		planner.WithMemory(opts.Memory),
		planner.WithEmitter(opts.Emitter),
		planner.WithMetrics(opts.Metrics),
		planner.WithTaskTimeout(opts.TaskTimeout),
	}
	if opts.Gateway != nil {
		execOpts = append(execOpts, planner.WithReasoner(planner.LLMReasoner{
			Gateway: opts.Guard.WrapInvoker(opts.Gateway),
			Prompts: opts.Prompts,
		}))
	}
	if opts.Audit != nil {
		execOpts = append(execOpts, planner.WithAuditStore(opts.Audit))
	}
	var filter *planner.ToolFilter
	if len(opts.AllowedTools) > 0 || len(opts.DeniedTools) > 0 {
		filter = planner.NewToolFilter(opts.AllowedTools, opts.DeniedTools)
		execOpts = append(execOpts, planner.WithToolPolicy(filter))
	}

	r := &Runtime{
		registry: registry,
		prompts:  opts.Prompts,
		memory:   opts.Memory,
		gateway:  opts.Gateway,
		source:   opts.Source,
		store:    opts.Store,
		planner: planner.New(opts.Gateway, opts.Prompts,
			planner.WithPlannerMemory(opts.Memory),
			planner.WithPlannerMetrics(opts.Metrics),
			planner.WithPlannerEmitter(opts.Emitter),
		),
		executor: planner.NewExecutor(registry, execOpts...),
		renderer: renderer,
		filter:   filter,
		metrics:  opts.Metrics,
		guard:    opts.Guard,
		tracer:   otel.Tracer("spendlens/orchestrator"),
	}
	r.health = r.newHealthRegistry()
	return r, nil
}

// Registry returns the capability registry.
func (r *Runtime) Registry() *tools.Registry { return r.registry }

// Memory returns the shared action log.
func (r *Runtime) Memory() *memory.Log { return r.memory }

// Renderer returns the chart renderer.
func (r *Runtime) Renderer() sandbox.Renderer { return r.renderer }

// RunCustomAnalysis plans goal for userID over [start, end] and executes the
// plan. Planning never fails; the error is non-nil for invalid input or when
// an artifact could not be persisted, in which case the ledger is returned
// too.
func (r *Runtime) RunCustomAnalysis(ctx context.Context, userID string, start, end time.Time, goal string) (*planner.Ledger, error) {
	userID = strings.TrimSpace(userID)
	goal = strings.TrimSpace(goal)
	switch {
	case userID == "":
		return nil, errors.New(errors.CodeInvalidInput, "user id is required", nil)
	case goal == "":
		return nil, errors.New(errors.CodeInvalidInput, "analysis goal is required", nil)
	case start.IsZero() || end.IsZero():
		return nil, errors.New(errors.CodeInvalidInput, "start and end dates are required", nil)
	case end.Before(start):
		return nil, errors.New(errors.CodeInvalidInput, "end date is before start date", nil).
			WithContext("start", start.Format(time.DateOnly)).
			WithContext("end", end.Format(time.DateOnly))
	}

	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := r.tracer.Start(ctx, "Runtime.RunCustomAnalysis", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("run.id", runID),
	))
	defer span.End()

	log := slog.Default()
	if res := r.guard.CheckInput(ctx, goal); res.Blocked {
		r.memory.Append(ctx, "goal.rejected", map[string]any{
			"user_id":   userID,
			"guardrail": res.GuardrailID,
			"matches":   res.Matches,
		})
		log.WarnContext(ctx, "orchestrator.goal.rejected",
			slog.String("run_id", runID),
			slog.String("guardrail", res.GuardrailID),
		)
		err := errors.New(errors.CodeInvalidInput, res.Reason, nil).
			WithContext("guardrail", res.GuardrailID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	log.InfoContext(ctx, "orchestrator.run.start",
		slog.String("run_id", runID),
		slog.String("user_id", userID),
		slog.String("goal", goal),
	)

	catalog := r.registry.DescribeAll()
	if r.filter != nil {
		catalog = r.filter.FilterCatalog(ctx, catalog)
	}
	plan := r.planner.Plan(ctx, planner.Request{
		Goal:   goal,
		UserID: userID,
		Start:  start,
		End:    end,
	}, catalog)

	return r.execute(ctx, span, plan)
}

// RunPlan executes an already built plan, for example one loaded from a file.
func (r *Runtime) RunPlan(ctx context.Context, plan *planner.Plan) (*planner.Ledger, error) {
	if plan == nil {
		return nil, errors.New(errors.CodeInvalidInput, "plan is required", nil)
	}
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := r.tracer.Start(ctx, "Runtime.RunPlan", trace.WithAttributes(
		attribute.String("run.id", runID),
	))
	defer span.End()
	slog.Default().InfoContext(ctx, "orchestrator.run.start",
		slog.String("run_id", runID),
		slog.String("plan_id", plan.ID),
	)
	return r.execute(ctx, span, plan)
}

func (r *Runtime) execute(ctx context.Context, span trace.Span, plan *planner.Plan) (*planner.Ledger, error) {
	runID, _ := core.RunID(ctx)
	traceID, spanID := traceIDs(span)
	log := slog.Default()

	span.SetAttributes(telemetry.PlanAttributes(plan.ID, plan.Goal, len(plan.Tasks), plan.Fallback)...)
	ledger, err := r.executor.Run(ctx, plan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.RecordError(ctx, err, "orchestrator")
		log.ErrorContext(ctx, "orchestrator.run.error",
			slog.String("run_id", runID),
			slog.String("plan_id", plan.ID),
			slog.String("trace_id", traceID),
			slog.String("span_id", spanID),
			slog.String("error", err.Error()),
		)
		return ledger, err
	}

	failed := len(ledger.Failed())
	log.InfoContext(ctx, "orchestrator.run.complete",
		slog.String("run_id", runID),
		slog.String("plan_id", plan.ID),
		slog.Bool("fallback", plan.Fallback),
		slog.Int("tasks", len(plan.Tasks)),
		slog.Int("failed", failed),
		slog.String("trace_id", traceID),
		slog.String("span_id", spanID),
	)
	return ledger, nil
}

func traceIDs(span trace.Span) (string, string) {
	sc := span.SpanContext()
	return sc.TraceID().String(), sc.SpanID().String()
}
