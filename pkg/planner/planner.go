// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/spendlens/pkg/core"
	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/llm"
	"github.com/jllopis/spendlens/pkg/memory"
	"github.com/jllopis/spendlens/pkg/prompt"
	"github.com/jllopis/spendlens/pkg/telemetry"
	"github.com/jllopis/spendlens/pkg/tools"
)

// Request scopes a planning call.
type Request struct {
	Goal   string
	UserID string
	Start  time.Time
	End    time.Time
}

// Planner decomposes goals into plans with a language model.
type Planner struct {
	gateway llm.Invoker
	prompts *prompt.Store
	memory  *memory.Log
	metrics *telemetry.Metrics
	emitter core.EventEmitter
	tracer  trace.Tracer
}

// Option configures a Planner.
type Option func(*Planner)

// WithPlannerMemory appends planning outcomes to log.
func WithPlannerMemory(log *memory.Log) Option {
	return func(p *Planner) { p.memory = log }
}

// WithPlannerMetrics records recoveries on m.
func WithPlannerMetrics(m *telemetry.Metrics) Option {
	return func(p *Planner) { p.metrics = m }
}

// WithPlannerEmitter sends plan events to e.
func WithPlannerEmitter(e core.EventEmitter) Option {
	return func(p *Planner) {
		if e != nil {
			p.emitter = e
		}
	}
}

// New creates a planner. A nil prompts store uses prompt.Defaults().
func New(gateway llm.Invoker, prompts *prompt.Store, opts ...Option) *Planner {
	if prompts == nil {
		prompts = prompt.Defaults()
	}
	p := &Planner{
		gateway: gateway,
		prompts: prompts,
		emitter: core.NoopEventEmitter{},
		tracer:  otel.Tracer("spendlens/planner"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan asks the model for a plan. Any failure, from the gateway call to
// validation, is recovered by returning FallbackPlan(req); Plan never fails.
func (p *Planner) Plan(ctx context.Context, req Request, catalog []tools.CatalogEntry) *Plan {
	ctx, span := p.tracer.Start(ctx, "Planner.Plan")
	defer span.End()

	plan, err := p.generate(ctx, req, catalog)
	if err != nil {
		perr := errors.New(errors.CodePlanParse, "model plan unusable", err).WithRecoverable(true)
		span.RecordError(perr)
		span.SetStatus(codes.Error, "fallback plan")
		slog.WarnContext(ctx, "planner.plan.fallback", "goal", req.Goal, "error", err)
		p.metrics.RecordError(ctx, perr, "planner")
		p.metrics.RecordRecovery(ctx, errors.CodePlanParse)

		plan = FallbackPlan(req)
		p.appendMemory(ctx, "plan.fallback", map[string]any{
			"goal":   req.Goal,
			"reason": err.Error(),
			"tasks":  len(plan.Tasks),
		})
		p.emitter.Emit(ctx, core.NewEvent(ctx, core.EventPlanFallback, "", map[string]any{"reason": err.Error()}))
	} else {
		slog.InfoContext(ctx, "planner.plan.generated", "plan_id", plan.ID, "tasks", len(plan.Tasks))
		p.appendMemory(ctx, "plan.generated", map[string]any{
			"goal":    req.Goal,
			"plan_id": plan.ID,
			"tools":   plan.Tools(),
		})
		p.emitter.Emit(ctx, core.NewEvent(ctx, core.EventPlanGenerated, "", map[string]any{"plan_id": plan.ID}))
	}

	span.SetAttributes(telemetry.PlanAttributes(plan.ID, plan.Goal, len(plan.Tasks), plan.Fallback)...)
	return plan
}

func (p *Planner) generate(ctx context.Context, req Request, catalog []tools.CatalogEntry) (*Plan, error) {
	if p.gateway == nil {
		return nil, errors.New(errors.CodeLLMError, "no gateway configured", nil)
	}
	text, err := p.prompts.Format(prompt.TaskPlanning, map[string]any{
		"goal":       req.Goal,
		"user_id":    req.UserID,
		"start_date": req.Start.Format(dateLayout),
		"end_date":   req.End.Format(dateLayout),
		"tools":      catalogText(catalog),
	})
	if err != nil {
		return nil, err
	}
	raw, err := p.gateway.Invoke(ctx, text)
	if err != nil {
		return nil, err
	}
	plan, err := ParseModelPlan(raw)
	if err != nil {
		return nil, err
	}
	plan.ID = "plan-" + uuid.NewString()
	plan.Goal = req.Goal
	return plan, nil
}

func (p *Planner) appendMemory(ctx context.Context, action string, payload map[string]any) {
	if p.memory == nil {
		return
	}
	p.memory.Append(ctx, action, payload)
}

func catalogText(catalog []tools.CatalogEntry) string {
	if catalog == nil {
		catalog = []tools.CatalogEntry{}
	}
	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
