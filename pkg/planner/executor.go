// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/spendlens/pkg/core"
	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/memory"
	"github.com/jllopis/spendlens/pkg/resilience"
	"github.com/jllopis/spendlens/pkg/telemetry"
	"github.com/jllopis/spendlens/pkg/tools"
)

// DefaultTaskTimeout bounds a single task when no timeout is configured.
const DefaultTaskTimeout = 60 * time.Second

// Executor runs plans task by task against a capability registry.
type Executor struct {
	registry      *tools.Registry
	memory        *memory.Log
	reasoner      DirectReasoner
	audit         AuditStore
	emitter       core.EventEmitter
	metrics       *telemetry.Metrics
	taskTimeout   time.Duration
	artifactTools map[string]string
	policy        ToolPolicy
	tracer        trace.Tracer
	now           func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMemory appends task outcomes to log.
func WithMemory(log *memory.Log) ExecutorOption {
	return func(e *Executor) { e.memory = log }
}

// WithReasoner answers tasks that name no tool.
func WithReasoner(r DirectReasoner) ExecutorOption {
	return func(e *Executor) { e.reasoner = r }
}

// WithAuditStore records task audit events.
func WithAuditStore(store AuditStore) ExecutorOption {
	return func(e *Executor) { e.audit = store }
}

// WithEmitter sends task events to emitter.
func WithEmitter(emitter core.EventEmitter) ExecutorOption {
	return func(e *Executor) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithMetrics records task counters and durations on m.
func WithMetrics(m *telemetry.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithTaskTimeout sets the per-task deadline. Zero disables it.
func WithTaskTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.taskTimeout = d }
}

// WithToolPolicy checks every tool call against p before it is resolved.
// Refused tasks are recorded as failed like any other invocation error.
func WithToolPolicy(p ToolPolicy) ExecutorOption {
	return func(e *Executor) { e.policy = p }
}

// WithArtifactTool marks the output of tool as artifacts stored under prefix.
func WithArtifactTool(tool, prefix string) ExecutorOption {
	return func(e *Executor) { e.artifactTools[tool] = prefix }
}

// NewExecutor creates an executor over registry. Chart and report tool outputs
// are collected as "chart" and "report" artifacts by default.
func NewExecutor(registry *tools.Registry, opts ...ExecutorOption) *Executor {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	e := &Executor{
		registry:    registry,
		emitter:     core.NoopEventEmitter{},
		taskTimeout: DefaultTaskTimeout,
		artifactTools: map[string]string{
			ToolGenerateCharts: "chart",
			ToolGenerateReport: "report",
		},
		tracer: otel.Tracer("spendlens/planner"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes every task of plan in order. A failed task never stops the
// run; its result is recorded and later references to it fall back to their
// defaults. The returned error is non-nil only when the plan is invalid or a
// task failed to persist an artifact; in the latter case the ledger is
// returned as well.
func (e *Executor) Run(ctx context.Context, plan *Plan) (*Ledger, error) {
	if err := plan.Validate(); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid plan", err)
	}
	ctx, runID := core.EnsureRunID(ctx)
	plan = plan.Clone()

	results := newExecutionContext(len(plan.Tasks))
	for _, task := range plan.Tasks {
		results.add(e.runTask(ctx, plan, task, results))
	}

	ledger := &Ledger{
		runID:     runID,
		plan:      plan,
		results:   results,
		artifacts: e.collectArtifacts(plan, results),
	}

	var persistErr error
	failed := 0
	for _, r := range results.Results() {
		if r.Succeeded() {
			continue
		}
		failed++
		if persistErr == nil && errors.HasCode(r.err, errors.CodeArtifactPersist) {
			persistErr = r.err
		}
	}

	e.appendMemory(ctx, "run.completed", map[string]any{
		"run_id":    runID,
		"plan_id":   plan.ID,
		"tasks":     len(plan.Tasks),
		"failed":    failed,
		"artifacts": ledger.Artifacts(),
	})
	e.emitter.Emit(ctx, core.NewEvent(ctx, core.EventRunCompleted, "", map[string]any{
		"plan_id": plan.ID,
		"failed":  failed,
	}))
	slog.InfoContext(ctx, "executor.run.completed", "plan_id", plan.ID, "tasks", len(plan.Tasks), "failed", failed)

	if persistErr != nil {
		return ledger, persistErr
	}
	return ledger, nil
}

func (e *Executor) runTask(ctx context.Context, plan *Plan, task Task, results *ExecutionContext) TaskResult {
	runID, _ := core.RunID(ctx)
	ctx, span := e.tracer.Start(ctx, "Executor.Task",
		trace.WithAttributes(telemetry.TaskAttributes(runID, task.ID, task.Tool)...),
	)
	defer span.End()
	ctx = core.WithTaskID(ctx, task.ID)

	status, _ := core.TaskStatusPending.Transition(core.TaskStatusRunning)
	result := TaskResult{
		TaskID:    task.ID,
		Tool:      task.Tool,
		Status:    status,
		StartedAt: e.now().UTC(),
	}
	e.emitter.Emit(ctx, core.NewEvent(ctx, core.EventTaskStarted, task.ID, map[string]any{"tool": task.Tool}))
	e.recordAudit(ctx, plan, result)

	params := resolveParams(task, results)
	value, err := e.invoke(ctx, task, params)
	result.FinishedAt = e.now().UTC()

	if err != nil {
		result.Status, _ = result.Status.Transition(core.TaskStatusFailed)
		result.Error = err.Error()
		result.err = err

		span.RecordError(err)
		span.SetStatus(codes.Error, result.Error)
		slog.WarnContext(ctx, "executor.task.failed",
			"task_id", task.ID,
			"tool", task.Tool,
			"error", result.Error,
		)
		e.metrics.RecordError(ctx, err, "executor")
		e.appendMemory(ctx, "task.failed", map[string]any{
			"task_id": task.ID,
			"tool":    task.Tool,
			"error":   result.Error,
		})
		e.emitter.Emit(ctx, core.NewEvent(ctx, core.EventTaskFailed, task.ID, map[string]any{"error": result.Error}))
	} else {
		result.Status, _ = result.Status.Transition(core.TaskStatusSucceeded)
		result.Value = value

		slog.DebugContext(ctx, "executor.task.succeeded", "task_id", task.ID, "tool", task.Tool)
		e.appendMemory(ctx, "task.succeeded", map[string]any{
			"task_id":     task.ID,
			"tool":        task.Tool,
			"description": task.Description,
		})
		e.emitter.Emit(ctx, core.NewEvent(ctx, core.EventTaskSucceeded, task.ID, nil))
	}

	e.metrics.RecordTask(ctx, task.Tool, string(result.Status), result.FinishedAt.Sub(result.StartedAt))
	e.recordAudit(ctx, plan, result)
	return result
}

func (e *Executor) invoke(ctx context.Context, task Task, params tools.Params) (any, error) {
	if task.Tool == "" {
		if e.reasoner == nil {
			return nil, errors.Newf(errors.CodeToolNotRegistered, "task %q names no tool and direct reasoning is not configured", task.ID)
		}
		value, err := resilience.WithTimeout(ctx, e.taskTimeout, func(ctx context.Context) (any, error) {
			return e.reason(ctx, task, params)
		})
		if err != nil && !errors.HasCode(err, errors.CodeTimeout) {
			return nil, errors.New(errors.CodeToolInvocation, "direct reasoning failed", err)
		}
		return value, err
	}

	if e.policy != nil {
		if err := e.policy.AllowTool(ctx, task.Tool); err != nil {
			return nil, err
		}
	}
	capability, err := e.registry.Resolve(task.Tool)
	if err != nil {
		return nil, err
	}
	value, err := resilience.WithTimeout(ctx, e.taskTimeout, func(ctx context.Context) (any, error) {
		return tools.Invoke(ctx, capability, params)
	})
	if err != nil {
		if errors.HasCode(err, errors.CodeTimeout) {
			return nil, errors.As(err).WithContext("tool", task.Tool)
		}
		return nil, errors.ToolInvocation(task.Tool, err)
	}
	return value, nil
}

// reason calls the direct reasoner, turning a panic into an error the way
// tools.Invoke does for capabilities.
func (e *Executor) reason(ctx context.Context, task Task, params tools.Params) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf(errors.CodeInternal, "direct reasoning panicked: %v", rec)
		}
	}()
	return e.reasoner.Reason(ctx, task, params)
}

// resolveParams substitutes result references. A reference to a task that
// failed or never ran resolves to its declared default.
func resolveParams(task Task, results *ExecutionContext) tools.Params {
	params := make(tools.Params, len(task.Params))
	for name, p := range task.Params {
		if !p.IsRef() {
			params[name] = p.Value
			continue
		}
		if r, ok := results.Get(p.Ref); ok && r.Succeeded() {
			params[name] = r.Value
			continue
		}
		params[name] = p.Default
	}
	return params
}

func (e *Executor) collectArtifacts(plan *Plan, results *ExecutionContext) map[string]string {
	artifacts := make(map[string]string)
	for _, task := range plan.Tasks {
		prefix, ok := e.artifactTools[task.Tool]
		if !ok {
			continue
		}
		r, ok := results.Get(task.ID)
		if !ok || !r.Succeeded() {
			continue
		}
		for name, path := range flattenArtifacts(prefix, r.Value) {
			if _, exists := artifacts[name]; exists {
				name = name + "@" + task.ID
			}
			artifacts[name] = path
		}
	}
	return artifacts
}

// flattenArtifacts maps a tool output onto artifact names: a path becomes
// prefix, a map becomes prefix.key and a list becomes prefix.N.
func flattenArtifacts(prefix string, value any) map[string]string {
	out := make(map[string]string)
	switch v := value.(type) {
	case string:
		if v != "" {
			out[prefix] = v
		}
	case map[string]string:
		for k, path := range v {
			if path != "" {
				out[prefix+"."+k] = path
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if path, ok := v[k].(string); ok && path != "" {
				out[prefix+"."+k] = path
			}
		}
	case []string:
		for i, path := range v {
			if path != "" {
				out[prefix+"."+strconv.Itoa(i)] = path
			}
		}
	case []any:
		for i, item := range v {
			if path, ok := item.(string); ok && path != "" {
				out[prefix+"."+strconv.Itoa(i)] = path
			}
		}
	}
	return out
}

func (e *Executor) recordAudit(ctx context.Context, plan *Plan, r TaskResult) {
	if e.audit == nil {
		return
	}
	runID, _ := core.RunID(ctx)
	event := AuditEvent{
		PlanID:     plan.ID,
		RunID:      runID,
		TaskID:     r.TaskID,
		Tool:       r.Tool,
		Status:     string(r.Status),
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Succeeded() {
		event.Output = summarizeOutput(r.Value)
	}
	if err := e.audit.Record(ctx, event); err != nil {
		slog.WarnContext(ctx, "executor.audit.failed", "task_id", r.TaskID, "error", err)
	}
}

func (e *Executor) appendMemory(ctx context.Context, action string, payload map[string]any) {
	if e.memory == nil {
		return
	}
	e.memory.Append(ctx, action, payload)
}
