// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires slog and OpenTelemetry for spendlens: trace-aware
// logging, exporters, span attributes and run metrics.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on spans and metrics.
const (
	AttrRunID    = "spendlens.run.id"
	AttrPlanID   = "spendlens.plan.id"
	AttrPlanSize = "spendlens.plan.tasks"
	AttrFallback = "spendlens.plan.fallback"

	AttrTaskID     = "spendlens.task.id"
	AttrTaskTool   = "spendlens.task.tool"
	AttrTaskStatus = "spendlens.task.status"

	AttrSandboxLayer = "spendlens.sandbox.layer"
	AttrSandboxRows  = "spendlens.sandbox.rows"

	AttrGoal = "spendlens.goal"

	AttrLLMModel = "gen_ai.request.model"
)

const maxGoalLen = 200

// PlanAttributes returns attributes for planning spans.
func PlanAttributes(planID, goal string, tasks int, fallback bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrPlanSize, tasks),
		attribute.Bool(AttrFallback, fallback),
	}
	if planID != "" {
		attrs = append(attrs, attribute.String(AttrPlanID, planID))
	}
	if goal != "" {
		attrs = append(attrs, attribute.String(AttrGoal, truncate(goal, maxGoalLen)))
	}
	return attrs
}

// TaskAttributes returns attributes for task spans.
func TaskAttributes(runID, taskID, tool string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrTaskTool, tool),
	}
	if runID != "" {
		attrs = append(attrs, attribute.String(AttrRunID, runID))
	}
	return attrs
}

// SandboxAttributes returns attributes for render spans.
func SandboxAttributes(layer string, rows int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSandboxLayer, layer),
		attribute.Int(AttrSandboxRows, rows),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
