//go:build ignore

// SPDX-License-Identifier: Apache-2.0
// Spendlens Observability Dashboards
// This file documents dashboard templates for an OTEL UI or Grafana, built on
// the instruments created by pkg/telemetry.NewMetrics.
//
// DASHBOARD: Plan Execution
//   How plans run, task by task.
//
//   Queries:
//   - spendlens.tasks.total{spendlens.task.tool, spendlens.task.status} (rate 5m)
//     Metric: Tasks executed per tool and final status
//     Display: Stacked bars, succeeded vs failed per tool
//     Insight: A tool with a rising failed share usually means bad model
//              parameters or an unreachable transaction store.
//
//   - spendlens.task.duration_ms{spendlens.task.tool} (p50, p95)
//     Metric: Task latency
//     Display: Heatmap per tool
//     Insight: analyze_data and generate_suggestions track model latency;
//              generate_charts tracks sandbox cost.
//
// DASHBOARD: Chart Rendering
//   Which layer of the chart fallback chain produced each artifact.
//
//   Queries:
//   - spendlens.sandbox.layer{spendlens.sandbox.layer} (rate 1h)
//     Layers: model, template, placeholder, emergency
//     Display: Pie chart
//     Goal: placeholder share < 5% outside empty periods
//     Insight: A high template share means model code keeps failing in the
//              sandbox; check sandbox.max_steps and the chart prompt.
//
// DASHBOARD: Errors & Recovery
//
//   Queries:
//   - spendlens.errors.total{error.code, component, recoverable} (rate 5m)
//     Codes: PLAN_PARSE, TOOL_NOT_REGISTERED, TOOL_INVOCATION,
//            SANDBOX_EXECUTION, ARTIFACT_PERSIST, LLM_ERROR, TIMEOUT
//     Display: Line chart by code
//
//   - spendlens.errors.recovered{error.code} (rate 5m)
//     Metric: Errors absorbed locally, for example an unusable plan replaced
//             by the fallback plan
//     Display: Stacked area
//
// DASHBOARD: Component Health
//
//   Queries:
//   - spendlens.health.status{component}
//     Components: llm, transactions, artifacts, registry
//     Metric: 0=unhealthy, 1=degraded, 2=healthy
//     Display: Status grid, Red (0), Yellow (1), Green (2)
//     Note: llm is DEGRADED while its circuit breaker is open; runs still
//           complete on the fallback plan and chart templates.
//
// ALERT RULES (Prometheus/AlertManager format):
//
// Alert 1: Reports Not Persisted
//   Name: SpendlensArtifactPersistFailures
//   Condition: rate(spendlens.errors.total{error.code="ARTIFACT_PERSIST"}[5m]) > 0
//   Duration: 1m
//   Severity: critical
//   Message: "Reports are failing to persist, check storage.artifact_dir"
//
// Alert 2: Model Unavailable
//   Name: SpendlensModelDegraded
//   Condition: spendlens.health.status{component="llm"} < 2
//   Duration: 10m
//   Severity: warning
//   Message: "Model gateway degraded, plans are using the fallback"
//
// Alert 3: Planning Falls Back
//   Name: SpendlensPlanFallbackRate
//   Condition: rate(spendlens.errors.recovered{error.code="PLAN_PARSE"}[15m])
//              / rate(spendlens.tasks.total{spendlens.task.tool="fetch_transactions"}[15m]) > 0.5
//   Duration: 15m
//   Severity: warning
//   Message: "Most plans are fallbacks, review the model or the planning prompt"
//
// Alert 4: Transaction Store Down
//   Name: SpendlensTransactionsUnhealthy
//   Condition: spendlens.health.status{component="transactions"} == 0
//   Duration: 1m
//   Severity: critical
//
// QUERY EXAMPLES:
//
// 1. Task failure ratio per tool
//    PromQL: sum(rate(spendlens_tasks_total{spendlens_task_status="failed"}[5m])) by (spendlens_task_tool)
//            / sum(rate(spendlens_tasks_total[5m])) by (spendlens_task_tool)
//
// 2. Sandbox success
//    PromQL: rate(spendlens_sandbox_layer{spendlens_sandbox_layer="model"}[1h])
//            / sum(rate(spendlens_sandbox_layer[1h]))
//
// 3. Slowest tools
//    PromQL: topk(3, histogram_quantile(0.95,
//            sum(rate(spendlens_task_duration_ms_bucket[5m])) by (le, spendlens_task_tool)))
//
package main

// This file is documentation only and is not compiled.
// See pkg/telemetry/metrics.go for the instruments.
