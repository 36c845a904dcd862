// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package planner

// Well-known tool names used by the fallback plan.
const (
	ToolFetchTransactions = "fetch_transactions"
	ToolGenerateCharts    = "generate_charts"
	ToolAnalyzeData       = "analyze_data"
	ToolGenerateReport    = "generate_report"
)

// FallbackPlanID identifies the canonical fallback plan.
const FallbackPlanID = "fallback"

const dateLayout = "2006-01-02"

// FallbackPlan returns the canonical four-step plan used when model output
// cannot be used: fetch, chart, analyze, report. It depends only on req, so
// equal requests produce identical plans.
func FallbackPlan(req Request) *Plan {
	start := req.Start.Format(dateLayout)
	end := req.End.Format(dateLayout)

	return &Plan{
		ID:       FallbackPlanID,
		Goal:     req.Goal,
		Fallback: true,
		Tasks: []Task{
			{
				ID:          "1",
				Description: "Fetch the user's transactions for the requested period",
				Tool:        ToolFetchTransactions,
				Params: map[string]Param{
					"user_id":    Lit(req.UserID),
					"start_date": Lit(start),
					"end_date":   Lit(end),
				},
				Priority:       PriorityHigh,
				ExpectedResult: "Transaction records ordered by time",
			},
			{
				ID:          "2",
				Description: "Generate a chart for the analysis goal",
				Tool:        ToolGenerateCharts,
				Params: map[string]Param{
					"transactions": Ref("1", []any{}),
					"goal":         Lit(req.Goal),
				},
				Priority:       PriorityMedium,
				ExpectedResult: "Path of the rendered chart",
			},
			{
				ID:          "3",
				Description: "Analyze the transactions against the goal",
				Tool:        ToolAnalyzeData,
				Params: map[string]Param{
					"transactions": Ref("1", []any{}),
					"goal":         Lit(req.Goal),
				},
				Priority:       PriorityHigh,
				ExpectedResult: "Narrative analysis",
			},
			{
				ID:          "4",
				Description: "Assemble the analysis report",
				Tool:        ToolGenerateReport,
				Params: map[string]Param{
					"transactions":    Ref("1", []any{}),
					"analysis_result": Ref("3", ""),
					"chart_paths":     Ref("2", ""),
					"user_id":         Lit(req.UserID),
					"start_date":      Lit(start),
					"end_date":        Lit(end),
				},
				Priority:       PriorityMedium,
				ExpectedResult: "Paths of the Markdown and PDF reports",
			},
		},
	}
}
