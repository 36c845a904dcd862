// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

// Keys of the built-in templates.
const (
	TaskPlanning   = "task_planning"
	CustomAnalysis = "custom_analysis"
	ChartCode      = "chart_code"
	Suggestions    = "suggestions"
	DirectTask     = "direct_task"
)

const taskPlanningTemplate = `You are a personal finance analysis planner.
Break the user's goal into an ordered list of tool calls.

Goal: {{.goal}}
User: {{.user_id}}
Period: {{.start_date}} to {{.end_date}}

Available tools (JSON):
{{.tools}}

Reply with JSON only, in this shape:
{"tasks": [{"id": "1", "description": "...", "tool": "<tool name or empty>", "parameters": {"name": "value"}, "priority": "high|medium|low", "expected_result": "..."}]}

To pass the output of an earlier task as a parameter use {"$ref": "<task id>"}.
Only reference tasks that appear earlier in the list.`

const customAnalysisTemplate = `Analyze the following spending records for the goal below.

Goal: {{.goal}}
Records: {{.count}}
Total amount: {{.total}}
By category:
{{.categories}}

Write a concise analysis covering totals, the largest categories, notable
transactions and any trend across the period.`

const chartCodeTemplate = `Write a Starlark script that draws one chart for this goal: {{.goal}}

Predeclared names:
- df: rows ({{.count}} records, columns {{.columns}}), df.group_sum(by), df.daily_totals(), df.column(name), df.filter(column, value), df.total()
- plt: figure(), bar(labels, values), line(xs, ys), pie(labels, values), title(s), xlabel(s), ylabel(s), savefig(name), close()
- math, now(), output_dir

Sample rows:
{{.sample}}

Set chart_filename = "<name>.png" and call plt.savefig(chart_filename).
Reply with code only.`

const suggestionsTemplate = `Based on this spending analysis, give three to five concrete suggestions
to reduce expenses or rebalance the budget.

Analysis:
{{.analysis}}`

const directTaskTemplate = `Complete the following task and reply with the result only.

Task: {{.task}}
{{if .context}}Context:
{{.context}}{{end}}`

// Defaults returns a store holding the built-in templates.
func Defaults() *Store {
	s := NewStore()
	s.MustRegister(TaskPlanning, taskPlanningTemplate)
	s.MustRegister(CustomAnalysis, customAnalysisTemplate)
	s.MustRegister(ChartCode, chartCodeTemplate)
	s.MustRegister(Suggestions, suggestionsTemplate)
	s.MustRegister(DirectTask, directTaskTemplate)
	return s
}
