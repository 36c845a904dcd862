// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jllopis/spendlens/pkg/finance"
	"github.com/jllopis/spendlens/pkg/prompt"
	"github.com/jllopis/spendlens/pkg/tools"
)

// NoRecordsMessage is the analysis of an empty period.
const NoRecordsMessage = "No records found for the selected period."

// DefaultSuggestions is returned when no model is available.
const DefaultSuggestions = `1. Review your records regularly so you know where the money goes.
2. Set a monthly budget for your largest categories and check it weekly.
3. Put essential spending first and postpone discretionary purchases.`

func analyzeData(d Deps) tools.Capability {
	return tools.Sync(
		spec(AnalyzeData, "Write a narrative analysis of the transactions for the goal."),
		func(ctx context.Context, p tools.Params) (any, error) {
			txs, err := transactions(p, "transactions")
			if err != nil {
				return nil, err
			}
			if len(txs) == 0 {
				return NoRecordsMessage, nil
			}
			goal := p.String("goal", "")
			summary := finance.Summarize(txs)
			if text, ok := d.complete(ctx, prompt.CustomAnalysis, map[string]any{
				"goal":       goal,
				"count":      summary.Count,
				"total":      fmt.Sprintf("%.2f", summary.Expense),
				"categories": categoryLines(summary),
			}); ok {
				return text, nil
			}
			return SummaryText(summary, goal), nil
		},
	)
}

func generateSuggestions(d Deps) tools.Capability {
	return tools.Sync(
		spec(GenerateSuggestions, "Suggest ways to reduce spending based on an analysis."),
		func(ctx context.Context, p tools.Params) (any, error) {
			analysis := strings.TrimSpace(p.String("analysis_result", ""))
			if analysis == "" {
				return DefaultSuggestions, nil
			}
			if text, ok := d.complete(ctx, prompt.Suggestions, map[string]any{"analysis": analysis}); ok {
				return text, nil
			}
			return DefaultSuggestions, nil
		},
	)
}

// complete formats key and invokes the gateway. ok is false when there is no
// gateway or the call produced nothing usable.
func (d Deps) complete(ctx context.Context, key string, vars map[string]any) (string, bool) {
	if d.Gateway == nil {
		return "", false
	}
	text, err := d.Prompts.Format(key, vars)
	if err != nil {
		slog.WarnContext(ctx, "analysis.prompt.failed", slog.String("template", key), slog.String("error", err.Error()))
		return "", false
	}
	out, err := d.Gateway.Invoke(ctx, text)
	if err != nil {
		slog.WarnContext(ctx, "analysis.gateway.failed", slog.String("template", key), slog.String("error", err.Error()))
		return "", false
	}
	if d.Scrub != nil {
		out = d.Scrub(ctx, out)
	}
	out = strings.TrimSpace(out)
	return out, out != ""
}

// SummaryText renders a computed analysis of s.
func SummaryText(s finance.Summary, goal string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Spending summary: %d records, %.2f spent", s.Count, s.Expense)
	if s.Income > 0 {
		fmt.Fprintf(&b, ", %.2f received", s.Income)
	}
	b.WriteString(".\n")
	if len(s.Categories) > 0 {
		b.WriteString("By category:\n")
		b.WriteString(categoryLines(s))
		b.WriteString("\n")
	}
	if s.Largest != nil {
		fmt.Fprintf(&b, "Largest expense: %.2f in %s", s.Largest.Amount, s.Largest.Category)
		if s.Largest.Counterparty != "" {
			fmt.Fprintf(&b, " at %s", s.Largest.Counterparty)
		}
		fmt.Fprintf(&b, " on %s.\n", s.Largest.Timestamp.Format("2006-01-02"))
	}
	if goal = strings.TrimSpace(goal); goal != "" {
		fmt.Fprintf(&b, "Requested analysis: %s\n", goal)
	}
	return strings.TrimRight(b.String(), "\n")
}

func categoryLines(s finance.Summary) string {
	lines := make([]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		share := 0.0
		if s.Expense > 0 {
			share = c.Amount / s.Expense * 100
		}
		lines = append(lines, fmt.Sprintf("- %s: %.2f (%.1f%%, %d records)", c.Category, c.Amount, share, c.Count))
	}
	return strings.Join(lines, "\n")
}
