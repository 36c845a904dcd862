// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"context"
	"log/slog"

	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/sandbox"
	"github.com/jllopis/spendlens/pkg/tools"
)

func generateCharts(d Deps) tools.Capability {
	return tools.Sync(
		spec(GenerateCharts, "Render one chart for the goal from the transactions and return its file path."),
		func(ctx context.Context, p tools.Params) (any, error) {
			if d.Renderer == nil {
				return nil, errors.New(errors.CodeInternal, "no chart renderer configured", nil)
			}
			txs, err := transactions(p, "transactions")
			if err != nil {
				return nil, err
			}
			goal := p.String("goal", "")
			ds := sandbox.FromTransactions(txs)
			res := d.Renderer.Render(ctx, sandbox.Request{
				Code:    d.chartCode(ctx, goal, ds),
				Dataset: ds,
				Goal:    goal,
			})
			return res.Path, nil
		},
	)
}

// chartCode asks the model for a chart script. Any failure yields empty code,
// which the renderer answers from its template layer.
func (d Deps) chartCode(ctx context.Context, goal string, ds sandbox.Dataset) string {
	if d.Gateway == nil || ds.Len() == 0 {
		return ""
	}
	text, err := sandbox.ChartCodePrompt(d.Prompts, goal, ds)
	if err != nil {
		slog.WarnContext(ctx, "analysis.chart_code.prompt_failed", slog.String("error", err.Error()))
		return ""
	}
	raw, err := d.Gateway.Invoke(ctx, text)
	if err != nil {
		slog.WarnContext(ctx, "analysis.chart_code.failed", slog.String("error", err.Error()))
		return ""
	}
	return sandbox.StripCodeFences(raw)
}
