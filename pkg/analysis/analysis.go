// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package analysis provides the spending-analysis capabilities that plans are
// composed of: fetching and filtering transactions, rendering charts, writing
// the narrative analysis and suggestions, reference spending ratios and the
// final Markdown/PDF report.
package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jllopis/spendlens/pkg/artifact"
	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/finance"
	"github.com/jllopis/spendlens/pkg/llm"
	"github.com/jllopis/spendlens/pkg/prompt"
	"github.com/jllopis/spendlens/pkg/sandbox"
	"github.com/jllopis/spendlens/pkg/tools"
)

// Capability names.
const (
	FetchTransactions   = "fetch_transactions"
	FilterData          = "filter_data"
	GenerateCharts      = "generate_charts"
	AnalyzeData         = "analyze_data"
	GenerateSuggestions = "generate_suggestions"
	MarketResearch      = "market_research"
	GenerateReport      = "generate_report"
)

// DefaultReportDir is where reports are written inside the artifact store.
const DefaultReportDir = "reports"

// Deps are the collaborators shared by the capabilities.
type Deps struct {
	Source finance.Source
	// Gateway is optional. Without it charts come from templates and the
	// analysis is a computed summary.
	Gateway   llm.Invoker
	Prompts   *prompt.Store
	Renderer  sandbox.Renderer
	Store     artifact.Store
	ReportDir string
	Now       func() time.Time
	// Scrub, when set, rewrites model narratives before they are returned.
	Scrub func(ctx context.Context, text string) string
}

func (d Deps) withDefaults() Deps {
	if d.Prompts == nil {
		d.Prompts = prompt.Defaults()
	}
	if d.ReportDir == "" {
		d.ReportDir = DefaultReportDir
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Capabilities builds every analysis capability over deps.
func Capabilities(deps Deps) []tools.Capability {
	deps = deps.withDefaults()
	return []tools.Capability{
		fetchTransactions(deps),
		filterData(),
		generateCharts(deps),
		analyzeData(deps),
		generateSuggestions(deps),
		marketResearch(),
		generateReport(deps),
	}
}

// Register adds every analysis capability to reg.
func Register(reg *tools.Registry, deps Deps) error {
	if reg == nil {
		return errors.New(errors.CodeInvalidInput, "registry is required", nil)
	}
	for _, c := range Capabilities(deps) {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func spec(name, description string) tools.Spec {
	return tools.Spec{
		Name:        name,
		Description: description,
		Parameters:  tools.DefaultParameters(name),
	}
}

// transactions reads key as a transaction list. Values arrive typed from an
// earlier task, JSON-decoded from a plan file, or as a JSON string over MCP.
// An absent value is an empty list.
func transactions(p tools.Params, key string) ([]finance.Transaction, error) {
	v, ok := p.Value(key)
	if !ok {
		return []finance.Transaction{}, nil
	}
	var out []finance.Transaction
	switch t := v.(type) {
	case []finance.Transaction:
		return t, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return []finance.Transaction{}, nil
		}
		if err := json.Unmarshal([]byte(t), &out); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "decode transactions", err).
				WithContext("parameter", key)
		}
		return out, nil
	}
	if err := p.Decode(key, &out); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "decode transactions", err).
			WithContext("parameter", key)
	}
	if out == nil {
		out = []finance.Transaction{}
	}
	return out, nil
}

// dateParam renders key as YYYY-MM-DD when it parses as a time, or returns
// the raw text.
func dateParam(p tools.Params, key string) string {
	if t, err := p.Time(key); err == nil {
		return t.Format("2006-01-02")
	}
	return p.String(key, "")
}
