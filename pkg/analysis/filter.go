// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"context"
	"strings"

	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/finance"
	"github.com/jllopis/spendlens/pkg/tools"
)

// Filters narrows a transaction list. Zero fields do not filter.
type Filters struct {
	Categories []string `json:"categories,omitempty"`
	MinAmount  *float64 `json:"min_amount,omitempty"`
	MaxAmount  *float64 `json:"max_amount,omitempty"`
	// Keywords match the description or counterparty, case-insensitively.
	Keywords []string     `json:"keywords,omitempty"`
	Kind     finance.Kind `json:"kind,omitempty"`
}

// Match reports whether tx passes every filter.
func (f Filters) Match(tx finance.Transaction) bool {
	if len(f.Categories) > 0 && !containsFold(f.Categories, tx.Category) {
		return false
	}
	if f.MinAmount != nil && tx.Amount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && tx.Amount > *f.MaxAmount {
		return false
	}
	if f.Kind != "" && !strings.EqualFold(string(f.Kind), string(tx.Kind)) {
		return false
	}
	if len(f.Keywords) > 0 {
		text := strings.ToLower(tx.Description + " " + tx.Counterparty)
		found := false
		for _, kw := range f.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(text, kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Apply returns the transactions that match, preserving order.
func (f Filters) Apply(txs []finance.Transaction) []finance.Transaction {
	out := make([]finance.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	return out
}

func filterData() tools.Capability {
	return tools.Sync(
		spec(FilterData, "Filter transactions by categories, min_amount, max_amount, keywords or kind."),
		func(_ context.Context, p tools.Params) (any, error) {
			txs, err := transactions(p, "transactions")
			if err != nil {
				return nil, err
			}
			var f Filters
			if _, ok := p.Value("filters"); ok {
				if err := p.Decode("filters", &f); err != nil {
					return nil, errors.New(errors.CodeInvalidInput, "decode filters", err)
				}
			}
			return f.Apply(txs), nil
		},
	)
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), s) {
			return true
		}
	}
	return false
}
