// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"context"
	"strings"

	"github.com/jllopis/spendlens/pkg/tools"
)

// NoReference is reported for categories without a reference ratio.
const NoReference = "no specific reference"

// referenceRatios are typical shares of monthly spending per category.
var referenceRatios = map[string]string{
	"dining":        "25-30%",
	"housing":       "20-35%",
	"transport":     "10-15%",
	"entertainment": "5-10%",
	"shopping":      "10-20%",
	"health":        "5-8%",
	"education":     "5-15%",
	"other":         "5-10%",
}

// categoryAliases map record categories onto a reference category.
var categoryAliases = map[string]string{
	"food":      "dining",
	"groceries": "dining",
	"rent":      "housing",
	"utilities": "housing",
	"leisure":   "entertainment",
	"medical":   "health",
	"travel":    "transport",
}

// ReferenceRatio returns the reference share for category.
func ReferenceRatio(category string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(category))
	if alias, ok := categoryAliases[key]; ok {
		key = alias
	}
	ratio, ok := referenceRatios[key]
	return ratio, ok
}

func marketResearch() tools.Capability {
	return tools.Sync(
		spec(MarketResearch, "Reference spending ratios, for one category or all of them."),
		func(_ context.Context, p tools.Params) (any, error) {
			if category := strings.TrimSpace(p.String("category", "")); category != "" {
				ratio, ok := ReferenceRatio(category)
				if !ok {
					ratio = NoReference
				}
				return map[string]any{
					"category":          category,
					"reasonable_ratio":  ratio,
					"industry_standard": ratio,
				}, nil
			}

			ratios := make(map[string]any, len(referenceRatios))
			for k, v := range referenceRatios {
				ratios[k] = v
			}
			return map[string]any{
				"reference_ratios": ratios,
				"seasonal_trend":   "Entertainment spending usually rises 15-20% in winter",
				"savings_advice":   "Save 20-30% of monthly income",
			}, nil
		},
	)
}
