// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Tags of the canned chart templates. They prefix the generated file names.
const (
	TagCategory = "category_distribution"
	TagTrend    = "spending_trend"
)

var categoryKeywords = []string{"category", "categories", "distribution", "breakdown", "类别", "分类"}

var filenamePattern = regexp.MustCompile(`chart_filename\s*=\s*['"]([^'"]*)['"]`)

// ResolveFilename returns the file name a script declares through a
// chart_filename assignment, or dynamic_chart_<timestamp>.png.
func ResolveFilename(code string, now time.Time) string {
	fallback := "dynamic_chart_" + now.Format("20060102_150405") + ".png"
	if m := filenamePattern.FindStringSubmatch(code); m != nil && strings.TrimSpace(m[1]) != "" {
		return pngName(m[1], fallback)
	}
	return fallback
}

// TemplateTag picks the canned template for goal by keyword.
func TemplateTag(goal string) string {
	lower := strings.ToLower(goal)
	for _, kw := range categoryKeywords {
		if strings.Contains(lower, kw) {
			return TagCategory
		}
	}
	return TagTrend
}

// TemplateCode returns the canned script for tag, naming its output with now.
func TemplateCode(tag string, now time.Time) string {
	name := fmt.Sprintf("%s_%s.png", tag, now.Format("20060102_150405"))
	if tag == TagCategory {
		return fmt.Sprintf(categoryTemplate, name)
	}
	return fmt.Sprintf(trendTemplate, name)
}

const categoryTemplate = `chart_filename = %q
rows = df.filter("kind", "expense") if "kind" in df.columns else df
groups = rows.group_sum("category")
if len(groups) == 0:
    groups = df.group_sum("category")
plt.figure()
plt.bar([g[0] for g in groups], [g[1] for g in groups])
plt.title("Spending by category")
plt.xlabel("Category")
plt.ylabel("Amount")
plt.savefig(chart_filename)
`

const trendTemplate = `chart_filename = %q
rows = df.filter("kind", "expense") if "kind" in df.columns else df
daily = rows.daily_totals()
if len(daily) == 0:
    daily = df.daily_totals()
plt.figure()
plt.line([d[0] for d in daily], [d[1] for d in daily])
plt.title("Daily spending")
plt.xlabel("Date")
plt.ylabel("Amount")
plt.savefig(chart_filename)
`
