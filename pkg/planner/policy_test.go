// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"
	"testing"

	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/tools"
)

func TestToolFilter(t *testing.T) {
	cases := []struct {
		name  string
		allow []string
		deny  []string
		tool  string
		want  bool
	}{
		{name: "no lists", tool: ToolGenerateCharts, want: true},
		{name: "allowed by name", allow: []string{ToolFetchTransactions}, tool: ToolFetchTransactions, want: true},
		{name: "missing from allow list", allow: []string{ToolFetchTransactions}, tool: ToolAnalyzeData, want: false},
		{name: "allowed by pattern", allow: []string{"generate_*"}, tool: ToolGenerateReport, want: true},
		{name: "denied by name", deny: []string{ToolAnalyzeData}, tool: ToolAnalyzeData, want: false},
		{name: "deny wins over allow", allow: []string{"*"}, deny: []string{"generate_charts"}, tool: ToolGenerateCharts, want: false},
		{name: "blank entries ignored", allow: []string{" ", ""}, tool: ToolAnalyzeData, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewToolFilter(tc.allow, tc.deny).AllowTool(context.Background(), tc.tool)
			if got := err == nil; got != tc.want {
				t.Fatalf("AllowTool(%q) = %v, want allowed=%v", tc.tool, err, tc.want)
			}
			if err != nil && !errors.HasCode(err, errors.CodePolicyDenied) {
				t.Fatalf("expected POLICY_DENIED, got %v", err)
			}
		})
	}
}

func TestToolFilterCatalog(t *testing.T) {
	catalog := []tools.CatalogEntry{
		{Name: ToolFetchTransactions},
		{Name: ToolGenerateCharts},
		{Name: ToolAnalyzeData},
	}
	got := NewToolFilter(nil, []string{ToolGenerateCharts}).FilterCatalog(context.Background(), catalog)
	if len(got) != 2 || got[0].Name != ToolFetchTransactions || got[1].Name != ToolAnalyzeData {
		t.Fatalf("unexpected catalog: %+v", got)
	}
	if all := NewToolFilter(nil, nil).FilterCatalog(context.Background(), catalog); len(all) != 3 {
		t.Fatalf("empty filter dropped entries: %+v", all)
	}
}
