// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"
	"path"
	"strings"

	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/tools"
)

// ToolPolicy decides whether a task may call a tool. A non-nil error fails
// the task before the capability is resolved.
type ToolPolicy interface {
	AllowTool(ctx context.Context, tool string) error
}

// ToolFilter is a ToolPolicy over allow and deny lists. Entries are tool
// names or path.Match patterns such as "generate_*".
//
// Evaluation order:
//  1. a tool matching the deny list is refused
//  2. a non-empty allow list refuses every tool it does not match
//  3. anything else is allowed
type ToolFilter struct {
	allow []string
	deny  []string
}

// NewToolFilter builds a filter; blank entries are ignored.
func NewToolFilter(allow, deny []string) *ToolFilter {
	return &ToolFilter{allow: cleanPatterns(allow), deny: cleanPatterns(deny)}
}

func (f *ToolFilter) AllowTool(_ context.Context, tool string) error {
	switch {
	case matchesAny(tool, f.deny):
		return denied(tool, "tool is in the deny list")
	case len(f.allow) > 0 && !matchesAny(tool, f.allow):
		return denied(tool, "tool is not in the allow list")
	}
	return nil
}

// FilterCatalog drops the entries the filter refuses, so the planner is not
// offered tools that would fail.
func (f *ToolFilter) FilterCatalog(ctx context.Context, catalog []tools.CatalogEntry) []tools.CatalogEntry {
	if len(f.allow) == 0 && len(f.deny) == 0 {
		return catalog
	}
	out := make([]tools.CatalogEntry, 0, len(catalog))
	for _, entry := range catalog {
		if f.AllowTool(ctx, entry.Name) == nil {
			out = append(out, entry)
		}
	}
	return out
}

func denied(tool, reason string) error {
	return errors.Newf(errors.CodePolicyDenied, "tool %q is not allowed: %s", tool, reason).
		WithContext("tool", tool)
}

func matchesAny(tool string, patterns []string) bool {
	for _, p := range patterns {
		if p == tool {
			return true
		}
		if ok, err := path.Match(p, tool); err == nil && ok {
			return true
		}
	}
	return false
}

func cleanPatterns(in []string) []string {
	var out []string
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
