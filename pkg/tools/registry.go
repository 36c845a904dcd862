// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"encoding/json"
	"sync"

	"github.com/jllopis/spendlens/pkg/errors"
)

// CatalogEntry is the model-facing description of a capability.
type CatalogEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
}

// Registry maps names to capabilities. Registration happens at startup;
// lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	order []string
	caps  map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register adds c. Names must be unique and non-empty.
func (r *Registry) Register(c Capability) error {
	name := c.Spec().Name
	if name == "" {
		return errors.New(errors.CodeInvalidInput, "tool name is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caps[name]; exists {
		return errors.Newf(errors.CodeInvalidInput, "tool %q already registered", name)
	}
	r.caps[name] = c
	r.order = append(r.order, name)
	return nil
}

// Resolve returns the capability registered under name.
func (r *Registry) Resolve(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	if !ok {
		return nil, errors.ToolNotRegistered(name)
	}
	return c, nil
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// DescribeAll returns the catalog in registration order.
func (r *Registry) DescribeAll() []CatalogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CatalogEntry, 0, len(r.order))
	for _, name := range r.order {
		spec := r.caps[name].Spec()
		params := spec.Parameters
		if len(params) == 0 {
			params = DefaultParameters(name)
		}
		out = append(out, CatalogEntry{
			Name:        name,
			Description: spec.Description,
			Parameters:  append([]string{}, params...),
		})
	}
	return out
}

// CatalogJSON serialises DescribeAll for prompts.
func (r *Registry) CatalogJSON() string {
	data, err := json.MarshalIndent(r.DescribeAll(), "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

var defaultParameters = map[string][]string{
	"fetch_transactions":   {"user_id", "start_date", "end_date"},
	"filter_data":          {"transactions", "filters"},
	"generate_charts":      {"transactions", "goal"},
	"analyze_data":         {"transactions", "goal"},
	"generate_suggestions": {"analysis_result"},
	"market_research":      {"category"},
	"generate_report":      {"analysis_result", "chart_paths", "user_id", "start_date", "end_date"},
}

// DefaultParameters returns the parameter list of a well-known tool, or an
// empty list.
func DefaultParameters(name string) []string {
	return append([]string{}, defaultParameters[name]...)
}
