// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	// HealthHealthy indicates the component is fully operational.
	HealthHealthy HealthStatus = "HEALTHY"

	// HealthDegraded indicates the component works with reduced capacity,
	// for example the LLM breaker is open and plans fall back.
	HealthDegraded HealthStatus = "DEGRADED"

	// HealthUnhealthy indicates the component is not operational.
	HealthUnhealthy HealthStatus = "UNHEALTHY"
)

// HealthResult represents the result of a health check.
type HealthResult struct {
	Status    HealthStatus `json:"status"`
	Component string       `json:"component"`
	Message   string       `json:"message,omitempty"`
	LastCheck time.Time    `json:"last_check"`
}

// HealthChecker checks the health of a component.
type HealthChecker interface {
	Check(ctx context.Context) HealthResult
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) HealthResult

// Check calls f and stamps LastCheck when unset.
func (f HealthCheckFunc) Check(ctx context.Context) HealthResult {
	result := f(ctx)
	if result.LastCheck.IsZero() {
		result.LastCheck = time.Now()
	}
	return result
}

// HealthRegistry aggregates component checkers.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{checkers: make(map[string]HealthChecker)}
}

// Register adds a checker under name.
func (h *HealthRegistry) Register(name string, checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Check checks the health of a specific component.
func (h *HealthRegistry) Check(ctx context.Context, name string) (HealthResult, error) {
	h.mu.RLock()
	checker, ok := h.checkers[name]
	h.mu.RUnlock()
	if !ok {
		return HealthResult{}, fmt.Errorf("checker not registered: %s", name)
	}
	result := checker.Check(ctx)
	result.Component = name
	return result, nil
}

// CheckAll runs every checker, ordered by component name, and returns the
// worst status.
func (h *HealthRegistry) CheckAll(ctx context.Context) ([]HealthResult, HealthStatus) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	overall := HealthHealthy
	results := make([]HealthResult, 0, len(names))
	for _, name := range names {
		result, err := h.Check(ctx, name)
		if err != nil {
			continue
		}
		results = append(results, result)
		switch result.Status {
		case HealthUnhealthy:
			overall = HealthUnhealthy
		case HealthDegraded:
			if overall == HealthHealthy {
				overall = HealthDegraded
			}
		}
	}
	return results, overall
}
