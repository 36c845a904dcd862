// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jllopis/spendlens/pkg/core"
	"github.com/jllopis/spendlens/pkg/resilience"
)

// Health component names.
const (
	ComponentLLM          = "llm"
	ComponentTransactions = "transactions"
	ComponentArtifacts    = "artifacts"
	ComponentRegistry     = "registry"
)

type breakerReporter interface {
	BreakerState() resilience.CircuitBreakerState
}

type pinger interface {
	Ping(ctx context.Context) error
}

type rooted interface {
	Root() string
}

// cachedChecker reruns check at most once per minInterval.
type cachedChecker struct {
	check       func(ctx context.Context) core.HealthResult
	minInterval time.Duration
	lastCheck   time.Time
	lastResult  core.HealthResult
	mu          sync.RWMutex
}

func newCachedChecker(minInterval time.Duration, check func(ctx context.Context) core.HealthResult) *cachedChecker {
	return &cachedChecker{check: check, minInterval: minInterval}
}

// Check implements core.HealthChecker.
func (h *cachedChecker) Check(ctx context.Context) core.HealthResult {
	h.mu.RLock()
	if time.Since(h.lastCheck) < h.minInterval && !h.lastResult.LastCheck.IsZero() {
		result := h.lastResult
		h.mu.RUnlock()
		return result
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if time.Since(h.lastCheck) < h.minInterval && !h.lastResult.LastCheck.IsZero() {
		return h.lastResult
	}

	result := h.check(ctx)
	result.LastCheck = time.Now()
	h.lastResult = result
	h.lastCheck = result.LastCheck
	return result
}

func (r *Runtime) newHealthRegistry() *core.HealthRegistry {
	reg := core.NewHealthRegistry()
	reg.Register(ComponentLLM, newCachedChecker(5*time.Second, r.checkLLM))
	reg.Register(ComponentTransactions, newCachedChecker(30*time.Second, r.checkTransactions))
	reg.Register(ComponentArtifacts, newCachedChecker(30*time.Second, r.checkArtifacts))
	reg.Register(ComponentRegistry, core.HealthCheckFunc(r.checkRegistry))
	return reg
}

// Health checks every component and returns the results with the worst
// status. Each result is also recorded as a metric.
func (r *Runtime) Health(ctx context.Context) ([]core.HealthResult, core.HealthStatus) {
	results, overall := r.health.CheckAll(ctx)
	for _, res := range results {
		r.metrics.RecordHealth(ctx, res.Component, healthLevel(res.Status))
	}
	return results, overall
}

func healthLevel(s core.HealthStatus) int64 {
	switch s {
	case core.HealthHealthy:
		return 2
	case core.HealthDegraded:
		return 1
	default:
		return 0
	}
}

// checkLLM is degraded rather than unhealthy: without the model every run
// still completes on the fallback plan and chart templates.
func (r *Runtime) checkLLM(ctx context.Context) core.HealthResult {
	if r.gateway == nil {
		return core.HealthResult{Status: core.HealthDegraded, Message: "no model configured, using fallback plans"}
	}
	if b, ok := r.gateway.(breakerReporter); ok && b.BreakerState() == resilience.StateOpen {
		return core.HealthResult{Status: core.HealthDegraded, Message: "circuit breaker open"}
	}
	if p, ok := r.gateway.(pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			return core.HealthResult{Status: core.HealthDegraded, Message: "model server unreachable: " + err.Error()}
		}
	}
	return core.HealthResult{Status: core.HealthHealthy, Message: "model gateway available"}
}

func (r *Runtime) checkTransactions(ctx context.Context) core.HealthResult {
	p, ok := r.source.(pinger)
	if !ok {
		return core.HealthResult{Status: core.HealthHealthy, Message: "in-process source"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		return core.HealthResult{Status: core.HealthUnhealthy, Message: err.Error()}
	}
	return core.HealthResult{Status: core.HealthHealthy, Message: "transaction store responsive"}
}

func (r *Runtime) checkArtifacts(context.Context) core.HealthResult {
	s, ok := r.store.(rooted)
	if !ok {
		return core.HealthResult{Status: core.HealthHealthy, Message: "artifact store configured"}
	}
	root := s.Root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return core.HealthResult{Status: core.HealthUnhealthy, Message: err.Error()}
	}
	f, err := os.CreateTemp(root, ".health-*")
	if err != nil {
		return core.HealthResult{Status: core.HealthUnhealthy, Message: fmt.Sprintf("artifact root not writable: %v", err)}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return core.HealthResult{Status: core.HealthHealthy, Message: "artifact root writable"}
}

func (r *Runtime) checkRegistry(context.Context) core.HealthResult {
	n := len(r.registry.Names())
	if n == 0 {
		return core.HealthResult{Status: core.HealthUnhealthy, Message: "no capabilities registered"}
	}
	return core.HealthResult{Status: core.HealthHealthy, Message: fmt.Sprintf("%d capabilities registered", n)}
}
