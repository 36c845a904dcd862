// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"testing"
)

func static(status HealthStatus) HealthChecker {
	return HealthCheckFunc(func(context.Context) HealthResult {
		return HealthResult{Status: status}
	})
}

func TestHealthRegistryCheckAll(t *testing.T) {
	tests := []struct {
		name     string
		statuses []HealthStatus
		want     HealthStatus
	}{
		{"all healthy", []HealthStatus{HealthHealthy, HealthHealthy}, HealthHealthy},
		{"one degraded", []HealthStatus{HealthHealthy, HealthDegraded}, HealthDegraded},
		{"unhealthy wins", []HealthStatus{HealthDegraded, HealthUnhealthy, HealthHealthy}, HealthUnhealthy},
		{"empty", nil, HealthHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewHealthRegistry()
			for i, s := range tt.statuses {
				reg.Register(string(rune('a'+i)), static(s))
			}
			results, overall := reg.CheckAll(context.Background())
			if overall != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, overall)
			}
			if len(results) != len(tt.statuses) {
				t.Fatalf("expected %d results, got %d", len(tt.statuses), len(results))
			}
			for i, r := range results {
				if r.LastCheck.IsZero() {
					t.Fatalf("expected LastCheck to be set")
				}
				if r.Component != string(rune('a'+i)) {
					t.Fatalf("results should be ordered by name, got %s", r.Component)
				}
			}
		})
	}
}

func TestHealthRegistryUnknown(t *testing.T) {
	if _, err := NewHealthRegistry().Check(context.Background(), "nope"); err == nil {
		t.Fatalf("expected error for unknown checker")
	}
}
