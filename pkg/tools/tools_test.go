// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/spendlens/pkg/errors"
)

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	echo := Sync(Spec{Name: "echo", Parameters: []string{"text"}}, func(_ context.Context, p Params) (any, error) {
		return p.String("text", ""), nil
	})
	if err := reg.Register(echo); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := reg.Register(echo); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}

	c, err := reg.Resolve("echo")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if c.Spec().Kind != KindSync {
		t.Fatalf("expected sync kind, got %s", c.Spec().Kind)
	}

	_, err = reg.Resolve("summon_unicorn")
	if !errors.HasCode(err, errors.CodeToolNotRegistered) || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDescribeAllUsesDefaults(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(Sync(Spec{Name: "analyze_data", Description: "analyze"}, nil))
	_ = reg.Register(Sync(Spec{Name: "custom"}, nil))
	_ = reg.Register(Sync(Spec{Name: "explicit", Parameters: []string{"a", "b"}}, nil))

	catalog := reg.DescribeAll()
	if len(catalog) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(catalog))
	}
	if strings.Join(catalog[0].Parameters, ",") != "transactions,goal" {
		t.Fatalf("unexpected default parameters %v", catalog[0].Parameters)
	}
	if catalog[1].Parameters == nil || len(catalog[1].Parameters) != 0 {
		t.Fatalf("expected empty, non-nil parameter list, got %#v", catalog[1].Parameters)
	}
	if catalog[2].Name != "explicit" || len(catalog[2].Parameters) != 2 {
		t.Fatalf("unexpected entry %+v", catalog[2])
	}

	var decoded []CatalogEntry
	if err := json.Unmarshal([]byte(reg.CatalogJSON()), &decoded); err != nil {
		t.Fatalf("catalog is not valid JSON: %v", err)
	}
}

func TestAsyncInvoke(t *testing.T) {
	c := Async(Spec{Name: "slow"}, func(_ context.Context, p Params) <-chan Result {
		return Go(func() (any, error) { return p.Int("n", 0) * 2, nil })
	})
	if c.Spec().Kind != KindAsync {
		t.Fatalf("expected async kind")
	}
	v, err := Invoke(context.Background(), c, Params{"n": float64(21)})
	if err != nil || v != 42 {
		t.Fatalf("unexpected result %v, %v", v, err)
	}
}

func TestAsyncInvokeHonoursCancellation(t *testing.T) {
	c := Async(Spec{Name: "never"}, func(context.Context, Params) <-chan Result {
		return make(chan Result)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Invoke(ctx, c, nil)
	if !errors.HasCode(err, errors.CodeContextLost) {
		t.Fatalf("expected CONTEXT_LOST, got %v", err)
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	c := Sync(Spec{Name: "explode"}, func(context.Context, Params) (any, error) {
		panic("kaboom")
	})
	_, err := Invoke(context.Background(), c, nil)
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected panic to surface as error, got %v", err)
	}
}

func TestParams(t *testing.T) {
	p := Params{
		"s":     "hello",
		"n":     float64(3),
		"f":     "2.5",
		"date":  "2024-01-15",
		"stamp": "2024-01-15T10:00:00Z",
		"list":  []any{"a", "b"},
		"nil":   nil,
	}
	if p.String("s", "") != "hello" || p.String("missing", "def") != "def" {
		t.Fatalf("unexpected String results")
	}
	if p.Int("n", 0) != 3 || p.Int("nil", 7) != 7 {
		t.Fatalf("unexpected Int results")
	}
	if p.Float("f", 0) != 2.5 {
		t.Fatalf("unexpected Float result")
	}
	d, err := p.Time("date")
	if err != nil || d.Day() != 15 {
		t.Fatalf("unexpected date %v, %v", d, err)
	}
	if _, err := p.Time("stamp"); err != nil {
		t.Fatalf("unexpected stamp error %v", err)
	}
	if _, err := p.Time("s"); err == nil {
		t.Fatalf("expected error for non-time string")
	}
	var list []string
	if err := p.Decode("list", &list); err != nil || len(list) != 2 {
		t.Fatalf("unexpected decode %v, %v", list, err)
	}
}
