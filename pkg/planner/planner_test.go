// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/spendlens/pkg/llm"
	"github.com/jllopis/spendlens/pkg/memory"
	"github.com/jllopis/spendlens/pkg/tools"
)

func testRequest() Request {
	return Request{
		Goal:   "analyze spending by category",
		UserID: "u-1",
		Start:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func staticInvoker(text string, err error) llm.Invoker {
	return llm.InvokerFunc(func(context.Context, string) (string, error) {
		return text, err
	})
}

func TestPlannerFallbackOnInvalidOutput(t *testing.T) {
	cases := []struct {
		name string
		text string
		err  error
	}{
		{name: "not json", text: "not json"},
		{name: "empty array", text: "[]"},
		{name: "object without tasks", text: `{"steps": 3}`},
		{name: "non task records", text: `[1, 2, 3]`},
		{name: "forward reference", text: `[{"id":"1","tool":"a","parameters":{"x":{"$ref":"2"}}},{"id":"2","tool":"b"}]`},
		{name: "duplicate ids", text: `[{"id":"1","tool":"a"},{"id":"1","tool":"b"}]`},
		{name: "gateway error", err: fmt.Errorf("connection refused")},
	}

	want, err := MarshalJSON(FallbackPlan(testRequest()), false)
	if err != nil {
		t.Fatalf("marshal fallback: %v", err)
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log := memory.NewLog()
			p := New(staticInvoker(tc.text, tc.err), nil, WithPlannerMemory(log))
			plan := p.Plan(context.Background(), testRequest(), nil)

			got, err := MarshalJSON(plan, false)
			if err != nil {
				t.Fatalf("marshal plan: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("expected canonical fallback plan\n got: %s\nwant: %s", got, want)
			}
			if len(log.Filter("plan.fallback")) != 1 {
				t.Fatalf("expected plan.fallback memory entry, got %+v", log.Recent(0))
			}
		})
	}
}

func TestFallbackPlanShape(t *testing.T) {
	plan := FallbackPlan(testRequest())
	if !plan.Fallback || plan.ID != FallbackPlanID {
		t.Fatalf("unexpected plan header: %+v", plan)
	}
	wantTools := []string{ToolFetchTransactions, ToolGenerateCharts, ToolAnalyzeData, ToolGenerateReport}
	for i, task := range plan.Tasks {
		if task.ID != fmt.Sprint(i+1) {
			t.Fatalf("task %d has id %q", i, task.ID)
		}
		if task.Tool != wantTools[i] {
			t.Fatalf("task %s tool = %q, want %q", task.ID, task.Tool, wantTools[i])
		}
	}
	for _, id := range []string{"2", "3"} {
		task := plan.Tasks[mustIndex(t, plan, id)]
		if ref := task.Params["transactions"]; ref.Ref != "1" {
			t.Fatalf("task %s should reference task 1, got %+v", id, ref)
		}
	}
	refs := plan.Tasks[3].References()
	if strings.Join(refs, ",") != "3,2,1" {
		t.Fatalf("unexpected report references: %v", refs)
	}
	if err := plan.Validate(); err != nil {
		t.Fatalf("fallback plan invalid: %v", err)
	}
}

func mustIndex(t *testing.T, plan *Plan, id string) int {
	t.Helper()
	for i, task := range plan.Tasks {
		if task.ID == id {
			return i
		}
	}
	t.Fatalf("task %q not found", id)
	return -1
}

func TestPlannerUsesModelPlan(t *testing.T) {
	text := "Here is the plan:\n```json\n" + `{"tasks": [
		{"description": "get data", "tool": "fetch_transactions", "parameters": {"user_id": "u-1"}, "priority": "高"},
		{"description": "summarize", "tool": "", "parameters": {"data": {"$ref": 1, "default": []}}},
		{"description": "unicorns", "tool": "summon_unicorn", "parameters": {"data": "$ref:2"}}
	]}` + "\n```"

	var gotPrompt string
	gateway := llm.InvokerFunc(func(_ context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return text, nil
	})
	registry := tools.NewRegistry()
	if err := registry.Register(tools.Sync(tools.Spec{Name: "fetch_transactions"}, func(context.Context, tools.Params) (any, error) {
		return nil, nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	plan := New(gateway, nil).Plan(context.Background(), testRequest(), registry.DescribeAll())
	if plan.Fallback {
		t.Fatalf("expected model plan, got fallback")
	}
	if !strings.HasPrefix(plan.ID, "plan-") || plan.Goal != testRequest().Goal {
		t.Fatalf("unexpected plan header: %+v", plan)
	}
	if len(plan.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(plan.Tasks))
	}
	if plan.Tasks[0].ID != "1" || plan.Tasks[0].Priority != PriorityHigh {
		t.Fatalf("unexpected first task: %+v", plan.Tasks[0])
	}
	if p := plan.Tasks[1].Params["data"]; p.Ref != "1" {
		t.Fatalf("expected numeric $ref to resolve to \"1\", got %+v", p)
	}
	if p := plan.Tasks[2].Params["data"]; p.Ref != "2" {
		t.Fatalf("expected string $ref form, got %+v", p)
	}
	if plan.Tasks[2].Tool != "summon_unicorn" {
		t.Fatalf("unknown tools must be kept")
	}
	for _, want := range []string{"analyze spending by category", "2024-01-01", "2024-01-31", `"fetch_transactions"`, `"user_id"`} {
		if !strings.Contains(gotPrompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, gotPrompt)
		}
	}
}

func TestParseModelPlanArray(t *testing.T) {
	plan, err := ParseModelPlan(`noise [{"task": "a", "tool_name": "x", "params": {"n": 2}}] trailing`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if plan.Tasks[0].Tool != "x" || plan.Tasks[0].Description != "a" {
		t.Fatalf("unexpected task: %+v", plan.Tasks[0])
	}
	if v := plan.Tasks[0].Params["n"].Value; v != float64(2) {
		t.Fatalf("unexpected param: %#v", v)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in, want string
		fail     bool
	}{
		{in: `x {"a": 1} y`, want: `{"a": 1}`},
		{in: `[1, [2]] tail`, want: `[1, [2]]`},
		{in: `{"a": [1]} and {"b": 2}`, want: `{"a": [1]} and {"b": 2}`},
		{in: "plain text", fail: true},
		{in: "{ never closed", fail: true},
	}
	for _, tc := range cases {
		got, err := ExtractJSON(tc.in)
		if tc.fail {
			if err == nil {
				t.Fatalf("ExtractJSON(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ExtractJSON(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestPlanJSONAndYAMLRoundTrip(t *testing.T) {
	plan := FallbackPlan(testRequest())

	data, err := MarshalYAML(plan)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	fromYAML, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if got := fromYAML.Tasks[3].Params["analysis_result"]; got.Ref != "3" {
		t.Fatalf("reference lost in yaml: %+v", got)
	}

	js, err := MarshalJSON(plan, true)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	if !strings.Contains(string(js), `"$ref": "1"`) {
		t.Fatalf("expected $ref in json: %s", js)
	}
	fromJSON, err := ParseJSON(js)
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if len(fromJSON.Tasks) != 4 || fromJSON.Tasks[1].Params["transactions"].Ref != "1" {
		t.Fatalf("unexpected plan: %+v", fromJSON)
	}
}

func TestLoadPlan(t *testing.T) {
	dir := t.TempDir()
	plan := FallbackPlan(testRequest())

	yamlData, err := MarshalYAML(plan)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	jsonData, err := MarshalJSON(plan, false)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	files := map[string][]byte{
		"plan.yaml": yamlData,
		"plan.json": jsonData,
		"plan.txt":  jsonData,
	}
	for name, data := range files {
		path := writeFile(t, dir, name, data)
		loaded, err := LoadPlan(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if len(loaded.Tasks) != 4 {
			t.Fatalf("load %s: expected 4 tasks, got %d", name, len(loaded.Tasks))
		}
	}
	if _, err := LoadPlan(dir + "/missing.json"); !stderrors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected a not-exist error for a missing file, got %v", err)
	}

	noID := writeFile(t, dir, "monthly-review.yml", []byte("tasks:\n  - id: \"1\"\n    tool: fetch_transactions\n"))
	loaded, err := LoadPlan(noID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != "monthly-review" {
		t.Fatalf("expected the file name as plan id, got %q", loaded.ID)
	}

	bad := writeFile(t, dir, "broken.json", []byte(`{"tasks": [}`))
	if _, err := LoadPlan(bad); err == nil || !strings.Contains(err.Error(), "broken.json") {
		t.Fatalf("expected a parse error naming the file, got %v", err)
	}
}

func TestPlanValidate(t *testing.T) {
	cases := []struct {
		name string
		plan *Plan
		ok   bool
	}{
		{name: "nil", plan: nil},
		{name: "empty", plan: &Plan{}},
		{name: "missing id", plan: &Plan{Tasks: []Task{{Tool: "a"}}}},
		{name: "self reference", plan: &Plan{Tasks: []Task{{ID: "1", Params: map[string]Param{"x": Ref("1", nil)}}}}},
		{name: "valid", plan: &Plan{Tasks: []Task{{ID: "a"}, {ID: "b", Params: map[string]Param{"x": Ref("a", nil)}}}}, ok: true},
	}
	for _, tc := range cases {
		err := tc.plan.Validate()
		if tc.ok != (err == nil) {
			t.Fatalf("%s: Validate() = %v", tc.name, err)
		}
	}
}

func TestNormalizePriority(t *testing.T) {
	cases := map[string]Priority{
		"HIGH": PriorityHigh, "高": PriorityHigh, " low ": PriorityLow, "低": PriorityLow,
		"": PriorityMedium, "中": PriorityMedium, "whatever": PriorityMedium,
	}
	for in, want := range cases {
		if got := NormalizePriority(in); got != want {
			t.Fatalf("NormalizePriority(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParamJSONForms(t *testing.T) {
	var p Param
	if err := json.Unmarshal([]byte(`{"$ref":"3","default":"none"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Ref != "3" || p.Default != "none" {
		t.Fatalf("unexpected param: %+v", p)
	}
	if err := json.Unmarshal([]byte(`{"currency":"EUR"}`), &p); err != nil {
		t.Fatalf("unmarshal literal: %v", err)
	}
	if p.IsRef() {
		t.Fatalf("plain object must stay literal")
	}
}
