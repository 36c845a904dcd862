// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package planner turns an analysis goal into an ordered plan of tool calls and
// executes that plan with partial-failure semantics.
package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Priority ranks a task. It is informational; execution order is plan order.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// NormalizePriority maps model output such as "HIGH", "高" or "" onto a Priority.
func NormalizePriority(raw string) Priority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "h", "urgent", "critical", "高", "紧急":
		return PriorityHigh
	case "low", "l", "低":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Plan is an ordered list of tasks; order is execution order.
type Plan struct {
	ID       string `json:"id" yaml:"id"`
	Goal     string `json:"goal" yaml:"goal"`
	Tasks    []Task `json:"tasks" yaml:"tasks"`
	Fallback bool   `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Task is one planned tool invocation. An empty Tool means the task is
// answered by direct model reasoning over Description.
type Task struct {
	ID             string           `json:"id" yaml:"id"`
	Description    string           `json:"description" yaml:"description"`
	Tool           string           `json:"tool" yaml:"tool"`
	Params         map[string]Param `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Priority       Priority         `json:"priority" yaml:"priority"`
	ExpectedResult string           `json:"expected_result,omitempty" yaml:"expected_result,omitempty"`
}

// ParamNames returns the task parameter names in sorted order.
func (t Task) ParamNames() []string {
	names := make([]string, 0, len(t.Params))
	for name := range t.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// References returns the ids of tasks whose output this task consumes.
func (t Task) References() []string {
	var refs []string
	for _, name := range t.ParamNames() {
		if p := t.Params[name]; p.IsRef() {
			refs = append(refs, p.Ref)
		}
	}
	return refs
}

// Validate checks that the plan has tasks, ids are unique and every result
// reference names an earlier task.
func (p *Plan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan is nil")
	}
	if len(p.Tasks) == 0 {
		return fmt.Errorf("plan has no tasks")
	}
	seen := make(map[string]bool, len(p.Tasks))
	for i, task := range p.Tasks {
		if task.ID == "" {
			return fmt.Errorf("task %d has no id", i+1)
		}
		if seen[task.ID] {
			return fmt.Errorf("duplicate task id %q", task.ID)
		}
		for _, ref := range task.References() {
			if !seen[ref] {
				return fmt.Errorf("task %q references %q which is not an earlier task", task.ID, ref)
			}
		}
		seen[task.ID] = true
	}
	return nil
}

// Clone returns a deep copy of the plan structure. Literal parameter values
// are shared.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := *p
	out.Tasks = make([]Task, len(p.Tasks))
	for i, task := range p.Tasks {
		if task.Params != nil {
			params := make(map[string]Param, len(task.Params))
			for k, v := range task.Params {
				params[k] = v
			}
			task.Params = params
		}
		out.Tasks[i] = task
	}
	return &out
}

// Tools returns the tool of every task, in order.
func (p *Plan) Tools() []string {
	out := make([]string, len(p.Tasks))
	for i, task := range p.Tasks {
		out[i] = task.Tool
	}
	return out
}

const (
	refKey     = "$ref"
	defaultKey = "default"
	refPrefix  = "$ref:"
)

// Param is a task parameter: either a literal value or a reference to the
// output of an earlier task, with a default used when that task failed.
//
// JSON form of a reference: {"$ref": "1", "default": []}. The string form
// "$ref:1" is also accepted.
type Param struct {
	Value   any
	Ref     string
	Default any
}

// Lit builds a literal parameter.
func Lit(v any) Param {
	return Param{Value: v}
}

// Ref builds a result reference with a default.
func Ref(taskID string, def any) Param {
	return Param{Ref: taskID, Default: def}
}

// IsRef reports whether p references another task.
func (p Param) IsRef() bool {
	return p.Ref != ""
}

// MarshalJSON implements json.Marshaler.
func (p Param) MarshalJSON() ([]byte, error) {
	if !p.IsRef() {
		return json.Marshal(p.Value)
	}
	var buf bytes.Buffer
	ref, err := json.Marshal(p.Ref)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`{"$ref":`)
	buf.Write(ref)
	if p.Default != nil {
		def, err := json.Marshal(p.Default)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"default":`)
		buf.Write(def)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Param) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = paramFromAny(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (p Param) MarshalYAML() (interface{}, error) {
	if !p.IsRef() {
		return p.Value, nil
	}
	out := map[string]any{refKey: p.Ref}
	if p.Default != nil {
		out[defaultKey] = p.Default
	}
	return out, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Param) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	*p = paramFromAny(v)
	return nil
}

func paramFromAny(v any) Param {
	switch t := v.(type) {
	case map[string]any:
		if raw, ok := t[refKey]; ok {
			if id := idString(raw); id != "" {
				return Param{Ref: id, Default: t[defaultKey]}
			}
		}
	case string:
		if strings.HasPrefix(t, refPrefix) {
			if id := strings.TrimSpace(strings.TrimPrefix(t, refPrefix)); id != "" {
				return Param{Ref: id}
			}
		}
	}
	return Param{Value: v}
}

// idString renders JSON/YAML ids, which models emit as strings or numbers.
func idString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	case json.Number:
		return t.String()
	}
	return ""
}
