// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseJSON loads a plan from JSON and validates it.
func ParseJSON(data []byte) (*Plan, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse json plan: %w", err)
	}
	normalizeTasks(plan.Tasks)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ParseYAML loads a plan from YAML and validates it.
func ParseYAML(data []byte) (*Plan, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty YAML payload")
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse yaml plan: %w", err)
	}
	normalizeTasks(plan.Tasks)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// MarshalJSON serializes a plan to JSON. Use pretty for indented output.
func MarshalJSON(plan *Plan, pretty bool) ([]byte, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if pretty {
		return json.MarshalIndent(plan, "", "  ")
	}
	return json.Marshal(plan)
}

// MarshalYAML serializes a plan to YAML.
func MarshalYAML(plan *Plan) ([]byte, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return yaml.Marshal(plan)
}

func normalizeTasks(tasks []Task) {
	for i := range tasks {
		tasks[i].Priority = NormalizePriority(string(tasks[i].Priority))
	}
}

// ExtractJSON returns the substring of raw from the first '{' or '[' to the
// last matching closer.
func ExtractJSON(raw string) (string, error) {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return "", fmt.Errorf("no JSON object or array in model output")
	}
	closer := "}"
	if raw[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(raw, closer)
	if end <= start {
		return "", fmt.Errorf("unterminated JSON in model output")
	}
	return raw[start : end+1], nil
}

// ParseModelPlan parses planning output from a model. It accepts an array of
// task records or an object with a "tasks" array. Records without an id get
// their 1-based position. The resulting plan is validated.
func ParseModelPlan(raw string) (*Plan, error) {
	snippet, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal([]byte(snippet), &decoded); err != nil {
		return nil, fmt.Errorf("decode model plan: %w", err)
	}

	var records []any
	switch v := decoded.(type) {
	case []any:
		records = v
	case map[string]any:
		tasks, ok := v["tasks"].([]any)
		if !ok {
			return nil, fmt.Errorf("model plan object has no tasks array")
		}
		records = tasks
	default:
		return nil, fmt.Errorf("model plan is neither an array nor an object")
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("model plan has no tasks")
	}

	plan := &Plan{Tasks: make([]Task, 0, len(records))}
	for i, rec := range records {
		obj, ok := rec.(map[string]any)
		if !ok || !taskLike(obj) {
			return nil, fmt.Errorf("model plan entry %d is not a task", i+1)
		}
		plan.Tasks = append(plan.Tasks, taskFromRecord(obj, i))
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func taskLike(obj map[string]any) bool {
	for _, key := range []string{"tool", "tool_name", "description", "task"} {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}

func taskFromRecord(obj map[string]any, index int) Task {
	task := Task{
		ID:             idString(obj["id"]),
		Description:    firstString(obj, "description", "task"),
		Tool:           strings.TrimSpace(firstString(obj, "tool", "tool_name")),
		Priority:       NormalizePriority(firstString(obj, "priority")),
		ExpectedResult: firstString(obj, "expected_result", "expected_output"),
	}
	if task.ID == "" {
		task.ID = strconv.Itoa(index + 1)
	}
	for _, key := range []string{"parameters", "params", "tool_params"} {
		raw, ok := obj[key].(map[string]any)
		if !ok {
			continue
		}
		task.Params = make(map[string]Param, len(raw))
		for name, value := range raw {
			task.Params[name] = paramFromAny(value)
		}
		break
	}
	return task
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok {
			return s
		}
	}
	return ""
}
