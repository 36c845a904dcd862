// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadPlan reads a stored plan. The extension picks the format (.json,
// .yaml, .yml); any other file is parsed as JSON when it starts with a brace
// and as YAML otherwise. A plan without an id takes the file's base name.
// Errors from reading the file are returned unwrapped, so callers can test
// for fs.ErrNotExist.
func LoadPlan(path string) (*Plan, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("plan path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	var plan *Plan
	switch {
	case ext == ".json":
		plan, err = ParseJSON(data)
	case ext == ".yaml" || ext == ".yml":
		plan, err = ParseYAML(data)
	case bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")):
		plan, err = ParseJSON(data)
	default:
		// YAML is a superset of JSON, so arrays and bare task lists land here.
		plan, err = ParseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if plan.ID == "" {
		plan.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return plan, nil
}
