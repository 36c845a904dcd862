// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Params carries resolved task parameters into a capability.
type Params map[string]any

// Value returns the raw value for key.
func (p Params) Value(key string) (any, bool) {
	v, ok := p[key]
	return v, ok && v != nil
}

// String returns key as a string, or def when absent.
func (p Params) String(key, def string) string {
	v, ok := p.Value(key)
	if !ok {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns key as an int, or def when absent or not numeric.
func (p Params) Int(key string, def int) int {
	v, ok := p.Value(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// Float returns key as a float64, or def when absent or not numeric.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p.Value(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// Time returns key as a time, accepting time.Time or RFC3339/date strings.
func (p Params) Time(key string) (time.Time, error) {
	v, ok := p.Value(key)
	if !ok {
		return time.Time{}, fmt.Errorf("parameter %q is required", key)
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("parameter %q: unrecognised time %q", key, t)
	}
	return time.Time{}, fmt.Errorf("parameter %q: unsupported type %T", key, v)
}

// Decode converts key into out by a JSON round trip, for values that arrive
// either typed or JSON-decoded.
func (p Params) Decode(key string, out any) error {
	v, ok := p.Value(key)
	if !ok {
		return fmt.Errorf("parameter %q is required", key)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("parameter %q: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parameter %q: %w", key, err)
	}
	return nil
}
