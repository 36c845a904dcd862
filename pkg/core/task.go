// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds small types shared across spendlens packages: task
// status, run identifiers, events and health checks.
package core

import "fmt"

// TaskStatus describes the lifecycle state of a plan task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether s is a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Transition validates pending -> running -> {succeeded, failed}.
func (s TaskStatus) Transition(next TaskStatus) (TaskStatus, error) {
	switch {
	case s == TaskStatusPending && next == TaskStatusRunning:
	case s == TaskStatusRunning && next.Terminal():
	default:
		return s, fmt.Errorf("invalid task transition %s -> %s", s, next)
	}
	return next, nil
}
