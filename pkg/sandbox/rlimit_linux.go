// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package sandbox

import (
	"fmt"
	"math"
	"syscall"
)

// applyProcessLimits caps the data segment and CPU time of the current
// process. Both soft and hard limits are lowered, so the script cannot raise
// them again; a value above the inherited hard limit is clamped to it.
func applyProcessLimits(l Limits) error {
	if l.MaxMemory > 0 {
		if err := lowerRlimit(syscall.RLIMIT_DATA, uint64(l.MaxMemory)+workerOverhead); err != nil {
			return fmt.Errorf("data segment: %w", err)
		}
	}
	if l.Timeout > 0 {
		secs := uint64(math.Ceil(l.Timeout.Seconds())) + 1
		if err := lowerRlimit(syscall.RLIMIT_CPU, secs); err != nil {
			return fmt.Errorf("cpu time: %w", err)
		}
	}
	return nil
}

func lowerRlimit(resource int, value uint64) error {
	var cur syscall.Rlimit
	if err := syscall.Getrlimit(resource, &cur); err != nil {
		return err
	}
	value = min(value, cur.Max)
	return syscall.Setrlimit(resource, &syscall.Rlimit{Cur: value, Max: value})
}
