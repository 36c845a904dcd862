// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package sandbox

// applyProcessLimits is a no-op outside Linux; the worker still runs under
// the Go memory limit and is killed by its parent at the deadline.
func applyProcessLimits(Limits) error { return nil }
