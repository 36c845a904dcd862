// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jllopis/spendlens/pkg/core"
)

// progressPrinter writes one line per run event, for --progress.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	tools   map[string]string
	started map[string]time.Time
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, tools: map[string]string{}, started: map[string]time.Time{}}
}

func (p *progressPrinter) Emit(_ context.Context, ev core.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case core.EventPlanGenerated:
		fmt.Fprintf(p.w, "plan %v ready\n", ev.Payload["plan_id"])
	case core.EventPlanFallback:
		fmt.Fprintf(p.w, "planning failed, using the built-in plan: %v\n", ev.Payload["reason"])
	case core.EventTaskStarted:
		tool, _ := ev.Payload["tool"].(string)
		if tool == "" {
			tool = "(reasoning)"
		}
		p.tools[ev.TaskID] = tool
		p.started[ev.TaskID] = ev.Timestamp
		fmt.Fprintf(p.w, "[task %s] %s started\n", ev.TaskID, tool)
	case core.EventTaskSucceeded:
		fmt.Fprintf(p.w, "[task %s] %s done in %s\n", ev.TaskID, p.tools[ev.TaskID], p.elapsed(ev))
	case core.EventTaskFailed:
		fmt.Fprintf(p.w, "[task %s] %s failed after %s: %v\n", ev.TaskID, p.tools[ev.TaskID], p.elapsed(ev), ev.Payload["error"])
	case core.EventRunCompleted:
		fmt.Fprintf(p.w, "run finished, %v failed\n", ev.Payload["failed"])
	}
}

func (p *progressPrinter) elapsed(ev core.Event) time.Duration {
	start, ok := p.started[ev.TaskID]
	if !ok {
		return 0
	}
	return ev.Timestamp.Sub(start).Round(time.Millisecond)
}
