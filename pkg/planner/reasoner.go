// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"
	"encoding/json"

	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/llm"
	"github.com/jllopis/spendlens/pkg/prompt"
	"github.com/jllopis/spendlens/pkg/tools"
)

// DirectReasoner answers a task that names no tool.
type DirectReasoner interface {
	Reason(ctx context.Context, task Task, params tools.Params) (any, error)
}

// LLMReasoner answers tool-less tasks with the direct_task prompt.
type LLMReasoner struct {
	Gateway llm.Invoker
	Prompts *prompt.Store
}

// Reason implements DirectReasoner.
func (r LLMReasoner) Reason(ctx context.Context, task Task, params tools.Params) (any, error) {
	if r.Gateway == nil {
		return nil, errors.New(errors.CodeLLMError, "no gateway configured", nil)
	}
	prompts := r.Prompts
	if prompts == nil {
		prompts = prompt.Defaults()
	}
	contextText := ""
	if len(params) > 0 {
		if data, err := json.Marshal(params); err == nil {
			contextText = string(data)
		}
	}
	text, err := prompts.Format(prompt.DirectTask, map[string]any{
		"task":    task.Description,
		"context": contextText,
	})
	if err != nil {
		return nil, err
	}
	return r.Gateway.Invoke(ctx, text)
}
