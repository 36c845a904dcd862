// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"strings"

	"github.com/jllopis/spendlens/pkg/prompt"
)

// sampleRows is how many rows the code-generation prompt shows the model.
const sampleRows = 3

// ChartCodePrompt builds the chart code-generation prompt for goal.
func ChartCodePrompt(prompts *prompt.Store, goal string, ds Dataset) (string, error) {
	if prompts == nil {
		prompts = prompt.Defaults()
	}
	return prompts.Format(prompt.ChartCode, map[string]any{
		"goal":    goal,
		"count":   ds.Len(),
		"columns": strings.Join(ds.Columns, ", "),
		"sample":  ds.Sample(sampleRows),
	})
}

// StripCodeFences removes a surrounding markdown code fence from model output.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	body := text[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// Drop the language tag on the opening fence.
		if tag := strings.TrimSpace(body[:nl]); !strings.ContainsAny(tag, " =()") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
