// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"regexp"
)

var defaultInjectionPatterns = []string{
	// instruction override
	`(?i)\b(ignore|disregard|forget|override)\s+(all\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`,
	// persona changes
	`(?i)\byou\s+are\s+now\s+(a|an|the)\s+`,
	`(?i)\bpretend\s+(you\s+are|to\s+be)\s+`,
	`(?i)\b(developer|debug|sudo|admin|dan)\s+mode\b`,
	`(?i)\bjailbreak`,
	// prompt extraction
	`(?i)\b(show|reveal|print|display|repeat)\s+(me\s+)?your\s+(system\s+)?(prompt|instructions?)`,
	// plan tampering
	`(?i)\b(respond|reply|answer)\s+only\s+with\b`,
	`(?i)\b(call|use|invoke)\s+(the\s+)?tool\s+\w+\s+instead\b`,
	// chat template delimiters
	`<\|[a-z_]+\|>`,
	`(?i)\[/?INST\]`,
	`(?i)<</?SYS>>`,
	`(?im)^\s*(system|assistant)\s*:`,
}

// InjectionDetector blocks goals that try to rewrite the planning prompt.
type InjectionDetector struct {
	patterns []*regexp.Regexp
}

// InjectionOption configures an InjectionDetector.
type InjectionOption func(*InjectionDetector)

// NewInjectionDetector compiles the default patterns plus any added by opts.
func NewInjectionDetector(opts ...InjectionOption) *InjectionDetector {
	d := &InjectionDetector{}
	for _, p := range defaultInjectionPatterns {
		d.patterns = append(d.patterns, regexp.MustCompile(p))
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithInjectionPatterns adds patterns. Invalid expressions are skipped.
func WithInjectionPatterns(patterns ...string) InjectionOption {
	return func(d *InjectionDetector) {
		for _, p := range patterns {
			if re, err := regexp.Compile(p); err == nil {
				d.patterns = append(d.patterns, re)
			}
		}
	}
}

// ID implements InputChecker.
func (d *InjectionDetector) ID() string { return "prompt-injection" }

// CheckInput implements InputChecker.
func (d *InjectionDetector) CheckInput(ctx context.Context, input string) CheckResult {
	var matches []string
	for _, re := range d.patterns {
		if ctx.Err() != nil {
			break
		}
		if m := re.FindString(input); m != "" {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return CheckResult{}
	}
	return CheckResult{
		Blocked: true,
		Reason:  "goal looks like an attempt to override the planner instructions",
		Matches: matches,
	}
}
