// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// PIIMode selects how detected values are replaced.
type PIIMode int

const (
	// PIIMask replaces a value with a placeholder such as [CARD].
	PIIMask PIIMode = iota
	// PIIRedact removes the value.
	PIIRedact
)

// PIIType names a kind of personal data.
type PIIType string

const (
	PIICard  PIIType = "card"
	PIIIBAN  PIIType = "iban"
	PIIEmail PIIType = "email"
	PIIPhone PIIType = "phone"
)

type piiPattern struct {
	kind  PIIType
	re    *regexp.Regexp
	valid func(string) bool
}

// Order matters: card numbers would otherwise be taken for phone numbers.
var defaultPIIPatterns = []piiPattern{
	{PIICard, regexp.MustCompile(`\b\d{4}(?:[ -]?\d{4}){2}[ -]?\d{1,7}\b`), luhnValid},
	{PIIIBAN, regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`), nil},
	{PIIEmail, regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), nil},
	{PIIPhone, regexp.MustCompile(`\+\d{1,3}[ .-]?\d(?:[ .-]?\d){6,13}`), nil},
}

// PIIFilter masks payment card numbers, IBANs, e-mail addresses and
// international phone numbers. Amounts and dates are left alone.
type PIIFilter struct {
	mode     PIIMode
	patterns []piiPattern
}

// NewPIIFilter creates a filter for the given types, or for all of them.
func NewPIIFilter(mode PIIMode, types ...PIIType) *PIIFilter {
	enabled := make(map[PIIType]bool, len(types))
	for _, t := range types {
		enabled[t] = true
	}
	f := &PIIFilter{mode: mode}
	for _, p := range defaultPIIPatterns {
		if len(types) == 0 || enabled[p.kind] {
			f.patterns = append(f.patterns, p)
		}
	}
	return f
}

// ID implements OutputFilter.
func (f *PIIFilter) ID() string { return "pii" }

// FilterOutput implements OutputFilter.
func (f *PIIFilter) FilterOutput(_ context.Context, output string) FilterResult {
	result := FilterResult{Content: output}
	for _, p := range f.patterns {
		replacement := ""
		if f.mode == PIIMask {
			replacement = "[" + strings.ToUpper(string(p.kind)) + "]"
		}
		locs := p.re.FindAllStringIndex(result.Content, -1)
		if len(locs) == 0 {
			continue
		}
		var b strings.Builder
		last := 0
		for _, loc := range locs {
			match := result.Content[loc[0]:loc[1]]
			if p.valid != nil && !p.valid(match) {
				continue
			}
			b.WriteString(result.Content[last:loc[0]])
			b.WriteString(replacement)
			last = loc[1]
			result.Redactions = append(result.Redactions, Redaction{
				Type:        "pii:" + string(p.kind),
				Replacement: replacement,
				Position:    loc[0],
			})
		}
		if last == 0 {
			continue
		}
		b.WriteString(result.Content[last:])
		result.Content = b.String()
		result.Modified = true
	}
	sort.SliceStable(result.Redactions, func(i, j int) bool {
		return result.Redactions[i].Position < result.Redactions[j].Position
	})
	return result
}

// luhnValid reports whether the digits in s pass the Luhn checksum.
func luhnValid(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}
