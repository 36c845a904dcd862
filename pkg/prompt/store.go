// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt stores named prompt templates and formats them with strict
// placeholder checking.
package prompt

import (
	"bytes"
	stderrors "errors"
	"regexp"
	"sort"
	"sync"
	"text/template"

	"github.com/jllopis/spendlens/pkg/errors"
)

// Store maps template keys to parsed templates. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{templates: make(map[string]*template.Template)}
}

// Register parses tmpl and stores it under key, replacing any previous entry.
func (s *Store) Register(key, tmpl string) error {
	t, err := template.New(key).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "parse prompt template", err).
			WithContext("template", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[key] = t
	return nil
}

// MustRegister is Register that panics on a malformed template.
func (s *Store) MustRegister(key, tmpl string) {
	if err := s.Register(key, tmpl); err != nil {
		panic(err)
	}
}

// Keys returns the registered keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.templates))
	for k := range s.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Format renders the template stored under key with vars.
func (s *Store) Format(key string, vars map[string]any) (string, error) {
	s.mu.RLock()
	t, ok := s.templates[key]
	s.mu.RUnlock()
	if !ok {
		return "", errors.Newf(errors.CodeMissingTemplateKey, "prompt template %q not found", key).
			WithContext("template", key)
	}

	if vars == nil {
		vars = map[string]any{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		if name := missingKey(err); name != "" {
			return "", errors.Newf(errors.CodeMissingPlaceholder, "prompt template %q: missing placeholder %q", key, name).
				WithContext("template", key).
				WithContext("placeholder", name)
		}
		return "", errors.New(errors.CodeInvalidInput, "render prompt template", err).
			WithContext("template", key)
	}
	return buf.String(), nil
}

var missingKeyPattern = regexp.MustCompile(`map has no entry for key "([^"]+)"`)

func missingKey(err error) string {
	var execErr template.ExecError
	if stderrors.As(err, &execErr) {
		err = execErr.Err
	}
	if m := missingKeyPattern.FindStringSubmatch(err.Error()); m != nil {
		return m[1]
	}
	return ""
}
