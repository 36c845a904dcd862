// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MockProvider is a testing implementation of Provider.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Chat returns the configured response, error or ChatFunc result.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{Content: m.Response, Usage: mockUsage()}, nil
}

// FailingMockProvider always fails.
type FailingMockProvider struct {
	Err error
}

// Chat returns the configured error.
func (f *FailingMockProvider) Chat(context.Context, ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}

// ScriptedMockProvider returns a pre-defined sequence of responses and records
// the prompts it received.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	// Fallback is returned once Responses is exhausted; empty means error.
	Fallback  string
	CallCount int
	Prompts   []string
}

// NewScriptedMockProvider creates a new ScriptedMockProvider.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	return &ScriptedMockProvider{Responses: responses}
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	if n := len(req.Messages); n > 0 {
		s.Prompts = append(s.Prompts, req.Messages[n-1].Content)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		if s.Fallback != "" {
			return &ChatResponse{Content: s.Fallback, Usage: mockUsage()}, nil
		}
		return nil, errors.New("scripted mock: no more responses available")
	}

	content := s.Responses[0]
	s.Responses = s.Responses[1:]
	return &ChatResponse{Content: content, Usage: mockUsage()}, nil
}

// AddResponse appends a response to the queue.
func (s *ScriptedMockProvider) AddResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, response)
}

// Calls returns how many times Chat has been called.
func (s *ScriptedMockProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCount
}

func mockUsage() Usage {
	return Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}
}
