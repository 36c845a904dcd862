// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jllopis/spendlens/pkg/errors"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaProvider talks to a local Ollama server over its HTTP API.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

// NewOllama returns a provider for the server at baseURL (default
// localhost:11434). timeout bounds a whole request, generation included.
func NewOllama(baseURL string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// statusError is a non-200 answer; body holds Ollama's "error" field when
// it sent one, otherwise the start of the raw body.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ollama returned status %d: %s", e.status, e.body)
}

// Chat sends one non-streaming chat request.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	in := ollamaChatRequest{Model: req.Model, Messages: req.Messages}
	if req.Temperature != 0 {
		in.Options = map[string]any{"temperature": req.Temperature}
	}

	var out ollamaChatResponse
	err := p.call(ctx, http.MethodPost, "/api/chat", in, &out)
	var se *statusError
	switch {
	case err == nil:
	case stderrors.As(err, &se):
		return nil, errors.New(errors.CodeLLMError, se.Error(), nil).
			WithContext("status", se.status).
			WithContext("model", req.Model).
			WithRecoverable(se.status >= 500 || se.status == http.StatusTooManyRequests)
	default:
		return nil, errors.New(errors.CodeLLMError, "ollama chat failed", err).
			WithContext("model", req.Model).
			WithRecoverable(ctx.Err() == nil)
	}

	return &ChatResponse{
		Content: out.Message.Content,
		Usage: Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
	}, nil
}

// Ping lists the local models to check the server answers.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	if err := p.call(ctx, http.MethodGet, "/api/tags", nil, nil); err != nil {
		return errors.New(errors.CodeUnavailable, "ollama unreachable", err).
			WithContext("base_url", p.baseURL)
	}
	return nil
}

// call sends in as JSON (when non-nil) and decodes a 200 answer into out
// (when non-nil).
func (p *OllamaProvider) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &statusError{status: resp.StatusCode, body: msg}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
