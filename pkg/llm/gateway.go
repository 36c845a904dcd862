// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/resilience"
)

// GatewayConfig tunes the Gateway.
type GatewayConfig struct {
	Model        string
	Temperature  float64
	SystemPrompt string
	// RatePerSecond limits calls; zero disables the limiter.
	RatePerSecond float64
	Burst         int
	Retry         resilience.RetryConfig
	Breaker       resilience.CircuitBreakerConfig
}

// Gateway turns a Provider into the invoke(prompt) -> text contract used by the
// planner, executor and chart capability. Calls are rate limited, retried on
// recoverable errors and guarded by a circuit breaker.
type Gateway struct {
	provider Provider
	cfg      GatewayConfig
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
}

// NewGateway wraps provider.
func NewGateway(provider Provider, cfg GatewayConfig) *Gateway {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	if cfg.Retry.OnRetry == nil {
		model := cfg.Model
		cfg.Retry.OnRetry = func(attempt int, err error, delay time.Duration) {
			slog.Debug("llm.invoke.retry",
				slog.String("model", model),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.String("error", err.Error()),
			)
		}
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "llm"
	}
	if cfg.Breaker.OnStateChange == nil {
		cfg.Breaker.OnStateChange = func(name string, from, to resilience.CircuitBreakerState) {
			slog.Warn("llm.breaker.state",
				slog.String("breaker", name),
				slog.String("from", string(from)),
				slog.String("to", string(to)),
			)
		}
	}
	g := &Gateway{
		provider: provider,
		cfg:      cfg,
		breaker:  resilience.NewCircuitBreaker(cfg.Breaker),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return g
}

// Invoke sends prompt as a single user message and returns the trimmed reply.
func (g *Gateway) Invoke(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.provider == nil {
		return "", errors.New(errors.CodeLLMError, "no llm provider configured", nil)
	}

	messages := make([]Message, 0, 2)
	if g.cfg.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: g.cfg.SystemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})
	req := ChatRequest{Model: g.cfg.Model, Messages: messages, Temperature: g.cfg.Temperature}

	start := time.Now()
	resp, err := resilience.DoValue(ctx, g.cfg.Retry, func() (*ChatResponse, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, errors.New(errors.CodeContextLost, "rate limiter wait", err)
			}
		}
		var resp *ChatResponse
		err := g.breaker.Call(ctx, func() error {
			var err error
			resp, err = g.provider.Chat(ctx, req)
			return err
		})
		return resp, err
	})
	if err != nil {
		slog.WarnContext(ctx, "llm.invoke.failed",
			slog.String("model", g.cfg.Model),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		if errors.CodeOf(err) == "" {
			err = errors.New(errors.CodeLLMError, "llm invocation failed", err)
		}
		return "", err
	}

	slog.DebugContext(ctx, "llm.invoke.done",
		slog.String("model", g.cfg.Model),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("tokens", resp.Usage.TotalTokens),
	)
	return strings.TrimSpace(resp.Content), nil
}

// Ping checks the provider when it supports it, such as a model server.
// Providers without Ping are assumed reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	if p, ok := g.provider.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// BreakerState reports the circuit breaker guarding the provider.
func (g *Gateway) BreakerState() resilience.CircuitBreakerState {
	return g.breaker.State()
}
