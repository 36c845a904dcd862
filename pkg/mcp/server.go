// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes registered capabilities, and optionally whole analysis
// runs, as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/planner"
	"github.com/jllopis/spendlens/pkg/tools"
)

// RunAnalysisTool is the tool name under which a Runner is exposed.
const RunAnalysisTool = "run_custom_analysis"

// Runner executes a complete analysis. orchestrator.Runtime implements it.
type Runner interface {
	RunCustomAnalysis(ctx context.Context, userID string, start, end time.Time, goal string) (*planner.Ledger, error)
}

// Server wraps the mcp-go server.
type Server struct {
	mcpServer *server.MCPServer
	registry  *tools.Registry
	runner    Runner
}

// Option configures a Server.
type Option func(*Server)

// WithRunner also exposes runner as the run_custom_analysis tool.
func WithRunner(r Runner) Option {
	return func(s *Server) { s.runner = r }
}

// NewServer creates a server publishing every capability of registry.
func NewServer(name, version string, registry *tools.Registry, opts ...Option) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		registry:  registry,
	}
	for _, opt := range opts {
		opt(s)
	}
	if registry != nil {
		for _, entry := range registry.DescribeAll() {
			s.addCapability(entry)
		}
	}
	if s.runner != nil {
		s.addRunner()
	}
	return s
}

func (s *Server) addCapability(entry tools.CatalogEntry) {
	opts := []mcp.ToolOption{mcp.WithDescription(entry.Description)}
	for _, p := range entry.Parameters {
		opts = append(opts, parameterOption(p))
	}
	name := entry.Name
	s.mcpServer.AddTool(mcp.NewTool(name, opts...), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		c, err := s.registry.Resolve(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		value, err := tools.Invoke(ctx, c, tools.Params(args))
		if err != nil {
			slog.WarnContext(ctx, "mcp.tool.failed", slog.String("tool", name), slog.String("error", err.Error()))
			return mcp.NewToolResultError(err.Error()), nil
		}
		return textResult(value)
	})
}

// parameterOption declares the JSON type the analysis capabilities expect.
func parameterOption(name string) mcp.ToolOption {
	switch name {
	case "transactions":
		return mcp.WithArray(name, mcp.Description("Transaction records, usually the output of fetch_transactions"))
	case "filters":
		return mcp.WithObject(name, mcp.Description("categories, min_amount, max_amount, keywords, kind"))
	case "start_date", "end_date":
		return mcp.WithString(name, mcp.Description("Date as YYYY-MM-DD"))
	default:
		return mcp.WithString(name)
	}
}

func (s *Server) addRunner() {
	tool := mcp.NewTool(RunAnalysisTool,
		mcp.WithDescription("Plan and execute a spending analysis for a user and period, returning the run ledger."),
		mcp.WithString("user_id", mcp.Required()),
		mcp.WithString("start_date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
		mcp.WithString("end_date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
		mcp.WithString("goal", mcp.Required(), mcp.Description("Free-text analysis goal")),
	)
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		p := tools.Params(args)
		start, err := p.Time("start_date")
		if err != nil {
			return mcp.NewToolResultError("invalid start_date: " + err.Error()), nil
		}
		end, err := p.Time("end_date")
		if err != nil {
			return mcp.NewToolResultError("invalid end_date: " + err.Error()), nil
		}
		ledger, err := s.runner.RunCustomAnalysis(ctx, p.String("user_id", ""), start, end, p.String("goal", ""))
		if err != nil && ledger == nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err != nil {
			slog.WarnContext(ctx, "mcp.run.incomplete", slog.String("error", err.Error()))
		}
		return textResult(ledger)
	})
}

func textResult(value any) (*mcp.CallToolResult, error) {
	if text, ok := value.(string); ok {
		return mcp.NewToolResultText(text), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "encode tool result", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio serves on stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeStreamableHTTP serves the streamable HTTP transport on addr.
func (s *Server) ServeStreamableHTTP(addr string) error {
	return server.NewStreamableHTTPServer(s.mcpServer).Start(addr)
}
