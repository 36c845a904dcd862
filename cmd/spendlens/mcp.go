// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jllopis/spendlens/pkg/config"
	spmcp "github.com/jllopis/spendlens/pkg/mcp"
	"github.com/jllopis/spendlens/pkg/telemetry"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the analysis tools over MCP",
		Long: `Expose every registered capability, plus run_custom_analysis, as MCP tools.
The server speaks stdio by default; --http serves streamable HTTP instead.

When --config is given the file is watched and log.level changes apply
without a restart.

Examples:
  spendlens mcp --config spendlens.yaml
  spendlens mcp --http :8089`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if flags.ConfigPath != "" {
				watcher, err := config.NewWatcher(flags.ConfigPath, flags.Profile, config.WithWatchOverrides(flags.Sets...))
				if err != nil {
					return NewConfigError(err, flags.ConfigPath)
				}
				watcher.OnChange(func(c *config.Config) {
					telemetry.SetLogLevel(c.Log.Level)
					slog.Info("config.reloaded", slog.String("log_level", c.Log.Level))
				})
				watcher.Start(cmd.Context())
				defer watcher.Stop()
			}

			srv := spmcp.NewServer("spendlens", version, a.runtime.Registry(), spmcp.WithRunner(a.runtime))
			if httpAddr != "" {
				slog.Info("mcp.serve", slog.String("transport", "http"), slog.String("addr", httpAddr))
				return srv.ServeStreamableHTTP(httpAddr)
			}
			slog.Info("mcp.serve", slog.String("transport", "stdio"))
			return srv.ServeStdio()
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	return cmd
}
