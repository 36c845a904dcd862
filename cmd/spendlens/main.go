// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the spendlens CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jllopis/spendlens/pkg/config"
	"github.com/jllopis/spendlens/pkg/sandbox"
)

var version = "dev"

type globalFlags struct {
	ConfigPath string
	Profile    string
	Sets       []string
	JSON       bool
}

// configArgs renders the flags in the form config.LoadWithCLI parses.
func (g *globalFlags) configArgs() []string {
	var args []string
	if g.ConfigPath != "" {
		args = append(args, "--config", g.ConfigPath)
	}
	if g.Profile != "" {
		args = append(args, "--profile", g.Profile)
	}
	for _, s := range g.Sets {
		args = append(args, "--set", s)
	}
	return args
}

func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithCLI(g.configArgs())
	if err != nil {
		return nil, NewConfigError(err, g.ConfigPath)
	}
	return cfg, nil
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, flags := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		reportError(os.Stderr, err, flags.JSON)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *globalFlags) {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "spendlens",
		Short: "Plan and run spending analyses over transaction data",
		Long: `spendlens turns a free-text spending analysis goal into a plan of tool
calls, runs it against stored transactions and writes charts and a report.

Without a reachable model every run uses the built-in four step plan and
chart templates, so analyses always complete.

Examples:
  # Load sample data, then analyze it
  spendlens seed --user u1 --start 2024-01-01 --end 2024-01-31
  spendlens analyze --user u1 --start 2024-01-01 --end 2024-01-31 --goal "spending by category"

  # Serve the tools to an MCP client over stdio
  spendlens mcp --config spendlens.yaml`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "YAML config file")
	pf.StringVar(&flags.Profile, "profile", "", "profile overlay, config.<profile>.yaml next to --config")
	pf.StringArrayVar(&flags.Sets, "set", nil, "override a config key, key=value (repeatable)")
	pf.BoolVar(&flags.JSON, "json", false, "print JSON output")

	root.AddCommand(
		newAnalyzeCmd(flags),
		newRunCmd(flags),
		newSeedCmd(flags),
		newToolsCmd(flags),
		newHealthCmd(flags),
		newMemoryCmd(flags),
		newMCPCmd(flags),
		newVersionCmd(flags),
		newSandboxWorkerCmd(),
	)
	return root, flags
}

// newSandboxWorkerCmd is the child side of the chart sandbox. It reads one
// request on stdin and loads no config.
func newSandboxWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    sandbox.WorkerCommand,
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sandbox.ServeWorker(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newVersionCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the spendlens version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.JSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "spendlens %s\n", version)
			return nil
		},
	}
}

func writeRow(w io.Writer, cols ...string) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}
