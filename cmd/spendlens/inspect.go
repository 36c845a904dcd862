// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/spendlens/pkg/core"
	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/memory"
)

func newToolsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the capabilities plans can use",
		Args:  cobra.NoArgs,
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

			catalog := a.runtime.Registry().DescribeAll()
			if flags.JSON {
				return writeJSON(cmd.OutOrStdout(), catalog)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			writeRow(tw, "NAME", "PARAMETERS", "DESCRIPTION")
			for _, entry := range catalog {
				writeRow(tw, entry.Name, strings.Join(entry.Parameters, ","), entry.Description)
			}
			return tw.Flush()
		},
	}
}

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the model gateway, stores and registry",
		Long: `Check every component the runtime depends on. The command fails when any
component is unhealthy; a missing model only degrades the result.`,
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

			results, overall := a.runtime.Health(cmd.Context())
			if flags.JSON {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{"status": overall, "components": results}); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				writeRow(tw, "COMPONENT", "STATUS", "MESSAGE")
				for _, r := range results {
					writeRow(tw, r.Component, string(r.Status), r.Message)
				}
				writeRow(tw, "overall", string(overall), "")
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if overall == core.HealthUnhealthy {
				return NewCLIError(errors.New(errors.CodeUnavailable, "runtime is unhealthy", nil), "see the component messages above")
			}
			return nil
		},
	}
}

func newMemoryCmd(flags *globalFlags) *cobra.Command {
	var last int
	var action string
	var path string
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Show the persisted action log",
		Long: `Show entries of the action log mirrored to storage.memory_log_path (or
--file), oldest first.

Examples:
  spendlens memory --last 20
  spendlens memory --action plan.fallback`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				cfg, err := flags.loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Storage.MemoryLogPath
			}
			if path == "" {
				return NewInvalidArgumentError("--file", "no file given and storage.memory_log_path is not set")
			}
			entries, err := memory.LoadFile(path)
			if stderrors.Is(err, memory.ErrNotFound) {
				return NewNotFoundError("memory log", path)
			}
			if err != nil {
				return errors.New(errors.CodeInternal, "read memory log", err).WithContext("path", path)
			}

			if action != "" {
				filtered := entries[:0]
				for _, e := range entries {
					if e.Action == action {
						filtered = append(filtered, e)
					}
				}
				entries = filtered
			}
			if last > 0 && len(entries) > last {
				entries = entries[len(entries)-last:]
			}

			if flags.JSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			writeRow(tw, "TIME", "ACTION", "PAYLOAD")
			for _, e := range entries {
				payload, _ := json.Marshal(e.Payload)
				writeRow(tw, e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, truncate(string(payload), 96))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&last, "last", 0, "show only the last N entries")
	cmd.Flags().StringVar(&action, "action", "", "show only entries with this action")
	cmd.Flags().StringVar(&path, "file", "", "memory log file (default: storage.memory_log_path)")
	return cmd
}
