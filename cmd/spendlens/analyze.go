// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/planner"
)

type periodFlags struct {
	User  string
	Start string
	End   string
}

func (p *periodFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.User, "user", "", "user id")
	cmd.Flags().StringVar(&p.Start, "start", "", "first day, YYYY-MM-DD (default: 30 days before --end)")
	cmd.Flags().StringVar(&p.End, "end", "", "last day, YYYY-MM-DD (default: today)")
}

// parse returns the period, defaulting to the 30 days ending today.
func (p *periodFlags) parse(now time.Time) (start, end time.Time, err error) {
	end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if p.End != "" {
		if end, err = time.Parse(time.DateOnly, p.End); err != nil {
			return start, end, NewInvalidArgumentError("--end", err.Error())
		}
	}
	start = end.AddDate(0, 0, -30)
	if p.Start != "" {
		if start, err = time.Parse(time.DateOnly, p.Start); err != nil {
			return start, end, NewInvalidArgumentError("--start", err.Error())
		}
	}
	if end.Before(start) {
		return start, end, NewInvalidArgumentError("--end", "must not be before --start")
	}
	return start, end, nil
}

func newAnalyzeCmd(flags *globalFlags) *cobra.Command {
	var period periodFlags
	var goal string
	var progress bool
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Plan and run an analysis for a user and period",
		Long: `Plan an analysis for --goal with the configured model, run it against the
stored transactions and print the task ledger and artifact paths.

Examples:
  spendlens analyze --user u1 --goal "analyze spending by category"
  spendlens analyze --user u1 --start 2024-01-01 --end 2024-01-31 --goal "monthly trend" --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(period.User) == "" {
				return NewInvalidArgumentError("--user", "is required")
			}
			if strings.TrimSpace(goal) == "" {
				return NewInvalidArgumentError("--goal", "is required")
			}
			start, end, err := period.parse(time.Now())
			if err != nil {
				return err
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg, cmd.ErrOrStderr(), progressOption(progress, cmd.ErrOrStderr())...)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			ledger, err := a.runtime.RunCustomAnalysis(cmd.Context(), period.User, start, end, goal)
			if ledger == nil {
				return wrapRunError(err)
			}
			if perr := printLedger(cmd.OutOrStdout(), ledger, flags.JSON); perr != nil {
				return perr
			}
			return wrapRunError(err)
		},
	}
	period.register(cmd)
	cmd.Flags().StringVar(&goal, "goal", "", "free-text analysis goal")
	cmd.Flags().BoolVar(&progress, "progress", false, "print task progress to stderr")
	return cmd
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var planPath string
	var progress bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a stored plan file",
		Long: `Run a plan stored as YAML or JSON. Parameters may reference the output of
an earlier task with {"$ref": "<task id>", "default": <value>}.

Examples:
  spendlens run --plan plans/category.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if planPath == "" {
				return NewInvalidArgumentError("--plan", "is required")
			}
			plan, err := planner.LoadPlan(planPath)
			if err != nil {
				return planLoadError(err, planPath)
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg, cmd.ErrOrStderr(), progressOption(progress, cmd.ErrOrStderr())...)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			ledger, err := a.runtime.RunPlan(cmd.Context(), plan)
			if ledger == nil {
				return wrapRunError(err)
			}
			if perr := printLedger(cmd.OutOrStdout(), ledger, flags.JSON); perr != nil {
				return perr
			}
			return wrapRunError(err)
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "plan file (.yaml, .yml or .json)")
	cmd.Flags().BoolVar(&progress, "progress", false, "print task progress to stderr")
	return cmd
}

func progressOption(enabled bool, w io.Writer) []appOption {
	if !enabled {
		return nil
	}
	return []appOption{withProgress(w)}
}

func printLedger(w io.Writer, ledger *planner.Ledger, asJSON bool) error {
	if asJSON {
		return writeJSON(w, ledger)
	}
	plan := ledger.Plan()
	fmt.Fprintf(w, "Run %s, plan %q", ledger.RunID(), plan.ID)
	if plan.Fallback {
		fmt.Fprint(w, " (fallback)")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	writeRow(tw, "ID", "TOOL", "STATUS", "DETAIL")
	for _, r := range ledger.Results() {
		detail := r.Error
		if detail == "" {
			detail = summarizeValue(r.Value)
		}
		tool := r.Tool
		if tool == "" {
			tool = "-"
		}
		writeRow(tw, r.TaskID, tool, string(r.Status), detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	artifacts := ledger.Artifacts()
	if len(artifacts) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nArtifacts:")
	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %s\n", name, artifacts[name])
	}
	return nil
}

func summarizeValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		line, _, _ := strings.Cut(strings.TrimSpace(t), "\n")
		return truncate(line, 72)
	case map[string]string:
		return fmt.Sprintf("%d entries", len(t))
	case map[string]any:
		return fmt.Sprintf("%d entries", len(t))
	}
	if n, ok := lenOf(v); ok {
		return fmt.Sprintf("%d records", n)
	}
	return truncate(fmt.Sprint(v), 72)
}

func lenOf(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len(), true
	}
	return 0, false
}

func planLoadError(err error, path string) error {
	if stderrors.Is(err, fs.ErrNotExist) {
		return NewNotFoundError("plan file", path)
	}
	return NewCLIError(
		errors.New(errors.CodePlanParse, "load plan", err).WithContext("path", path),
		"plans are YAML or JSON with an id and a list of tasks",
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
