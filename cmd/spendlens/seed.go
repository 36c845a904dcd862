// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/finance"
)

func newSeedCmd(flags *globalFlags) *cobra.Command {
	var period periodFlags
	var count int
	var seed int64
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert generated sample transactions",
		Long: `Insert deterministic sample expenses, plus one salary record, for a user
into the transaction store at storage.sqlite_path.

Examples:
  spendlens seed --user u1 --start 2024-01-01 --end 2024-01-31 --count 60`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(period.User) == "" {
				return NewInvalidArgumentError("--user", "is required")
			}
			if count < 1 {
				return NewInvalidArgumentError("--count", "must be at least 1")
			}
			start, end, err := period.parse(time.Now())
			if err != nil {
				return err
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			txs := finance.SampleTransactions(period.User, start, end, count, seed)
			if err := a.source.Insert(cmd.Context(), txs...); err != nil {
				return errors.New(errors.CodeInternal, "insert sample transactions", err)
			}
			if flags.JSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"user_id":  period.User,
					"inserted": len(txs),
					"database": cfg.Storage.SQLitePath,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d transactions for %s into %s\n", len(txs), period.User, cfg.Storage.SQLitePath)
			return nil
		},
	}
	period.register(cmd)
	cmd.Flags().IntVar(&count, "count", 40, "number of expense records")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	return cmd
}
