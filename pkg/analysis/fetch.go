// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/finance"
	"github.com/jllopis/spendlens/pkg/tools"
)

func fetchTransactions(d Deps) tools.Capability {
	return tools.Async(
		spec(FetchTransactions, "Fetch a user's transactions between start_date and end_date (YYYY-MM-DD), ordered by time."),
		func(ctx context.Context, p tools.Params) <-chan tools.Result {
			return tools.Go(func() (any, error) {
				return fetch(ctx, d.Source, p)
			})
		},
	)
}

func fetch(ctx context.Context, source finance.Source, p tools.Params) ([]finance.Transaction, error) {
	if source == nil {
		return nil, errors.New(errors.CodeInternal, "no transaction source configured", nil)
	}
	userID := strings.TrimSpace(p.String("user_id", ""))
	if userID == "" {
		return nil, errors.New(errors.CodeInvalidInput, "user_id is required", nil)
	}
	start, err := p.Time("start_date")
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid start_date", err)
	}
	end, err := p.Time("end_date")
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid end_date", err)
	}
	end = endOfDay(end)
	if end.Before(start) {
		return nil, errors.New(errors.CodeInvalidInput, "end_date is before start_date", nil).
			WithContext("start_date", start.Format(time.RFC3339)).
			WithContext("end_date", end.Format(time.RFC3339))
	}

	txs, err := source.Fetch(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []finance.Transaction{}
	}
	return txs, nil
}

// endOfDay widens a bound at midnight to cover the whole day, so a date-only
// end is inclusive.
func endOfDay(t time.Time) time.Time {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Add(24*time.Hour - time.Nanosecond)
	}
	return t
}
