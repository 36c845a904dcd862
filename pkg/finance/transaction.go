// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package finance models transaction records and the sources that retrieve
// them for a user and time window.
package finance

import (
	"context"
	"sort"
	"time"
)

// Kind distinguishes money in from money out.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Transaction is one ledger record.
type Transaction struct {
	ID            string    `json:"id" yaml:"id"`
	UserID        string    `json:"user_id" yaml:"user_id"`
	Amount        float64   `json:"amount" yaml:"amount"`
	Category      string    `json:"category" yaml:"category"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
	Counterparty  string    `json:"counterparty,omitempty" yaml:"counterparty,omitempty"`
	Kind          Kind      `json:"kind" yaml:"kind"`
	Description   string    `json:"description,omitempty" yaml:"description,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty" yaml:"payment_method,omitempty"`
}

// Source retrieves transactions for a user within [start, end], ordered by
// timestamp ascending.
type Source interface {
	Fetch(ctx context.Context, userID string, start, end time.Time) ([]Transaction, error)
}

// SortByTime orders txs by timestamp, then id.
func SortByTime(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].ID < txs[j].ID
		}
		return txs[i].Timestamp.Before(txs[j].Timestamp)
	})
}

// CategoryTotal is an aggregated amount for one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Count    int     `json:"count"`
}

// Summary aggregates a set of transactions.
type Summary struct {
	Count      int             `json:"count"`
	Expense    float64         `json:"expense"`
	Income     float64         `json:"income"`
	Categories []CategoryTotal `json:"categories"`
	Largest    *Transaction    `json:"largest,omitempty"`
}

// Summarize totals txs by kind and category. Categories are ordered by amount
// descending, then name.
func Summarize(txs []Transaction) Summary {
	s := Summary{Count: len(txs)}
	byCategory := map[string]*CategoryTotal{}
	for i := range txs {
		tx := txs[i]
		if tx.Kind == KindIncome {
			s.Income += tx.Amount
			continue
		}
		s.Expense += tx.Amount
		ct, ok := byCategory[tx.Category]
		if !ok {
			ct = &CategoryTotal{Category: tx.Category}
			byCategory[tx.Category] = ct
		}
		ct.Amount += tx.Amount
		ct.Count++
		if s.Largest == nil || tx.Amount > s.Largest.Amount {
			s.Largest = &txs[i]
		}
	}
	for _, ct := range byCategory {
		s.Categories = append(s.Categories, *ct)
	}
	sort.Slice(s.Categories, func(i, j int) bool {
		if s.Categories[i].Amount == s.Categories[j].Amount {
			return s.Categories[i].Category < s.Categories[j].Category
		}
		return s.Categories[i].Amount > s.Categories[j].Amount
	})
	return s
}
