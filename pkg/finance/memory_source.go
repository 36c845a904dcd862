// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package finance

import (
	"context"
	"sync"
	"time"
)

// MemorySource serves transactions from memory.
type MemorySource struct {
	mu  sync.RWMutex
	txs []Transaction
}

// NewMemorySource creates a source seeded with txs.
func NewMemorySource(txs ...Transaction) *MemorySource {
	return &MemorySource{txs: append([]Transaction(nil), txs...)}
}

// Add appends transactions.
func (m *MemorySource) Add(txs ...Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, txs...)
}

// Fetch implements Source.
func (m *MemorySource) Fetch(ctx context.Context, userID string, start, end time.Time) ([]Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Transaction{}
	for _, tx := range m.txs {
		if tx.UserID != userID {
			continue
		}
		if tx.Timestamp.Before(start) || tx.Timestamp.After(end) {
			continue
		}
		out = append(out, tx)
	}
	SortByTime(out)
	return out, nil
}
