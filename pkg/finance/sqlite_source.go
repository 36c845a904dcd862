// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package finance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSource reads transactions from a single SQLite table. Timestamps are
// stored as unix nanoseconds so range filters compare numerically.
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource wraps db and ensures the schema exists.
func NewSQLiteSource(db *sql.DB) (*SQLiteSource, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureTransactionSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteSource{db: db}, nil
}

// Insert stores txs in one transaction. Records whose id already exists are
// replaced, so seeding the same user twice is idempotent.
func (s *SQLiteSource) Insert(ctx context.Context, txs ...Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (
			id, user_id, amount, category, occurred_at, counterparty, kind, description, payment_method
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			amount = excluded.amount,
			category = excluded.category,
			occurred_at = excluded.occurred_at,
			counterparty = excluded.counterparty,
			kind = excluded.kind,
			description = excluded.description,
			payment_method = excluded.payment_method
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range txs {
		if _, err := stmt.ExecContext(ctx,
			t.ID, t.UserID, t.Amount, t.Category, t.Timestamp.UnixNano(),
			t.Counterparty, string(t.Kind), t.Description, t.PaymentMethod,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Fetch implements Source.
func (s *SQLiteSource) Fetch(ctx context.Context, userID string, start, end time.Time) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, category, occurred_at, counterparty, kind, description, payment_method
		FROM transactions
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at ASC, id ASC
	`, userID, start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		var (
			t        Transaction
			kind     string
			occurred int64
		)
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Amount, &t.Category, &occurred,
			&t.Counterparty, &kind, &t.Description, &t.PaymentMethod,
		); err != nil {
			return nil, err
		}
		t.Kind = Kind(kind)
		t.Timestamp = time.Unix(0, occurred).UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks the database connection.
func (s *SQLiteSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func ensureTransactionSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount REAL NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			occurred_at INTEGER NOT NULL,
			counterparty TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'expense',
			description TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, occurred_at);
	`)
	return err
}
