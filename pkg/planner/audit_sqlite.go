// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS task_audit (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	plan_id     TEXT NOT NULL,
	task_id     TEXT NOT NULL,
	tool        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	output      TEXT,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL DEFAULT '',
	finished_at TEXT NOT NULL DEFAULT '',
	elapsed_ms  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS task_audit_run ON task_audit(run_id, seq);
CREATE INDEX IF NOT EXISTS task_audit_status ON task_audit(status);
`

// SQLiteAuditStore keeps audit events in the same SQLite database as the
// transactions, one row per event in insertion order.
type SQLiteAuditStore struct {
	db *sql.DB
}

// NewSQLiteAuditStore creates the audit table on db if needed.
func NewSQLiteAuditStore(db *sql.DB) (*SQLiteAuditStore, error) {
	if db == nil {
		return nil, errors.New("audit store: nil database")
	}
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, err
	}
	return &SQLiteAuditStore{db: db}, nil
}

func (s *SQLiteAuditStore) Record(ctx context.Context, ev AuditEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_audit (run_id, plan_id, task_id, tool, status, output, error, started_at, finished_at, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.PlanID, ev.TaskID, ev.Tool, ev.Status,
		encodeAuditOutput(ev.Output), ev.Error,
		formatAuditTime(ev.StartedAt), formatAuditTime(ev.FinishedAt),
		ev.Elapsed().Milliseconds(),
	)
	return err
}

// List returns matching events oldest first.
func (s *SQLiteAuditStore) List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	var (
		q    strings.Builder
		args []any
	)
	q.WriteString(`SELECT run_id, plan_id, task_id, tool, status, output, error, started_at, finished_at FROM task_audit`)
	sep := " WHERE "
	for _, kv := range filter.fields() {
		if kv[1] == "" {
			continue
		}
		q.WriteString(sep + kv[0] + " = ?")
		args = append(args, kv[1])
		sep = " AND "
	}
	q.WriteString(" ORDER BY seq")
	if filter.Limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var (
			ev                AuditEvent
			output            sql.NullString
			started, finished string
		)
		if err := rows.Scan(&ev.RunID, &ev.PlanID, &ev.TaskID, &ev.Tool, &ev.Status,
			&output, &ev.Error, &started, &finished); err != nil {
			return nil, err
		}
		if output.Valid && output.String != "" {
			var v any
			if json.Unmarshal([]byte(output.String), &v) == nil {
				ev.Output = v
			}
		}
		ev.StartedAt = parseAuditTime(started)
		ev.FinishedAt = parseAuditTime(finished)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func formatAuditTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseAuditTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
