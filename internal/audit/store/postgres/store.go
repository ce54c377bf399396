// Package postgres persists audit records to an append-only table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"payhook/internal/audit"
)

// Schema is the DDL for the audit table. Applied by EnsureSchema at
// startup; safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id         UUID PRIMARY KEY,
	event_id   TEXT        NOT NULL,
	rule_name  TEXT        NOT NULL,
	matched    BOOLEAN     NOT NULL,
	outcome    TEXT        NOT NULL,
	reason     TEXT        NOT NULL DEFAULT '',
	request_id TEXT        NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_records_event_id_idx ON audit_records (event_id);
`

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the audit table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Append inserts one record. Inserts are idempotent on record ID so a
// replayed append never duplicates a row.
func (s *Store) Append(ctx context.Context, record audit.Record) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	query := `
		INSERT INTO audit_records (id, event_id, rule_name, matched, outcome, reason, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.EventID,
		record.RuleName,
		record.Matched,
		record.Outcome,
		record.Reason,
		record.RequestID,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListByEvent returns all records for an event, oldest first.
func (s *Store) ListByEvent(ctx context.Context, eventID string) ([]audit.Record, error) {
	query := `
		SELECT id, event_id, rule_name, matched, outcome, reason, request_id, created_at
		FROM audit_records
		WHERE event_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListRecent returns the N most recent records.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	query := `
		SELECT id, event_id, rule_name, matched, outcome, reason, request_id, created_at
		FROM audit_records
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	var records []audit.Record
	for rows.Next() {
		var r audit.Record
		if err := rows.Scan(&r.ID, &r.EventID, &r.RuleName, &r.Matched, &r.Outcome, &r.Reason, &r.RequestID, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
