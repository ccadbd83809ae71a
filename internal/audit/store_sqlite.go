package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"custodia/internal/consent/models"
)

// SQLiteStore persists audit entries durably. Rows are never updated or
// deleted; the table is append-only by construction.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Append(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, ts, session_id, action, level, layer, scope, preview, reason, client)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UnixMilli(),
		entry.SessionID,
		string(entry.Action),
		entry.Level.String(),
		string(entry.Layer),
		string(entry.Scope),
		entry.Preview,
		entry.Reason,
		entry.Client,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, session_id, action, level, layer, scope, preview, reason, client
		FROM audit_entries WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, session_id, action, level, layer, scope, preview, reason, client
		FROM audit_entries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			ts        int64
			levelName string
		)
		if err := rows.Scan(
			&entry.ID, &ts, &entry.SessionID,
			(*string)(&entry.Action), &levelName, (*string)(&entry.Layer),
			(*string)(&entry.Scope), &entry.Preview, &entry.Reason, &entry.Client,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Timestamp = time.UnixMilli(ts)
		if level, ok := models.ParseLevel(levelName); ok {
			entry.Level = level
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
