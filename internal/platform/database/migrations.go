package database

import (
	"database/sql"
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "revocations: lifecycle state per memory entry",
		SQL: `
CREATE TABLE revocations (
    entry_id             TEXT PRIMARY KEY,
    layer                TEXT NOT NULL CHECK (layer IN ('working', 'episodic', 'semantic', 'protected')),
    state                TEXT NOT NULL CHECK (state IN ('active', 'soft_deleted', 'purged')),
    relational           INTEGER NOT NULL DEFAULT 0,
    soft_delete_deadline INTEGER,
    revoked_at           INTEGER,
    reason               TEXT,
    created_at           INTEGER NOT NULL
);

CREATE INDEX idx_revocations_layer ON revocations(layer);
CREATE INDEX idx_revocations_state ON revocations(state);
`,
	},
	{
		Version:     2,
		Description: "audit_entries: append-only consent audit trail",
		SQL: `
CREATE TABLE audit_entries (
    id         TEXT PRIMARY KEY,
    ts         INTEGER NOT NULL,
    session_id TEXT NOT NULL,
    action     TEXT NOT NULL,
    level      TEXT NOT NULL,
    layer      TEXT NOT NULL,
    scope      TEXT,
    preview    TEXT,
    reason     TEXT,
    client     TEXT
);

CREATE INDEX idx_audit_session ON audit_entries(session_id, id);
`,
	},
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
