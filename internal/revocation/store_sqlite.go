package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dErrors "custodia/pkg/domain-errors"
)

// SQLiteStore persists ledger records durably. Apply runs inside a single
// transaction so a batch of state transitions commits or rolls back as one.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Register(ctx context.Context, record *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revocations (entry_id, layer, state, relational, soft_delete_deadline, revoked_at, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.EntryID,
		string(record.Layer),
		string(record.State),
		boolToInt(record.Relational),
		timePtrToMilli(record.SoftDeleteDeadline),
		timePtrToMilli(record.RevokedAt),
		record.Reason,
		record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		// The entry_id primary key makes double registration a conflict.
		return dErrors.Wrap(dErrors.CodeConflict, "register ledger record", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, entryID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entry_id, layer, state, relational, soft_delete_deadline, revoked_at, reason, created_at
		FROM revocations WHERE entry_id = ?`, entryID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return record, err
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*Record, error) {
	query := `SELECT entry_id, layer, state, relational, soft_delete_deadline, revoked_at, reason, created_at
		FROM revocations WHERE 1=1`
	var args []any
	if filter.Layer != nil {
		query += ` AND layer = ?`
		args = append(args, string(*filter.Layer))
	}
	if filter.State != nil {
		query += ` AND state = ?`
		args = append(args, string(*filter.State))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountByState(ctx context.Context, state State) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revocations WHERE state = ?`, string(state)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ledger records: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Apply(ctx context.Context, records []*Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply: %w", err)
	}
	for _, record := range records {
		res, err := tx.ExecContext(ctx, `
			UPDATE revocations
			SET state = ?, soft_delete_deadline = ?, revoked_at = ?, reason = ?
			WHERE entry_id = ?`,
			string(record.State),
			timePtrToMilli(record.SoftDeleteDeadline),
			timePtrToMilli(record.RevokedAt),
			record.Reason,
			record.EntryID,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("apply %s: %w", record.EntryID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			tx.Rollback()
			return err
		}
		if affected == 0 {
			tx.Rollback()
			return ErrNotFound
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record     Record
		relational int
		deadline   sql.NullInt64
		revokedAt  sql.NullInt64
		createdAt  int64
	)
	err := row.Scan(
		&record.EntryID,
		(*string)(&record.Layer),
		(*string)(&record.State),
		&relational,
		&deadline,
		&revokedAt,
		&record.Reason,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	record.Relational = relational != 0
	record.SoftDeleteDeadline = milliToTimePtr(deadline)
	record.RevokedAt = milliToTimePtr(revokedAt)
	record.CreatedAt = time.UnixMilli(createdAt)
	return &record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timePtrToMilli(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func milliToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
