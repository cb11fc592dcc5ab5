// Package audit implements the durable, append-only audit trail with a
// structured primary store and a flat-file fallback.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dpm/internal/domain"
)

// SQLStore persists audit records in the audit_log table, one atomic
// insert per record. There is no cross-record transaction.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a SQLStore over an already-migrated database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Insert appends one audit record.
func (s *SQLStore) Insert(ctx context.Context, rec domain.AuditRecord) error {
	const q = `INSERT INTO audit_log (
		run_id, ts, admin, file_path, row_id, action, principal_type,
		principal_identifier, status, details, request_payload,
		response_code, response_body
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		rec.RunID, rec.TS.UTC(), rec.Admin, rec.FilePath, rec.RowID,
		rec.Action, rec.PrincipalType, rec.PrincipalIdentifier, rec.Status,
		rec.Details, rec.RequestPayload, rec.ResponseCode, rec.ResponseBody,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Read returns up to limit records newest-first, filtered by exact-match
// equality on the filterable columns.
func (s *SQLStore) Read(ctx context.Context, limit int, f domain.AuditFilter) ([]domain.AuditRecord, error) {
	var (
		conds []string
		args  []interface{}
	)
	addCond := func(col string, v *string) {
		if v != nil {
			conds = append(conds, col+" = ?")
			args = append(args, *v)
		}
	}
	addCond("run_id", f.RunID)
	addCond("action", f.Action)
	addCond("status", f.Status)
	addCond("principal_type", f.PrincipalType)
	addCond("admin", f.Admin)

	q := `SELECT run_id, ts, admin, file_path, row_id, action,
		principal_type, principal_identifier, status, details,
		request_payload, response_code, response_body FROM audit_log`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("read audit records: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		if err := rows.Scan(
			&rec.RunID, &rec.TS, &rec.Admin, &rec.FilePath, &rec.RowID,
			&rec.Action, &rec.PrincipalType, &rec.PrincipalIdentifier,
			&rec.Status, &rec.Details, &rec.RequestPayload,
			&rec.ResponseCode, &rec.ResponseBody,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes records older than the given number of days and
// returns the number of rows removed.
func (s *SQLStore) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit records: %w", err)
	}
	return res.RowsAffected()
}
