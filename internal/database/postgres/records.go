package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// RecordRepository provides PostgreSQL-backed attendance record storage
type RecordRepository struct {
	pool *Pool
}

// NewRecordRepository creates a new PostgreSQL record repository
func NewRecordRepository(pool *Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

// ListBySession returns the records of a session ordered by registration number
func (r *RecordRepository) ListBySession(ctx context.Context, sessionID int64) ([]database.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id, reg_no, status, updated_at
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY reg_no
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []database.Record
	for rows.Next() {
		var rec database.Record
		if err := rows.Scan(&rec.SessionID, &rec.RegNo, &rec.Status, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Upsert inserts or updates one record per student of the session in a single statement.
func (r *RecordRepository) Upsert(ctx context.Context, sessionID int64, records []database.Record) error {
	if len(records) == 0 {
		return nil
	}

	regNos := make([]string, len(records))
	statuses := make([]string, len(records))
	for i, rec := range records {
		regNos[i] = rec.RegNo
		statuses[i] = rec.Status
	}

	query := `
		INSERT INTO attendance_records (session_id, reg_no, status, updated_at)
		SELECT $1, u.reg_no, u.status, NOW()
		FROM UNNEST($2::text[], $3::text[]) AS u(reg_no, status)
		ON CONFLICT (session_id, reg_no) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.pool.Exec(ctx, query, sessionID, pq.Array(regNos), pq.Array(statuses)); err != nil {
		return fmt.Errorf("upsert records: %w", err)
	}
	return nil
}
