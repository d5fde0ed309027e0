package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// SessionRepository provides PostgreSQL-backed attendance session storage
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, class_id, subject_code, teacher_id, date, period, proof_path, created_at`

func scanSession(row interface{ Scan(...any) error }) (*database.Session, error) {
	var s database.Session
	var proofPath sql.NullString
	if err := row.Scan(&s.ID, &s.ClassID, &s.SubjectCode, &s.TeacherID, &s.Date, &s.Period, &proofPath, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.ProofPath = proofPath.String
	return &s, nil
}

// Get retrieves a session by ID, returns nil if not found
func (r *SessionRepository) Get(ctx context.Context, id int64) (*database.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM attendance_sessions WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// FindBySlot retrieves the session of a (class, date, period) slot, returns nil if none
func (r *SessionRepository) FindBySlot(ctx context.Context, classID string, date time.Time, period int) (*database.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM attendance_sessions WHERE class_id = $1 AND date = $2 AND period = $3",
		classID, date.Format(time.DateOnly), period))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session by slot: %w", err)
	}
	return s, nil
}

// Create inserts a new session and fills in its ID and CreatedAt
func (r *SessionRepository) Create(ctx context.Context, s *database.Session) error {
	query := `
		INSERT INTO attendance_sessions (class_id, subject_code, teacher_id, date, period)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		s.ClassID, s.SubjectCode, s.TeacherID, s.Date.Format(time.DateOnly), s.Period,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// SetProofPath stores the location of the annotated proof image
func (r *SessionRepository) SetProofPath(ctx context.Context, id int64, path string) error {
	_, err := r.pool.Exec(ctx, "UPDATE attendance_sessions SET proof_path = $2 WHERE id = $1", id, path)
	if err != nil {
		return fmt.Errorf("set proof path: %w", err)
	}
	return nil
}

// ListInRange returns the sessions of a class between two dates (inclusive) in the
// given periods, ordered by date and period
func (r *SessionRepository) ListInRange(ctx context.Context, classID string, from, to time.Time, periods []int) ([]database.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE class_id = $1 AND date BETWEEN $2 AND $3 AND period = ANY($4)
		ORDER BY date, period
	`, classID, from.Format(time.DateOnly), to.Format(time.DateOnly), pq.Array(toInt64s(periods)))
	if err != nil {
		return nil, fmt.Errorf("query sessions in range: %w", err)
	}
	defer rows.Close()

	var sessions []database.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func toInt64s(v []int) []int64 {
	out := make([]int64, len(v))
	for i, n := range v {
		out[i] = int64(n)
	}
	return out
}
