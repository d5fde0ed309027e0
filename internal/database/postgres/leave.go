package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// LeaveRepository provides PostgreSQL-backed storage of leave requests and approvals
type LeaveRepository struct {
	pool *Pool
}

// NewLeaveRepository creates a new PostgreSQL leave repository
func NewLeaveRepository(pool *Pool) *LeaveRepository {
	return &LeaveRepository{pool: pool}
}

const approvalSelect = `
	SELECT a.id, a.request_id, a.session_id, a.teacher_id, a.status, a.decided_at,
	       r.reg_no, r.leave_type, s.date, s.period, s.subject_code
	FROM leave_approvals a
	JOIN leave_requests r ON r.id = a.request_id
	JOIN attendance_sessions s ON s.id = a.session_id
`

func (r *LeaveRepository) queryApprovals(ctx context.Context, query string, args ...any) ([]database.LeaveApproval, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []database.LeaveApproval
	for rows.Next() {
		var a database.LeaveApproval
		var decidedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.RequestID, &a.SessionID, &a.TeacherID, &a.Status, &decidedAt,
			&a.RegNo, &a.Type, &a.Date, &a.Period, &a.SubjectCode); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		if decidedAt.Valid {
			a.DecidedAt = &decidedAt.Time
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approvals: %w", err)
	}
	return approvals, nil
}

// GetRequest retrieves a leave request by ID, returns nil if not found
func (r *LeaveRepository) GetRequest(ctx context.Context, id int64) (*database.LeaveRequest, error) {
	var req database.LeaveRequest
	var periods pq.Int64Array
	err := r.pool.QueryRow(ctx, `
		SELECT id, reg_no, leave_type, from_date, to_date, periods, reason, proof_path, created_at
		FROM leave_requests
		WHERE id = $1
	`, id).Scan(&req.ID, &req.RegNo, &req.Type, &req.FromDate, &req.ToDate, &periods, &req.Reason, &req.ProofPath, &req.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get leave request: %w", err)
	}
	req.Periods = make([]int, len(periods))
	for i, p := range periods {
		req.Periods[i] = int(p)
	}
	return &req, nil
}

// ListApprovals returns the approvals of a request ordered by date and period
func (r *LeaveRepository) ListApprovals(ctx context.Context, requestID int64) ([]database.LeaveApproval, error) {
	return r.queryApprovals(ctx, approvalSelect+"WHERE a.request_id = $1 ORDER BY s.date, s.period", requestID)
}

// Inbox returns a teacher's approvals with the given status, oldest first
func (r *LeaveRepository) Inbox(ctx context.Context, teacherID int64, status string) ([]database.LeaveApproval, error) {
	return r.queryApprovals(ctx,
		approvalSelect+"WHERE a.teacher_id = $1 AND a.status = $2 ORDER BY r.created_at, a.id", teacherID, status)
}

// GetApprovals returns the approvals among ids that belong to the teacher
func (r *LeaveRepository) GetApprovals(ctx context.Context, teacherID int64, ids []int64) ([]database.LeaveApproval, error) {
	return r.queryApprovals(ctx,
		approvalSelect+"WHERE a.teacher_id = $1 AND a.id = ANY($2) ORDER BY a.id", teacherID, pq.Array(ids))
}

// CreateRequest inserts the request and its approvals in one transaction
func (r *LeaveRepository) CreateRequest(ctx context.Context, req *database.LeaveRequest, approvals []database.LeaveApproval) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO leave_requests (reg_no, leave_type, from_date, to_date, periods, reason, proof_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, req.RegNo, req.Type, req.FromDate.Format(time.DateOnly), req.ToDate.Format(time.DateOnly),
		pq.Array(toInt64s(req.Periods)), req.Reason, req.ProofPath,
	).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("create leave request: %w", err)
	}

	for i := range approvals {
		a := &approvals[i]
		a.RequestID = req.ID
		err := tx.QueryRowContext(ctx, `
			INSERT INTO leave_approvals (request_id, session_id, teacher_id, status)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, a.RequestID, a.SessionID, a.TeacherID, a.Status).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("create approval for session %d: %w", a.SessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit leave request: %w", err)
	}
	return nil
}

// Decide moves the teacher's pending approvals among ids to status and returns
// the IDs that changed
func (r *LeaveRepository) Decide(ctx context.Context, teacherID int64, ids []int64, status string) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE leave_approvals
		SET status = $3, decided_at = NOW()
		WHERE teacher_id = $1 AND id = ANY($2) AND status = 'pending'
		RETURNING id
	`, teacherID, pq.Array(ids), status)
	if err != nil {
		return nil, fmt.Errorf("decide approvals: %w", err)
	}
	defer rows.Close()

	var changed []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan approval id: %w", err)
		}
		changed = append(changed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decided approvals: %w", err)
	}
	slices.Sort(changed)
	return changed, nil
}
