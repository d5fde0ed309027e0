package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// StudentRepository provides PostgreSQL-backed student lookups.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// ListByClass returns the students of a class ordered by registration number.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]database.Student, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT reg_no, name, class_id
		FROM students
		WHERE class_id = $1
		ORDER BY reg_no
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		var s database.Student
		if err := rows.Scan(&s.RegNo, &s.Name, &s.ClassID); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// Get retrieves a student by registration number, returns nil if not found.
func (r *StudentRepository) Get(ctx context.Context, regNo string) (*database.Student, error) {
	var s database.Student
	err := r.pool.QueryRow(ctx,
		"SELECT reg_no, name, class_id FROM students WHERE reg_no = $1", regNo,
	).Scan(&s.RegNo, &s.Name, &s.ClassID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &s, nil
}
