package database

import (
	"time"
)

// Student is a student enrolled in a class. RegNo is the identifier used everywhere
// in the attendance pipeline.
type Student struct {
	RegNo   string
	Name    string
	ClassID string
}

// FaceProfile is the single enrolled face embedding of a student.
type FaceProfile struct {
	ID        int64
	RegNo     string
	Embedding []float32
	Model     string
	Dim       int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FaceImage is a stored enrollment photo.
type FaceImage struct {
	ID        int64
	RegNo     string
	Path      string
	CreatedAt time.Time
}

// Session is one attendance slot: a class, a date and a period, taught by one
// teacher for one subject.
type Session struct {
	ID          int64
	ClassID     string
	SubjectCode string
	TeacherID   int64
	Date        time.Time
	Period      int
	ProofPath   string
	CreatedAt   time.Time
}

// Record is the attendance status of one student in one session.
type Record struct {
	SessionID int64
	RegNo     string
	Status    string
	UpdatedAt time.Time
}

// LeaveRequest is a student's On-Duty or Medical-Leave request for a range of
// dates and periods.
type LeaveRequest struct {
	ID        int64
	RegNo     string
	Type      string
	FromDate  time.Time
	ToDate    time.Time
	Periods   []int
	Reason    string
	ProofPath string
	CreatedAt time.Time
}

// LeaveApproval is one session's share of a leave request, decided by the
// teacher of that session. Type, RegNo and the session fields are read-only
// copies for listings.
type LeaveApproval struct {
	ID          int64
	RequestID   int64
	SessionID   int64
	TeacherID   int64
	Status      string
	DecidedAt   *time.Time
	RegNo       string
	Type        string
	Date        time.Time
	Period      int
	SubjectCode string
}
