package database

import (
	"context"
	"time"
)

// StudentReader provides read-only access to students
type StudentReader interface {
	// ListByClass returns the students of a class ordered by registration number
	ListByClass(ctx context.Context, classID string) ([]Student, error)
	// Get retrieves a student by registration number, returns nil if not found
	Get(ctx context.Context, regNo string) (*Student, error)
}

// ProfileReader provides read-only access to enrolled face profiles
type ProfileReader interface {
	// Get retrieves the profile of a student, returns nil if not enrolled
	Get(ctx context.Context, regNo string) (*FaceProfile, error)
	// List returns all profiles ordered by registration number
	List(ctx context.Context) ([]FaceProfile, error)
	// GetEmbeddings returns regNo -> embedding for the given students.
	// Students without a profile are absent from the map.
	GetEmbeddings(ctx context.Context, regNos []string) (map[string][]float32, error)
	// FindSimilarWithDistance finds profiles closer than maxDistance (cosine distance)
	FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]FaceProfile, []float64, error)
}

// ProfileWriter provides write access to face profiles
type ProfileWriter interface {
	ProfileReader

	// Save stores the profile of a student, replacing any previous one.
	// The stored profile (with ID and timestamps) is returned.
	Save(ctx context.Context, profile FaceProfile) (*FaceProfile, error)
	// AddImage records a stored enrollment photo for a student
	AddImage(ctx context.Context, regNo, path string) error
	// Delete removes the profile and image records of a student.
	// Returns false if the student had no profile.
	Delete(ctx context.Context, regNo string) (bool, error)
}

// SessionReader provides read-only access to attendance sessions
type SessionReader interface {
	// Get retrieves a session by ID, returns nil if not found
	Get(ctx context.Context, id int64) (*Session, error)
	// FindBySlot retrieves the session of a (class, date, period) slot, returns nil if none
	FindBySlot(ctx context.Context, classID string, date time.Time, period int) (*Session, error)
	// ListInRange returns the sessions of a class between two dates (inclusive)
	// in the given periods, ordered by date and period
	ListInRange(ctx context.Context, classID string, from, to time.Time, periods []int) ([]Session, error)
}

// SessionWriter provides write access to attendance sessions
type SessionWriter interface {
	SessionReader

	// Create inserts a new session and fills in its ID and CreatedAt
	Create(ctx context.Context, s *Session) error
	// SetProofPath stores the location of the annotated proof image
	SetProofPath(ctx context.Context, id int64, path string) error
}

// RecordReader provides read-only access to attendance records
type RecordReader interface {
	// ListBySession returns the records of a session ordered by registration number
	ListBySession(ctx context.Context, sessionID int64) ([]Record, error)
}

// RecordWriter provides write access to attendance records
type RecordWriter interface {
	RecordReader

	// Upsert inserts or updates one record per student of the session
	Upsert(ctx context.Context, sessionID int64, records []Record) error
}

// LeaveReader provides read-only access to leave requests and their approvals
type LeaveReader interface {
	// GetRequest retrieves a leave request by ID, returns nil if not found
	GetRequest(ctx context.Context, id int64) (*LeaveRequest, error)
	// ListApprovals returns the approvals of a request ordered by date and period
	ListApprovals(ctx context.Context, requestID int64) ([]LeaveApproval, error)
	// Inbox returns a teacher's approvals with the given status, oldest first
	Inbox(ctx context.Context, teacherID int64, status string) ([]LeaveApproval, error)
	// GetApprovals returns the approvals among ids that belong to the teacher
	GetApprovals(ctx context.Context, teacherID int64, ids []int64) ([]LeaveApproval, error)
}

// LeaveWriter provides write access to leave requests
type LeaveWriter interface {
	LeaveReader

	// CreateRequest inserts the request and its approvals together and fills in their IDs
	CreateRequest(ctx context.Context, req *LeaveRequest, approvals []LeaveApproval) error
	// Decide moves the teacher's pending approvals among ids to status.
	// The IDs that changed are returned.
	Decide(ctx context.Context, teacherID int64, ids []int64, status string) ([]int64, error)
}
