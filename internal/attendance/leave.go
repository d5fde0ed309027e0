package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/storage"
)

// Approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// MaxLeaveDays bounds the date range of one leave request.
const MaxLeaveDays = 31

// LeaveService handles On-Duty and Medical-Leave requests. A request becomes one
// approval per existing session it covers, and each session's teacher decides
// their own share. Approving writes the OD or ML record, which later scans keep.
type LeaveService struct {
	Students database.StudentReader
	Sessions database.SessionReader
	Records  database.RecordWriter
	Leaves   database.LeaveWriter
	Store    *storage.Store
}

// LeaveInput is a leave request as filed by a student.
type LeaveInput struct {
	RegNo   string
	Type    string
	From    time.Time
	To      time.Time
	Periods string // "All" or a comma separated list such as "1,2,5"
	Reason  string
	Proof   []byte
}

// LeaveResult is a stored request with its approvals.
type LeaveResult struct {
	Request   *database.LeaveRequest
	Approvals []database.LeaveApproval
}

// ParsePeriods parses "All" or a comma separated period list into sorted, unique periods.
func ParsePeriods(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		periods := make([]int, 0, MaxPeriod-MinPeriod+1)
		for p := MinPeriod; p <= MaxPeriod; p++ {
			periods = append(periods, p)
		}
		return periods, nil
	}
	if s == "" {
		return nil, fmt.Errorf("%w: periods are required", ErrInvalidLeave)
	}

	var periods []int
	for _, part := range strings.Split(s, ",") {
		p, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || p < MinPeriod || p > MaxPeriod {
			return nil, fmt.Errorf("%w: period %q must be %d-%d", ErrInvalidLeave, part, MinPeriod, MaxPeriod)
		}
		periods = append(periods, p)
	}
	slices.Sort(periods)
	return slices.Compact(periods), nil
}

func validateLeave(in LeaveInput) (leaveType string, from, to time.Time, periods []int, err error) {
	leaveType = strings.ToUpper(strings.TrimSpace(in.Type))
	if leaveType != StatusOnDuty && leaveType != StatusMedicalLeave {
		return "", from, to, nil, fmt.Errorf("%w: type %q must be %s or %s",
			ErrInvalidLeave, in.Type, StatusOnDuty, StatusMedicalLeave)
	}
	if in.From.IsZero() || in.To.IsZero() {
		return "", from, to, nil, fmt.Errorf("%w: from and to dates are required", ErrInvalidLeave)
	}
	from, to = dateOnly(in.From), dateOnly(in.To)
	if to.Before(from) {
		return "", from, to, nil, fmt.Errorf("%w: to date is before from date", ErrInvalidLeave)
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > MaxLeaveDays {
		return "", from, to, nil, fmt.Errorf("%w: %d days requested, at most %d allowed", ErrInvalidLeave, days, MaxLeaveDays)
	}
	periods, err = ParsePeriods(in.Periods)
	if err != nil {
		return "", from, to, nil, err
	}
	if len(in.Proof) == 0 {
		return "", from, to, nil, fmt.Errorf("%w: a proof document is required", ErrInvalidLeave)
	}
	return leaveType, from, to, periods, nil
}

// Request files a leave request. Approvals are created for the sessions of the
// student's class that already exist in the requested dates and periods.
func (s *LeaveService) Request(ctx context.Context, in LeaveInput) (*LeaveResult, error) {
	leaveType, from, to, periods, err := validateLeave(in)
	if err != nil {
		return nil, err
	}

	regNo := facematch.NormalizeIdentifier(in.RegNo)
	student, err := s.Students.Get(ctx, regNo)
	if err != nil {
		return nil, fmt.Errorf("looking up student: %w", err)
	}
	if student == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStudent, regNo)
	}

	sessions, err := s.Sessions.ListInRange(ctx, student.ClassID, from, to, periods)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	proofPath, err := s.Store.SaveLeaveProof(regNo, in.Proof)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidLeave, err)
		}
		return nil, fmt.Errorf("saving leave proof: %w", err)
	}

	req := &database.LeaveRequest{
		RegNo:     regNo,
		Type:      leaveType,
		FromDate:  from,
		ToDate:    to,
		Periods:   periods,
		Reason:    strings.TrimSpace(in.Reason),
		ProofPath: proofPath,
	}
	approvals := make([]database.LeaveApproval, len(sessions))
	for i, ses := range sessions {
		approvals[i] = database.LeaveApproval{
			SessionID:   ses.ID,
			TeacherID:   ses.TeacherID,
			Status:      ApprovalPending,
			RegNo:       regNo,
			Type:        leaveType,
			Date:        ses.Date,
			Period:      ses.Period,
			SubjectCode: ses.SubjectCode,
		}
	}
	if err := s.Leaves.CreateRequest(ctx, req, approvals); err != nil {
		return nil, fmt.Errorf("storing leave request: %w", err)
	}

	log.Printf("Leave request %d: %s %s from %s to %s, %d sessions awaiting approval",
		req.ID, regNo, leaveType, from.Format(time.DateOnly), to.Format(time.DateOnly), len(approvals))
	return &LeaveResult{Request: req, Approvals: approvals}, nil
}

// Get returns a leave request and the current state of its approvals.
func (s *LeaveService) Get(ctx context.Context, id int64) (*LeaveResult, error) {
	req, err := s.Leaves.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading leave request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %d", ErrLeaveNotFound, id)
	}
	approvals, err := s.Leaves.ListApprovals(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading approvals: %w", err)
	}
	return &LeaveResult{Request: req, Approvals: approvals}, nil
}

// Inbox lists a teacher's approvals in the given status. An empty status means pending.
func (s *LeaveService) Inbox(ctx context.Context, teacherID int64, status string) ([]database.LeaveApproval, error) {
	if teacherID <= 0 {
		return nil, fmt.Errorf("%w: teacher_id is required", ErrInvalidLeave)
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		status = ApprovalPending
	}
	switch status {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
	default:
		return nil, fmt.Errorf("%w: unknown approval status %q", ErrInvalidLeave, status)
	}

	approvals, err := s.Leaves.Inbox(ctx, teacherID, status)
	if err != nil {
		return nil, fmt.Errorf("loading inbox: %w", err)
	}
	return approvals, nil
}

// Approve approves the teacher's pending approvals among ids and records the
// requested OD or ML status in each session. Approvals of other teachers and
// already decided ones are skipped. The approved IDs are returned.
func (s *LeaveService) Approve(ctx context.Context, teacherID int64, ids []int64) ([]int64, error) {
	if err := validateDecision(teacherID, ids); err != nil {
		return nil, err
	}

	approvals, err := s.Leaves.GetApprovals(ctx, teacherID, ids)
	if err != nil {
		return nil, fmt.Errorf("loading approvals: %w", err)
	}

	// session -> regNo -> status; a later request wins when two cover the same session.
	statuses := make(map[int64]map[string]string)
	var pending []int64
	for _, a := range approvals {
		if a.Status != ApprovalPending {
			continue
		}
		if statuses[a.SessionID] == nil {
			statuses[a.SessionID] = make(map[string]string)
		}
		statuses[a.SessionID][a.RegNo] = a.Type
		pending = append(pending, a.ID)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	// Records are written before the decision; a failed write leaves the approvals pending.
	for _, sessionID := range slices.Sorted(maps.Keys(statuses)) {
		byStudent := statuses[sessionID]
		records := make([]database.Record, 0, len(byStudent))
		for _, regNo := range slices.Sorted(maps.Keys(byStudent)) {
			records = append(records, database.Record{SessionID: sessionID, RegNo: regNo, Status: byStudent[regNo]})
		}
		if err := s.Records.Upsert(ctx, sessionID, records); err != nil {
			return nil, fmt.Errorf("recording leave in session %d: %w", sessionID, err)
		}
	}

	approved, err := s.Leaves.Decide(ctx, teacherID, pending, ApprovalApproved)
	if err != nil {
		return nil, fmt.Errorf("approving: %w", err)
	}
	log.Printf("Teacher %d approved %d leave items", teacherID, len(approved))
	return approved, nil
}

// Reject rejects the teacher's pending approvals among ids. No records are written.
func (s *LeaveService) Reject(ctx context.Context, teacherID int64, ids []int64) ([]int64, error) {
	if err := validateDecision(teacherID, ids); err != nil {
		return nil, err
	}
	rejected, err := s.Leaves.Decide(ctx, teacherID, ids, ApprovalRejected)
	if err != nil {
		return nil, fmt.Errorf("rejecting: %w", err)
	}
	log.Printf("Teacher %d rejected %d leave items", teacherID, len(rejected))
	return rejected, nil
}

func validateDecision(teacherID int64, ids []int64) error {
	if teacherID <= 0 {
		return fmt.Errorf("%w: teacher_id is required", ErrInvalidLeave)
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: approval_ids are required", ErrInvalidLeave)
	}
	return nil
}
