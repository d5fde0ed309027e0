package attendance

import (
	"context"
	"errors"
	"image"
	"reflect"
	"testing"
	"time"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/database/mock"
)

var pdfProof = []byte("%PDF-1.7\nmedical certificate")

type leaveFixture struct {
	*serviceFixture
	leave  *LeaveService
	leaves *mock.MockLeaveWriter
}

func newLeaveFixture(t *testing.T) *leaveFixture {
	t.Helper()
	f := &leaveFixture{serviceFixture: newServiceFixture(t), leaves: mock.NewMockLeaveWriter()}
	f.leave = &LeaveService{
		Students: f.students,
		Sessions: f.sessions,
		Records:  f.records,
		Leaves:   f.leaves,
		Store:    f.store,
	}
	return f
}

// addSession stores a CSE3A session on 2025-03-<day>.
func (f *leaveFixture) addSession(day, period int, teacherID int64) int64 {
	return f.sessions.AddSession(database.Session{
		ClassID:     "CSE3A",
		SubjectCode: "CS301",
		TeacherID:   teacherID,
		Date:        time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
		Period:      period,
	})
}

func leaveInput(periods string) LeaveInput {
	return LeaveInput{
		RegNo:   "s2",
		Type:    "ml",
		From:    time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC),
		To:      time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Periods: periods,
		Reason:  "fever",
		Proof:   pdfProof,
	}
}

func TestParsePeriods(t *testing.T) {
	tests := []struct {
		in   string
		want []int
		ok   bool
	}{
		{"All", []int{1, 2, 3, 4, 5, 6, 7}, true},
		{" all ", []int{1, 2, 3, 4, 5, 6, 7}, true},
		{"3, 1,3", []int{1, 3}, true},
		{"7", []int{7}, true},
		{"", nil, false},
		{"0", nil, false},
		{"8", nil, false},
		{"1,x", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePeriods(tt.in)
			if tt.ok != (err == nil) {
				t.Fatalf("ParsePeriods(%q) error = %v", tt.in, err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidLeave) {
				t.Errorf("error = %v, want ErrInvalidLeave", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePeriods(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLeaveService_Request(t *testing.T) {
	f := newLeaveFixture(t)
	ctx := context.Background()

	inRange := f.addSession(13, 2, 7)
	otherTeacher := f.addSession(14, 5, 8)
	f.addSession(14, 3, 7) // period not requested
	f.addSession(15, 2, 7) // after the range
	f.sessions.AddSession(database.Session{ClassID: "CSE3B", SubjectCode: "CS301", TeacherID: 7,
		Date: time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), Period: 2})

	res, err := f.leave.Request(ctx, leaveInput("2,5"))
	if err != nil {
		t.Fatalf("Request() error: %v", err)
	}
	if res.Request.RegNo != "S2" || res.Request.Type != StatusMedicalLeave || res.Request.ProofPath == "" {
		t.Errorf("request = %+v", res.Request)
	}
	if len(res.Approvals) != 2 {
		t.Fatalf("approvals = %+v, want 2", res.Approvals)
	}
	if res.Approvals[0].SessionID != inRange || res.Approvals[1].SessionID != otherTeacher {
		t.Errorf("approval sessions = %d, %d", res.Approvals[0].SessionID, res.Approvals[1].SessionID)
	}
	if res.Approvals[1].TeacherID != 8 || res.Approvals[0].Status != ApprovalPending {
		t.Errorf("approvals = %+v", res.Approvals)
	}

	got, err := f.leave.Get(ctx, res.Request.ID)
	if err != nil || len(got.Approvals) != 2 {
		t.Errorf("Get() = %+v, %v", got, err)
	}
	if _, err := f.leave.Get(ctx, 999); !errors.Is(err, ErrLeaveNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrLeaveNotFound", err)
	}
}

func TestLeaveService_Request_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*LeaveInput)
		wantErr error
	}{
		{"unknown type", func(in *LeaveInput) { in.Type = "CL" }, ErrInvalidLeave},
		{"missing from", func(in *LeaveInput) { in.From = time.Time{} }, ErrInvalidLeave},
		{"reversed range", func(in *LeaveInput) { in.From, in.To = in.To, in.From }, ErrInvalidLeave},
		{"range too long", func(in *LeaveInput) { in.To = in.From.AddDate(0, 0, MaxLeaveDays) }, ErrInvalidLeave},
		{"bad periods", func(in *LeaveInput) { in.Periods = "9" }, ErrInvalidLeave},
		{"no proof", func(in *LeaveInput) { in.Proof = nil }, ErrInvalidLeave},
		{"proof not a document", func(in *LeaveInput) { in.Proof = []byte("hello") }, ErrInvalidLeave},
		{"unknown student", func(in *LeaveInput) { in.RegNo = "Z9" }, ErrUnknownStudent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLeaveFixture(t)
			in := leaveInput("All")
			tt.mutate(&in)
			if _, err := f.leave.Request(context.Background(), in); !errors.Is(err, tt.wantErr) {
				t.Errorf("Request() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLeaveService_Approve(t *testing.T) {
	f := newLeaveFixture(t)
	ctx := context.Background()

	own := f.addSession(13, 2, 7)
	foreign := f.addSession(13, 3, 8)
	res, err := f.leave.Request(ctx, leaveInput("2,3"))
	if err != nil {
		t.Fatal(err)
	}
	ids := []int64{res.Approvals[0].ID, res.Approvals[1].ID}

	approved, err := f.leave.Approve(ctx, 7, ids)
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if !reflect.DeepEqual(approved, []int64{res.Approvals[0].ID}) {
		t.Errorf("approved = %v, want only the teacher's own item", approved)
	}

	records, _ := f.records.ListBySession(ctx, own)
	if len(records) != 1 || records[0].RegNo != "S2" || records[0].Status != StatusMedicalLeave {
		t.Errorf("records = %+v, want S2 ML", records)
	}
	if records, _ := f.records.ListBySession(ctx, foreign); len(records) != 0 {
		t.Errorf("another teacher's session was written: %+v", records)
	}

	// Already decided items are not approved twice.
	again, err := f.leave.Approve(ctx, 7, ids)
	if err != nil || len(again) != 0 {
		t.Errorf("second Approve() = %v, %v", again, err)
	}

	inbox, err := f.leave.Inbox(ctx, 8, "")
	if err != nil || len(inbox) != 1 || inbox[0].SessionID != foreign {
		t.Errorf("Inbox(8) = %+v, %v", inbox, err)
	}
	done, err := f.leave.Inbox(ctx, 7, "Approved")
	if err != nil || len(done) != 1 || done[0].DecidedAt == nil {
		t.Errorf("Inbox(7, approved) = %+v, %v", done, err)
	}
}

func TestLeaveService_Reject(t *testing.T) {
	f := newLeaveFixture(t)
	ctx := context.Background()

	id := f.addSession(14, 4, 7)
	res, err := f.leave.Request(ctx, leaveInput("4"))
	if err != nil {
		t.Fatal(err)
	}

	rejected, err := f.leave.Reject(ctx, 7, []int64{res.Approvals[0].ID})
	if err != nil || len(rejected) != 1 {
		t.Fatalf("Reject() = %v, %v", rejected, err)
	}
	if records, _ := f.records.ListBySession(ctx, id); len(records) != 0 {
		t.Errorf("Reject() wrote records: %+v", records)
	}
	if approved, err := f.leave.Approve(ctx, 7, rejected); err != nil || len(approved) != 0 {
		t.Errorf("Approve() after reject = %v, %v", approved, err)
	}
}

func TestLeaveService_DecisionErrors(t *testing.T) {
	f := newLeaveFixture(t)
	ctx := context.Background()

	if _, err := f.leave.Approve(ctx, 7, nil); !errors.Is(err, ErrInvalidLeave) {
		t.Errorf("Approve(no ids) error = %v", err)
	}
	if _, err := f.leave.Reject(ctx, 0, []int64{1}); !errors.Is(err, ErrInvalidLeave) {
		t.Errorf("Reject(no teacher) error = %v", err)
	}
	if _, err := f.leave.Inbox(ctx, 7, "archived"); !errors.Is(err, ErrInvalidLeave) {
		t.Errorf("Inbox(archived) error = %v", err)
	}

	f.addSession(13, 1, 7)
	res, err := f.leave.Request(ctx, leaveInput("1"))
	if err != nil {
		t.Fatal(err)
	}
	f.records.UpsertError = errors.New("connection reset")
	if _, err := f.leave.Approve(ctx, 7, []int64{res.Approvals[0].ID}); err == nil {
		t.Fatal("Approve() should fail when the record cannot be written")
	}
	pending, _ := f.leave.Inbox(ctx, 7, ApprovalPending)
	if len(pending) != 1 {
		t.Errorf("approval must stay pending after a failed write, inbox = %+v", pending)
	}
}

func TestLeaveService_ApprovedLeaveSurvivesScan(t *testing.T) {
	f := newLeaveFixture(t)
	ctx := context.Background()

	slot := testSlot()
	session, err := GetOrCreateSession(ctx, f.sessions, slot)
	if err != nil {
		t.Fatal(err)
	}

	// S1's face is in the photo, but S1 is on approved medical leave.
	in := leaveInput("2")
	in.RegNo = "S1"
	res, err := f.leave.Request(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.leave.Approve(ctx, slot.TeacherID, []int64{res.Approvals[0].ID}); err != nil {
		t.Fatal(err)
	}

	auto, err := f.svc.Auto(ctx, slot, encodePNG(t, classroom(image.Rect(340, 100, 410, 170))))
	if err != nil {
		t.Fatalf("Auto() error: %v", err)
	}
	if auto.Session.ID != session.ID {
		t.Fatalf("scan used session %d, want %d", auto.Session.ID, session.ID)
	}
	if auto.Outcome.Locked["S1"] != StatusMedicalLeave {
		t.Errorf("Locked = %v, want S1 ML", auto.Outcome.Locked)
	}
	if len(auto.Outcome.Present) != 0 || !reflect.DeepEqual(auto.Outcome.Absent, []string{"S2", "S3"}) {
		t.Errorf("outcome = %+v", auto.Outcome)
	}

	// Saving the scan keeps the leave.
	sum, err := f.svc.Manual(ctx, slot, auto.Outcome.Records())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Counts[StatusMedicalLeave] != 1 {
		t.Errorf("Counts = %v, want one ML", sum.Counts)
	}
}
