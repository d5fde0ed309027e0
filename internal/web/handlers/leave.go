package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/database"
)

// LeaveHandler handles On-Duty and Medical-Leave requests and the teachers' inboxes.
type LeaveHandler struct {
	service *attendance.LeaveService
}

// NewLeaveHandler creates a new leave handler.
func NewLeaveHandler(svc *attendance.LeaveService) *LeaveHandler {
	return &LeaveHandler{service: svc}
}

// ApprovalResponse is one session's share of a leave request.
type ApprovalResponse struct {
	ID          int64      `json:"id"`
	RequestID   int64      `json:"request_id"`
	SessionID   int64      `json:"session_id"`
	TeacherID   int64      `json:"teacher_id"`
	Status      string     `json:"status"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	RegNo       string     `json:"reg_no"`
	Type        string     `json:"type"`
	Date        string     `json:"date"`
	Period      int        `json:"period"`
	SubjectCode string     `json:"subject_code"`
}

// LeaveResponse is a leave request with its approvals.
type LeaveResponse struct {
	ID        int64              `json:"id"`
	RegNo     string             `json:"reg_no"`
	Type      string             `json:"type"`
	FromDate  string             `json:"from_date"`
	ToDate    string             `json:"to_date"`
	Periods   []int              `json:"periods"`
	Reason    string             `json:"reason,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	Approvals []ApprovalResponse `json:"approvals"`
}

// DecisionRequest is the body of bulk approve and reject calls.
type DecisionRequest struct {
	ApprovalIDs []int64 `json:"approval_ids"`
}

// DecisionResponse lists the approvals a bulk call changed.
type DecisionResponse struct {
	Decided []int64 `json:"decided"`
	Count   int     `json:"count"`
}

func toApprovalResponses(approvals []database.LeaveApproval) []ApprovalResponse {
	out := make([]ApprovalResponse, len(approvals))
	for i, a := range approvals {
		out[i] = ApprovalResponse{
			ID:          a.ID,
			RequestID:   a.RequestID,
			SessionID:   a.SessionID,
			TeacherID:   a.TeacherID,
			Status:      a.Status,
			DecidedAt:   a.DecidedAt,
			RegNo:       a.RegNo,
			Type:        a.Type,
			Date:        a.Date.Format(time.DateOnly),
			Period:      a.Period,
			SubjectCode: a.SubjectCode,
		}
	}
	return out
}

func toLeaveResponse(res *attendance.LeaveResult) LeaveResponse {
	req := res.Request
	return LeaveResponse{
		ID:        req.ID,
		RegNo:     req.RegNo,
		Type:      req.Type,
		FromDate:  req.FromDate.Format(time.DateOnly),
		ToDate:    req.ToDate.Format(time.DateOnly),
		Periods:   req.Periods,
		Reason:    req.Reason,
		CreatedAt: req.CreatedAt,
		Approvals: toApprovalResponses(res.Approvals),
	}
}

// Request files a leave request from a multipart form with a "proof" file.
func (h *LeaveHandler) Request(w http.ResponseWriter, r *http.Request) {
	proof, err := readPhoto(w, r, "proof")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := attendance.ParseDate(r.FormValue("from_date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "from_date must be YYYY-MM-DD")
		return
	}
	to, err := attendance.ParseDate(r.FormValue("to_date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "to_date must be YYYY-MM-DD")
		return
	}

	res, err := h.service.Request(r.Context(), attendance.LeaveInput{
		RegNo:   r.FormValue("reg_no"),
		Type:    r.FormValue("type"),
		From:    from,
		To:      to,
		Periods: r.FormValue("periods"),
		Reason:  r.FormValue("reason"),
		Proof:   proof,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toLeaveResponse(res))
}

// Get returns a leave request and the state of its approvals.
func (h *LeaveHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id", "leave request id")
	if !ok {
		return
	}
	res, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toLeaveResponse(res))
}

// Inbox lists a teacher's approvals, pending unless ?status= says otherwise.
func (h *LeaveHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := idParam(w, r, "teacherID", "teacher id")
	if !ok {
		return
	}
	approvals, err := h.service.Inbox(r.Context(), teacherID, r.URL.Query().Get("status"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toApprovalResponses(approvals))
}

// Approve approves approvals in bulk and records OD or ML for each session.
func (h *LeaveHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

// Reject rejects approvals in bulk.
func (h *LeaveHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Reject)
}

type decideFunc func(ctx context.Context, teacherID int64, ids []int64) ([]int64, error)

func (h *LeaveHandler) decide(w http.ResponseWriter, r *http.Request, fn decideFunc) {
	teacherID, ok := idParam(w, r, "teacherID", "teacher id")
	if !ok {
		return
	}
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	decided, err := fn(r.Context(), teacherID, req.ApprovalIDs)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if decided == nil {
		decided = []int64{}
	}
	respondJSON(w, http.StatusOK, DecisionResponse{Decided: decided, Count: len(decided)})
}
