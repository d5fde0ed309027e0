package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

// AttendanceHandler handles automatic and manual attendance endpoints.
type AttendanceHandler struct {
	service *attendance.Service
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(svc *attendance.Service) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// SessionResponse represents an attendance session in API responses.
type SessionResponse struct {
	ID          int64  `json:"id"`
	ClassID     string `json:"class_id"`
	SubjectCode string `json:"subject_code"`
	TeacherID   int64  `json:"teacher_id"`
	Date        string `json:"date"`
	Period      int    `json:"period"`
	ProofURL    string `json:"proof_url,omitempty"`
}

func toSessionResponse(s *database.Session) SessionResponse {
	resp := SessionResponse{
		ID:          s.ID,
		ClassID:     s.ClassID,
		SubjectCode: s.SubjectCode,
		TeacherID:   s.TeacherID,
		Date:        s.Date.Format(time.DateOnly),
		Period:      s.Period,
	}
	if s.ProofPath != "" {
		resp.ProofURL = fmt.Sprintf("/api/v1/attendance/sessions/%d/proof", s.ID)
	}
	return resp
}

// FaceResponse is one detected face of a scan.
type FaceResponse struct {
	BBox       []float64 `json:"bbox"`
	Score      float64   `json:"score"`
	Identity   string    `json:"identity"`
	Matched    bool      `json:"matched"`
	Similarity float64   `json:"similarity"`
}

func toFaceResponses(matches []facematch.MatchResult) []FaceResponse {
	out := make([]FaceResponse, len(matches))
	for i, m := range matches {
		out[i] = FaceResponse{
			BBox:       m.Detection.BBox.Slice(),
			Score:      m.Detection.Score,
			Identity:   m.Label(),
			Matched:    m.Matched(),
			Similarity: m.Similarity,
		}
	}
	return out
}

// AutoResponse is returned after scanning a classroom photo.
type AutoResponse struct {
	Session         SessionResponse   `json:"session"`
	ScanID          string            `json:"scan_id"`
	Present         []string          `json:"present"`
	Absent          []string          `json:"absent"`
	Locked          map[string]string `json:"locked"`
	Duplicates      []string          `json:"duplicates,omitempty"`
	MissingProfiles []string          `json:"missing_profiles,omitempty"`
	UnknownFaces    int               `json:"unknown_faces"`
	Faces           []FaceResponse    `json:"faces"`
	Tiles           int               `json:"tiles"`
	FailedTiles     int               `json:"failed_tiles"`
	Students        []StudentResponse `json:"students"`
}

// Auto runs face recognition on an uploaded classroom photo.
// Nothing is recorded; the teacher confirms the proposal through Manual.
func (h *AttendanceHandler) Auto(w http.ResponseWriter, r *http.Request) {
	photo, err := readPhoto(w, r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	slot, err := slotFromForm(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	res, err := h.service.Auto(r.Context(), slot, photo)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, AutoResponse{
		Session:         toSessionResponse(res.Session),
		ScanID:          res.Scan.ScanID,
		Present:         res.Outcome.Present,
		Absent:          res.Outcome.Absent,
		Locked:          res.Outcome.Locked,
		Duplicates:      res.Outcome.Duplicates,
		MissingProfiles: res.MissingProfiles,
		UnknownFaces:    res.Scan.Unmatched(),
		Faces:           toFaceResponses(res.Scan.Matches),
		Tiles:           res.Scan.Tiles,
		FailedTiles:     res.Scan.FailedTiles,
		Students:        toStudentResponses(res.Students),
	})
}

// ManualRequest is the body of a manual marking request.
type ManualRequest struct {
	slotRequest
	Statuses map[string]string `json:"statuses"`
}

// RecordResponse is one stored attendance record.
type RecordResponse struct {
	RegNo  string `json:"reg_no"`
	Status string `json:"status"`
}

// SummaryResponse is the stored state of a session.
type SummaryResponse struct {
	Session SessionResponse  `json:"session"`
	Records []RecordResponse `json:"records"`
	Counts  map[string]int   `json:"counts"`
}

func toSummaryResponse(s *attendance.Summary) SummaryResponse {
	records := make([]RecordResponse, len(s.Records))
	for i, rec := range s.Records {
		records[i] = RecordResponse{RegNo: rec.RegNo, Status: rec.Status}
	}
	return SummaryResponse{
		Session: toSessionResponse(s.Session),
		Records: records,
		Counts:  s.Counts,
	}
}

// Manual stores teacher-confirmed statuses.
func (h *AttendanceHandler) Manual(w http.ResponseWriter, r *http.Request) {
	var req ManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	slot, err := req.toSlot()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	summary, err := h.service.Manual(r.Context(), slot, req.Statuses)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSummaryResponse(summary))
}

// Session returns a session with its stored records.
func (h *AttendanceHandler) Session(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.SessionSummary(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSummaryResponse(summary))
}

// Proof serves the annotated image of a session.
func (h *AttendanceHandler) Proof(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	data, err := h.service.Proof(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func sessionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return idParam(w, r, "id", "session id")
}

// idParam reads a positive integer URL parameter and responds 400 when it is not one.
func idParam(w http.ResponseWriter, r *http.Request, name, what string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid "+what)
		return 0, false
	}
	return id, true
}
