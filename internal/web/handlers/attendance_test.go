package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/detector"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

func TestAttendanceHandler_Auto(t *testing.T) {
	env := newTestEnv(t, redFaceDetector([]float32{1, 0, 0}))
	h := NewAttendanceHandler(env.attendance)

	// 400x300: columns [0,180] [120,300] [220,400], rows [0,180] [120,300].
	photo := photoWithFaces(t, 400, 300, image.Rect(140, 40, 170, 80))
	req := multipartRequest(t, "/api/v1/attendance/auto", slotFields(), photo)
	recorder := httptest.NewRecorder()

	h.Auto(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var resp AutoResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Present) != 1 || resp.Present[0] != "21CS001" {
		t.Errorf("present = %v, want [21CS001]", resp.Present)
	}
	if len(resp.Absent) != 1 || resp.Absent[0] != "21CS002" {
		t.Errorf("absent = %v, want [21CS002]", resp.Absent)
	}
	if len(resp.MissingProfiles) != 1 || resp.MissingProfiles[0] != "21CS002" {
		t.Errorf("missing_profiles = %v", resp.MissingProfiles)
	}
	if len(resp.Faces) != 1 || resp.Faces[0].Identity != "21CS001" || !resp.Faces[0].Matched {
		t.Errorf("faces = %+v, want one matched face", resp.Faces)
	}
	if resp.Tiles != 6 || resp.UnknownFaces != 0 {
		t.Errorf("tiles = %d, unknown = %d", resp.Tiles, resp.UnknownFaces)
	}
	if resp.Session.ProofURL != fmt.Sprintf("/api/v1/attendance/sessions/%d/proof", resp.Session.ID) {
		t.Errorf("proof_url = %q", resp.Session.ProofURL)
	}
	if len(resp.Students) != 2 {
		t.Errorf("students = %v", resp.Students)
	}

	// The proof image is served afterwards.
	proofReq := requestWithChiParams(httptest.NewRequest("GET", resp.Session.ProofURL, nil),
		map[string]string{"id": fmt.Sprint(resp.Session.ID)})
	proofRec := httptest.NewRecorder()
	h.Proof(proofRec, proofReq)
	if proofRec.Code != http.StatusOK || proofRec.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("proof: status %d, content type %q", proofRec.Code, proofRec.Header().Get("Content-Type"))
	}
}

func TestAttendanceHandler_Auto_Errors(t *testing.T) {
	unavailable := detector.Func(func(ctx context.Context, img image.Image) ([]facematch.Detection, error) {
		return nil, detector.ErrUnavailable
	})
	photo := photoWithFaces(t, 200, 100)

	tests := []struct {
		name     string
		det      detector.Detector
		fields   map[string]string
		image    []byte
		setup    func(env *testEnv)
		wantCode int
	}{
		{"missing image", redFaceDetector(nil), slotFields(), nil, nil, http.StatusBadRequest},
		{"invalid image", redFaceDetector(nil), slotFields(), []byte("not a photo"), nil, http.StatusBadRequest},
		{"detector unavailable", unavailable, slotFields(), photo, nil, http.StatusServiceUnavailable},
		{"period out of range", redFaceDetector(nil), withField("period", "9"), photo, nil, http.StatusBadRequest},
		{"unknown class", redFaceDetector(nil), withField("class_id", "XYZ"), photo, nil, http.StatusBadRequest},
		{
			name:   "slot taken by another teacher",
			det:    redFaceDetector(nil),
			fields: slotFields(),
			image:  photo,
			setup: func(env *testEnv) {
				env.sessions.AddSession(database.Session{ClassID: "CSE3A", SubjectCode: "CS301", TeacherID: 8,
					Date: mustDate(t, "2025-03-14"), Period: 2})
			},
			wantCode: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.det)
			if tt.setup != nil {
				tt.setup(env)
			}
			h := NewAttendanceHandler(env.attendance)
			recorder := httptest.NewRecorder()

			h.Auto(recorder, multipartRequest(t, "/api/v1/attendance/auto", tt.fields, tt.image))

			if recorder.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d: %s", tt.wantCode, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestAttendanceHandler_Manual(t *testing.T) {
	env := newTestEnv(t, redFaceDetector(nil))
	h := NewAttendanceHandler(env.attendance)

	body := `{"class_id":"CSE3A","subject_code":"CS301","teacher_id":7,"date":"2025-03-14","period":2,
		"statuses":{"21CS001":"P","21CS002":"ML"}}`
	recorder := httptest.NewRecorder()
	h.Manual(recorder, httptest.NewRequest("POST", "/api/v1/attendance/manual", strings.NewReader(body)))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var resp SummaryResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Counts["P"] != 1 || resp.Counts["ML"] != 1 || len(resp.Records) != 2 {
		t.Errorf("summary = %+v", resp)
	}
	if resp.Session.Date != "2025-03-14" || resp.Session.Period != 2 {
		t.Errorf("session = %+v", resp.Session)
	}

	// Reading the session back returns the same records.
	getReq := requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"id": fmt.Sprint(resp.Session.ID)})
	getRec := httptest.NewRecorder()
	h.Session(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Errorf("Session(): status %d", getRec.Code)
	}
}

func TestAttendanceHandler_Manual_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"invalid status", `{"class_id":"CSE3A","subject_code":"CS301","teacher_id":7,"date":"2025-03-14","period":2,"statuses":{"21CS001":"X"}}`, http.StatusBadRequest},
		{"invalid period", `{"class_id":"CSE3A","subject_code":"CS301","teacher_id":7,"date":"2025-03-14","period":0,"statuses":{"21CS001":"P"}}`, http.StatusBadRequest},
		{"foreign student", `{"class_id":"CSE3A","subject_code":"CS301","teacher_id":7,"date":"2025-03-14","period":2,"statuses":{"99ZZ001":"P"}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, redFaceDetector(nil))
			h := NewAttendanceHandler(env.attendance)
			recorder := httptest.NewRecorder()

			h.Manual(recorder, httptest.NewRequest("POST", "/", strings.NewReader(tt.body)))

			if recorder.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d: %s", tt.wantCode, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestAttendanceHandler_Proof_NotFound(t *testing.T) {
	env := newTestEnv(t, redFaceDetector(nil))
	h := NewAttendanceHandler(env.attendance)

	for id, want := range map[string]int{"42": http.StatusNotFound, "abc": http.StatusBadRequest, "-1": http.StatusBadRequest} {
		recorder := httptest.NewRecorder()
		h.Proof(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"id": id}))
		if recorder.Code != want {
			t.Errorf("Proof(%s): expected status %d, got %d", id, want, recorder.Code)
		}
	}
}

func withField(key, value string) map[string]string {
	f := slotFields()
	f[key] = value
	return f
}
