package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClassesHandler_Students(t *testing.T) {
	env := newTestEnv(t, redFaceDetector(nil))
	h := NewClassesHandler(env.students, env.profiles)

	recorder := httptest.NewRecorder()
	h.Students(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"classID": "CSE3A"}))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	var students []StudentResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &students); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(students) != 2 {
		t.Fatalf("expected 2 students, got %d", len(students))
	}
	if !students[0].Enrolled || students[1].Enrolled {
		t.Errorf("enrolled flags = %v/%v, want true/false", students[0].Enrolled, students[1].Enrolled)
	}
}

func TestClassesHandler_LowercaseClass(t *testing.T) {
	env := newTestEnv(t, redFaceDetector(nil))
	h := NewClassesHandler(env.students, env.profiles)

	recorder := httptest.NewRecorder()
	h.Students(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"classID": "cse3a"}))

	var students []StudentResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &students); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if recorder.Code != http.StatusOK || len(students) != 2 {
		t.Errorf("got %d with %d students, want 200 with 2", recorder.Code, len(students))
	}
}

func TestClassesHandler_EmptyClass(t *testing.T) {
	env := newTestEnv(t, redFaceDetector(nil))
	h := NewClassesHandler(env.students, env.profiles)

	recorder := httptest.NewRecorder()
	h.Students(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"classID": "NONE"}))

	if recorder.Code != http.StatusOK || recorder.Body.String() != "[]\n" {
		t.Errorf("got %d %q, want 200 []", recorder.Code, recorder.Body.String())
	}
}

func TestClassesHandler_DatabaseError(t *testing.T) {
	env := newTestEnv(t, redFaceDetector(nil))
	env.students.ListByClassError = errors.New("connection reset")
	h := NewClassesHandler(env.students, env.profiles)

	recorder := httptest.NewRecorder()
	h.Students(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"classID": "CSE3A"}))

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", recorder.Code)
	}
}
