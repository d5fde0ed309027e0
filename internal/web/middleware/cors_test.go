package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS([]string{"https://attendance.school.example"})(next)

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantCode   int
	}{
		{"allowed origin", "GET", "https://attendance.school.example", "https://attendance.school.example", http.StatusOK},
		{"localhost with port", "GET", "http://localhost:5173", "http://localhost:5173", http.StatusOK},
		{"localhost lookalike", "GET", "http://localhost.evil.example", "", http.StatusOK},
		{"unknown origin", "GET", "https://evil.example", "", http.StatusOK},
		{"no origin", "GET", "", "", http.StatusOK},
		{"preflight", "OPTIONS", "http://localhost", "http://localhost", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, req)

			if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if recorder.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", recorder.Code, tt.wantCode)
			}
		})
	}
}

func TestNoSniff(t *testing.T) {
	handler := NoSniff()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/", nil))

	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("X-Content-Type-Options not set")
	}
}
