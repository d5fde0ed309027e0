package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/database/mock"
	"github.com/kozaktomas/class-attendance/internal/detector"
	"github.com/kozaktomas/class-attendance/internal/enroll"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/storage"
)

var red = color.RGBA{R: 255, A: 255}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// photoWithFaces returns a PNG with a red square for every rectangle
func photoWithFaces(t *testing.T, w, h int, faces ...image.Rectangle) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	for _, f := range faces {
		draw.Draw(img, f, &image.Uniform{C: red}, image.Point{}, draw.Src)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode photo: %v", err)
	}
	return buf.Bytes()
}

// redFaceDetector reports the red region of an image as one face unless a border cuts it
func redFaceDetector(embedding []float32) detector.Func {
	return func(ctx context.Context, img image.Image) ([]facematch.Detection, error) {
		b := img.Bounds()
		minX, minY, maxX, maxY := b.Max.X, b.Max.Y, -1, -1
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				if r>>8 != 255 || g != 0 || bl != 0 {
					continue
				}
				minX, minY = min(minX, x), min(minY, y)
				maxX, maxY = max(maxX, x), max(maxY, y)
			}
		}
		if maxX < 0 || minX == b.Min.X || minY == b.Min.Y || maxX == b.Max.X-1 || maxY == b.Max.Y-1 {
			return nil, nil
		}
		return []facematch.Detection{{
			BBox:      facematch.BBox{X1: float64(minX), Y1: float64(minY), X2: float64(maxX + 1), Y2: float64(maxY + 1)},
			Score:     0.95,
			Embedding: embedding,
		}}, nil
	}
}

// multipartRequest builds a multipart POST with form fields and an "image" file
func multipartRequest(t *testing.T, path string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "photo.png")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(image)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// testEnv wires the services over in-memory mocks
type testEnv struct {
	students   *mock.MockStudentReader
	profiles   *mock.MockProfileWriter
	sessions   *mock.MockSessionWriter
	records    *mock.MockRecordWriter
	leaves     *mock.MockLeaveWriter
	attendance *attendance.Service
	leave      *attendance.LeaveService
	enroll     *enroll.Service
}

func newTestEnv(t *testing.T, det detector.Detector) *testEnv {
	t.Helper()
	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		students: mock.NewMockStudentReader(),
		profiles: mock.NewMockProfileWriter(),
		sessions: mock.NewMockSessionWriter(),
		records:  mock.NewMockRecordWriter(),
		leaves:   mock.NewMockLeaveWriter(),
	}
	env.students.AddStudent(database.Student{RegNo: "21CS001", Name: "Jana Nováková", ClassID: "CSE3A"})
	env.students.AddStudent(database.Student{RegNo: "21CS002", Name: "Petr Svoboda", ClassID: "CSE3A"})
	env.profiles.AddProfile(database.FaceProfile{RegNo: "21CS001", Embedding: []float32{1, 0, 0}, Dim: 3})

	cfg := config.DefaultPipeline()
	env.attendance = &attendance.Service{
		Students:     env.students,
		Profiles:     env.profiles,
		Sessions:     env.sessions,
		Records:      env.records,
		Store:        store,
		Pipeline:     attendance.NewPipeline(det, cfg),
		ProofQuality: cfg.ProofQuality,
	}
	env.leave = &attendance.LeaveService{
		Students: env.students,
		Sessions: env.sessions,
		Records:  env.records,
		Leaves:   env.leaves,
		Store:    store,
	}
	env.enroll = &enroll.Service{
		Detector:       det,
		Students:       env.students,
		Profiles:       env.profiles,
		Store:          store,
		MatchThreshold: cfg.MatchThreshold,
		Model:          "test",
	}
	return env
}

func slotFields() map[string]string {
	return map[string]string{
		"class_id":     "CSE3A",
		"subject_code": "CS301",
		"teacher_id":   "7",
		"date":         "2025-03-14",
		"period":       "2",
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
