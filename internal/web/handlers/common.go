package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/enroll"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, attendance.ErrInvalidInputImage),
		errors.Is(err, attendance.ErrEmptyRoster),
		errors.Is(err, attendance.ErrNoStudents),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrInvalidSlot),
		errors.Is(err, attendance.ErrUnknownStudent),
		errors.Is(err, attendance.ErrInvalidLeave),
		errors.Is(err, enroll.ErrNoFaceDetected),
		errors.Is(err, enroll.ErrMultipleFaces):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrSessionNotFound),
		errors.Is(err, attendance.ErrLeaveNotFound),
		errors.Is(err, enroll.ErrUnknownStudent):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrSlotTaken),
		errors.Is(err, attendance.ErrSlotSubjectConflict):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrDetectorUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError logs server-side failures and sends the mapped status.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %s", r.Method, sanitizeForLog(r.URL.Path), sanitizeForLog(err.Error()))
	}
	respondError(w, status, err.Error())
}

// readPhoto parses a multipart request and returns the bytes of the given file field.
func readPhoto(w http.ResponseWriter, r *http.Request, field string) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MultipartMemory); err != nil {
		return nil, errors.New("failed to parse multipart form")
	}

	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%s file is required", field)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxPhotoSize+1))
	if err != nil {
		return nil, errors.New("failed to read uploaded file")
	}
	if len(data) > constants.MaxPhotoSize {
		return nil, fmt.Errorf("%s is larger than %d MB", field, constants.MaxPhotoSize>>20)
	}
	return data, nil
}

// slotRequest is the slot part of attendance requests.
type slotRequest struct {
	ClassID     string `json:"class_id"`
	SubjectCode string `json:"subject_code"`
	TeacherID   int64  `json:"teacher_id"`
	Date        string `json:"date"`
	Period      int    `json:"period"`
}

func (s slotRequest) toSlot() (attendance.Slot, error) {
	date, err := attendance.ParseDate(s.Date)
	if err != nil {
		return attendance.Slot{}, err
	}
	slot := attendance.Slot{
		ClassID:     facematch.NormalizeIdentifier(s.ClassID),
		SubjectCode: strings.TrimSpace(s.SubjectCode),
		TeacherID:   s.TeacherID,
		Date:        date,
		Period:      s.Period,
	}
	return slot, slot.Validate()
}

// slotFromForm reads a slot from multipart form values.
func slotFromForm(r *http.Request) (attendance.Slot, error) {
	req := slotRequest{
		ClassID:     r.FormValue("class_id"),
		SubjectCode: r.FormValue("subject_code"),
		Date:        r.FormValue("date"),
	}
	var err error
	if req.TeacherID, err = strconv.ParseInt(r.FormValue("teacher_id"), 10, 64); err != nil {
		return attendance.Slot{}, fmt.Errorf("%w: teacher_id must be a number", attendance.ErrInvalidSlot)
	}
	if req.Period, err = strconv.Atoi(r.FormValue("period")); err != nil {
		return attendance.Slot{}, fmt.Errorf("%w: period must be a number", attendance.ErrInvalidSlot)
	}
	return req.toSlot()
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
