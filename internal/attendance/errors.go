package attendance

import (
	"errors"

	"github.com/kozaktomas/class-attendance/internal/detector"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

var (
	// ErrInvalidInputImage means the uploaded photo could not be decoded or has no pixels.
	ErrInvalidInputImage = errors.New("invalid input image")
	// ErrEmptyRoster means none of the expected students has an enrolled face.
	ErrEmptyRoster = facematch.ErrEmptyRoster
	// ErrDimensionMismatch means detector and roster embeddings disagree in length.
	ErrDimensionMismatch = facematch.ErrDimensionMismatch
	// ErrDetectorUnavailable means no tile could be sent to the face detector.
	ErrDetectorUnavailable = detector.ErrUnavailable

	ErrNoStudents          = errors.New("class has no students")
	ErrSlotTaken           = errors.New("attendance slot already taken by another teacher")
	ErrSlotSubjectConflict = errors.New("attendance slot already used for a different subject")
	ErrInvalidStatus       = errors.New("invalid attendance status")
	ErrInvalidSlot         = errors.New("invalid attendance slot")
	ErrSessionNotFound     = errors.New("attendance session not found")
	ErrInvalidLeave        = errors.New("invalid leave request")
	ErrLeaveNotFound       = errors.New("leave request not found")
)

// ErrUnknownStudent is returned when a manual mark names a student outside the class.
var ErrUnknownStudent = errors.New("student is not in this class")
