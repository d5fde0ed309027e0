// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Upload limits
const (
	// MaxUploadSize is the largest accepted multipart request body
	MaxUploadSize = 32 << 20

	// MaxPhotoSize is the largest accepted single photo
	MaxPhotoSize = 25 << 20

	// MultipartMemory is the part of a multipart form kept in memory while parsing
	MultipartMemory = 8 << 20
)

// Enrollment constants
const (
	// MaxCollisions is the number of similar profiles reported when enrolling a face
	MaxCollisions = 5

	// EnrollPhotoQuality is the JPEG quality of stored enrollment photos
	EnrollPhotoQuality = 92
)

// Server constants
const (
	// RequestTimeout bounds a single API request, including all detector calls of a scan
	RequestTimeout = 5 * time.Minute

	// ShutdownTimeout is how long in-flight requests may take after a stop signal
	ShutdownTimeout = 30 * time.Second
)
