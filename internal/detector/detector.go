// Package detector adapts the face detection and embedding service to the pipeline.
package detector

import (
	"context"
	"errors"
	"image"

	"github.com/kozaktomas/class-attendance/internal/facematch"
)

// ErrUnavailable is returned when the detection backend cannot be reached or refuses work.
var ErrUnavailable = errors.New("face detector unavailable")

// Detector finds faces in an image. Coordinates of the returned detections are
// relative to the image origin. An image without faces yields an empty slice.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]facematch.Detection, error)
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context, img image.Image) ([]facematch.Detection, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, img image.Image) ([]facematch.Detection, error) {
	return f(ctx, img)
}
