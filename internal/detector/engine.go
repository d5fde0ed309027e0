package detector

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/kozaktomas/class-attendance/internal/facematch"
)

// Engine is the process-wide guard around a Detector. It is built once at startup
// and shared by every request. At most `concurrency` calls run at the same time and
// each call is bounded by the configured timeout.
type Engine struct {
	backend Detector
	sem     chan struct{}
	timeout time.Duration
}

// NewEngine wraps backend. concurrency < 1 means 1 (fully serialized); timeout <= 0
// disables the per-call deadline.
func NewEngine(backend Detector, concurrency int, timeout time.Duration) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		backend: backend,
		sem:     make(chan struct{}, concurrency),
		timeout: timeout,
	}
}

// Concurrency returns the maximum number of in-flight detector calls.
func (e *Engine) Concurrency() int {
	return cap(e.sem)
}

// Detect waits for a free slot and forwards the call to the backend.
func (e *Engine) Detect(ctx context.Context, img image.Image) ([]facematch.Detection, error) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for detector: %w", ctx.Err())
	}
	defer func() { <-e.sem }()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	return e.backend.Detect(ctx, img)
}
