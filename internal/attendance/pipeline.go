package attendance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"sync"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/class-attendance/internal/annotate"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/detector"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/tiling"
)

// ProgressInfo reports finished tiles of a running scan.
type ProgressInfo struct {
	Current int
	Total   int
	Tile    int
	Faces   int
	Err     error
}

// Pipeline turns one classroom photo into matched faces.
type Pipeline struct {
	Detector       detector.Detector
	Layout         tiling.Layout
	MatchThreshold float64
	NMSThreshold   float64
	OnProgress     func(ProgressInfo) // optional, called from tile goroutines
}

// NewPipeline builds a pipeline from the configured tunables.
func NewPipeline(d detector.Detector, cfg config.PipelineConfig) *Pipeline {
	return &Pipeline{
		Detector:       d,
		Layout:         cfg.Layout,
		MatchThreshold: cfg.MatchThreshold,
		NMSThreshold:   cfg.NMSThreshold,
	}
}

// Result is the outcome of one scan.
type Result struct {
	ScanID        string
	Width         int
	Height        int
	Tiles         int
	FailedTiles   int
	RawDetections int
	Matches       []facematch.MatchResult
	Annotated     *image.RGBA
}

// Unmatched returns the number of faces that matched nobody.
func (r *Result) Unmatched() int {
	n := 0
	for _, m := range r.Matches {
		if !m.Matched() {
			n++
		}
	}
	return n
}

// DecodeImage decodes a JPEG, PNG, GIF, BMP or WebP photo.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidInputImage)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInputImage, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrInvalidInputImage)
	}
	return img, nil
}

type tileResult struct {
	index int
	dets  []facematch.Detection
	err   error
}

// Detect runs the detector on every tile and returns the de-duplicated faces in
// image coordinates, together with the raw detection count and failed tile count.
func (p *Pipeline) Detect(ctx context.Context, img image.Image) (faces []facematch.Detection, raw, failed int, err error) {
	regions, err := p.Layout.Split(img)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %w", ErrInvalidInputImage, err)
	}

	resultsChan := make(chan tileResult, len(regions))
	var wg sync.WaitGroup
	var done int
	var progressMu sync.Mutex

	for i := range regions {
		wg.Add(1)
		go func(idx int, r tiling.Region) {
			defer wg.Done()
			dets, err := p.Detector.Detect(ctx, r.Image)
			resultsChan <- tileResult{index: idx, dets: dets, err: err}

			if p.OnProgress != nil {
				progressMu.Lock()
				done++
				info := ProgressInfo{Current: done, Total: len(regions), Tile: r.Index, Faces: len(dets), Err: err}
				p.OnProgress(info)
				progressMu.Unlock()
			}
		}(i, regions[i])
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	perTile := make([][]facematch.Detection, len(regions))
	var unavailable, lastErr error
	for r := range resultsChan {
		if r.err != nil {
			failed++
			lastErr = r.err
			log.Printf("Tile %d detection failed: %v", regions[r.index].Index, r.err)
			if errors.Is(r.err, detector.ErrUnavailable) && unavailable == nil {
				unavailable = r.err
			}
			continue
		}
		perTile[r.index] = r.dets
	}

	if err := ctx.Err(); err != nil {
		return nil, 0, failed, err
	}
	// Overlap only covers for some failed tiles. With none left there is no signal at all.
	if failed == len(regions) {
		if unavailable != nil {
			return nil, 0, failed, fmt.Errorf("all %d tiles failed: %w", failed, unavailable)
		}
		return nil, 0, failed, fmt.Errorf("%w: all %d tiles failed: %w", ErrDetectorUnavailable, failed, lastErr)
	}

	bounds := img.Bounds()
	var global []facematch.Detection
	for i, dets := range perTile {
		off := regions[i].Offset()
		for _, d := range dets {
			g := facematch.Remap(d, off.X, off.Y)
			global = append(global, facematch.ClampToImage(g, bounds.Dx(), bounds.Dy()))
		}
	}

	if err := facematch.CheckDimensions(global); err != nil {
		return nil, len(global), failed, err
	}
	return facematch.SuppressDuplicates(global, p.NMSThreshold), len(global), failed, nil
}

// Run detects, de-duplicates and matches the faces of img against roster and draws
// the proof image.
func (p *Pipeline) Run(ctx context.Context, img image.Image, roster *facematch.Roster) (*Result, error) {
	if roster == nil || roster.Len() == 0 {
		return nil, ErrEmptyRoster
	}

	faces, raw, failed, err := p.Detect(ctx, img)
	if err != nil {
		return nil, err
	}

	matches, err := facematch.MatchAll(faces, roster, p.MatchThreshold)
	if err != nil {
		return nil, fmt.Errorf("matching faces: %w", err)
	}

	bounds := img.Bounds()
	return &Result{
		ScanID:        uuid.New().String(),
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Tiles:         len(p.Layout.Plan(bounds.Dx(), bounds.Dy())),
		FailedTiles:   failed,
		RawDetections: raw,
		Matches:       matches,
		Annotated:     annotate.Draw(img, matches),
	}, nil
}
