package attendance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"
	"time"

	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/detector"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

var (
	faceColor = color.RGBA{R: 255, A: 255}
	failColor = color.RGBA{B: 255, A: 255}
	embS1     = []float32{1, 0, 0, 0}
	embS2     = []float32{0, 1, 0, 0}
)

// classroom returns a 1000x600 photo with one red "face" at rect. With the default
// layout the columns are [0,450] [300,750] [550,1000] and the rows [0,360] [240,600].
func classroom(faces ...image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1000, 600))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Gray{Y: 128}}, image.Point{}, draw.Src)
	for _, f := range faces {
		draw.Draw(img, f, &image.Uniform{C: faceColor}, image.Point{}, draw.Src)
	}
	return img
}

func isColor(img image.Image, x, y int, c color.RGBA) bool {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(r>>8) == c.R && uint8(g>>8) == c.G && uint8(b>>8) == c.B
}

// colorDetector reports every red region that is not cut by the tile edge as a face
// with the given embedding. The score depends on where the face sits in the tile.
// Tiles containing a blue pixel fail.
func colorDetector(embedding []float32) detector.Func {
	return func(ctx context.Context, img image.Image) ([]facematch.Detection, error) {
		b := img.Bounds()
		minX, minY, maxX, maxY := b.Max.X, b.Max.Y, -1, -1
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if isColor(img, x, y, failColor) {
					return nil, errors.New("tile rejected")
				}
				if !isColor(img, x, y, faceColor) {
					continue
				}
				minX, minY = min(minX, x), min(minY, y)
				maxX, maxY = max(maxX, x), max(maxY, y)
			}
		}
		if maxX < 0 {
			return nil, nil
		}
		if minX == b.Min.X || minY == b.Min.Y || maxX == b.Max.X-1 || maxY == b.Max.Y-1 {
			return nil, nil
		}
		box := facematch.BBox{X1: float64(minX), Y1: float64(minY), X2: float64(maxX + 1), Y2: float64(maxY + 1)}
		return []facematch.Detection{{
			BBox:      box,
			Landmarks: []facematch.Point{{X: box.X1 + 5, Y: box.Y1 + 5}},
			Score:     0.9 + float64(minX)/10000,
			Embedding: embedding,
		}}, nil
	}
}

func testRoster(t *testing.T) *facematch.Roster {
	t.Helper()
	r, err := facematch.NewRoster(map[string][]float32{"S1": embS1, "S2": embS2})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestPipeline_SeamFaceMatchedOnce(t *testing.T) {
	seam := image.Rect(340, 100, 410, 170)
	p := NewPipeline(colorDetector(embS1), config.DefaultPipeline())

	var progress []ProgressInfo
	p.OnProgress = func(info ProgressInfo) { progress = append(progress, info) }

	res, err := p.Run(context.Background(), classroom(seam), testRoster(t))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if res.Tiles != 6 {
		t.Errorf("Tiles = %d, want 6", res.Tiles)
	}
	if res.RawDetections != 2 {
		t.Errorf("RawDetections = %d, want 2 (seen whole in two tiles)", res.RawDetections)
	}
	if len(res.Matches) != 1 {
		t.Fatalf("got %d matches, want exactly 1: %+v", len(res.Matches), res.Matches)
	}

	m := res.Matches[0]
	if m.Identity != "S1" {
		t.Errorf("Identity = %q, want S1", m.Identity)
	}
	want := facematch.BBox{X1: 340, Y1: 100, X2: 410, Y2: 170}
	if m.Detection.BBox != want {
		t.Errorf("BBox = %+v, want %+v", m.Detection.BBox, want)
	}
	// The copy from the first column tile has the higher score and survives.
	if m.Detection.Score < 0.93 {
		t.Errorf("Score = %v, want the first tile's score", m.Detection.Score)
	}
	if m.Detection.Landmarks[0] != (facematch.Point{X: 345, Y: 105}) {
		t.Errorf("landmark = %+v, want global coordinates", m.Detection.Landmarks[0])
	}

	if len(progress) != 6 || progress[5].Current != 6 || progress[5].Total != 6 {
		t.Errorf("progress = %+v, want 6 callbacks ending at 6/6", progress)
	}
	if res.Annotated.Bounds() != image.Rect(0, 0, 1000, 600) {
		t.Errorf("annotated bounds = %v", res.Annotated.Bounds())
	}
	if res.ScanID == "" {
		t.Error("ScanID not set")
	}
}

func TestPipeline_UnknownFace(t *testing.T) {
	p := NewPipeline(colorDetector([]float32{0, 0, 1, 0}), config.DefaultPipeline())

	res, err := p.Run(context.Background(), classroom(image.Rect(800, 400, 860, 470)), testRoster(t))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].Matched() {
		t.Fatalf("matches = %+v, want one unmatched face", res.Matches)
	}
	if res.Unmatched() != 1 {
		t.Errorf("Unmatched() = %d, want 1", res.Unmatched())
	}
}

func TestPipeline_TileFailureTolerated(t *testing.T) {
	img := classroom(image.Rect(340, 100, 410, 170))
	// Blue marker only inside the first tile.
	draw.Draw(img, image.Rect(5, 5, 10, 10), &image.Uniform{C: failColor}, image.Point{}, draw.Src)

	p := NewPipeline(colorDetector(embS1), config.DefaultPipeline())
	res, err := p.Run(context.Background(), img, testRoster(t))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.FailedTiles != 1 {
		t.Errorf("FailedTiles = %d, want 1", res.FailedTiles)
	}
	if len(res.Matches) != 1 || res.Matches[0].Identity != "S1" {
		t.Errorf("matches = %+v, want S1 from the second tile", res.Matches)
	}
}

func TestPipeline_Errors(t *testing.T) {
	unavailable := detector.Func(func(ctx context.Context, img image.Image) ([]facematch.Detection, error) {
		return nil, fmt.Errorf("%w: connection refused", detector.ErrUnavailable)
	})
	broken := detector.Func(func(ctx context.Context, img image.Image) ([]facematch.Detection, error) {
		return nil, errors.New("bad response")
	})
	wrongDim := colorDetector([]float32{1, 0})

	tests := []struct {
		name    string
		det     detector.Detector
		roster  *facematch.Roster
		wantErr error
	}{
		{"all tiles unavailable", unavailable, testRoster(t), ErrDetectorUnavailable},
		{"embedding dimension mismatch", wrongDim, testRoster(t), ErrDimensionMismatch},
		{"empty roster", colorDetector(embS1), nil, ErrEmptyRoster},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(tt.det, config.DefaultPipeline())
			_, err := p.Run(context.Background(), classroom(image.Rect(340, 100, 410, 170)), tt.roster)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("every tile failing for any reason aborts the scan", func(t *testing.T) {
		p := NewPipeline(broken, config.DefaultPipeline())
		res, err := p.Run(context.Background(), classroom(), testRoster(t))
		if !errors.Is(err, ErrDetectorUnavailable) {
			t.Errorf("Run() error = %v, want ErrDetectorUnavailable", err)
		}
		if res != nil {
			t.Errorf("Run() result = %+v, want nil", res)
		}
	})
}

// stallOnMarker blocks on tiles containing a blue pixel until the call's context ends
// and runs next on every other tile.
func stallOnMarker(next detector.Func) detector.Func {
	return func(ctx context.Context, img image.Image) ([]facematch.Detection, error) {
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if isColor(img, x, y, failColor) {
					<-ctx.Done()
					return nil, ctx.Err()
				}
			}
		}
		return next(ctx, img)
	}
}

func TestPipeline_TileTimeouts(t *testing.T) {
	stallAll := detector.Func(func(ctx context.Context, img image.Image) ([]facematch.Detection, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	t.Run("all tiles time out", func(t *testing.T) {
		p := NewPipeline(detector.NewEngine(stallAll, 6, 5*time.Millisecond), config.DefaultPipeline())
		res, err := p.Run(context.Background(), classroom(image.Rect(340, 100, 410, 170)), testRoster(t))
		if err == nil {
			t.Fatalf("Run() succeeded with %d matches, want an error", len(res.Matches))
		}
		if !errors.Is(err, ErrDetectorUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Run() error = %v, want ErrDetectorUnavailable wrapping the deadline", err)
		}
	})

	t.Run("one tile times out", func(t *testing.T) {
		img := classroom(image.Rect(340, 100, 410, 170))
		// Blue marker only inside the first tile, which also sees the face.
		draw.Draw(img, image.Rect(5, 5, 10, 10), &image.Uniform{C: failColor}, image.Point{}, draw.Src)

		p := NewPipeline(detector.NewEngine(stallOnMarker(colorDetector(embS1)), 6, 500*time.Millisecond), config.DefaultPipeline())
		res, err := p.Run(context.Background(), img, testRoster(t))
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if res.FailedTiles != 1 {
			t.Errorf("FailedTiles = %d, want 1", res.FailedTiles)
		}
		if len(res.Matches) != 1 || res.Matches[0].Identity != "S1" {
			t.Errorf("matches = %+v, want S1 from the neighbouring tile", res.Matches)
		}
	})
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPipeline(detector.NewEngine(colorDetector(embS1), 1, 0), config.DefaultPipeline())
	if _, err := p.Run(ctx, classroom(), testRoster(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, classroom()); err != nil {
		t.Fatal(err)
	}

	img, err := DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeImage() error: %v", err)
	}
	if img.Bounds().Dx() != 1000 {
		t.Errorf("width = %d, want 1000", img.Bounds().Dx())
	}

	for _, data := range [][]byte{nil, []byte("not an image")} {
		if _, err := DecodeImage(data); !errors.Is(err, ErrInvalidInputImage) {
			t.Errorf("DecodeImage(%q) error = %v, want ErrInvalidInputImage", data, err)
		}
	}
}
