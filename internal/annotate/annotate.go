// Package annotate burns detection boxes and identity labels into the proof image.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kozaktomas/class-attendance/internal/facematch"
)

const (
	strokeWidth = 2
	labelGap    = 4
	// DefaultQuality is the JPEG quality used for stored proof images.
	DefaultQuality = 85
)

var (
	matchedColor = color.RGBA{G: 255, A: 255}
	unknownColor = color.RGBA{R: 255, A: 255}
)

// Label returns the text drawn next to a detection: "<identity> (NN%)" for matches
// and "Unknown" otherwise.
func Label(m facematch.MatchResult) string {
	if !m.Matched() {
		return "Unknown"
	}
	return fmt.Sprintf("%s (%d%%)", m.Identity, int(m.Similarity*100))
}

// Draw returns a copy of img with one rectangle and label per match result.
// Matched faces are drawn in green, unknown faces in red. img is not modified.
func Draw(img image.Image, results []facematch.MatchResult) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Copy(out, image.Point{}, img, bounds, draw.Src, nil)

	for _, r := range results {
		c := unknownColor
		if r.Matched() {
			c = matchedColor
		}
		rect := pixelRect(r.Detection.BBox)
		strokeRect(out, rect, c)
		drawLabel(out, rect, facematch.ASCIILabel(Label(r)), c)
	}
	return out
}

func pixelRect(b facematch.BBox) image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X1)), int(math.Floor(b.Y1)),
		int(math.Ceil(b.X2)), int(math.Ceil(b.Y2)),
	)
}

// strokeRect draws the outline of r with the given color, clipped to dst.
func strokeRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+strokeWidth),
		image.Rect(r.Min.X, r.Max.Y-strokeWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+strokeWidth, r.Max.Y),
		image.Rect(r.Max.X-strokeWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		e = e.Intersect(dst.Bounds())
		if e.Empty() {
			continue
		}
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}

// drawLabel writes text above the box, or just inside it when there is no room above.
func drawLabel(dst *image.RGBA, box image.Rectangle, text string, c color.Color) {
	face := basicfont.Face7x13
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()

	y := box.Min.Y - labelGap
	if y-ascent < 0 {
		y = box.Min.Y + strokeWidth + ascent
	}
	x := max(box.Min.X, 0)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// EncodeJPEG encodes img as JPEG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
