// Package tiling splits a classroom photo into overlapping tiles so that small faces
// are presented to the detector at a usable resolution and a face straddling one
// tile boundary still appears whole in a neighbouring tile.
package tiling

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Band is a half-open interval of one image axis, as fractions of its length.
type Band struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// Layout is the grid of overlapping row and column bands. Tiles are the cross
// product of Rows and Columns, enumerated row-major.
type Layout struct {
	Rows    []Band `yaml:"rows"`
	Columns []Band `yaml:"columns"`
}

// DefaultLayout returns the 2x3 grid used for classroom photos.
func DefaultLayout() Layout {
	return Layout{
		Rows: []Band{
			{Start: 0, End: 0.60},
			{Start: 0.40, End: 1.00},
		},
		Columns: []Band{
			{Start: 0, End: 0.45},
			{Start: 0.30, End: 0.75},
			{Start: 0.55, End: 1.00},
		},
	}
}

// Tile is one planned region in full-image coordinates.
// Offset equals Rect.Min and is what tile-local detections must be shifted by.
type Tile struct {
	Index int
	Rect  image.Rectangle
}

// Offset returns the translation from tile-local to full-image coordinates.
func (t Tile) Offset() image.Point {
	return t.Rect.Min
}

// Validate checks that the bands start at 0, end at 1 and that neighbours overlap,
// which together guarantee every pixel is covered.
func (l Layout) Validate() error {
	if err := validateAxis("rows", l.Rows); err != nil {
		return err
	}
	return validateAxis("columns", l.Columns)
}

func validateAxis(name string, bands []Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("%s: at least one band required", name)
	}
	if bands[0].Start != 0 {
		return fmt.Errorf("%s: first band must start at 0, got %v", name, bands[0].Start)
	}
	if bands[len(bands)-1].End != 1 {
		return fmt.Errorf("%s: last band must end at 1, got %v", name, bands[len(bands)-1].End)
	}
	for i, b := range bands {
		if b.Start < 0 || b.End > 1 || b.Start >= b.End {
			return fmt.Errorf("%s[%d]: invalid band [%v, %v]", name, i, b.Start, b.End)
		}
		if i > 0 {
			prev := bands[i-1]
			if b.Start <= prev.Start {
				return fmt.Errorf("%s[%d]: bands must be ordered by start", name, i)
			}
			if b.Start >= prev.End {
				return fmt.Errorf("%s[%d]: band does not overlap its predecessor", name, i)
			}
		}
	}
	return nil
}

// axis converts fractional bands into pixel intervals of an axis of length n.
// Fractions are truncated; a band ending at 1 always ends at n.
func axis(bands []Band, n int) [][2]int {
	out := make([][2]int, 0, len(bands))
	for _, b := range bands {
		start := int(float64(n) * b.Start)
		end := n
		if b.End < 1 {
			end = int(float64(n) * b.End)
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// Plan returns the tiles for an image of the given size. The result depends only
// on the layout and the size. Tiles that would be empty (tiny images) are omitted.
func (l Layout) Plan(width, height int) []Tile {
	if width <= 0 || height <= 0 {
		return nil
	}

	rows := axis(l.Rows, height)
	cols := axis(l.Columns, width)

	tiles := make([]Tile, 0, len(rows)*len(cols))
	for _, r := range rows {
		for _, c := range cols {
			rect := image.Rect(c[0], r[0], c[1], r[1])
			if rect.Empty() {
				continue
			}
			tiles = append(tiles, Tile{Index: len(tiles), Rect: rect})
		}
	}
	return tiles
}

// Guarantee returns the largest face size, in pixels, that is guaranteed to lie
// wholly inside at least one tile wherever it is placed. It is the smallest overlap
// between neighbouring bands on each axis, or the full axis for a single band.
func (l Layout) Guarantee(width, height int) (w, h int) {
	return minOverlap(axis(l.Columns, width), width), minOverlap(axis(l.Rows, height), height)
}

func minOverlap(intervals [][2]int, n int) int {
	best := n
	for i := 1; i < len(intervals); i++ {
		overlap := max(intervals[i-1][1]-intervals[i][0], 0)
		best = min(best, overlap)
	}
	return best
}

// ErrEmptyImage is returned by Split for images without pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Region is a planned tile together with its pixels. Image has its origin at (0, 0),
// so detector coordinates are tile-local.
type Region struct {
	Tile
	Image *image.RGBA
}

// Split copies every planned tile out of img.
func (l Layout) Split(img image.Image) ([]Region, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, ErrEmptyImage
	}

	tiles := l.Plan(bounds.Dx(), bounds.Dy())
	regions := make([]Region, 0, len(tiles))
	for _, t := range tiles {
		dst := image.NewRGBA(image.Rect(0, 0, t.Rect.Dx(), t.Rect.Dy()))
		draw.Copy(dst, image.Point{}, img, t.Rect.Add(bounds.Min), draw.Src, nil)
		regions = append(regions, Region{Tile: t, Image: dst})
	}
	return regions, nil
}
