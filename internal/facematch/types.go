// Package facematch provides the geometry, duplicate suppression and identity matching
// used by the attendance pipeline. Everything here is pure and request-scoped.
package facematch

// Unknown is the label reported for detections that match nobody on the roster.
const Unknown = "unknown"

// Point is a 2D point in pixel coordinates.
type Point struct {
	X, Y float64
}

// BBox is an axis-aligned box in [x1, y1, x2, y2] corner format.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// Width returns the horizontal extent of the box (0 for inverted boxes).
func (b BBox) Width() float64 {
	return max(0, b.X2-b.X1)
}

// Height returns the vertical extent of the box (0 for inverted boxes).
func (b BBox) Height() float64 {
	return max(0, b.Y2-b.Y1)
}

// Area returns the box area.
func (b BBox) Area() float64 {
	return b.Width() * b.Height()
}

// Slice returns the box as [x1, y1, x2, y2].
func (b BBox) Slice() []float64 {
	return []float64{b.X1, b.Y1, b.X2, b.Y2}
}

// BBoxFromSlice builds a box from [x1, y1, x2, y2]. ok is false for any other length.
func BBoxFromSlice(s []float64) (BBox, bool) {
	if len(s) != 4 {
		return BBox{}, false
	}
	return BBox{X1: s[0], Y1: s[1], X2: s[2], Y2: s[3]}, true
}

// Detection is one face found by the detector.
// Score, the number of landmarks and the embedding never change after creation;
// only coordinates are rewritten, and always into a new value.
type Detection struct {
	BBox      BBox
	Landmarks []Point
	Score     float64
	Embedding []float32
}

// MatchResult is the matcher output for one unique detection.
// Identity is empty when the detection matched nobody; Similarity is then the best
// score that was found, kept for diagnostics.
type MatchResult struct {
	Detection  Detection
	Identity   string
	Similarity float64
}

// Matched reports whether the detection was admitted as a roster identity.
func (m MatchResult) Matched() bool {
	return m.Identity != ""
}

// Label returns the identity, or Unknown for unmatched detections.
func (m MatchResult) Label() string {
	if m.Identity == "" {
		return Unknown
	}
	return m.Identity
}
