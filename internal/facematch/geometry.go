package facematch

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// A zero union (two degenerate boxes) uses 1.0 as the denominator, so degenerate
// boxes always score 0.
func ComputeIoU(a, b BBox) float64 {
	// Calculate intersection.
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	intersection := max(0, x2-x1) * max(0, y2-y1)

	// Calculate union.
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		union = 1.0
	}

	return intersection / union
}

// Remap translates a tile-local detection into full-image coordinates.
// The input is left untouched; the returned detection owns its landmark slice.
func Remap(d Detection, offsetX, offsetY int) Detection {
	ox, oy := float64(offsetX), float64(offsetY)

	out := d
	out.BBox = BBox{
		X1: d.BBox.X1 + ox,
		Y1: d.BBox.Y1 + oy,
		X2: d.BBox.X2 + ox,
		Y2: d.BBox.Y2 + oy,
	}
	if d.Landmarks != nil {
		out.Landmarks = make([]Point, len(d.Landmarks))
		for i, p := range d.Landmarks {
			out.Landmarks[i] = Point{X: p.X + ox, Y: p.Y + oy}
		}
	}
	return out
}

// ClampToImage returns a copy of d whose box lies within [0, width) x [0, height).
// Detectors may report boxes that run slightly past a tile edge.
func ClampToImage(d Detection, width, height int) Detection {
	maxX := float64(max(width-1, 0))
	maxY := float64(max(height-1, 0))

	out := d
	out.BBox = BBox{
		X1: clamp(d.BBox.X1, 0, maxX),
		Y1: clamp(d.BBox.Y1, 0, maxY),
		X2: clamp(d.BBox.X2, 0, maxX),
		Y2: clamp(d.BBox.Y2, 0, maxY),
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
