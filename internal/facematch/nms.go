package facematch

import "sort"

// DefaultIoUThreshold is the overlap at which two detections are treated as the same face.
const DefaultIoUThreshold = 0.4

// SuppressDuplicates merges detections coming from overlapping tiles using greedy
// non-max suppression. Detections are visited by descending score (ties keep input
// order); each kept detection removes every remaining one whose IoU with it is at
// least iouThreshold. The input slice is not modified.
//
// Running it again on its own output returns the same detections.
func SuppressDuplicates(dets []Detection, iouThreshold float64) []Detection {
	if len(dets) == 0 {
		return nil
	}

	remaining := make([]Detection, len(dets))
	copy(remaining, dets)
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].Score > remaining[j].Score
	})

	keep := make([]Detection, 0, len(remaining))
	for len(remaining) > 0 {
		current := remaining[0]
		keep = append(keep, current)

		survivors := remaining[1:1]
		for _, other := range remaining[1:] {
			if ComputeIoU(current.BBox, other.BBox) < iouThreshold {
				survivors = append(survivors, other)
			}
		}
		remaining = survivors
	}

	return keep
}
