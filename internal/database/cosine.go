package database

import "github.com/kozaktomas/class-attendance/internal/facematch"

// CosineDistance computes the cosine distance between two vectors.
// Returns a value between 0 (identical) and 2 (opposite); invalid or zero
// vectors are treated as maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	similarity := facematch.CosineSimilarity(a, b)
	if similarity == 0 && (isZero(a) || isZero(b)) {
		return 2.0
	}
	// Clamp to [-1, 1] to handle floating point errors
	similarity = min(max(similarity, -1), 1)

	return 1 - similarity
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
