package facematch

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// DefaultMatchThreshold is the similarity a match must exceed to be admitted.
const DefaultMatchThreshold = 0.4

var (
	// ErrDimensionMismatch is returned when embeddings in one run have different lengths.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmptyRoster is returned when no enrolled embedding is available for matching.
	ErrEmptyRoster = errors.New("no enrolled embeddings in roster")
)

// Roster is an immutable set of enrolled embeddings keyed by student identifier.
type Roster struct {
	ids        []string
	embeddings map[string][]float32
	dim        int
}

// NewRoster builds a roster from identifier -> embedding. Entries without an
// embedding are skipped; such students can never be matched and end up absent.
// All remaining embeddings must share one dimensionality.
func NewRoster(entries map[string][]float32) (*Roster, error) {
	r := &Roster{embeddings: make(map[string][]float32, len(entries))}

	for id, emb := range entries {
		if len(emb) == 0 {
			continue
		}
		if r.dim == 0 {
			r.dim = len(emb)
		} else if len(emb) != r.dim {
			return nil, fmt.Errorf("%w: roster entry %q has %d values, expected %d", ErrDimensionMismatch, id, len(emb), r.dim)
		}
		vec := make([]float32, len(emb))
		copy(vec, emb)
		r.embeddings[id] = vec
		r.ids = append(r.ids, id)
	}

	if len(r.ids) == 0 {
		return nil, ErrEmptyRoster
	}
	sort.Strings(r.ids)

	return r, nil
}

// Len returns the number of enrolled embeddings.
func (r *Roster) Len() int { return len(r.ids) }

// Dim returns the embedding dimensionality shared by all entries.
func (r *Roster) Dim() int { return r.dim }

// IDs returns the identifiers in ascending order.
func (r *Roster) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Match compares one embedding against every roster entry.
// Entries are visited in ascending identifier order and only a strictly higher
// similarity replaces the current best, so ties go to the lowest identifier.
// The best similarity is returned even when it does not exceed threshold.
func (r *Roster) Match(embedding []float32, threshold float64) (identity string, similarity float64, err error) {
	if len(embedding) != r.dim {
		return "", 0, fmt.Errorf("%w: detection has %d values, roster has %d", ErrDimensionMismatch, len(embedding), r.dim)
	}

	best := math.Inf(-1)
	bestID := ""
	for _, id := range r.ids {
		sim := CosineSimilarity(embedding, r.embeddings[id])
		if sim > best {
			best = sim
			bestID = id
		}
	}

	if best > threshold {
		return bestID, best, nil
	}
	return "", best, nil
}

// MatchAll matches each detection against the roster. Every detection must carry
// an embedding with the roster's dimensionality.
func MatchAll(dets []Detection, roster *Roster, threshold float64) ([]MatchResult, error) {
	if roster == nil || roster.Len() == 0 {
		return nil, ErrEmptyRoster
	}
	if err := CheckDimensions(dets); err != nil {
		return nil, err
	}

	results := make([]MatchResult, 0, len(dets))
	for i, d := range dets {
		id, sim, err := roster.Match(d.Embedding, threshold)
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		results = append(results, MatchResult{Detection: d, Identity: id, Similarity: sim})
	}
	return results, nil
}

// CheckDimensions verifies that all detections share one embedding length.
func CheckDimensions(dets []Detection) error {
	if len(dets) == 0 {
		return nil
	}
	dim := len(dets[0].Embedding)
	for i, d := range dets[1:] {
		if len(d.Embedding) != dim {
			return fmt.Errorf("%w: detection %d has %d values, detection 0 has %d", ErrDimensionMismatch, i+1, len(d.Embedding), dim)
		}
	}
	return nil
}

// CosineSimilarity returns dot(a, b) / (|a| * |b|), or 0 for zero or mismatched vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize returns a unit-length copy of v. Zero vectors are returned as a zero copy.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	n := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}
