package searcher

import (
	"math"

	"github.com/dshills/hybridsearch-mcp/internal/storage"
)

// CosineSimilarity returns the cosine of the angle between a and b in
// [-1,1]. Empty, mismatched or zero-magnitude inputs yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(sim):
		return 0
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	}
	return sim
}

// SemanticScore compares a query vector with a raw stored vector value.
// present is false when the stored value is NULL, malformed, or of another
// dimension; such rows are treated as having no vector.
func SemanticScore(query []float32, raw interface{}) (score float64, present bool) {
	if raw == nil {
		return 0, false
	}
	vec, err := storage.DecodeVectorValue(raw)
	if err != nil || len(vec) == 0 || len(vec) != len(query) {
		return 0, false
	}
	return CosineSimilarity(query, vec), true
}
