package vectorindex

import (
	"math"
	"sort"

	"github.com/xxxsen/ragchat/internal/model"
)

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// topK scores records (given in insertion order) against vector and keeps the
// k best. Equal scores keep insertion order.
func topK(records []model.IndexRecord, vector []float32, k int) []model.ScoredRecord {
	scored := make([]model.ScoredRecord, 0, len(records))
	for _, rec := range records {
		scored = append(scored, model.ScoredRecord{IndexRecord: rec, Score: Cosine(vector, rec.Vector)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
