package vector

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b, or 0 when either is zero or the lengths differ.
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

// topByCosine scores every candidate against query and keeps the n best, highest first.
// Ties keep insertion order.
func topByCosine(cands []Candidate, query []float32, n int) []Candidate {
	for i := range cands {
		cands[i].Score = Cosine(query, cands[i].Vector)
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
	if n >= 0 && n < len(cands) {
		cands = cands[:n]
	}
	return cands
}
