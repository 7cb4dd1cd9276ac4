package clustering

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Cosine is the cosine similarity of a and b. Empty, zero-norm or
// dimension-mismatched inputs score 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 || math.IsNaN(na) || math.IsNaN(nb) {
		return 0
	}
	sim := floats.Dot(a, b) / (na * nb)
	if math.IsNaN(sim) {
		return 0
	}
	return math.Max(-1, math.Min(1, sim))
}

// Mean averages the vectors that share the dimension of the first non-empty
// one. It returns nil when no vector qualifies.
func Mean(vectors [][]float64) []float64 {
	var (
		sum   []float64
		count int
	)
	for _, vector := range vectors {
		if len(vector) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(vector))
		}
		if len(vector) != len(sum) {
			continue
		}
		floats.Add(sum, vector)
		count++
	}
	if count == 0 {
		return nil
	}
	floats.Scale(1/float64(count), sum)
	return sum
}

// Usable reports whether v can take part in similarity scoring.
func Usable(v []float64) bool {
	if len(v) == 0 {
		return false
	}
	norm := floats.Norm(v, 2)
	return norm > 0 && !math.IsNaN(norm) && !math.IsInf(norm, 0)
}
