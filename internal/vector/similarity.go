package vector

import "math"

// MinScore is the score assigned to passages whose similarity is undefined
// (zero-norm or non-finite vectors). It is the lowest possible cosine value.
const MinScore = -1.0

// InnerProduct returns the inner product of two vectors, accumulated in float64.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns dot(a, b) / (|a| * |b|). The second return value is false
// when the similarity is undefined: different lengths, a zero-norm operand or a
// non-finite result. In that case the score is MinScore.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return MinScore, false
	}
	return cosine(a, b, L2Norm(a), L2Norm(b))
}

// cosine computes the similarity from precomputed norms.
func cosine(a, b []float32, normA, normB float64) (float64, bool) {
	if normA == 0 || normB == 0 || !finite(normA) || !finite(normB) {
		return MinScore, false
	}
	score := InnerProduct(a, b) / (normA * normB)
	if !finite(score) {
		return MinScore, false
	}
	// Rounding can push identical directions slightly past 1.
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	return score, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
