package vector

import "math"

// DotQuantized returns sum(query[i] * rows[offset+i]) for i in [0, dim).
// It is the per-entry hot path and does not allocate.
func DotQuantized(query []float32, rows []int8, offset, dim int) float64 {
	row := rows[offset : offset+dim]
	q := query[:dim]
	var sum float64
	for i, v := range row {
		sum += float64(q[i]) * float64(v)
	}
	return sum
}

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
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

// CosineSimilarity returns the cosine of the angle between a and b, 0 when either is zero.
func CosineSimilarity(a, b []float32) float64 {
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return InnerProduct(a, b) / (na * nb)
}
