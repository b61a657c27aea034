// Package quantize converts normalized float embeddings to symmetric int8 rows
// sharing one global scale.
package quantize

import (
	"math"

	"github.com/hyperjump/glyphseek/internal/errs"
)

// MaxLevel is the largest magnitude a quantized component can take.
const MaxLevel = 127

// Matrix is a row-major int8 embedding matrix.
type Matrix struct {
	Dim   int
	Rows  int
	Scale float32 // MaxLevel / max |component|; not persisted
	Data  []int8  // len(Data) == Dim * Rows
}

// Row returns the i-th row as a sub-slice of Data.
func (m *Matrix) Row(i int) []int8 {
	return m.Data[i*m.Dim : (i+1)*m.Dim]
}

// MaxAbs returns the largest absolute component over all vectors and checks that
// every vector has the same non-zero length.
func MaxAbs(vectors [][]float32) (float32, int, error) {
	if len(vectors) == 0 {
		return 0, 0, errs.Invalid("no vectors to quantize")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, 0, errs.Invalid("vectors have zero dimensions")
	}
	var maxAbs float32
	for i, v := range vectors {
		if len(v) != dim {
			return 0, 0, errs.Invalid("vector %d has %d dimensions, want %d", i, len(v), dim)
		}
		for _, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return 0, 0, errs.Invalid("vector %d has a non-finite component", i)
			}
			if a := float32(math.Abs(float64(x))); a > maxAbs {
				maxAbs = a
			}
		}
	}
	return maxAbs, dim, nil
}

// ScaleFor returns the scale that maps maxAbs onto MaxLevel.
func ScaleFor(maxAbs float32) (float32, error) {
	if maxAbs == 0 {
		return 0, errs.Invalid("all embeddings are zero")
	}
	return MaxLevel / maxAbs, nil
}

// Quantize computes the global scale over vectors and quantizes every component.
// The same input always yields the same scale and output.
func Quantize(vectors [][]float32) (*Matrix, error) {
	maxAbs, _, err := MaxAbs(vectors)
	if err != nil {
		return nil, err
	}
	scale, err := ScaleFor(maxAbs)
	if err != nil {
		return nil, err
	}
	return QuantizeWithScale(vectors, scale)
}

// QuantizeWithScale quantizes vectors with a caller-provided scale. Components are
// clamped to [-MaxLevel, MaxLevel], so a scale derived from a subset of the data
// (streaming or batched builds) cannot overflow.
func QuantizeWithScale(vectors [][]float32, scale float32) (*Matrix, error) {
	if len(vectors) == 0 {
		return nil, errs.Invalid("no vectors to quantize")
	}
	if !(scale > 0) || math.IsInf(float64(scale), 0) {
		return nil, errs.Invalid("scale must be positive and finite, got %v", scale)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errs.Invalid("vectors have zero dimensions")
	}
	m := &Matrix{
		Dim:   dim,
		Rows:  len(vectors),
		Scale: scale,
		Data:  make([]int8, dim*len(vectors)),
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, errs.Invalid("vector %d has %d dimensions, want %d", i, len(v), dim)
		}
		if !finite(v) {
			return nil, errs.Invalid("vector %d has a non-finite component", i)
		}
		QuantizeInto(m.Row(i), v, scale)
	}
	return m, nil
}

func finite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}

// QuantizeInto writes round(v[i]*scale), clamped, into dst. dst must be at least
// len(v) and v must be finite; QuantizeWithScale checks that.
func QuantizeInto(dst []int8, v []float32, scale float32) {
	for i, x := range v {
		q := math.Round(float64(x) * float64(scale))
		if q > MaxLevel {
			q = MaxLevel
		} else if q < -MaxLevel {
			q = -MaxLevel
		}
		dst[i] = int8(q)
	}
}

// Dequantize reconstructs an approximate float row from a quantized one.
func Dequantize(row []int8, scale float32) []float32 {
	out := make([]float32, len(row))
	for i, q := range row {
		out[i] = float32(q) / scale
	}
	return out
}
