package builder

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/hyperjump/glyphseek/internal/quantize"
)

// Report summarizes how faithfully the quantized rows reproduce the original
// vectors, as the cosine between each original and its dequantized row.
type Report struct {
	Entries    int     `json:"entries"`
	Dim        int     `json:"dim"`
	Scale      float32 `json:"scale"`
	MeanCosine float64 `json:"mean_cosine"`
	MinCosine  float64 `json:"min_cosine"`
	StdCosine  float64 `json:"std_cosine"`
}

// NewReport compares vectors against their quantized rows in m.
func NewReport(vectors [][]float32, m *quantize.Matrix) Report {
	r := Report{Entries: m.Rows, Dim: m.Dim, Scale: m.Scale}
	if m.Rows == 0 {
		return r
	}
	cosines := make([]float64, m.Rows)
	orig := make([]float64, m.Dim)
	back := make([]float64, m.Dim)
	for i := 0; i < m.Rows; i++ {
		for j, v := range vectors[i] {
			orig[j] = float64(v)
		}
		for j, q := range m.Row(i) {
			back[j] = float64(q)
		}
		cosines[i] = cosine(orig, back)
	}
	r.MeanCosine, r.StdCosine = stat.MeanStdDev(cosines, nil)
	if math.IsNaN(r.StdCosine) {
		r.StdCosine = 0
	}
	r.MinCosine = floats.Min(cosines)
	return r
}

// cosine is scale-invariant, so rows need not be dequantized first.
func cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
