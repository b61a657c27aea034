package vector

import (
	"sync"

	"github.com/hyperjump/glyphseek/internal/artifact"
	"github.com/hyperjump/glyphseek/internal/errs"
)

// QuantizedIndex is a read-only brute-force index over a decoded artifact.
// Exhaustive scoring is enough at corpus sizes of a few thousand entries.
type QuantizedIndex struct {
	corpus *artifact.Artifact
	// scratch score buffers, one per concurrent search
	pool sync.Pool
}

// NewQuantizedIndex wraps a validated artifact. The artifact must not be mutated afterwards.
func NewQuantizedIndex(a *artifact.Artifact) (*QuantizedIndex, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	n := a.Len()
	return &QuantizedIndex{
		corpus: a,
		pool: sync.Pool{New: func() any {
			s := make([]float64, n)
			return &s
		}},
	}, nil
}

// Corpus returns the underlying artifact.
func (x *QuantizedIndex) Corpus() *artifact.Artifact {
	return x.corpus
}

// Dim returns the embedding dimension.
func (x *QuantizedIndex) Dim() int {
	return x.corpus.Dim
}

// Size returns the number of entries.
func (x *QuantizedIndex) Size() int {
	return x.corpus.Len()
}

// Scores fills dst with the score of every entry against query.
func (x *QuantizedIndex) Scores(query []float32, dst []float64) {
	dim := x.corpus.Dim
	rows := x.corpus.Embeddings
	for i := range dst {
		dst[i] = DotQuantized(query, rows, i*dim, dim)
	}
}

// Search scores every entry and returns the top k, best first.
func (x *QuantizedIndex) Search(query []float32, k int) ([]*VectorResult, error) {
	if len(query) != x.corpus.Dim {
		return nil, &errs.DimensionMismatchError{Expected: x.corpus.Dim, Actual: len(query)}
	}
	if k < 1 {
		return nil, errs.Invalid("k must be at least 1, got %d", k)
	}
	buf := x.pool.Get().(*[]float64)
	defer x.pool.Put(buf)
	scores := *buf
	x.Scores(query, scores)

	top := TopK(scores, k)
	results := make([]*VectorResult, len(top))
	for i, idx := range top {
		results[i] = &VectorResult{Index: idx, Score: scores[idx]}
	}
	return results, nil
}
