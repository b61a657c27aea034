package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/glyphseek/pkg/utils"
)

// HashEmbedder is a deterministic bag-of-words embedder. Each lower-cased word
// and its character trigrams are hashed into a signed bucket. Texts sharing
// words land close together, which is enough for tests and offline builds
// without a model.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of the given dimension.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the unit-length hashed embedding of text. Text without any
// word yields the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, e.dimensions)
	for _, word := range SplitWords(text) {
		e.add(v, word, 1)
		r := []rune("#" + word + "#")
		for i := 0; i+3 <= len(r); i++ {
			e.add(v, string(r[i:i+3]), 0.5)
		}
	}
	utils.NormalizeL2(v)
	return v, nil
}

func (e *HashEmbedder) add(v []float32, token string, weight float32) {
	h := HashString(token)
	if h&(1<<30) != 0 {
		weight = -weight
	}
	v[h%e.dimensions] += weight
}

// EmbedBatch embeds each text in order.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}
