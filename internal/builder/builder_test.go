package builder

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/glyphseek/internal/artifact"
	"github.com/hyperjump/glyphseek/internal/embedding"
	"github.com/hyperjump/glyphseek/internal/errs"
	"github.com/hyperjump/glyphseek/internal/storage"
)

// countingEmbedder records the size of every batch it embeds.
type countingEmbedder struct {
	embedding.Embedder
	mu      sync.Mutex
	batches []int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.batches = append(c.batches, len(texts))
	c.mu.Unlock()
	return c.Embedder.EmbedBatch(ctx, texts)
}

type zeroEmbedder struct{ embedding.Embedder }

func (zeroEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 4)
	}
	return out, nil
}

func loadSample(t *testing.T) []Prepared {
	t.Helper()
	raw, err := LoadRawCorpus(filepath.Join("testdata", "emoji.json"))
	require.NoError(t, err)
	require.Len(t, raw, 5)
	entries, err := PrepareEntries(raw)
	require.NoError(t, err)
	return entries
}

func TestPrepareEntries(t *testing.T) {
	entries := loadSample(t)
	require.Len(t, entries, 3, "obsolete and image-less records are dropped")

	assert.Equal(t, "😀", entries[0].Entry.Glyph)
	assert.Equal(t, "U+1F600", entries[0].Entry.Code)
	assert.Equal(t, "grinning", entries[0].Entry.Name)
	assert.Equal(t, "grinning grinning face smileys & emotion face-smiling", entries[0].Description)

	thumbs := entries[1]
	assert.Equal(t, "\U0001F44D\U0001F3FD", thumbs.Entry.Glyph)
	assert.Equal(t, "U+1F44D U+1F3FD", thumbs.Entry.Code)
	assert.Equal(t, "+1 medium skin tone", thumbs.Entry.Name)
	assert.Equal(t,
		"+1 medium skin tone thumbs up sign people & body hand-fingers-closed thumbsup medium",
		thumbs.Description)

	assert.Equal(t, "dog", entries[2].Entry.Name)
}

func TestPrepareEntries_Invalid(t *testing.T) {
	_, err := PrepareEntries([]RawEmoji{{Unified: "1F60G", ShortName: "bad", HasImgApple: true}})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = PrepareEntries([]RawEmoji{{Unified: "110000", ShortName: "beyond", HasImgApple: true}})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	for _, surrogate := range []string{"D800", "DFFF", "1F600-DC00"} {
		_, err = PrepareEntries([]RawEmoji{{Unified: surrogate, ShortName: "half", HasImgApple: true}})
		assert.ErrorIs(t, err, errs.ErrInvalidInput, surrogate)
	}

	_, err = PrepareEntries([]RawEmoji{{Unified: "1F600", ShortName: "x", HasImgApple: false}})
	assert.ErrorIs(t, err, errs.ErrInvalidInput, "a corpus with no usable entries is degenerate")

	_, err = ParseRawCorpus([]byte(`{"not": "an array"}`))
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestBuilder_Build(t *testing.T) {
	entries := loadSample(t)
	emb := &countingEmbedder{Embedder: embedding.NewHashEmbedder(32)}
	b := New(emb, WithBatchSize(2))

	res, err := b.Build(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, emb.batches)

	a := res.Artifact
	require.NoError(t, a.Validate())
	assert.Equal(t, 32, a.Dim)
	assert.Equal(t, []string{"grinning", "+1 medium skin tone", "dog"}, a.Names)
	for _, v := range a.Embeddings {
		assert.GreaterOrEqual(t, int(v), -127)
		assert.LessOrEqual(t, int(v), 127)
	}
	assert.Greater(t, res.Scale, float32(0))
	assert.Equal(t, 3, res.Report.Entries)
	assert.Greater(t, res.Report.MeanCosine, 0.99)
	assert.LessOrEqual(t, res.Report.MinCosine, res.Report.MeanCosine)
	assert.Zero(t, res.CacheHits)
}

func TestBuilder_BuildDeterministic(t *testing.T) {
	entries := loadSample(t)
	b := New(embedding.NewHashEmbedder(16))
	first, err := b.Build(context.Background(), entries)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, first.Scale, second.Scale)
	assert.Equal(t, first.Artifact.Embeddings, second.Artifact.Embeddings)
}

func TestBuilder_BuildDegenerate(t *testing.T) {
	entries := loadSample(t)
	_, err := New(zeroEmbedder{embedding.NewHashEmbedder(4)}).Build(context.Background(), entries)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = New(embedding.NewHashEmbedder(4)).Build(context.Background(), nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestBuilder_EmbeddingStore(t *testing.T) {
	entries := loadSample(t)
	store, err := storage.NewSQLiteEmbeddingStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()

	emb := &countingEmbedder{Embedder: embedding.NewHashEmbedder(8)}
	b := New(emb, WithEmbeddingStore(store, "hash-8"))

	first, err := b.Build(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, emb.batches)

	second, err := b.Build(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, emb.batches, "second build must not call the model")
	assert.Equal(t, 3, second.CacheHits)
	assert.Equal(t, first.Artifact.Embeddings, second.Artifact.Embeddings)
}

func TestBuilder_Run(t *testing.T) {
	out := filepath.Join(t.TempDir(), "public", "corpus.cbor")
	b := New(embedding.NewHashEmbedder(16))

	for _, compress := range []bool{false, true} {
		s, err := b.Run(context.Background(), filepath.Join("testdata", "emoji.json"), out, compress)
		require.NoError(t, err)
		assert.Equal(t, out, s.Output)
		assert.Equal(t, 3, s.Report.Entries)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Len(t, data, s.Bytes)

		a, err := artifact.Decode(data)
		require.NoError(t, err, "compress=%v", compress)
		assert.Equal(t, 3, a.Len())
		assert.Equal(t, "U+1F436", a.Codes[2])
	}

	_, err := b.Run(context.Background(), filepath.Join("testdata", "emoji.json"), "", false)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}
