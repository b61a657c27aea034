// Package storage fetches the corpus artifact and persists build-time embeddings.
package storage

import (
	"context"
)

// ArtifactSource yields the raw bytes of an encoded corpus artifact.
type ArtifactSource interface {
	// Fetch returns the artifact bytes. Failures wrap errs.ErrDataUnavailable.
	Fetch(ctx context.Context) ([]byte, error)
	// Location names where the artifact comes from, for logs and status.
	Location() string
}

// EmbeddingStore caches text embeddings across builds, keyed by model and text.
type EmbeddingStore interface {
	// Lookup returns the stored embeddings for texts. Missing texts are absent from the map.
	Lookup(ctx context.Context, model string, texts []string) (map[string][]float32, error)
	// Store records embeddings[i] as the embedding of texts[i].
	Store(ctx context.Context, model string, texts []string, embeddings [][]float32) error
	// Count returns the number of stored embeddings for model.
	Count(ctx context.Context, model string) (int64, error)

	Close() error
}
