package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func TestSQLiteEmbeddingStore_StoreLookup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteEmbeddingStore(filepath.Join(dir, "sub", "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	texts := []string{"grinning face", "thumbs up"}
	vecs := [][]float32{{0.5, -0.25, 1}, {0, 1, 0}}
	if err := store.Store(ctx, "minilm", texts, vecs); err != nil {
		t.Fatal(err)
	}

	got, err := store.Lookup(ctx, "minilm", []string{"thumbs up", "unknown", "grinning face"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(got))
	}
	if v := got["grinning face"]; len(v) != 3 || v[0] != 0.5 || v[1] != -0.25 || v[2] != 1 {
		t.Errorf("grinning face = %v", v)
	}
	if _, ok := got["unknown"]; ok {
		t.Error("unknown should be absent")
	}

	other, err := store.Lookup(ctx, "other-model", texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("embeddings must be scoped by model, got %d hits", len(other))
	}

	n, err := store.Count(ctx, "minilm")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestSQLiteEmbeddingStore_Upsert(t *testing.T) {
	store, err := NewSQLiteEmbeddingStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.Store(ctx, "m", []string{"a"}, [][]float32{{1}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Store(ctx, "m", []string{"a"}, [][]float32{{2}}); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Lookup(ctx, "m", []string{"a"})
	if got["a"][0] != 2 {
		t.Errorf("expected replaced value 2, got %v", got["a"])
	}
	if n, _ := store.Count(ctx, "m"); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}

	if err := store.Store(ctx, "m", []string{"a", "b"}, [][]float32{{1}}); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestSQLiteEmbeddingStore_LookupManyTexts(t *testing.T) {
	store, err := NewSQLiteEmbeddingStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	texts := make([]string, 1200)
	vecs := make([][]float32, len(texts))
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
		vecs[i] = []float32{float32(i)}
	}
	if err := store.Store(ctx, "m", texts, vecs); err != nil {
		t.Fatal(err)
	}
	got, err := store.Lookup(ctx, "m", texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(texts) {
		t.Fatalf("expected %d hits, got %d", len(texts), len(got))
	}
	if got["text 1199"][0] != 1199 {
		t.Errorf("text 1199 = %v", got["text 1199"])
	}
}
