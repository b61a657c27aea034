// Package search answers text queries with the closest glyphs of the loaded corpus.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/glyphseek/internal/artifact"
	"github.com/hyperjump/glyphseek/internal/config"
	"github.com/hyperjump/glyphseek/internal/embedding"
	"github.com/hyperjump/glyphseek/internal/errs"
	"github.com/hyperjump/glyphseek/internal/loader"
	"github.com/hyperjump/glyphseek/internal/metrics"
	"github.com/hyperjump/glyphseek/internal/models"
	"github.com/hyperjump/glyphseek/internal/storage"
	"github.com/hyperjump/glyphseek/internal/vector"
)

// Engine embeds queries and ranks them against the corpus. The corpus is
// fetched and decoded on first use and shared by every later search.
type Engine struct {
	embedder embedding.Embedder
	source   storage.ArtifactSource
	corpus   *loader.Lazy[*vector.QuantizedIndex]
	config   *config.SearchConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records searches and corpus loads on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(
	embedder embedding.Embedder,
	source storage.ArtifactSource,
	cfg *config.SearchConfig,
	opts ...Option,
) *Engine {
	e := &Engine{
		embedder: embedder,
		source:   source,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.corpus = loader.New(e.loadCorpus)
	return e
}

func (e *Engine) loadCorpus(ctx context.Context) (*vector.QuantizedIndex, error) {
	start := time.Now()
	idx, err := e.fetchCorpus(ctx)
	if err != nil {
		e.logger.Warn("Corpus load failed", zap.String("source", e.source.Location()), zap.Error(err))
		e.metrics.ObserveCorpusLoad(0, err)
		return nil, err
	}
	e.logger.Info("Corpus loaded",
		zap.String("source", e.source.Location()),
		zap.Int("entries", idx.Size()),
		zap.Int("dim", idx.Dim()),
		zap.Duration("took", time.Since(start)),
	)
	e.metrics.ObserveCorpusLoad(idx.Size(), nil)
	return idx, nil
}

func (e *Engine) fetchCorpus(ctx context.Context) (*vector.QuantizedIndex, error) {
	data, err := e.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	a, err := artifact.Decode(data)
	if err != nil {
		return nil, err
	}
	return vector.NewQuantizedIndex(a)
}

// SearchTopK returns the topK entries closest to text, best first. Embedding
// the query and loading the corpus run concurrently; either failing fails the
// search with no partial results.
func (e *Engine) SearchTopK(ctx context.Context, text string, topK int) ([]*models.Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.Invalid("query cannot be empty")
	}
	if topK < 1 {
		return nil, errs.Invalid("topK must be at least 1, got %d", topK)
	}

	var (
		queryEmbedding []float32
		index          *vector.QuantizedIndex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := e.embedder.Embed(gctx, text)
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		queryEmbedding = v
		return nil
	})
	g.Go(func() error {
		idx, err := e.corpus.Get(gctx)
		if err != nil {
			return fmt.Errorf("corpus load failed: %w", err)
		}
		index = idx
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits, err := index.Search(queryEmbedding, topK)
	if err != nil {
		return nil, err
	}
	corpus := index.Corpus()
	results := make([]*models.Result, len(hits))
	for i, h := range hits {
		results[i] = &models.Result{
			Glyph: corpus.Chars[h.Index],
			Code:  corpus.Codes[h.Index],
			Name:  corpus.Names[h.Index],
			Score: h.Score,
			Rank:  i + 1,
		}
	}
	return results, nil
}

// Search validates the query, applies the configured limits and runs SearchTopK.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(query, e.config); err != nil {
		e.metrics.ObserveSearch(time.Since(startTime), err)
		return nil, err
	}

	results, err := e.SearchTopK(ctx, query.Query, query.Limit)
	e.metrics.ObserveSearch(time.Since(startTime), err)
	if err != nil {
		e.logger.Debug("Search failed", zap.String("query", query.Query), zap.Error(err))
		return nil, err
	}

	return &models.SearchResponse{
		Query:     query.Query,
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(startTime).Milliseconds(),
	}, nil
}

// Preload loads the corpus and, when the embedder supports it, the model.
// Both run concurrently; the first error is returned.
func (e *Engine) Preload(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := e.corpus.Get(gctx)
		return err
	})
	if p, ok := e.embedder.(interface{ Preload(context.Context) error }); ok {
		g.Go(func() error {
			return p.Preload(gctx)
		})
	}
	return g.Wait()
}

// Corpus returns the decoded artifact, loading it if needed.
func (e *Engine) Corpus(ctx context.Context) (*artifact.Artifact, error) {
	idx, err := e.corpus.Get(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Corpus(), nil
}

// CorpusStatus reports whether the corpus is loaded without triggering a load.
func (e *Engine) CorpusStatus() models.CorpusStatus {
	idx, ok := e.corpus.Peek()
	if !ok {
		return models.CorpusStatus{}
	}
	return models.CorpusStatus{Loaded: true, Entries: idx.Size(), Dim: idx.Dim()}
}
