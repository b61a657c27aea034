package builder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/glyphseek/internal/artifact"
	"github.com/hyperjump/glyphseek/internal/embedding"
	"github.com/hyperjump/glyphseek/internal/errs"
	"github.com/hyperjump/glyphseek/internal/quantize"
	"github.com/hyperjump/glyphseek/internal/storage"
)

// DefaultBatchSize is how many descriptions are embedded per call.
const DefaultBatchSize = 64

// Builder embeds prepared entries and produces the artifact.
type Builder struct {
	embedder  embedding.Embedder
	store     storage.EmbeddingStore
	model     string
	batchSize int
	logger    *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithEmbeddingStore reuses embeddings stored under model and stores new ones.
func WithEmbeddingStore(store storage.EmbeddingStore, model string) Option {
	return func(b *Builder) {
		b.store = store
		b.model = model
	}
}

// WithBatchSize sets the embedding batch size. Values below 1 keep the default.
func WithBatchSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithLogger sets the builder logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a builder embedding with embedder.
func New(embedder embedding.Embedder, opts ...Option) *Builder {
	b := &Builder{
		embedder:  embedder,
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Result is a finished build.
type Result struct {
	Artifact  *artifact.Artifact
	Scale     float32
	CacheHits int // embeddings reused from the store
	Report    Report
	EmbedTime time.Duration
}

// Build embeds every entry's description in batches, quantizes the vectors
// with one global scale and assembles the artifact. A degenerate corpus (no
// entries, ragged or all-zero embeddings) is ErrInvalidInput.
func (b *Builder) Build(ctx context.Context, entries []Prepared) (*Result, error) {
	if len(entries) == 0 {
		return nil, errs.Invalid("no entries to build")
	}
	start := time.Now()
	vectors, hits, err := b.embedAll(ctx, entries)
	if err != nil {
		return nil, err
	}
	embedTime := time.Since(start)

	b.logger.Info("Quantizing embeddings", zap.Int("entries", len(vectors)))
	m, err := quantize.Quantize(vectors)
	if err != nil {
		return nil, err
	}

	chars := make([]string, len(entries))
	codes := make([]string, len(entries))
	names := make([]string, len(entries))
	for i, p := range entries {
		chars[i] = p.Entry.Glyph
		codes[i] = p.Entry.Code
		names[i] = p.Entry.Name
	}
	a, err := artifact.FromMatrix(chars, codes, names, m)
	if err != nil {
		return nil, err
	}

	return &Result{
		Artifact:  a,
		Scale:     m.Scale,
		CacheHits: hits,
		Report:    NewReport(vectors, m),
		EmbedTime: embedTime,
	}, nil
}

func (b *Builder) embedAll(ctx context.Context, entries []Prepared) ([][]float32, int, error) {
	vectors := make([][]float32, len(entries))
	hits := 0
	for i := 0; i < len(entries); i += b.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		end := min(i+b.batchSize, len(entries))
		batch := make([]string, end-i)
		for j := range batch {
			batch[j] = entries[i+j].Description
		}

		n, err := b.embedBatch(ctx, batch, vectors[i:end])
		if err != nil {
			return nil, 0, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		hits += n
		b.logger.Info("Embeddings computed",
			zap.String("progress", fmt.Sprintf("%d/%d", end, len(entries))),
			zap.Int("cached", n),
		)
	}
	return vectors, hits, nil
}

// embedBatch fills dst[i] with the embedding of texts[i], consulting the
// store first. It returns how many came from the store.
func (b *Builder) embedBatch(ctx context.Context, texts []string, dst [][]float32) (int, error) {
	var cached map[string][]float32
	if b.store != nil {
		var err error
		cached, err = b.store.Lookup(ctx, b.model, texts)
		if err != nil {
			b.logger.Warn("Embedding cache lookup failed", zap.Error(err))
			cached = nil
		}
	}

	var missing []string
	var missingAt []int
	for i, t := range texts {
		if v, ok := cached[t]; ok {
			dst[i] = v
			continue
		}
		missing = append(missing, t)
		missingAt = append(missingAt, i)
	}
	if len(missing) == 0 {
		return len(texts), nil
	}

	computed, err := b.embedder.EmbedBatch(ctx, missing)
	if err != nil {
		return 0, err
	}
	if len(computed) != len(missing) {
		return 0, fmt.Errorf("%w: got %d embeddings for %d texts", errs.ErrModelUnavailable, len(computed), len(missing))
	}
	for j, i := range missingAt {
		dst[i] = computed[j]
	}
	if b.store != nil {
		if err := b.store.Store(ctx, b.model, missing, computed); err != nil {
			b.logger.Warn("Embedding cache store failed", zap.Error(err))
		}
	}
	return len(texts) - len(missing), nil
}

// Summary describes a build written to disk.
type Summary struct {
	Source   string        `json:"source"`
	Output   string        `json:"output"`
	Bytes    int           `json:"bytes"`
	Report   Report        `json:"report"`
	Cached   int           `json:"cached"`
	Duration time.Duration `json:"duration"`
}

// Run reads the raw corpus at source, builds the artifact and writes it to output.
func (b *Builder) Run(ctx context.Context, source, output string, compress bool) (*Summary, error) {
	if output == "" {
		return nil, errs.Invalid("output path is required")
	}
	start := time.Now()
	raw, err := LoadRawCorpus(source)
	if err != nil {
		return nil, err
	}
	entries, err := PrepareEntries(raw)
	if err != nil {
		return nil, err
	}
	b.logger.Info("Building corpus",
		zap.String("source", source),
		zap.Int("records", len(raw)),
		zap.Int("entries", len(entries)),
	)

	res, err := b.Build(ctx, entries)
	if err != nil {
		return nil, err
	}
	n, err := WriteArtifact(output, res.Artifact, compress)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Source:   source,
		Output:   output,
		Bytes:    n,
		Report:   res.Report,
		Cached:   res.CacheHits,
		Duration: time.Since(start),
	}
	b.logger.Info("Corpus written",
		zap.String("output", output),
		zap.Int("entries", res.Report.Entries),
		zap.Int("dim", res.Report.Dim),
		zap.Float32("scale", res.Scale),
		zap.Int("bytes", n),
		zap.Float64("mean_cosine", res.Report.MeanCosine),
		zap.Duration("took", s.Duration),
	)
	return s, nil
}
