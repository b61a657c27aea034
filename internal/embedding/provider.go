package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/glyphseek/internal/errs"
	"github.com/hyperjump/glyphseek/internal/loader"
	"github.com/hyperjump/glyphseek/internal/models"
	"github.com/hyperjump/glyphseek/internal/status"
)

// Provider kinds accepted by NewFactory.
const (
	ProviderONNX = "onnx"
	ProviderHash = "hash"
)

// Factory builds the underlying embedder. It is called once per load attempt.
type Factory func(ctx context.Context) (Embedder, error)

// NewFactory returns the factory for the named provider kind. An empty kind
// selects ONNX.
func NewFactory(kind string, cfg ONNXConfig) (Factory, error) {
	switch kind {
	case "", ProviderONNX:
		return func(context.Context) (Embedder, error) {
			return NewONNXEmbedder(cfg)
		}, nil
	case ProviderHash:
		dim := cfg.withDefaults().Dimensions
		return func(context.Context) (Embedder, error) {
			return NewHashEmbedder(dim), nil
		}, nil
	default:
		return nil, errs.Invalid("unknown embedding provider %q", kind)
	}
}

// Provider loads its embedder lazily on first use and reports readiness.
//
// Concurrent first calls share one load. A failed load publishes a not-ready
// status and is retried by the next call. Provider itself satisfies Embedder.
type Provider struct {
	lazy    *loader.Lazy[Embedder]
	status  *status.Broadcaster[models.ProviderStatus]
	logger  *zap.Logger
	observe func(err error)
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets the logger used for load events.
func WithLogger(logger *zap.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLoadObserver registers fn to receive the outcome of every load attempt.
func WithLoadObserver(fn func(err error)) ProviderOption {
	return func(p *Provider) {
		p.observe = fn
	}
}

// NewProvider returns a provider that builds its embedder with factory.
func NewProvider(factory Factory, opts ...ProviderOption) *Provider {
	p := &Provider{
		status: status.NewBroadcaster(models.ProviderStatus{}),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.lazy = loader.New(func(ctx context.Context) (Embedder, error) {
		e, err := factory(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrModelUnavailable, err)
		}
		return e, nil
	}, loader.WithHooks(p.loadStarted, p.loadFinished))
	return p
}

func (p *Provider) loadStarted() {
	p.logger.Info("Loading embedding model")
	p.status.Publish(models.ProviderStatus{Loading: true})
}

func (p *Provider) loadFinished(err error) {
	if err != nil {
		p.logger.Warn("Embedding model failed to load", zap.Error(err))
	} else {
		p.logger.Info("Embedding model ready")
	}
	p.status.Publish(models.ProviderStatus{Ready: err == nil})
	if p.observe != nil {
		p.observe(err)
	}
}

// Preload starts loading the model and waits for the outcome.
func (p *Provider) Preload(ctx context.Context) error {
	_, err := p.lazy.Get(ctx)
	return err
}

// Embed returns the embedding for text, loading the model if needed.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := p.lazy.Get(ctx)
	if err != nil {
		return nil, err
	}
	v, err := e.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrModelUnavailable, err)
	}
	return v, nil
}

// EmbedBatch embeds texts in order, loading the model if needed.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := p.lazy.Get(ctx)
	if err != nil {
		return nil, err
	}
	vs, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrModelUnavailable, err)
	}
	if len(vs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", errs.ErrModelUnavailable, len(vs), len(texts))
	}
	return vs, nil
}

// Dimensions returns the loaded model's dimension, or 0 before it is ready.
func (p *Provider) Dimensions() int {
	if e, ok := p.lazy.Peek(); ok {
		return e.Dimensions()
	}
	return 0
}

// Ready reports whether the model has loaded.
func (p *Provider) Ready() bool {
	return p.lazy.Loaded()
}

// Status returns the current readiness.
func (p *Provider) Status() models.ProviderStatus {
	return p.status.Current()
}

// Subscribe delivers the current status and then every transition.
func (p *Provider) Subscribe() *status.Subscription[models.ProviderStatus] {
	return p.status.Subscribe()
}

// Close releases the embedder if it was loaded.
func (p *Provider) Close() error {
	if e, ok := p.lazy.Peek(); ok {
		return e.Close()
	}
	return nil
}
