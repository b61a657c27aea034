// Package main is the glyphseek CLI entry point.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/hyperjump/glyphseek/internal/artifact"
	"github.com/hyperjump/glyphseek/internal/builder"
	"github.com/hyperjump/glyphseek/internal/cli"
	"github.com/hyperjump/glyphseek/internal/config"
	"github.com/hyperjump/glyphseek/internal/embedding"
	"github.com/hyperjump/glyphseek/internal/metrics"
	"github.com/hyperjump/glyphseek/internal/models"
	"github.com/hyperjump/glyphseek/internal/search"
	"github.com/hyperjump/glyphseek/internal/server"
	"github.com/hyperjump/glyphseek/internal/storage"
	"github.com/hyperjump/glyphseek/internal/watcher"
	"github.com/hyperjump/glyphseek/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/glyphseek/config.yaml"

// loadConfig loads config from path. When path is the default and a
// config.yaml exists in the current directory, that file is used instead so
// commands run from a checkout pick up the checkout's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == defaultConfigPath {
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		return cfg, "", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "build":
		runBuild()
	case "inspect":
		runInspect()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("glyphseek version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := *debug || cfg.Debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()
	logger.Info("Configuration loaded",
		zap.String("config", resolvedConfigPath),
		zap.String("corpus", components.Source.Location()),
		zap.String("provider", cfg.Embedding.Provider),
	)

	if cfg.Embedding.Preload {
		go func() {
			if err := components.Engine.Preload(context.Background()); err != nil {
				logger.Warn("Preload failed; will retry on first search", zap.Error(err))
			}
		}()
	}

	srv := server.NewServer(components.Engine, components.Provider, components.Metrics, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: glyphseek search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  glyphseek search happy dog
  glyphseek search --limit 3 "thumbs up"
  glyphseek search --server "" --output json rocket   # load model and corpus in-process
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word
// queries work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags that appear after the query to the front so
// flag.Parse sees them; the flag package stops at the first positional arg.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = search in-process)")
	limit := fs.Int("limit", 0, "number of results (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	searchQuery := &models.SearchQuery{Query: queryStr, Limit: *limit}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, searchQuery)
	} else {
		response, err = searchInProcess(*configPath, searchQuery)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchInProcess(configPath string, query *models.SearchQuery) (*models.SearchResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Engine.Search(context.Background(), query)
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (used with --server \"\")")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = report on-disk state)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *serverURL == "" {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteLocalStatus(os.Stdout, localStatus(cfg), format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	st, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// localStatus reports what is on disk without loading the model or corpus.
// Missing files are not errors; their fields are left out.
func localStatus(cfg *config.Config) *cli.LocalStatus {
	st := &cli.LocalStatus{
		Model:     cfg.Embedding.ModelName(),
		Corpus:    firstNonEmpty(cfg.Corpus.Path, cfg.Corpus.URL),
		CachePath: cfg.Build.CachePath,
	}
	if disk, err := storage.DiskUsageBytes(cfg.Corpus.Path, cfg.Build.CachePath); err == nil {
		st.DiskUsageBytes = &disk
	}
	if cfg.Build.CachePath != "" {
		if _, err := os.Stat(cfg.Build.CachePath); err == nil {
			if store, err := storage.NewSQLiteEmbeddingStore(cfg.Build.CachePath); err == nil {
				if n, err := store.Count(context.Background(), st.Model); err == nil {
					st.CachedEmbeddings = &n
				}
				_ = store.Close()
			}
		}
	}
	return st
}

func statusViaHTTP(serverURL string) (*models.Status, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var s models.Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// serverError turns a non-200 API response into an error carrying the
// server's message when the body has one.
func serverError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	source := fs.String("source", "", "raw emoji JSON (default: build.source_path)")
	output := fs.String("output", "", "artifact output path (default: build.output_path)")
	compress := fs.Bool("compress", false, "zstd-compress the artifact")
	watch := fs.Bool("watch", false, "rebuild whenever the source file changes")
	outputFormat := fs.String("output-format", "text", "summary format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := utils.NewCLILogger(*debug || cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	opts := buildOptions{
		source:   firstNonEmpty(*source, cfg.Build.SourcePath),
		output:   firstNonEmpty(*output, cfg.Build.OutputPath),
		compress: *compress || cfg.Build.Compress,
	}

	b, closeBuilder, err := newBuilder(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer closeBuilder()

	// Watch callbacks run on timer goroutines; one build at a time.
	var mu sync.Mutex
	build := func() {
		mu.Lock()
		defer mu.Unlock()
		summary, err := b.Run(context.Background(), opts.source, opts.output, opts.compress)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
			if !*watch {
				closeBuilder()
				os.Exit(1)
			}
			return
		}
		if err := cli.WriteBuildSummary(os.Stdout, summary, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		}
	}

	build()
	if !*watch {
		return
	}

	w, err := watcher.New([]string{opts.source}, func(string) { build() }, watcher.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create watcher: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start watcher: %v\n", err)
		os.Exit(1)
	}
	defer w.Stop()
	fmt.Printf("Watching %s for changes (Ctrl+C to stop)\n", opts.source)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}

type buildOptions struct {
	source   string
	output   string
	compress bool
}

// newBuilder wires a builder to the configured embedding provider and, when
// build.cache_path is set, to the SQLite embedding cache.
func newBuilder(cfg *config.Config, logger *zap.Logger) (*builder.Builder, func(), error) {
	provider, err := newProvider(cfg, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	opts := []builder.Option{
		builder.WithBatchSize(cfg.Build.BatchSize),
		builder.WithLogger(logger),
	}
	var store *storage.SQLiteEmbeddingStore
	if cfg.Build.CachePath != "" {
		store, err = storage.NewSQLiteEmbeddingStore(cfg.Build.CachePath)
		if err != nil {
			_ = provider.Close()
			return nil, nil, fmt.Errorf("failed to open embedding cache: %w", err)
		}
		opts = append(opts, builder.WithEmbeddingStore(store, cfg.Embedding.ModelName()))
	}
	closed := false
	closeFn := func() {
		if closed {
			return
		}
		closed = true
		if store != nil {
			_ = store.Close()
		}
		_ = provider.Close()
	}
	return builder.New(provider, opts...), closeFn, nil
}

func runInspect() {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	sample := fs.Int("sample", 5, "number of entries to list")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: glyphseek inspect [flags] <artifact>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	info, err := inspectArtifact(fs.Arg(0), *sample)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteArtifactInfo(os.Stdout, info, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func inspectArtifact(path string, sample int) (*cli.ArtifactInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a, err := artifact.Decode(data)
	if err != nil {
		return nil, err
	}
	return cli.NewArtifactInfo(path, int64(len(data)), a, sample), nil
}

// Components holds initialized services.
type Components struct {
	Provider *embedding.Provider
	Source   storage.ArtifactSource
	Engine   *search.Engine
	Metrics  *metrics.Metrics
}

func (c *Components) Close() {
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
}

func newProvider(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*embedding.Provider, error) {
	factory, err := embedding.NewFactory(cfg.Embedding.Provider, embedding.ONNXConfig{
		ModelPath:   cfg.Embedding.ModelPath,
		LibraryPath: cfg.Embedding.LibraryPath,
		Dimensions:  cfg.Embedding.Dimensions,
		MaxTokens:   cfg.Embedding.MaxTokens,
		CacheSize:   cfg.Embedding.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return embedding.NewProvider(factory,
		embedding.WithLogger(logger),
		embedding.WithLoadObserver(m.ObserveModelLoad),
	), nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	source, err := storage.NewArtifactSource(cfg.Corpus.Path, cfg.Corpus.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize corpus source: %w", err)
	}
	m := metrics.New()
	provider, err := newProvider(cfg, logger, m)
	if err != nil {
		return nil, err
	}
	engine := search.NewEngine(provider, source, &cfg.Search,
		search.WithLogger(logger),
		search.WithMetrics(m),
	)
	return &Components{
		Provider: provider,
		Source:   source,
		Engine:   engine,
		Metrics:  m,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func printUsage() {
	fmt.Println(`glyphseek - Semantic emoji search over a quantized corpus

Usage:
  glyphseek server [flags]             Start the HTTP server
  glyphseek search [flags] <query>     Search glyphs by meaning
  glyphseek build [flags]              Build the corpus artifact from raw emoji data
  glyphseek inspect [flags] <file>     Show what an artifact contains
  glyphseek status [flags]             Show model and corpus readiness
  glyphseek version                    Show version
  glyphseek help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/glyphseek/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (used with --server "")
  --server string    Server URL (default: http://localhost:8080). Use --server "" to search in-process.
  --limit int        Number of results (default from config)
  --output string    Output format: text, compact, or json (default: text)

Build Flags:
  --config string         Config file path
  --source string         Raw emoji JSON (default: build.source_path)
  --output string         Artifact path (default: build.output_path)
  --compress              zstd-compress the artifact
  --watch                 Rebuild when the source changes
  --output-format string  Summary format: text or json

Inspect Flags:
  --sample int       Entries to list (default: 5)
  --output string    Output format: text or json

Status Flags:
  --config string    Config file path (used with --server "")
  --server string    Server URL (default: http://localhost:8080). Use --server "" for on-disk state.
  --output string    Output format: text or json

Examples:
  glyphseek build --source emoji.json --output corpus.cbor
  glyphseek server
  glyphseek search party
  glyphseek search --output json "thumbs up"
  glyphseek inspect corpus.cbor
  glyphseek status`)
}
