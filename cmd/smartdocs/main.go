// Package main is the SmartDocs CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/smartdocs/smartdocs/internal/chunker"
	"github.com/smartdocs/smartdocs/internal/cli"
	"github.com/smartdocs/smartdocs/internal/config"
	"github.com/smartdocs/smartdocs/internal/embedding"
	"github.com/smartdocs/smartdocs/internal/extract"
	"github.com/smartdocs/smartdocs/internal/generate"
	"github.com/smartdocs/smartdocs/internal/index"
	"github.com/smartdocs/smartdocs/internal/ingest"
	"github.com/smartdocs/smartdocs/internal/rerank"
	"github.com/smartdocs/smartdocs/internal/retrieve"
	"github.com/smartdocs/smartdocs/internal/search"
	"github.com/smartdocs/smartdocs/internal/server"
	"github.com/smartdocs/smartdocs/internal/watcher"
	"github.com/smartdocs/smartdocs/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/smartdocs/config.yaml"

const (
	exitOK      = 0
	exitFailure = 1
	exitPartial = 2
)

// loadConfig loads config from path. When path is the default, a config.yaml in
// the current directory takes precedence so running from the project dir picks
// up the local config.
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
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is fine; it only supplies optional API keys.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitFailure)
	}
	switch os.Args[1] {
	case "serve":
		runServe()
	case "index":
		os.Exit(runIngest(false))
	case "reindex":
		os.Exit(runIngest(true))
	case "query":
		runQuery()
	case "inspect":
		runInspect()
	case "watch":
		runWatch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("smartdocs version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(exitFailure)
	}
}

// Components holds initialized services.
type Components struct {
	Embedder     embedding.Embedder
	Manager      index.Manager
	Engine       *search.Engine
	Orchestrator *ingest.Orchestrator
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Manager != nil {
		_ = c.Manager.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	var embedder embedding.Embedder = embedding.NewHTTPEmbedder(embedding.HTTPConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		APIKeyEnv:  cfg.Embedding.APIKeyEnv,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		Timeout:    cfg.Embedding.Timeout(),
		MaxRetries: cfg.Embedding.MaxRetries,
	})
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
	}

	var (
		manager index.Manager
		err     error
	)
	switch cfg.Index.Backend {
	case "memory":
		manager, err = index.NewMemoryManager(cfg.Index.Collection, cfg.Embedding.Dimensions, cfg.Embedding.Model, cfg.Index.Metric)
	default:
		if mkErr := os.MkdirAll(cfg.Index.DataRoot, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create data root: %w", mkErr)
		}
		manager, err = index.NewSQLiteManager(cfg.Index.DatabasePath(), cfg.Index.Collection, cfg.Embedding.Dimensions, cfg.Embedding.Model, cfg.Index.Metric)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize index: %w", err)
	}

	ch, err := chunker.NewChunker(cfg.Chunking.TargetSize, cfg.Chunking.Overlap)
	if err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("initialize chunker: %w", err)
	}

	retriever := retrieve.NewRetriever(embedder, manager, &cfg.Search, retrieve.WithLogger(logger))
	var reranker rerank.Reranker
	if cfg.Rerank.Enabled {
		reranker = rerank.NewLexicalReranker(rerank.WithLogger(logger))
	}
	generator := generate.NewOllamaClient(&cfg.Generate, generate.WithLogger(logger))
	engine := search.NewEngine(retriever, reranker, &cfg.Search, &cfg.Rerank,
		search.WithLogger(logger), search.WithGenerator(generator))

	orchestrator := ingest.NewOrchestrator(
		extract.NewExtractor(), ch, embedder, manager, &cfg.Ingest,
		ingest.WithLogger(logger))

	return &Components{
		Embedder:     embedder,
		Manager:      manager,
		Engine:       engine,
		Orchestrator: orchestrator,
	}, nil
}

func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolvedPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(exitFailure)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(exitFailure)
	}
	logger.Debug("config loaded", zap.String("config_path", resolvedPath))
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	srv := server.NewServer(components.Engine, components.Orchestrator, components.Manager, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// runIngest implements both "index" (incremental) and "reindex" (clear+rebuild).
func runIngest(clear bool) int {
	name := "index"
	if clear {
		name = "reindex"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	concurrency := fs.Int("concurrency", 0, "worker count (0 = configured default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	if fs.NArg() < 1 {
		fmt.Printf("Usage: smartdocs %s [flags] <file-or-directory>...\n", name)
		return exitFailure
	}

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	summary, err := components.Orchestrator.Run(context.Background(), fs.Args(), ingest.Options{
		SkipUnchanged:   !clear,
		ClearCollection: clear,
		Concurrency:     *concurrency,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		return exitFailure
	}
	if err := cli.WriteSummary(os.Stdout, summary, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		return exitFailure
	}
	switch {
	case len(summary.Failed) == 0:
		return exitOK
	case len(summary.Succeeded) == 0 && len(summary.Skipped) == 0:
		return exitFailure
	default:
		return exitPartial
	}
}

// buildQuery joins all positional args with spaces so multi-word queries work
// the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	topK := fs.Int("top-k", 0, "number of candidates (0 = configured default)")
	ask := fs.Bool("ask", false, "generate an answer with the configured model")
	noRerank := fs.Bool("no-rerank", false, "skip re-ranking, use similarity order")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		fmt.Println("Usage: smartdocs query [flags] <question>")
		os.Exit(exitFailure)
	}

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	opts := search.Options{TopK: *topK, DisableRerank: *noRerank}
	ctx := context.Background()
	if *ask {
		ranked, stream, err := components.Engine.Ask(ctx, queryStr, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(exitFailure)
		}
		for tok := range stream.Tokens() {
			fmt.Print(tok)
		}
		fmt.Println()
		if err := stream.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Generation failed: %v\n", err)
			os.Exit(exitFailure)
		}
		fmt.Println("\nSources:")
		for i, sc := range ranked.Chunks {
			name := sc.Chunk.Metadata.Title
			if name == "" {
				name = sc.Chunk.SourceID
			}
			fmt.Printf("  [%d] %s\n", i+1, name)
		}
		return
	}

	ranked, err := components.Engine.Query(ctx, queryStr, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(exitFailure)
	}
	if err := cli.WriteRankedContext(os.Stdout, ranked, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(exitFailure)
	}
}

func runInspect() {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: smartdocs inspect [flags] <chunk-id>")
		os.Exit(exitFailure)
	}
	chunkID := fs.Arg(0)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	entry, err := components.Manager.GetChunk(context.Background(), chunkID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		os.Exit(exitFailure)
	}
	fmt.Printf("chunk:    %s\n", entry.ChunkID)
	fmt.Printf("source:   %s\n", entry.SourceID)
	if entry.SourcePath != "" {
		fmt.Printf("path:     %s\n", entry.SourcePath)
	}
	fmt.Printf("ordinal:  %d\n", entry.Ordinal)
	fmt.Printf("vector:   %d dimensions\n", len(entry.Vector))
	if entry.Metadata.ContentHash != "" {
		fmt.Printf("hash:     %s\n", entry.Metadata.ContentHash)
	}
	fmt.Printf("\n%s\n", entry.Text)
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	syncFirst := fs.Bool("sync", true, "ingest existing files before watching")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	roots := cfg.Watch.Directories
	if fs.NArg() > 0 {
		roots = fs.Args()
	}
	if len(roots) == 0 {
		fmt.Println("Usage: smartdocs watch [flags] <directory>... (or set watch.directories in config)")
		os.Exit(exitFailure)
	}

	orchestrator := components.Orchestrator
	w := watcher.NewWatcher(
		roots,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if err := orchestrator.IngestFile(context.Background(), path); err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			if _, err := orchestrator.DeleteSource(context.Background(), path); err != nil {
				logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
			}
		},
		watcher.WithLogger(logger),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer w.Stop()
	if *syncFirst {
		w.SyncExistingFiles()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("stopping watch")
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}

	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	stats, err := components.Manager.Stats(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(exitFailure)
	}
	switch format {
	case cli.OutputJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(exitFailure)
		}
	default:
		fmt.Printf("collection:  %s\n", stats.Collection)
		fmt.Printf("entries:     %d\n", stats.Entries)
		fmt.Printf("sources:     %d\n", stats.Sources)
		fmt.Printf("dimensions:  %d\n", stats.Dimensions)
		fmt.Printf("model:       %s\n", stats.Model)
		fmt.Printf("metric:      %s\n", stats.Metric)
		fmt.Printf("database:    %s\n", cfg.Index.DatabasePath())
	}
}

func printUsage() {
	fmt.Println(`smartdocs - Local document question answering

Usage:
  smartdocs serve [flags]               Start the HTTP API server
  smartdocs index [flags] <path>...     Ingest files or directories (incremental)
  smartdocs reindex [flags] <path>...   Clear the collection and rebuild it
  smartdocs query [flags] <question>    Retrieve ranked context for a question
  smartdocs inspect [flags] <chunk-id>  Show a stored chunk
  smartdocs watch [flags] [dir]...      Watch directories and keep the index in sync
  smartdocs status [flags]              Show collection statistics
  smartdocs version                     Show version
  smartdocs help                        Show this help

Query Flags:
  --top-k int       Number of candidates (0 = configured default)
  --ask             Generate an answer with the configured model
  --no-rerank       Skip re-ranking, use similarity order
  --output string   Output format: text or json (default: text)

Index/Reindex Flags:
  --concurrency int  Worker count (0 = configured default)
  --output string    Output format: text or json (default: text)

Common Flags:
  --config string   Config file path (default: /usr/local/etc/smartdocs/config.yaml)
  --debug           Enable debug logging

Exit codes: 0 success, 1 failure, 2 partial ingestion failure.

Examples:
  smartdocs reindex ./docs
  smartdocs index ./docs/new-report.pdf
  smartdocs query when is the delivery due
  smartdocs query --ask "what did the supplier confirm?"
  smartdocs serve
  smartdocs watch ./docs`)
}
