// Package ingest drives the write path: extract, chunk, embed, and index files.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartdocs/smartdocs/internal/chunker"
	"github.com/smartdocs/smartdocs/internal/config"
	"github.com/smartdocs/smartdocs/internal/docid"
	"github.com/smartdocs/smartdocs/internal/embedding"
	"github.com/smartdocs/smartdocs/internal/extract"
	"github.com/smartdocs/smartdocs/internal/index"
)

// Options controls a single ingestion run.
type Options struct {
	// SkipUnchanged skips files whose content hash matches what the collection
	// already holds for their source ID.
	SkipUnchanged bool
	// ClearCollection wipes the collection before ingesting.
	ClearCollection bool
	// Concurrency bounds the number of files processed in parallel. Zero or
	// negative falls back to the configured default.
	Concurrency int
}

// FileFailure records one file the run could not ingest.
type FileFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Summary reports the outcome of an ingestion run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Succeeded []string      `json:"succeeded"`
	Skipped   []string      `json:"skipped"`
	Failed    []FileFailure `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Orchestrator runs the write path over batches of files with a bounded worker
// pool. Each file is indexed all-or-nothing: its chunks replace the previous
// chunks for the same source in one operation, or the file is recorded as failed.
type Orchestrator struct {
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	manager   index.Manager
	config    *config.IngestConfig
	logger    *zap.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger for the orchestrator.
func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an ingestion orchestrator.
func NewOrchestrator(
	extractor *extract.Extractor,
	ch *chunker.Chunker,
	embedder embedding.Embedder,
	manager index.Manager,
	cfg *config.IngestConfig,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		manager:   manager,
		config:    cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run ingests the given paths. Directories are walked recursively and filtered by
// the configured extensions; explicit file paths bypass the extension filter. A
// per-file failure is recorded in the summary and the run continues; Run returns
// an error only when the run as a whole cannot proceed.
func (o *Orchestrator) Run(ctx context.Context, paths []string, opts Options) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.New().String()}

	files, err := o.collectFiles(paths)
	if err != nil {
		return nil, err
	}

	if opts.ClearCollection {
		if err := o.manager.ClearCollection(ctx); err != nil {
			return nil, fmt.Errorf("clear collection: %w", err)
		}
		o.logger.Info("collection cleared", zap.String("run_id", summary.RunID))
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = o.config.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	o.logger.Info("ingestion run started",
		zap.String("run_id", summary.RunID),
		zap.Int("files", len(files)),
		zap.Int("concurrency", concurrency))

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		queue = make(chan string)
	)
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range queue {
				status, err := o.ingestFile(ctx, path, opts)
				mu.Lock()
				switch {
				case err != nil:
					summary.Failed = append(summary.Failed, FileFailure{Path: path, Reason: err.Error()})
				case status == fileSkipped:
					summary.Skipped = append(summary.Skipped, path)
				default:
					summary.Succeeded = append(summary.Succeeded, path)
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, path := range files {
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- path:
		}
	}
	close(queue)
	wg.Wait()

	sort.Strings(summary.Succeeded)
	sort.Strings(summary.Skipped)
	sort.Slice(summary.Failed, func(i, j int) bool { return summary.Failed[i].Path < summary.Failed[j].Path })
	summary.Duration = time.Since(start)

	o.logger.Info("ingestion run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("succeeded", len(summary.Succeeded)),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("failed", len(summary.Failed)),
		zap.Duration("duration", summary.Duration))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// DeleteSource removes every chunk belonging to the file at path.
func (o *Orchestrator) DeleteSource(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	return o.manager.DeleteBySource(ctx, docid.SourceID(absPath))
}

// IngestFile ingests a single file outside a batch run, with the same retry and
// replace semantics.
func (o *Orchestrator) IngestFile(ctx context.Context, path string) error {
	_, err := o.ingestFile(ctx, path, Options{})
	return err
}

type fileStatus int

const (
	fileIngested fileStatus = iota
	fileSkipped
)

func (o *Orchestrator) ingestFile(ctx context.Context, path string, opts Options) (fileStatus, error) {
	if err := ctx.Err(); err != nil {
		return fileIngested, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fileIngested, fmt.Errorf("absolute path: %w", err)
	}

	if opts.SkipUnchanged {
		skip, err := o.isUnchanged(ctx, absPath)
		if err == nil && skip {
			o.logger.Debug("skipping unchanged file", zap.String("path", absPath))
			return fileSkipped, nil
		}
	}

	doc, err := o.extractor.Extract(absPath)
	if err != nil {
		return fileIngested, fmt.Errorf("extract: %w", err)
	}

	chunks := o.chunker.Chunk(doc.Text, doc.Metadata)
	if len(chunks) == 0 {
		// Nothing to index; an existing stale version still has to go.
		if _, err := o.manager.DeleteBySource(ctx, doc.ID); err != nil {
			return fileIngested, fmt.Errorf("delete empty source: %w", err)
		}
		return fileIngested, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	var vectors [][]float32
	err = o.withRetry(ctx, func() error {
		var embedErr error
		vectors, embedErr = o.embedder.EmbedBatch(ctx, texts)
		return embedErr
	})
	if err != nil {
		return fileIngested, fmt.Errorf("embed: %w", err)
	}

	entries := make([]index.Entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = index.Entry{
			ChunkID:    ch.ID,
			SourceID:   ch.SourceID,
			SourcePath: absPath,
			Ordinal:    ch.Ordinal,
			Text:       ch.Text,
			Vector:     vectors[i],
			Metadata:   ch.Metadata,
		}
	}
	err = o.withRetry(ctx, func() error {
		return o.manager.ReplaceSource(ctx, doc.ID, entries)
	})
	if err != nil {
		return fileIngested, fmt.Errorf("index: %w", err)
	}

	o.logger.Debug("file ingested",
		zap.String("path", absPath),
		zap.String("source_id", doc.ID),
		zap.Int("chunks", len(entries)))
	return fileIngested, nil
}

// isUnchanged reports whether the file's current content hash matches the hash
// stored for its source in the collection.
func (o *Orchestrator) isUnchanged(ctx context.Context, absPath string) (bool, error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return false, err
	}
	stored, err := o.manager.SourceHash(ctx, docid.SourceID(absPath))
	if err != nil {
		return false, err
	}
	return stored != "" && stored == docid.ContentHash(content), nil
}

// withRetry retries fn with exponential backoff for transient infrastructure
// errors. Other errors return immediately.
func (o *Orchestrator) withRetry(ctx context.Context, fn func() error) error {
	maxRetries := o.config.MaxRetries
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			if delay > 10*time.Second {
				delay = 10 * time.Second
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		o.logger.Warn("transient failure, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	return lastErr
}

func isTransient(err error) bool {
	return errors.Is(err, embedding.ErrUnavailable) || errors.Is(err, index.ErrUnavailable)
}

// collectFiles expands the given paths: directories are walked recursively and
// filtered by the configured extensions, explicit files are taken as-is.
func (o *Orchestrator) collectFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}
	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.IsDir() {
			add(absPath)
			continue
		}
		err = filepath.WalkDir(absPath, func(p string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			if !o.extensionAllowed(filepath.Ext(p)) {
				return nil
			}
			finfo, statErr := os.Stat(p)
			if statErr != nil || !finfo.Mode().IsRegular() {
				return nil
			}
			add(p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", path, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (o *Orchestrator) extensionAllowed(ext string) bool {
	allowed := o.config.Extensions
	if len(allowed) == 0 {
		return true
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}
