// Package retrieve turns a user query into ranked candidate chunks.
package retrieve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smartdocs/smartdocs/internal/config"
	"github.com/smartdocs/smartdocs/internal/embedding"
	"github.com/smartdocs/smartdocs/internal/index"
	"github.com/smartdocs/smartdocs/internal/models"
)

// Options controls a single retrieval call. Zero values fall back to the
// configured defaults.
type Options struct {
	// TopK is the number of candidates to return.
	TopK int
	// Filter restricts the search to matching entries.
	Filter *index.Filter
	// FetchMultiplier over-fetches candidates so a downstream reranker has a
	// wider pool to choose from. 1 disables over-fetching.
	FetchMultiplier int
}

// Retriever embeds queries and searches the index for the nearest chunks.
type Retriever struct {
	embedder embedding.Embedder
	manager  index.Manager
	config   *config.SearchConfig
	logger   *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets the logger for the retriever.
func WithLogger(logger *zap.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// NewRetriever creates a retriever over the given embedder and index.
func NewRetriever(embedder embedding.Embedder, manager index.Manager, cfg *config.SearchConfig, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder: embedder,
		manager:  manager,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve embeds the query and returns the nearest chunks in descending
// similarity order. An empty or whitespace-only query is an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (*models.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = r.config.DefaultTopK
	}
	multiplier := opts.FetchMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	fetchK := topK * multiplier

	start := time.Now()
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scored, err := r.manager.Search(ctx, vector, fetchK, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	r.logger.Debug("retrieved candidates",
		zap.String("query", query),
		zap.Int("requested", fetchK),
		zap.Int("returned", len(scored)),
		zap.Duration("elapsed", time.Since(start)))

	return &models.RetrievalResult{
		Query:      query,
		Candidates: scored,
	}, nil
}
