// Package search runs the read path: retrieve candidates, re-rank them, and hand
// the ranked context to generation.
package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/smartdocs/smartdocs/internal/config"
	"github.com/smartdocs/smartdocs/internal/generate"
	"github.com/smartdocs/smartdocs/internal/index"
	"github.com/smartdocs/smartdocs/internal/models"
	"github.com/smartdocs/smartdocs/internal/rerank"
	"github.com/smartdocs/smartdocs/internal/retrieve"
)

// Options controls a single query.
type Options struct {
	// TopK overrides the configured candidate count.
	TopK int
	// DisableRerank forces similarity order even when re-ranking is configured.
	DisableRerank bool
	// Filter restricts retrieval to matching entries.
	Filter *index.Filter
}

// Engine wires the retriever, the re-ranker, and the completion client into one
// query pipeline.
type Engine struct {
	retriever *retrieve.Retriever
	reranker  rerank.Reranker
	generator generate.Client
	search    *config.SearchConfig
	rerankCfg *config.RerankConfig
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithGenerator sets the completion client used by Ask.
func WithGenerator(client generate.Client) EngineOption {
	return func(e *Engine) {
		e.generator = client
	}
}

// NewEngine creates a query engine. reranker may be nil when re-ranking is
// disabled in the configuration.
func NewEngine(
	retriever *retrieve.Retriever,
	reranker rerank.Reranker,
	searchCfg *config.SearchConfig,
	rerankCfg *config.RerankConfig,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		retriever: retriever,
		reranker:  reranker,
		search:    searchCfg,
		rerankCfg: rerankCfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query retrieves and ranks context for the question. An empty result with a nil
// error means the collection had no candidates; an error means the pipeline
// failed.
func (e *Engine) Query(ctx context.Context, question string, opts Options) (*models.RankedContext, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = e.search.DefaultTopK
	}

	reranking := e.rerankCfg.Enabled && !opts.DisableRerank && e.reranker != nil
	retrieveOpts := retrieve.Options{TopK: topK, Filter: opts.Filter}
	if reranking {
		retrieveOpts.FetchMultiplier = e.search.CandidateMultiplier
	}

	result, err := e.retriever.Retrieve(ctx, question, retrieveOpts)
	if err != nil {
		return nil, err
	}

	if !reranking {
		chunks := result.Candidates
		if len(chunks) > topK {
			chunks = chunks[:topK]
		}
		return &models.RankedContext{Query: result.Query, Chunks: chunks}, nil
	}

	keepN := e.rerankCfg.KeepN
	if keepN <= 0 {
		keepN = topK
	}
	ranked, err := e.reranker.Rerank(ctx, result.Query, result.Candidates, keepN)
	if err != nil {
		if e.rerankCfg.OnError != "fallback" {
			return nil, fmt.Errorf("rerank: %w", err)
		}
		e.logger.Warn("re-ranking failed, falling back to similarity order", zap.Error(err))
		ranked, err = rerank.NewPassthrough().Rerank(ctx, result.Query, result.Candidates, keepN)
		if err != nil {
			return nil, err
		}
	}
	return &models.RankedContext{Query: result.Query, Chunks: ranked}, nil
}

// Ask runs Query and streams a generated answer grounded in the ranked context.
func (e *Engine) Ask(ctx context.Context, question string, opts Options) (*models.RankedContext, *generate.Stream, error) {
	if e.generator == nil {
		return nil, nil, fmt.Errorf("no completion client configured")
	}
	ranked, err := e.Query(ctx, question, opts)
	if err != nil {
		return nil, nil, err
	}
	stream, err := e.generator.Generate(ctx, generate.BuildPrompt(question, ranked))
	if err != nil {
		return nil, nil, fmt.Errorf("generate answer: %w", err)
	}
	return ranked, stream, nil
}
