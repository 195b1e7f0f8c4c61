package rerank

import (
	"context"
	"fmt"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"go.uber.org/zap"

	"github.com/smartdocs/smartdocs/internal/models"
)

// LexicalReranker scores candidates with a term-match metric that is independent
// of the vector similarity used for retrieval. It builds a throwaway in-memory
// index over the candidate texts on every call, so scores only reflect the
// current candidate pool.
type LexicalReranker struct {
	logger *zap.Logger
}

// LexicalOption configures a LexicalReranker.
type LexicalOption func(*LexicalReranker)

// WithLogger sets the logger for the reranker.
func WithLogger(logger *zap.Logger) LexicalOption {
	return func(r *LexicalReranker) {
		r.logger = logger
	}
}

// NewLexicalReranker creates a lexical reranker.
func NewLexicalReranker(opts ...LexicalOption) *LexicalReranker {
	r := &LexicalReranker{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank indexes the candidate texts, runs a match query, and returns up to keepN
// candidates ordered by lexical score. Candidates the query does not match at all
// score zero and sort by their original similarity. Identical inputs produce
// identical output order.
func (r *LexicalReranker) Rerank(ctx context.Context, query string, candidates []models.ScoredChunk, keepN int) ([]models.ScoredChunk, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	scores, err := r.score(ctx, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]models.ScoredChunk, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].RerankScore = scores[out[i].Chunk.ID]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RerankScore != out[j].RerankScore {
			return out[i].RerankScore > out[j].RerankScore
		}
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	if keepN > 0 && len(out) > keepN {
		out = out[:keepN]
	}
	return out, nil
}

func (r *LexicalReranker) score(ctx context.Context, query string, candidates []models.ScoredChunk) (map[string]float64, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) keeps matching exact.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	im.DefaultMapping = docMapping

	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create scoring index: %w", err)
	}
	defer idx.Close()

	batch := idx.NewBatch()
	for _, c := range candidates {
		if err := batch.Index(c.Chunk.ID, map[string]string{"text": c.Chunk.Text}); err != nil {
			return nil, fmt.Errorf("index candidate %s: %w", c.Chunk.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("index candidates: %w", err)
	}

	search := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	search.Size = len(candidates)
	results, err := idx.SearchInContext(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("score candidates: %w", err)
	}

	scores := make(map[string]float64, len(results.Hits))
	for _, hit := range results.Hits {
		scores[hit.ID] = hit.Score
	}
	r.logger.Debug("lexical rerank",
		zap.Int("candidates", len(candidates)),
		zap.Int("matched", len(results.Hits)))
	return scores, nil
}
