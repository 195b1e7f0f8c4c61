// Package rerank re-orders retrieval candidates with a second scoring pass.
package rerank

import (
	"context"
	"errors"

	"github.com/smartdocs/smartdocs/internal/models"
)

// ErrUnavailable indicates the re-ranking scorer itself failed. The caller decides
// whether to surface the error or fall back to similarity order.
var ErrUnavailable = errors.New("rerank: unavailable")

// Reranker re-scores candidates against the query and returns up to keepN of them
// in the new order.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []models.ScoredChunk, keepN int) ([]models.ScoredChunk, error)
}

// Passthrough keeps retrieval order and only truncates to keepN. Used when
// re-ranking is disabled.
type Passthrough struct{}

// NewPassthrough returns a Passthrough reranker.
func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

// Rerank returns the first keepN candidates unchanged.
func (p *Passthrough) Rerank(_ context.Context, _ string, candidates []models.ScoredChunk, keepN int) ([]models.ScoredChunk, error) {
	out := make([]models.ScoredChunk, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].RerankScore = out[i].Similarity
	}
	if keepN > 0 && len(out) > keepN {
		out = out[:keepN]
	}
	return out, nil
}
