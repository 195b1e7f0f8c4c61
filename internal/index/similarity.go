package index

import (
	"math"
	"sort"

	"github.com/smartdocs/smartdocs/internal/models"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors this
// equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

// CosineSimilarity returns cosine similarity between two vectors, clamped to [0, 1].
func CosineSimilarity(a, b []float32) float64 {
	na := l2Norm(a)
	nb := l2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, InnerProduct(a, b)/(na*nb)))
}

func l2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

// scoreFunc returns the similarity function for the configured metric. Both assume
// cosine-style ranking; "cosine" additionally tolerates unnormalized vectors.
func scoreFunc(metric string) func(a, b []float32) float64 {
	if metric == "dot" {
		return InnerProduct
	}
	return CosineSimilarity
}

// rankEntries scores entries against query, sorts by descending score with chunk ID
// ascending as the deterministic tie-break, and truncates to topK.
func rankEntries(entries []*Entry, query []float32, topK int, filter *Filter, score func(a, b []float32) float64) []models.ScoredChunk {
	scored := make([]models.ScoredChunk, 0, len(entries))
	for _, e := range entries {
		if !filter.Matches(e) {
			continue
		}
		scored = append(scored, models.ScoredChunk{
			Chunk:      e.Chunk(),
			Similarity: score(query, e.Vector),
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})
	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}
