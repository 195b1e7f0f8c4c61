package models

// ScoredChunk is a retrieval hit: a chunk with its raw vector similarity and, after
// re-ranking, a rerank score. Produced fresh per query, never persisted.
type ScoredChunk struct {
	Chunk       Chunk   `json:"chunk"`
	Similarity  float64 `json:"similarity"`
	RerankScore float64 `json:"rerank_score,omitempty"`
}

// RetrievalResult is the ranked candidate list returned by the retriever, ordered by
// descending similarity.
type RetrievalResult struct {
	Query      string        `json:"query"`
	Candidates []ScoredChunk `json:"candidates"`
}

// RankedContext is the final ordered subset handed to the generation collaborator,
// capped at the configured keep_n.
type RankedContext struct {
	Query  string        `json:"query"`
	Chunks []ScoredChunk `json:"chunks"`
}
