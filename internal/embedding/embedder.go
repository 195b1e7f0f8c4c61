// Package embedding provides text embedding via a remote model service, with caching.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the embedding service could not be reached or kept failing
// after bounded retries. Callers decide whether to retry the surrounding operation.
var ErrUnavailable = errors.New("embedding: service unavailable")

// Embedder produces vector embeddings for text. Implementations must be deterministic
// for identical input and model configuration, and EmbedBatch must preserve input order
// and length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
