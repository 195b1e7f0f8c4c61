// Package index provides durable storage and similarity search over embedded chunks,
// partitioned by named collection.
package index

import (
	"context"
	"errors"

	"github.com/smartdocs/smartdocs/internal/models"
)

var (
	// ErrUnavailable indicates the backing store could not be opened or reached.
	ErrUnavailable = errors.New("index: store unavailable")
	// ErrDimensionMismatch indicates a vector's length disagrees with the collection's
	// configured dimensionality. The offending write is rejected as a whole.
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")
	// ErrNotFound indicates the requested chunk is not in the collection.
	ErrNotFound = errors.New("index: chunk not found")
)

// Entry is the persisted tuple for one chunk: identifier, vector, and payload.
// Entries are owned exclusively by the Manager; they are replaced or deleted whenever
// their source document is re-ingested or removed.
type Entry struct {
	ChunkID    string
	SourceID   string
	SourcePath string
	Ordinal    int
	Text       string
	Vector     []float32
	Metadata   models.Metadata
}

// Chunk converts the entry back to its transient chunk form.
func (e *Entry) Chunk() models.Chunk {
	return models.Chunk{
		ID:       e.ChunkID,
		SourceID: e.SourceID,
		Ordinal:  e.Ordinal,
		Text:     e.Text,
		Metadata: e.Metadata,
	}
}

// Filter restricts search hits by metadata. Zero-value fields do not filter; Extra
// pairs must all match the entry's metadata Extra.
type Filter struct {
	SourceID string
	Format   string
	Extra    map[string]string
}

// Matches reports whether e passes the filter. A nil filter matches everything.
func (f *Filter) Matches(e *Entry) bool {
	if f == nil {
		return true
	}
	if f.SourceID != "" && e.SourceID != f.SourceID {
		return false
	}
	if f.Format != "" && e.Metadata.Format != f.Format {
		return false
	}
	for k, want := range f.Extra {
		if e.Metadata.Extra[k] != want {
			return false
		}
	}
	return true
}

// Stats describes the collection's current contents.
type Stats struct {
	Collection string `json:"collection"`
	Entries    int64  `json:"entries"`
	Sources    int64  `json:"sources"`
	Dimensions int    `json:"dimensions"`
	Model      string `json:"model"`
	Metric     string `json:"metric"`
}

// Manager owns the persisted entries of one collection. Writes are serialized;
// reads may run concurrently and observe a point-in-time snapshot.
type Manager interface {
	// Upsert inserts or fully replaces entries by chunk identifier. A dimension
	// mismatch anywhere in the batch rejects the whole batch, leaving the
	// collection unchanged.
	Upsert(ctx context.Context, entries []Entry) error
	// ReplaceSource atomically removes all entries for sourceID and inserts the
	// given ones: the single logical write unit of one ingested file.
	ReplaceSource(ctx context.Context, sourceID string, entries []Entry) error
	// DeleteBySource removes all entries whose source matches, returning the count.
	DeleteBySource(ctx context.Context, sourceID string) (int, error)
	// Search returns up to topK entries by descending similarity, ties broken by
	// chunk identifier. topK larger than the collection returns all entries.
	Search(ctx context.Context, query []float32, topK int, filter *Filter) ([]models.ScoredChunk, error)
	// GetChunk returns the stored entry for a chunk identifier, or ErrNotFound.
	GetChunk(ctx context.Context, chunkID string) (*Entry, error)
	// SourceHash returns the content hash recorded for a source's entries, or ""
	// when the source is not indexed.
	SourceHash(ctx context.Context, sourceID string) (string, error)
	// ClearCollection destructively removes every entry. Used only for explicit
	// full re-indexing.
	ClearCollection(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
