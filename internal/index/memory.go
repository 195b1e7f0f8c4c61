package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/smartdocs/smartdocs/internal/models"
)

// MemoryManager is an in-memory collection for tests and small transient corpora.
type MemoryManager struct {
	collection string
	dimensions int
	metric     string
	model      string
	mu         sync.RWMutex
	entries    map[string]*Entry
}

// NewMemoryManager creates an empty in-memory collection with the given dimension.
func NewMemoryManager(collection string, dimensions int, model, metric string) (*MemoryManager, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryManager{
		collection: collection,
		dimensions: dimensions,
		metric:     metric,
		model:      model,
		entries:    make(map[string]*Entry),
	}, nil
}

func (m *MemoryManager) checkDimensions(entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) != m.dimensions {
			return fmt.Errorf("%w: got %d, expected %d (chunk %s)", ErrDimensionMismatch, len(e.Vector), m.dimensions, e.ChunkID)
		}
	}
	return nil
}

// Upsert inserts or replaces entries by chunk ID. The batch is validated before any
// entry is written, so a dimension mismatch leaves the collection unchanged.
func (m *MemoryManager) Upsert(ctx context.Context, entries []Entry) error {
	if err := m.checkDimensions(entries); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range entries {
		e := entries[i]
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		m.entries[e.ChunkID] = &e
	}
	return nil
}

// ReplaceSource removes all of sourceID's entries and inserts the new set under one lock.
func (m *MemoryManager) ReplaceSource(ctx context.Context, sourceID string, entries []Entry) error {
	if err := m.checkDimensions(entries); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.SourceID == sourceID {
			delete(m.entries, id)
		}
	}
	for i := range entries {
		e := entries[i]
		m.entries[e.ChunkID] = &e
	}
	return nil
}

// DeleteBySource removes all entries for sourceID, returning how many were removed.
func (m *MemoryManager) DeleteBySource(ctx context.Context, sourceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if e.SourceID == sourceID {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

// Search returns up to topK entries by descending similarity.
func (m *MemoryManager) Search(ctx context.Context, query []float32, topK int, filter *Filter) ([]models.ScoredChunk, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, collection expects %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	if topK <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		all = append(all, e)
	}
	return rankEntries(all, query, topK, filter, scoreFunc(m.metric)), nil
}

// GetChunk returns the entry for chunkID or ErrNotFound.
func (m *MemoryManager) GetChunk(ctx context.Context, chunkID string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[chunkID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, chunkID)
	}
	out := *e
	return &out, nil
}

// SourceHash returns the content hash stored with sourceID's entries, or "".
func (m *MemoryManager) SourceHash(ctx context.Context, sourceID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.SourceID == sourceID {
			return e.Metadata.ContentHash, nil
		}
	}
	return "", nil
}

// ClearCollection removes every entry.
func (m *MemoryManager) ClearCollection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	return nil
}

// Count returns the number of entries.
func (m *MemoryManager) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.entries)), nil
}

// Stats returns collection statistics.
func (m *MemoryManager) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sources := make(map[string]struct{})
	for _, e := range m.entries {
		sources[e.SourceID] = struct{}{}
	}
	return &Stats{
		Collection: m.collection,
		Entries:    int64(len(m.entries)),
		Sources:    int64(len(sources)),
		Dimensions: m.dimensions,
		Model:      m.model,
		Metric:     m.metric,
	}, nil
}

// Close is a no-op for MemoryManager.
func (m *MemoryManager) Close() error {
	return nil
}
