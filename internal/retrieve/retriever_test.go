package retrieve

import (
	"context"
	"strings"
	"testing"

	"github.com/smartdocs/smartdocs/internal/config"
	"github.com/smartdocs/smartdocs/internal/embedding"
	"github.com/smartdocs/smartdocs/internal/index"
)

func seedIndex(t *testing.T, embedder embedding.Embedder, texts map[string]string) index.Manager {
	t.Helper()
	manager, err := index.NewMemoryManager("test", embedder.Dimensions(), "mock", "cosine")
	if err != nil {
		t.Fatalf("new memory manager: %v", err)
	}
	ordinal := 0
	for id, text := range texts {
		vec, err := embedder.Embed(context.Background(), text)
		if err != nil {
			t.Fatalf("embed %q: %v", id, err)
		}
		err = manager.Upsert(context.Background(), []index.Entry{{
			ChunkID:  id,
			SourceID: "file:test",
			Ordinal:  ordinal,
			Text:     text,
			Vector:   vec,
		}})
		if err != nil {
			t.Fatalf("upsert %q: %v", id, err)
		}
		ordinal++
	}
	return manager
}

func TestRetrieveReturnsNearestFirst(t *testing.T) {
	embedder := embedding.NewMockEmbedder(64)
	manager := seedIndex(t, embedder, map[string]string{
		"chunk:a": "postgres connection pooling",
		"chunk:b": "baking sourdough bread",
		"chunk:c": "kubernetes pod scheduling",
	})
	cfg := &config.SearchConfig{DefaultTopK: 10, CandidateMultiplier: 3}
	r := NewRetriever(embedder, manager, cfg)

	result, err := r.Retrieve(context.Background(), "postgres connection pooling", Options{})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if result.Query != "postgres connection pooling" {
		t.Errorf("query = %q", result.Query)
	}
	if len(result.Candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(result.Candidates))
	}
	if result.Candidates[0].Chunk.ID != "chunk:a" {
		t.Errorf("top candidate = %q, want chunk:a", result.Candidates[0].Chunk.ID)
	}
	for i := 1; i < len(result.Candidates); i++ {
		if result.Candidates[i].Similarity > result.Candidates[i-1].Similarity {
			t.Errorf("candidates not in descending similarity order at %d", i)
		}
	}
}

func TestRetrieveTopKLimit(t *testing.T) {
	embedder := embedding.NewMockEmbedder(64)
	manager := seedIndex(t, embedder, map[string]string{
		"chunk:a": "alpha", "chunk:b": "beta", "chunk:c": "gamma", "chunk:d": "delta",
	})
	cfg := &config.SearchConfig{DefaultTopK: 10}
	r := NewRetriever(embedder, manager, cfg)

	result, err := r.Retrieve(context.Background(), "alpha", Options{TopK: 2})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Candidates) != 2 {
		t.Errorf("got %d candidates, want 2", len(result.Candidates))
	}
}

func TestRetrieveOverFetchForReranking(t *testing.T) {
	embedder := embedding.NewMockEmbedder(64)
	texts := make(map[string]string)
	for i := 0; i < 12; i++ {
		texts["chunk:"+strings.Repeat("x", i+1)] = strings.Repeat("word ", i+1)
	}
	manager := seedIndex(t, embedder, texts)
	cfg := &config.SearchConfig{DefaultTopK: 3}
	r := NewRetriever(embedder, manager, cfg)

	result, err := r.Retrieve(context.Background(), "word", Options{TopK: 3, FetchMultiplier: 3})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Candidates) != 9 {
		t.Errorf("got %d candidates, want 9 (topK*multiplier)", len(result.Candidates))
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	embedder := embedding.NewMockEmbedder(8)
	manager, err := index.NewMemoryManager("test", 8, "mock", "cosine")
	if err != nil {
		t.Fatalf("new memory manager: %v", err)
	}
	r := NewRetriever(embedder, manager, &config.SearchConfig{DefaultTopK: 5})

	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := r.Retrieve(context.Background(), q, Options{}); err == nil {
			t.Errorf("expected error for query %q", q)
		}
	}
}

func TestRetrieveWithFilter(t *testing.T) {
	embedder := embedding.NewMockEmbedder(64)
	manager, err := index.NewMemoryManager("test", embedder.Dimensions(), "mock", "cosine")
	if err != nil {
		t.Fatalf("new memory manager: %v", err)
	}
	for i, entry := range []struct{ id, source, text string }{
		{"chunk:a", "file:one", "shared topic"},
		{"chunk:b", "file:two", "shared topic"},
	} {
		vec, err := embedder.Embed(context.Background(), entry.text)
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		err = manager.Upsert(context.Background(), []index.Entry{{
			ChunkID: entry.id, SourceID: entry.source, Ordinal: i, Text: entry.text, Vector: vec,
		}})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	r := NewRetriever(embedder, manager, &config.SearchConfig{DefaultTopK: 5})

	result, err := r.Retrieve(context.Background(), "shared topic", Options{
		Filter: &index.Filter{SourceID: "file:two"},
	})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Chunk.ID != "chunk:b" {
		t.Errorf("filter not applied: %+v", result.Candidates)
	}
}
