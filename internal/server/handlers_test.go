package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/smartdocs/smartdocs/internal/chunker"
	"github.com/smartdocs/smartdocs/internal/config"
	"github.com/smartdocs/smartdocs/internal/docid"
	"github.com/smartdocs/smartdocs/internal/embedding"
	"github.com/smartdocs/smartdocs/internal/extract"
	"github.com/smartdocs/smartdocs/internal/index"
	"github.com/smartdocs/smartdocs/internal/ingest"
	"github.com/smartdocs/smartdocs/internal/models"
	"github.com/smartdocs/smartdocs/internal/rerank"
	"github.com/smartdocs/smartdocs/internal/retrieve"
	"github.com/smartdocs/smartdocs/internal/search"
)

func newTestServer(t *testing.T) (*Server, index.Manager) {
	t.Helper()
	embedder := embedding.NewMockEmbedder(32)
	manager, err := index.NewMemoryManager("test", 32, "mock", "cosine")
	if err != nil {
		t.Fatalf("new memory manager: %v", err)
	}
	searchCfg := &config.SearchConfig{DefaultTopK: 5, CandidateMultiplier: 3}
	rerankCfg := &config.RerankConfig{Enabled: true, KeepN: 3, OnError: "fail"}
	retriever := retrieve.NewRetriever(embedder, manager, searchCfg)
	engine := search.NewEngine(retriever, rerank.NewLexicalReranker(), searchCfg, rerankCfg)

	ch, err := chunker.NewChunker(200, 40)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	orchestrator := ingest.NewOrchestrator(
		extract.NewExtractor(), ch, embedder, manager,
		&config.IngestConfig{Concurrency: 2, MaxRetries: 0},
	)
	srv := NewServer(engine, orchestrator, manager, &config.ServerConfig{Host: "127.0.0.1", Port: 0}, zap.NewNop())
	return srv, manager
}

func seedChunk(t *testing.T, manager index.Manager, id, text string) {
	t.Helper()
	embedder := embedding.NewMockEmbedder(32)
	vec, err := embedder.Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	err = manager.Upsert(context.Background(), []index.Entry{{
		ChunkID:  id,
		SourceID: "file:seed",
		Text:     text,
		Vector:   vec,
		Metadata: models.Metadata{SourceID: "file:seed", Title: "seed.txt"},
	}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleQuery(t *testing.T) {
	srv, manager := newTestServer(t)
	seedChunk(t, manager, "chunk:a", "quarterly revenue grew by twelve percent")
	seedChunk(t, manager, "chunk:b", "office plants need watering")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/query", queryRequest{Query: "quarterly revenue"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Chunks) == 0 {
		t.Fatal("no chunks returned")
	}
	if resp.Chunks[0].Chunk.ID != "chunk:a" {
		t.Errorf("top chunk = %q", resp.Chunks[0].Chunk.ID)
	}
}

func TestHandleQueryValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/query", queryRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty query: status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec2.Code)
	}
}

func TestHandleQueryEmptyCollection(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/query", queryRequest{Query: "anything"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for empty collection", rec.Code)
	}
	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Chunks == nil || len(resp.Chunks) != 0 {
		t.Errorf("chunks = %v, want empty array", resp.Chunks)
	}
}

func TestHandleIngestAndStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("Indexable sentence here. ", 30)), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/ingest", ingestRequest{Paths: []string{path}})
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var summary ingest.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(summary.Succeeded) != 1 {
		t.Errorf("succeeded = %v", summary.Succeeded)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d", rec.Code)
	}
	var stats index.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Entries == 0 || stats.Sources != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHandleIngestValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/ingest", ingestRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing paths", rec.Code)
	}
}

func TestHandleGetChunk(t *testing.T) {
	srv, manager := newTestServer(t)
	seedChunk(t, manager, "chunk:known", "retrievable text")

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/chunks/chunk:known", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var chunk models.Chunk
	if err := json.Unmarshal(rec.Body.Bytes(), &chunk); err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if chunk.Text != "retrievable text" {
		t.Errorf("text = %q", chunk.Text)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/chunks/chunk:missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing chunk: status = %d, want 404", rec.Code)
	}
}

func TestHandleDeleteSource(t *testing.T) {
	srv, manager := newTestServer(t)
	seedChunk(t, manager, "chunk:a", "text one")
	seedChunk(t, manager, "chunk:b", "text two")

	rec := doRequest(t, srv, http.MethodDelete, "/api/v1/sources/file:seed", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["deleted"].(float64) != 2 {
		t.Errorf("deleted = %v, want 2", resp["deleted"])
	}
	count, _ := manager.Count(context.Background())
	if count != 0 {
		t.Errorf("count = %d after delete", count)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSourceIDRoundTripsThroughRoute(t *testing.T) {
	// Source IDs contain a colon; they must survive as a single chi URL parameter.
	srv, manager := newTestServer(t)
	id := docid.SourceID("/tmp/some/file.txt")
	embedder := embedding.NewMockEmbedder(32)
	vec, err := embedder.Embed(context.Background(), "content")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	err = manager.Upsert(context.Background(), []index.Entry{{
		ChunkID: "chunk:x", SourceID: id, Text: "content", Vector: vec,
	}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rec := doRequest(t, srv, http.MethodDelete, "/api/v1/sources/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["deleted"].(float64) != 1 {
		t.Errorf("deleted = %v, want 1", resp["deleted"])
	}
}
