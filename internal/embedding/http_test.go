package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func embeddingsHandler(dim int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type datum struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		resp := struct {
			Data []datum `json:"data"`
		}{}
		for i, text := range req.Input {
			vec := make([]float64, dim)
			for j := range vec {
				vec[j] = float64(len(text)%7+1) * float64(j+1)
			}
			resp.Data = append(resp.Data, datum{Index: i, Embedding: vec})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestHTTPEmbedderBatchOrderAndNormalization(t *testing.T) {
	srv := httptest.NewServer(embeddingsHandler(8))
	defer srv.Close()

	e := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "test", BatchSize: 2})
	out, err := e.EmbedBatch(context.Background(), []string{"one", "twoo", "three", "fourr", "fivee"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 embeddings, got %d", len(out))
	}
	if e.Dimensions() != 8 {
		t.Errorf("Dimensions = %d, want 8", e.Dimensions())
	}
	for i, vec := range out {
		var sum float64
		for _, v := range vec {
			sum += float64(v) * float64(v)
		}
		if math.Abs(sum-1.0) > 1e-5 {
			t.Errorf("vector %d not unit length: %f", i, sum)
		}
	}
}

func TestHTTPEmbedderRetriesTransientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		embeddingsHandler(4)(w, r)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "test", MaxRetries: 3})
	if _, err := e.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed after transient failures: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
}

func TestHTTPEmbedderRetryAfterReplacesBackoff(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "throttled", http.StatusTooManyRequests)
			return
		}
		embeddingsHandler(4)(w, r)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "test", MaxRetries: 3})
	start := time.Now()
	if _, err := e.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed after throttling: %v", err)
	}
	// Two honored Retry-After: 0 headers mean no waiting at all. Stacking the
	// exponential backoff on top would add at least 600ms here.
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("retries took %v, want the Retry-After value alone to govern the delay", elapsed)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
}

func TestHTTPEmbedderUnavailableAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "test", MaxRetries: 1})
	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestHTTPEmbedderClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "test", MaxRetries: 3})
	_, err := e.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("client errors should not map to ErrUnavailable")
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1 (no retry)", hits.Load())
	}
}

func TestHTTPEmbedderContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "test"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := e.Embed(ctx, "hello"); err == nil {
		t.Error("expected error on cancelled context")
	}
}
