package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/smartdocs/smartdocs/internal/index"
	"github.com/smartdocs/smartdocs/internal/ingest"
	"github.com/smartdocs/smartdocs/internal/models"
	"github.com/smartdocs/smartdocs/internal/search"
)

type queryRequest struct {
	Query    string `json:"query"`
	TopK     int    `json:"top_k,omitempty"`
	NoRerank bool   `json:"no_rerank,omitempty"`
	Ask      bool   `json:"ask,omitempty"`
}

type queryResponse struct {
	Query  string               `json:"query"`
	Chunks []models.ScoredChunk `json:"chunks"`
	Answer string               `json:"answer,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("query request",
		zap.String("query", req.Query),
		zap.Int("top_k", req.TopK),
		zap.Bool("ask", req.Ask))

	opts := search.Options{TopK: req.TopK, DisableRerank: req.NoRerank}
	resp := queryResponse{Query: req.Query}
	if req.Ask {
		ranked, stream, err := s.engine.Ask(r.Context(), req.Query, opts)
		if err != nil {
			s.logger.Error("ask failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		answer, err := stream.Text()
		if err != nil {
			s.logger.Error("generation failed", zap.Error(err))
			s.respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		resp.Chunks = ranked.Chunks
		resp.Answer = answer
	} else {
		ranked, err := s.engine.Query(r.Context(), req.Query, opts)
		if err != nil {
			s.logger.Error("query failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Chunks = ranked.Chunks
	}
	if resp.Chunks == nil {
		resp.Chunks = []models.ScoredChunk{}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type ingestRequest struct {
	Paths           []string `json:"paths"`
	SkipUnchanged   bool     `json:"skip_unchanged,omitempty"`
	ClearCollection bool     `json:"clear_collection,omitempty"`
	Concurrency     int      `json:"concurrency,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Paths) == 0 {
		s.respondError(w, http.StatusBadRequest, "paths are required")
		return
	}
	s.logger.Debug("ingest request", zap.Strings("paths", req.Paths))
	summary, err := s.orchestrator.Run(r.Context(), req.Paths, ingest.Options{
		SkipUnchanged:   req.SkipUnchanged,
		ClearCollection: req.ClearCollection,
		Concurrency:     req.Concurrency,
	})
	if err != nil {
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.manager.GetChunk(r.Context(), id)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "chunk not found")
			return
		}
		s.logger.Error("get chunk failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, entry.Chunk())
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete source request", zap.String("id", id))
	deleted, err := s.manager.DeleteBySource(r.Context(), id)
	if err != nil {
		s.logger.Error("delete source failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"source_id": id,
		"deleted":   deleted,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.Stats(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
