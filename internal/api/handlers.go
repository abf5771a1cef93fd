package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/service"
)

// RecallByTagsRequest represents the request body for tag recall
type RecallByTagsRequest struct {
	Tags       []string `json:"tags"`
	MaxResults int      `json:"max_results,omitempty"`
}

// recallResponse flattens a RecallResult for JSON clients
type recallResponse struct {
	Records         []*models.MemoryRecord `json:"records"`
	Scores          map[string]float64     `json:"scores"`
	Strategy        models.RecallStrategy  `json:"strategy"`
	DurationMs      float64                `json:"duration_ms"`
	TotalCandidates int                    `json:"total_candidates"`
	Count           int                    `json:"count"`
}

// consolidateResponse reports a sweep with a millisecond duration
type consolidateResponse struct {
	Promoted   int     `json:"promoted"`
	Pruned     int     `json:"pruned"`
	Retained   int     `json:"retained"`
	DurationMs float64 `json:"duration_ms"`
}

// decodeBody decodes JSON into target. An empty body is allowed when optional is set.
func decodeBody(r *http.Request, target interface{}, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(target)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// handleStoreMemory creates a record
func (s *Server) handleStoreMemory(w http.ResponseWriter, r *http.Request) {
	var req service.StoreInput
	if err := decodeBody(r, &req, false); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	rec, embedded, err := s.svc.Store(r.Context(), req)
	if err != nil {
		s.engineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":  true,
		"memory":   rec,
		"embedded": embedded,
	})
}

// handleGetMemory returns one record
func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.engineError(w, err)
		return
	}
	successResponse(w, rec)
}

// handleUpdateMemory applies a partial update
func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateInput
	if err := decodeBody(r, &req, false); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	rec, err := s.svc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.engineError(w, err)
		return
	}

	successResponse(w, map[string]interface{}{
		"success": true,
		"memory":  rec,
	})
}

// handleDeleteMemory removes a record
func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.svc.Delete(r.Context(), id) {
		errorResponse(w, http.StatusNotFound, "memory not found: "+id)
		return
	}
	successResponse(w, map[string]interface{}{
		"success": true,
		"id":      id,
	})
}

// handleRecall runs a ranked recall
func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req service.RecallInput
	if err := decodeBody(r, &req, false); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.svc.Recall(r.Context(), req)
	if err != nil {
		s.engineError(w, err)
		return
	}

	successResponse(w, recallResponse{
		Records:         res.Records,
		Scores:          res.Scores,
		Strategy:        res.Strategy,
		DurationMs:      float64(res.Duration.Microseconds()) / 1000,
		TotalCandidates: res.TotalCandidates,
		Count:           len(res.Records),
	})
}

// handleRecallByTags ranks records by tag overlap
func (s *Server) handleRecallByTags(w http.ResponseWriter, r *http.Request) {
	var req RecallByTagsRequest
	if err := decodeBody(r, &req, false); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	recs, err := s.svc.RecallByTags(r.Context(), req.Tags, req.MaxResults)
	if err != nil {
		s.engineError(w, err)
		return
	}

	successResponse(w, map[string]interface{}{
		"records": recs,
		"count":   len(recs),
	})
}

// handleRecallRecent lists the most recently accessed records
func (s *Server) handleRecallRecent(w http.ResponseWriter, r *http.Request) {
	count := models.DefaultMaxResults
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errorResponse(w, http.StatusBadRequest, "count must be a non-negative integer")
			return
		}
		count = n
	}

	recs := s.svc.RecallRecent(r.Context(), count)
	successResponse(w, map[string]interface{}{
		"records": recs,
		"count":   len(recs),
	})
}

// handleConsolidate runs a sweep; the body is optional
func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var req service.ConsolidateInput
	if err := decodeBody(r, &req, true); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.svc.Consolidate(r.Context(), req)
	if err != nil {
		s.engineError(w, err)
		return
	}

	successResponse(w, consolidateResponse{
		Promoted:   res.Promoted,
		Pruned:     res.Pruned,
		Retained:   res.Retained,
		DurationMs: float64(res.Duration.Microseconds()) / 1000,
	})
}

// handleBestStrategy returns the recommended strategy with its statistics
func (s *Server) handleBestStrategy(w http.ResponseWriter, r *http.Request) {
	best := s.svc.BestStrategy(r.Context())
	stats := s.svc.Statistics(r.Context())

	resp := map[string]interface{}{"strategy": best}
	if perf, ok := stats.StrategyPerformance[best]; ok {
		resp["performance"] = perf
	}
	successResponse(w, resp)
}

// handleRecordPerformance records one recall outcome
func (s *Server) handleRecordPerformance(w http.ResponseWriter, r *http.Request) {
	var req service.PerformanceInput
	if err := decodeBody(r, &req, false); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	perf, err := s.svc.RecordPerformance(r.Context(), chi.URLParam(r, "strategy"), req)
	if err != nil {
		s.engineError(w, err)
		return
	}
	successResponse(w, perf)
}

// handleStatistics returns engine statistics
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	successResponse(w, s.svc.Statistics(r.Context()))
}
