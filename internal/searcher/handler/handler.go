// Package handler serves the translation-memory HTTP API and registers the
// same search operations on the RPC server.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/proto"
)

const (
	maxBodyBytes   = 4 << 20
	maxBatchQuery  = 1000
	insertAppend   = "append"
	insertUnique   = "unique"
	insertOverride = "overwrite"
)

type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func New(svc *Service) *Handler {
	return &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "tm-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/units", h.CreateUnits)
	mux.HandleFunc("GET /api/v1/units/{id}", h.GetUnit)
	mux.HandleFunc("PUT /api/v1/units/{id}", h.UpdateUnit)
	mux.HandleFunc("DELETE /api/v1/units/{id}", h.DeleteUnit)
	mux.HandleFunc("POST /api/v1/query", h.Query)
	mux.HandleFunc("POST /api/v1/query/batch", h.BatchQuery)
	mux.HandleFunc("GET /api/v1/concordance", h.Concordance)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/index/flush", h.Flush)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type createUnitsRequest struct {
	// Mode is append (default), unique or overwrite.
	Mode  string        `json:"mode,omitempty"`
	Units []unitRequest `json:"units"`
}

type unitResult struct {
	DocID    index.DocID   `json:"doc_id"`
	Replaced []index.DocID `json:"replaced,omitempty"`
}

// CreateUnits inserts units. In unique mode a unit whose source is already
// stored is rejected with 409 and nothing after it is inserted.
func (h *Handler) CreateUnits(w http.ResponseWriter, r *http.Request) {
	var req createUnitsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Units) == 0 {
		h.writeError(w, r, apperrors.Invalidf("units must not be empty"))
		return
	}
	if req.Mode == "" {
		req.Mode = insertAppend
	}
	entries := make([]index.Entry, len(req.Units))
	for i, u := range req.Units {
		e, err := h.svc.entry(u)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		entries[i] = e
	}

	results := make([]unitResult, 0, len(entries))
	switch req.Mode {
	case insertAppend:
		ids, err := h.svc.engine.InsertBatch(entries)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		for _, id := range ids {
			results = append(results, unitResult{DocID: id})
		}
	case insertUnique:
		for _, e := range entries {
			id, err := h.svc.engine.InsertUnique(e)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			results = append(results, unitResult{DocID: id})
		}
	case insertOverride:
		for _, e := range entries {
			id, replaced, err := h.svc.engine.InsertOverwrite(e)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			results = append(results, unitResult{DocID: id, Replaced: replaced})
		}
	default:
		h.writeError(w, r, apperrors.Invalidf("unknown insert mode %q", req.Mode))
		return
	}
	logger.FromContext(r.Context()).Info("units indexed", "count", len(results), "mode", req.Mode)
	h.writeJSON(w, http.StatusCreated, map[string]any{"units": results})
}

func (h *Handler) unitID(w http.ResponseWriter, r *http.Request) (index.DocID, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		h.writeError(w, r, apperrors.Invalidf("invalid unit id %q", r.PathValue("id")))
		return 0, false
	}
	return index.DocID(id), true
}

type unitResponse struct {
	DocID        index.DocID       `json:"doc_id"`
	Source       string            `json:"source"`
	Target       string            `json:"target"`
	SourceLocale string            `json:"source_locale,omitempty"`
	TargetLocale string            `json:"target_locale,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.unitID(w, r)
	if !ok {
		return
	}
	u, err := h.svc.engine.Snapshot().Unit(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, unitResponse{
		DocID:        u.ID,
		Source:       u.Source.String(),
		Target:       u.Target.String(),
		SourceLocale: u.SourceLocale,
		TargetLocale: u.TargetLocale,
		Metadata:     u.Metadata,
		CreatedAt:    u.CreatedAt,
	})
}

func (h *Handler) UpdateUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.unitID(w, r)
	if !ok {
		return
	}
	var req unitRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.svc.entry(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	newID, err := h.svc.engine.Update(id, e)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, unitResult{DocID: newID, Replaced: []index.DocID{id}})
}

// DeleteUnit removes a unit. Unknown ids answer 200 with removed=false.
func (h *Handler) DeleteUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.unitID(w, r)
	if !ok {
		return
	}
	removed, err := h.svc.engine.Remove(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"doc_id": id, "removed": removed})
}

// queryRequest mirrors proto.SearchRequest but lets threshold be omitted.
type queryRequest struct {
	Query        string            `json:"query"`
	Mode         string            `json:"mode,omitempty"`
	Threshold    *int              `json:"threshold,omitempty"`
	MaxHits      int               `json:"max_hits,omitempty"`
	SourceLocale string            `json:"source_locale,omitempty"`
	TargetLocale string            `json:"target_locale,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (h *Handler) searchRequest(q queryRequest, query string) *proto.SearchRequest {
	threshold := h.svc.matching.DefaultThreshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}
	return &proto.SearchRequest{
		Query:        query,
		Mode:         q.Mode,
		Threshold:    threshold,
		MaxHits:      q.MaxHits,
		SourceLocale: q.SourceLocale,
		TargetLocale: q.TargetLocale,
		Metadata:     q.Metadata,
	}
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Search(r.Context(), h.searchRequest(req, req.Query))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type batchQueryRequest struct {
	queryRequest
	Queries []string `json:"queries"`
}

// BatchQuery runs each query in order with the shared options.
func (h *Handler) BatchQuery(w http.ResponseWriter, r *http.Request) {
	var req batchQueryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Queries) > maxBatchQuery {
		h.writeError(w, r, apperrors.Invalidf("at most %d queries per batch, got %d", maxBatchQuery, len(req.Queries)))
		return
	}
	results := make([]*proto.SearchResponse, 0, len(req.Queries))
	for _, q := range req.Queries {
		resp, err := h.svc.Search(r.Context(), h.searchRequest(req.queryRequest, q))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		results = append(results, resp)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Concordance answers GET /api/v1/concordance?q=...&max_hits=...
func (h *Handler) Concordance(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	text := params.Get("q")
	if text == "" {
		h.writeError(w, r, apperrors.Invalidf("query parameter 'q' is required"))
		return
	}
	req := queryRequest{
		Mode:         proto.ModeConcordance,
		SourceLocale: params.Get("source_locale"),
		TargetLocale: params.Get("target_locale"),
	}
	threshold := 0
	if v := params.Get("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, apperrors.Invalidf("threshold must be an integer"))
			return
		}
		threshold = n
	}
	req.Threshold = &threshold
	if v := params.Get("max_hits"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, apperrors.Invalidf("max_hits must be an integer"))
			return
		}
		req.MaxHits = n
	}
	resp, err := h.svc.Search(r.Context(), h.searchRequest(req, text))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Stats())
}

func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.engine.Flush(); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	c := h.svc.cache
	if c == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := c.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": hitRate,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	c := h.svc.cache
	if c == nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	if err := c.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, r, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "cache invalidation failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, r, apperrors.Invalidf("invalid request body: %v", err))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, status, map[string]string{
		"error": msg,
		"code":  apperrors.Code(err),
	})
}
