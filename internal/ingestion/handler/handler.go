// Package handler accepts asynchronous imports over HTTP: units are
// validated, published to the Kafka import topic and applied later by the
// import consumer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/logger"
)

const (
	maxBodyBytes = 16 << 20
	maxUnits     = 10000
)

var importOps = map[string]string{
	"":          ingestion.OpInsert,
	"append":    ingestion.OpInsert,
	"unique":    ingestion.OpUnique,
	"overwrite": ingestion.OpOverwrite,
}

// Summarizer reports ledger counts per status. The ledger satisfies it.
type Summarizer interface {
	Summary(ctx context.Context, origin string) (map[string]int64, error)
}

type Handler struct {
	producer publisher.Producer
	locales  *locale.Table
	ledger   Summarizer
	logger   *slog.Logger
}

// New returns a Handler. ledger may be nil when no import ledger is
// configured.
func New(producer publisher.Producer, locales *locale.Table, ledger Summarizer) *Handler {
	return &Handler{
		producer: producer,
		locales:  locales,
		ledger:   ledger,
		logger:   slog.Default().With("component", "import-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/imports", h.Import)
	mux.HandleFunc("GET /api/v1/imports/summary", h.Summary)
}

type importRequest struct {
	Mode   string                  `json:"mode,omitempty"`
	Origin string                  `json:"origin,omitempty"`
	Units  []ingestion.UnitPayload `json:"units"`
}

type importResponse struct {
	Origin   string   `json:"origin,omitempty"`
	EventIDs []string `json:"event_ids"`
}

// Import publishes one event per unit and answers 202. Validation is all or
// nothing: if any unit is invalid nothing is published.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req importRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	op, ok := importOps[req.Mode]
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode must be append, unique or overwrite"})
		return
	}
	if len(req.Units) == 0 || len(req.Units) > maxUnits {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "units must hold between 1 and 10000 entries"})
		return
	}

	events := make([]ingestion.ImportEvent, len(req.Units))
	for i := range req.Units {
		events[i] = ingestion.NewImportEvent(op, &req.Units[i], 0, req.Origin)
		if err := validator.ValidateImportEvent(&events[i], h.locales); err != nil {
			var verr *validator.ValidationError
			if errors.As(err, &verr) {
				h.writeJSON(w, http.StatusBadRequest, map[string]any{
					"error":  "validation failed",
					"index":  i,
					"fields": verr.Fields,
				})
				return
			}
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	pub := publisher.New(h.producer, h.locales, len(events))
	resp := importResponse{Origin: req.Origin, EventIDs: make([]string, len(events))}
	for i, ev := range events {
		if err := pub.Add(ctx, ev); err != nil {
			h.fail(w, r, err)
			return
		}
		resp.EventIDs[i] = ev.EventID
	}
	if err := pub.Flush(ctx); err != nil {
		h.fail(w, r, err)
		return
	}
	logger.FromContext(ctx).Info("import accepted", "origin", req.Origin, "units", len(events), "op", op)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// Summary reports how many recorded events ended in each status.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "import ledger not configured"})
		return
	}
	origin := r.URL.Query().Get("origin")
	counts, err := h.ledger.Summary(r.Context(), origin)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"origin": origin, "statuses": counts})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	logger.FromContext(r.Context()).Error("import request failed", "error", err, "status_code", status)
	h.writeJSON(w, status, map[string]string{"error": "import failed"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
