package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/health"
	"github.com/citelinker/resolver/internal/infra/storage"
	"github.com/citelinker/resolver/internal/resolve/batch"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type createItemRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}

	// One item per URL
	if existing, err := s.items.GetByURL(r.Context(), req.URL); err == nil {
		writeJSON(w, http.StatusOK, existing)
		return
	}

	item := &domain.Item{
		ID:     uuid.New().String(),
		URL:    req.URL,
		Status: domain.StatusNotStarted,
		Intent: domain.IntentAuto,
	}
	if err := s.items.Create(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

type itemResponse struct {
	*domain.Item
	History []*domain.Attempt `json:"history"`
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	item, err := s.items.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	history, err := s.attempts.ListByItem(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{Item: item, History: history})
}

func (s *Server) handleProcessItem(w http.ResponseWriter, r *http.Request) {
	res := s.orch.ProcessItem(r.Context(), r.PathValue("id"))
	status := http.StatusOK
	if !res.Success && res.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleResetItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.items.Reset(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if err := s.attempts.DeleteByItem(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	item, err := s.items.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type setIntentRequest struct {
	Intent domain.Intent `json:"intent"`
}

func (s *Server) handleSetIntent(w http.ResponseWriter, r *http.Request) {
	var req setIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Intent {
	case domain.IntentAuto, domain.IntentIgnore, domain.IntentPriority,
		domain.IntentManualOnly, domain.IntentArchive:
	default:
		writeError(w, http.StatusBadRequest, "unknown intent")
		return
	}

	id := r.PathValue("id")
	if err := s.items.SetIntent(r.Context(), id, req.Intent); err != nil {
		if errors.Is(err, storage.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addIdentifiersRequest struct {
	Identifiers []string `json:"identifiers"`
	Notes       string   `json:"notes"`
}

func (s *Server) handleAddIdentifiers(w http.ResponseWriter, r *http.Request) {
	var req addIdentifiersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.PathValue("id")
	if _, err := s.items.GetByID(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	enrichment := &domain.Enrichment{ItemID: id}
	if existing, err := s.enrichment.Get(r.Context(), id); err == nil && existing != nil {
		enrichment = existing
	}
	enrichment.Identifiers = mergeIdentifiers(enrichment.Identifiers, req.Identifiers)
	if req.Notes != "" {
		enrichment.Notes = req.Notes
	}
	enrichment.UpdatedAt = time.Now()

	if err := s.enrichment.Upsert(r.Context(), enrichment); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, enrichment)
}

type runBatchRequest struct {
	ItemIDs           []string `json:"item_ids"`
	Concurrency       int      `json:"concurrency"`
	RespectUserIntent bool     `json:"respect_user_intent"`
	StopOnError       bool     `json:"stop_on_error"`
}

// handleRunBatch starts a batch and streams its progress events as
// line-delimited JSON over a chunked response until the session ends.
func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	var req runBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.ItemIDs) == 0 {
		writeError(w, http.StatusBadRequest, "item_ids is empty")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// The batch must outlive this request if the client disconnects.
	id, events := s.runner.RunBatch(context.WithoutCancel(r.Context()), req.ItemIDs, batch.Options{
		Concurrency:       req.Concurrency,
		RespectUserIntent: req.RespectUserIntent,
		StopOnError:       req.StopOnError,
	})

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Session-Id", id)
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			// Client went away; the batch keeps running.
			slog.Debug("Batch stream closed by client", "session", id)
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.runner.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, s.runner.PauseSession)
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, s.runner.ResumeSession)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, s.runner.CancelSession)
}

func (s *Server) sessionAction(w http.ResponseWriter, r *http.Request, fn func(string) error) {
	err := fn(r.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, batch.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, batch.ErrSessionTerminal):
		writeError(w, http.StatusConflict, "session already finished")
	default:
		writeError(w, http.StatusConflict, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	response := map[string]string{"status": string(report.SystemStatus)}

	status := http.StatusOK
	if report.SystemStatus == health.StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func mergeIdentifiers(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	out := existing
	for _, id := range existing {
		seen[id] = true
	}
	for _, id := range added {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
