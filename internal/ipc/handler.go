// Package ipc provides the local HTTP API of the scavenger daemon.
package ipc

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mineworks/scavengerd/internal/domain"
	"github.com/mineworks/scavengerd/internal/orchestrator"
	"github.com/mineworks/scavengerd/internal/store"
)

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Orchestrator  *orchestrator.Orchestrator
	DB            *sql.DB
	ReceiptRepo   *store.ReceiptRepo
	ChallengeRepo *store.ChallengeRepo
	EventRepo     *store.EventRepo
	StatsRepo     *store.StatsRepo
}

// HealthResponse is the body for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
	Time   int64  `json:"time"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Time: time.Now().Unix()})
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Orchestrator.Status())
}

// ListReceipts handles GET /api/v1/receipts/{challengeID}.
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	challengeID := r.PathValue("challengeID")
	recs, err := h.ReceiptRepo.ListByChallenge(r.Context(), h.DB, challengeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.Receipt{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// ListChallenges handles GET /api/v1/challenges.
func (h *Handler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ChallengeRepo.List(r.Context(), h.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.ChallengeLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// StatsHistory handles GET /api/v1/stats/history?limit=N.
func (h *Handler) StatsHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err == nil {
			limit = parsed
		}
	}

	samples, err := h.StatsRepo.ListRecent(r.Context(), h.DB, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if samples == nil {
		samples = []domain.StatsSample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

// ListEvents handles GET /api/v1/events?since_seq=N.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	sinceSeq := int64(0)
	if s := r.URL.Query().Get("since_seq"); s != "" {
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			sinceSeq = parsed
		}
	}

	events, err := h.EventRepo.ListSince(r.Context(), h.DB, sinceSeq)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.EventRecord{}
	}
	writeJSON(w, http.StatusOK, events)
}

// StreamEvents handles GET /api/v1/events/stream (SSE). Events are pushed
// from the orchestrator's bus; the connection stays open until the client
// goes away.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	bus := h.Orchestrator.Bus()
	id, events := bus.Subscribe()
	defer bus.Unsubscribe(id)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			writeSSEEvent(w, flusher, ev)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if minerErr, ok := err.(*domain.MinerError); ok {
		status := http.StatusInternalServerError
		switch minerErr.Code {
		case domain.ErrClientRequest.Code:
			status = http.StatusBadRequest
		case domain.ErrNotRunning.Code, domain.ErrNoChallenge.Code:
			status = http.StatusConflict
		case domain.ErrTransient.Code, domain.ErrRetriesExhausted.Code:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, APIError{Code: minerErr.Code, Message: minerErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, ev orchestrator.Event) {
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	f.Flush()
}
