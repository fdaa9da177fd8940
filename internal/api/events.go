package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
	"github.com/Priya8975/checkout-webhooks/internal/engine"
	"github.com/Priya8975/checkout-webhooks/internal/store"
	"github.com/Priya8975/checkout-webhooks/internal/worker"
)

// Queue accepts events for background fan-out.
type Queue interface {
	TrySubmit(req worker.DispatchRequest) bool
}

type EventHandler struct {
	dispatcher *engine.Dispatcher
	queue      Queue
	store      *store.PostgresStore
	timeout    time.Duration
	logger     *slog.Logger
}

func NewEventHandler(d *engine.Dispatcher, q Queue, s *store.PostgresStore, timeout time.Duration, logger *slog.Logger) *EventHandler {
	return &EventHandler{dispatcher: d, queue: q, store: s, timeout: timeout, logger: logger}
}

type createEventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Async     bool            `json:"async,omitempty"`
}

type queuedResponse struct {
	Status    string `json:"status"`
	EventType string `json:"event_type"`
}

// Create dispatches an event. Synchronous calls answer with the full
// report once every attempt has finished; async calls answer 202 at once.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Async {
		if req.EventType == "" {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "event_type is required", Field: "event_type"})
			return
		}
		if !h.queue.TrySubmit(worker.DispatchRequest{EventType: req.EventType, Payload: req.Payload}) {
			respondError(w, http.StatusServiceUnavailable, "dispatch queue is full")
			return
		}
		respondJSON(w, http.StatusAccepted, queuedResponse{Status: "queued", EventType: req.EventType})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.dispatcher.Dispatch(ctx, req.EventType, req.Payload)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to dispatch event")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "event log is not configured")
		return
	}

	events, err := h.store.ListEvents(r.Context(), r.URL.Query().Get("event_type"), queryLimit(r, 50))
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	respondJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "event log is not configured")
		return
	}

	event, err := h.store.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("failed to get event", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}
	respondJSON(w, http.StatusOK, event)
}

// EventTypes lists the catalog offered by the admin screen.
func EventTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, domain.EventCatalog)
}
