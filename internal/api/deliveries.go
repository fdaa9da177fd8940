package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/checkout-webhooks/internal/store"
)

type DeliveryHandler struct {
	store  *store.PostgresStore
	logger *slog.Logger
}

func NewDeliveryHandler(s *store.PostgresStore, logger *slog.Logger) *DeliveryHandler {
	return &DeliveryHandler{store: s, logger: logger}
}

func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "event log is not configured")
		return
	}

	q := r.URL.Query()
	attempts, err := h.store.ListDeliveries(r.Context(), store.DeliveryFilter{
		SubscriptionID: q.Get("subscription_id"),
		EventID:        q.Get("event_id"),
		Outcome:        q.Get("outcome"),
		Limit:          queryLimit(r, 50),
	})
	if err != nil {
		h.logger.Error("failed to list delivery attempts", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list delivery attempts")
		return
	}
	respondJSON(w, http.StatusOK, attempts)
}
