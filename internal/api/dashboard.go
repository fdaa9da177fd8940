package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/checkout-webhooks/internal/engine"
	"github.com/Priya8975/checkout-webhooks/internal/registry"
	"github.com/Priya8975/checkout-webhooks/internal/store"
	ws "github.com/Priya8975/checkout-webhooks/internal/websocket"
)

type DashboardHandler struct {
	registry *registry.Registry
	store    *store.PostgresStore
	health   HealthSource
	hub      *ws.Hub
	logger   *slog.Logger
}

func NewDashboardHandler(reg *registry.Registry, s *store.PostgresStore, health HealthSource, hub *ws.Hub, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{registry: reg, store: s, health: health, hub: hub, logger: logger}
}

type metricsResponse struct {
	ActiveSubscriptions   int                    `json:"active_subscriptions"`
	InactiveSubscriptions int                    `json:"inactive_subscriptions"`
	WebSocketClients      int                    `json:"websocket_clients"`
	Deliveries            *store.DeliveryMetrics `json:"deliveries,omitempty"`
}

// Metrics returns registry counts, plus logged delivery statistics when
// the event log is configured.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	active, inactive := h.registry.Counts()
	resp := metricsResponse{
		ActiveSubscriptions:   active,
		InactiveSubscriptions: inactive,
		WebSocketClients:      h.hub.ClientCount(),
	}

	if h.store != nil {
		m, err := h.store.GetDeliveryMetrics(r.Context())
		if err != nil {
			h.logger.Error("failed to get delivery metrics", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to get metrics")
			return
		}
		resp.Deliveries = m
	}

	respondJSON(w, http.StatusOK, resp)
}

type subscriptionHealth struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	EndpointURL string                `json:"endpoint_url"`
	Active      bool                  `json:"active"`
	LastOutcome string                `json:"last_outcome"`
	Health      engine.EndpointHealth `json:"health"`
}

// SubscriptionHealth lists every subscription with its endpoint health.
func (h *DashboardHandler) SubscriptionHealth(w http.ResponseWriter, r *http.Request) {
	subs := h.registry.List()
	result := make([]subscriptionHealth, 0, len(subs))
	for _, sub := range subs {
		state := engine.EndpointHealth{State: engine.HealthUnknown}
		if h.health != nil {
			state = h.health.GetState(r.Context(), sub.ID)
		}
		result = append(result, subscriptionHealth{
			ID:          sub.ID,
			Name:        sub.Name,
			EndpointURL: sub.EndpointURL,
			Active:      sub.Active,
			LastOutcome: string(sub.LastOutcome),
			Health:      state,
		})
	}
	respondJSON(w, http.StatusOK, result)
}
