package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
	"github.com/Priya8975/checkout-webhooks/internal/engine"
	"github.com/Priya8975/checkout-webhooks/internal/registry"
)

// HealthSource reports and forgets per-subscription endpoint health.
type HealthSource interface {
	GetState(ctx context.Context, subscriptionID string) engine.EndpointHealth
	Forget(ctx context.Context, subscriptionID string)
}

type SubscriptionHandler struct {
	registry   *registry.Registry
	dispatcher *engine.Dispatcher
	health     HealthSource
	logger     *slog.Logger
}

func NewSubscriptionHandler(reg *registry.Registry, d *engine.Dispatcher, health HealthSource, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{registry: reg, dispatcher: d, health: health, logger: logger}
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.registry.Add(r.Context(), req)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to create subscription")
		return
	}

	respondJSON(w, http.StatusCreated, sub)
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.registry.List())
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to get subscription")
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// Update only toggles the active flag; url and events are fixed at creation.
func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateSubscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Active == nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "active is required", Field: "active"})
		return
	}

	sub, err := h.registry.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to update subscription")
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// Delete is idempotent: unknown ids also get 204.
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.registry.Remove(r.Context(), id) && h.health != nil {
		h.health.Forget(r.Context(), id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Test sends a webhook.test event to one subscription and returns the attempt.
func (h *SubscriptionHandler) Test(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.dispatcher.Test(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to test subscription")
		return
	}
	respondJSON(w, http.StatusOK, attempt)
}

func (h *SubscriptionHandler) Health(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.registry.Get(id); err != nil {
		respondDomainError(w, h.logger, err, "failed to get subscription")
		return
	}
	if h.health == nil {
		respondJSON(w, http.StatusOK, engine.EndpointHealth{State: engine.HealthUnknown})
		return
	}
	respondJSON(w, http.StatusOK, h.health.GetState(r.Context(), id))
}
