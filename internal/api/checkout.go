package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Priya8975/checkout-webhooks/internal/checkout"
)

type CheckoutHandler struct {
	service *checkout.Service
	logger  *slog.Logger
}

func NewCheckoutHandler(s *checkout.Service, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: s, logger: logger}
}

type productsResponse struct {
	Products  []checkout.Product `json:"products"`
	OrderBump checkout.Product   `json:"order_bump"`
}

// Products does not need Redis, so it is served even when checkout is off.
func Products(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, productsResponse{Products: checkout.Products, OrderBump: checkout.OrderBump})
}

type startRequest struct {
	ProductID string `json:"product_id"`
}

func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := h.service.Start(r.Context(), req.ProductID)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to start checkout")
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *CheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req checkout.CompleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.Complete(r.Context(), req)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to complete checkout")
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

func (h *CheckoutHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.RecentOrders(r.Context(), queryLimit(r, 20))
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to list orders")
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Order(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to get order")
		return
	}
	respondJSON(w, http.StatusOK, order)
}
