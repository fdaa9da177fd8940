package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Priya8975/checkout-webhooks/internal/checkout"
	"github.com/Priya8975/checkout-webhooks/internal/engine"
	"github.com/Priya8975/checkout-webhooks/internal/registry"
	"github.com/Priya8975/checkout-webhooks/internal/store"
	ws "github.com/Priya8975/checkout-webhooks/internal/websocket"
)

// Deps are the components the router serves. Store, Health and Checkout
// are optional; their routes answer 503 or fall back when nil.
type Deps struct {
	Registry        *registry.Registry
	Dispatcher      *engine.Dispatcher
	Queue           Queue
	Hub             *ws.Hub
	Health          HealthSource
	Store           *store.PostgresStore
	Checkout        *checkout.Service
	Components      map[string]Pinger
	DispatchTimeout time.Duration
	Logger          *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	if d.DispatchTimeout <= 0 {
		d.DispatchTimeout = 30 * time.Second
	}

	subHandler := NewSubscriptionHandler(d.Registry, d.Dispatcher, d.Health, d.Logger)
	eventHandler := NewEventHandler(d.Dispatcher, d.Queue, d.Store, d.DispatchTimeout, d.Logger)
	deliveryHandler := NewDeliveryHandler(d.Store, d.Logger)
	dashHandler := NewDashboardHandler(d.Registry, d.Store, d.Health, d.Hub, d.Logger)

	r.Get("/ws", d.Hub.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(d.Components))

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subHandler.Create)
			r.Get("/", subHandler.List)
			r.Get("/{id}", subHandler.Get)
			r.Patch("/{id}", subHandler.Update)
			r.Delete("/{id}", subHandler.Delete)
			r.Post("/{id}/test", subHandler.Test)
			r.Get("/{id}/health", subHandler.Health)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", eventHandler.Create)
			r.Get("/", eventHandler.List)
			r.Get("/{id}", eventHandler.Get)
		})

		r.Get("/event-types", EventTypes)
		r.Get("/deliveries", deliveryHandler.List)
		r.Get("/metrics", dashHandler.Metrics)
		r.Get("/subscriptions-health", dashHandler.SubscriptionHealth)

		r.Get("/products", Products)
		if d.Checkout != nil {
			checkoutHandler := NewCheckoutHandler(d.Checkout, d.Logger)
			r.Post("/checkout/start", checkoutHandler.Start)
			r.Post("/checkout", checkoutHandler.Complete)
			r.Get("/orders", checkoutHandler.ListOrders)
			r.Get("/orders/{id}", checkoutHandler.GetOrder)
		} else {
			for _, pattern := range []string{"/checkout", "/checkout/*", "/orders", "/orders/*"} {
				r.HandleFunc(pattern, checkoutDisabled)
			}
		}
	})

	return r
}

func checkoutDisabled(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusServiceUnavailable, "checkout requires redis")
}

// corsMiddleware adds CORS headers for the admin screen.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
