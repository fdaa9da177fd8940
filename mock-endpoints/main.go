// Command mock-endpoints serves webhook receivers with fixed behaviours for
// local demos: one that succeeds, one that is slow, one that fails and one
// that never answers.
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type stats struct {
	total   atomic.Int64
	mu      sync.Mutex
	byEvent map[string]int64
}

func newStats() *stats {
	return &stats{byEvent: make(map[string]int64)}
}

func (s *stats) record(r *http.Request) int64 {
	s.mu.Lock()
	s.byEvent[r.Header.Get("X-Webhook-Event")]++
	s.mu.Unlock()
	return s.total.Add(1)
}

type statsResponse struct {
	TotalRequests int64            `json:"total_requests"`
	ByEvent       map[string]int64 `json:"by_event"`
}

func (s *stats) snapshot() statsResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	byEvent := make(map[string]int64, len(s.byEvent))
	for k, v := range s.byEvent {
		byEvent[k] = v
	}
	return statsResponse{TotalRequests: s.total.Load(), ByEvent: byEvent}
}

func newRouter(st *stats, slowDelay time.Duration, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	reply := func(status int, body map[string]string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			count := st.record(r)
			logger.Info("webhook received",
				"n", count,
				"path", r.URL.Path,
				"status", status,
				"event", r.Header.Get("X-Webhook-Event"),
				"webhook_id", r.Header.Get("X-Webhook-ID"),
				"delivery_id", r.Header.Get("X-Webhook-Delivery"),
			)
			writeJSON(w, status, body)
		}
	}

	r.Post("/webhook/success", reply(http.StatusOK, map[string]string{"status": "received"}))
	r.Post("/webhook/fail", reply(http.StatusInternalServerError, map[string]string{"error": "internal server error"}))

	slow := reply(http.StatusOK, map[string]string{"status": "received (slow)"})
	r.Post("/webhook/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(slowDelay):
			slow(w, r)
		case <-r.Context().Done():
		}
	})

	// hang holds the connection until the caller gives up.
	r.Post("/webhook/hang", func(w http.ResponseWriter, r *http.Request) {
		st.record(r)
		<-r.Context().Done()
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, st.snapshot())
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	logger.Info("mock endpoint server starting",
		"port", port,
		"routes", []string{"/webhook/success", "/webhook/slow", "/webhook/fail", "/webhook/hang", "/stats"},
	)

	if err := http.ListenAndServe(":"+port, newRouter(newStats(), 3*time.Second, logger)); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
