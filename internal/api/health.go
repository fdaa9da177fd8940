package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a backing service the health check pings.
type Pinger interface {
	Healthy(ctx context.Context) bool
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// HealthHandler reports "healthy" when every configured component answers,
// and "degraded" with a 503 otherwise. Dispatching keeps working without
// them, so the server itself is never reported down.
func HealthHandler(components map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "healthy", Version: "1.0.0"}
		status := http.StatusOK

		if len(components) > 0 {
			resp.Components = make(map[string]string, len(components))
			for name, p := range components {
				if p.Healthy(ctx) {
					resp.Components[name] = "up"
					continue
				}
				resp.Components[name] = "down"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}

		respondJSON(w, status, resp)
	}
}
