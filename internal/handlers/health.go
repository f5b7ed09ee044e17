package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string           `json:"status"` // "healthy" or "degraded"
	Version       string           `json:"version"`
	Instance      string           `json:"instance,omitempty"`
	Checks        map[string]Check `json:"checks"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Timestamp     string           `json:"timestamp"`
}

// Health reports the state of every configured dependency. The latency
// target is informational and does not degrade the status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check, len(h.checks)+1)
	allHealthy := true

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		start := time.Now()
		if err := h.checks[name].Ping(ctx); err != nil {
			checks[name] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
			continue
		}
		checks[name] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	eh := h.engine.Health(ctx)
	if eh.LatencyTargetMet {
		checks["latency"] = Check{Status: "pass"}
	} else {
		checks["latency"] = Check{Status: "fail", Message: "p95 latency above target"}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:        status,
		Version:       version,
		Instance:      h.instance,
		Checks:        checks,
		UptimeSeconds: eh.UptimeSeconds,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Root handles the API info endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "collab",
		Version: version,
		Endpoints: []string{
			"POST /rooms",
			"GET /rooms",
			"GET /rooms/{id}",
			"DELETE /rooms/{id}",
			"GET /rooms/{id}/ws",
			"POST /rooms/{id}/messages",
			"GET /rooms/{id}/messages",
			"POST /rooms/{id}/typing",
			"POST /rooms/{id}/leave",
			"GET /rooms/{id}/presence",
			"PUT /presence",
			"GET /stats",
		},
	})
}
