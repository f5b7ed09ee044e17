package handlers

import (
	"net/http"

	"github.com/eldtechnologies/collab/internal/metrics"
)

// Targets are the performance goals the engine is measured against.
type Targets struct {
	LatencyMs           float64 `json:"latency_ms"`
	ConnectionSetupMs   float64 `json:"connection_setup_ms"`
	ThroughputPerSecond float64 `json:"throughput_per_second"`
	UptimePercent       float64 `json:"uptime_percent"`
}

// StatsHealth flags whether targets are currently met.
type StatsHealth struct {
	LatencyTargetMet bool    `json:"latency_target_met"`
	StoreHealthy     bool    `json:"store_healthy"`
	Healthy          bool    `json:"healthy"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	metrics.Snapshot
	Targets Targets     `json:"targets"`
	Health  StatsHealth `json:"health"`
}

// Stats returns the engine metrics snapshot with targets and health flags.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	eh := h.engine.Health(r.Context())

	h.JSON(w, http.StatusOK, StatsResponse{
		Snapshot: h.engine.Stats(),
		Targets: Targets{
			LatencyMs:           metrics.TargetLatencyMs,
			ConnectionSetupMs:   metrics.TargetConnectionSetupMs,
			ThroughputPerSecond: metrics.TargetThroughputPerSecond,
			UptimePercent:       metrics.TargetUptimePercent,
		},
		Health: StatsHealth{
			LatencyTargetMet: eh.LatencyTargetMet,
			StoreHealthy:     eh.StoreHealthy,
			Healthy:          eh.Healthy,
			UptimeSeconds:    eh.UptimeSeconds,
		},
	})
}
