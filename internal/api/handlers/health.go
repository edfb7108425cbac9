package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/api"
	"github.com/knesgoda/opql-toolkit/internal/cache"
)

// ServiceStatus reports one dependency's health.
type ServiceStatus struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse is the /v1/health payload.
type HealthResponse struct {
	Status   string                   `json:"status"`
	Version  string                   `json:"version"`
	Services map[string]ServiceStatus `json:"services"`
}

// HealthHandler reports liveness of the query-execution path's
// dependencies. A nil Cache is treated as "no cache configured" rather than
// a failure, since plan caching and rate limiting are both optional.
type HealthHandler struct {
	Cache   *cache.Client
	Version string
}

func NewHealthHandler(c *cache.Client, version string) *HealthHandler {
	return &HealthHandler{Cache: c, Version: version}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]ServiceStatus)
	overall := "ok"

	if h.Cache == nil {
		services["redis"] = ServiceStatus{Status: "disabled"}
	} else {
		start := time.Now()
		if err := h.Cache.Ping(ctx); err != nil {
			services["redis"] = ServiceStatus{
				Status:    "down",
				LatencyMS: time.Since(start).Milliseconds(),
				Error:     err.Error(),
			}
			overall = "degraded"
		} else {
			services["redis"] = ServiceStatus{
				Status:    "ok",
				LatencyMS: time.Since(start).Milliseconds(),
			}
		}
	}

	status := http.StatusOK
	if overall != "ok" {
		status = http.StatusServiceUnavailable
	}

	api.JSON(w, status, HealthResponse{
		Status:   overall,
		Version:  h.Version,
		Services: services,
	})
}
