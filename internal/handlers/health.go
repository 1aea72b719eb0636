package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// HealthResponse reports store connectivity and loaded reference data
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Database    string `json:"database"`
	HazardZones int    `json:"hazard_zones"`
	FloodRoads  int    `json:"flood_roads"`
}

// HandleHealthCheck handles GET /api/v1/health
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  h.Version,
		Database: "connected",
	}

	if err := h.DB.HealthCheck(r.Context()); err != nil {
		h.logger().Warn("health check failed", zap.Error(err))
		resp.Status = "degraded"
		resp.Database = "unavailable"
		h.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if n, err := h.DB.HazardZones().Count(r.Context()); err == nil {
		resp.HazardZones = n
	}
	if n, err := h.DB.FloodRoads().Count(r.Context()); err == nil {
		resp.FloodRoads = n
	}

	h.writeJSON(w, http.StatusOK, resp)
}
