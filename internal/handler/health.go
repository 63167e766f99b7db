package handler

import (
	"context"
	"net/http"
	"time"

	"campusbus/internal/store"
)

type HealthHandler struct {
	vehicles store.VehicleStore
	routes   store.RouteStore
}

func NewHealthHandler(vehicles store.VehicleStore, routes store.RouteStore) *HealthHandler {
	return &HealthHandler{vehicles: vehicles, routes: routes}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready        bool      `json:"ready"`
	RouteCount   int       `json:"route_count"`
	VehicleCount int       `json:"vehicle_count"`
	ServerTime   time.Time `json:"server_time"`
}

// Readyz reports ready once the stores answer. With the Postgres
// backend this doubles as a connectivity probe.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	routes, routesErr := h.routes.ListRoutes(ctx)
	vehicles, vehiclesErr := h.vehicles.ListVehicles(ctx)

	ready := routesErr == nil && vehiclesErr == nil
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:        ready,
		RouteCount:   len(routes),
		VehicleCount: len(vehicles),
		ServerTime:   time.Now(),
	})
}
