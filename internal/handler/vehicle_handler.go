package handler

import (
	"log/slog"
	"net/http"
	"time"

	"campusbus/internal/domain"
	"campusbus/internal/monitor"
	"campusbus/internal/store"
)

type VehicleHandler struct {
	vehicles   store.VehicleStore
	positions  store.PositionStore
	classifier *monitor.Classifier
	logger     *slog.Logger
}

func NewVehicleHandler(vehicles store.VehicleStore, positions store.PositionStore, classifier *monitor.Classifier, logger *slog.Logger) *VehicleHandler {
	return &VehicleHandler{
		vehicles:   vehicles,
		positions:  positions,
		classifier: classifier,
		logger:     logger.With("handler", "vehicles"),
	}
}

type VehiclesResponse struct {
	Vehicles   []*domain.Vehicle `json:"vehicles"`
	Count      int               `json:"count"`
	ServerTime time.Time         `json:"server_time"`
}

func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.vehicles.ListVehicles(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, VehiclesResponse{
		Vehicles:   vehicles,
		Count:      len(vehicles),
		ServerTime: time.Now(),
	})
}

func (h *VehicleHandler) Latest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing vehicle id")
		return
	}

	pos, err := h.positions.Latest(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pos)
}

func (h *VehicleHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing vehicle id")
		return
	}

	// classification succeeds even for vehicles with no telemetry, but
	// an unregistered id is a 404
	if _, err := h.vehicles.GetVehicle(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}

	status, err := h.classifier.Classify(r.Context(), id)
	if err != nil {
		h.logger.Error("classification failed", "vehicle_id", id, "error", err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type StatusesResponse struct {
	Statuses   []domain.VehicleStatus `json:"statuses"`
	Count      int                    `json:"count"`
	ServerTime time.Time              `json:"server_time"`
}

func (h *VehicleHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.classifier.ClassifyAll(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusesResponse{
		Statuses:   statuses,
		Count:      len(statuses),
		ServerTime: time.Now(),
	})
}
