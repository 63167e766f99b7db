package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"campusbus/internal/eta"
)

// ETAMetrics counts requests per computation mode.
type ETAMetrics interface {
	ETARequest(mode string)
}

type ETAHandler struct {
	svc     *eta.Service
	logger  *slog.Logger
	metrics ETAMetrics
}

func NewETAHandler(svc *eta.Service, logger *slog.Logger, metrics ETAMetrics) *ETAHandler {
	return &ETAHandler{svc: svc, logger: logger.With("handler", "eta"), metrics: metrics}
}

func (h *ETAHandler) Baseline(w http.ResponseWriter, r *http.Request) {
	if h.metrics != nil {
		h.metrics.ETARequest("baseline")
	}
	vehicleID := r.URL.Query().Get("vehicle_id")
	stopID := r.URL.Query().Get("stop_id")
	if vehicleID == "" || stopID == "" {
		respondError(w, http.StatusBadRequest, "vehicle_id and stop_id are required")
		return
	}

	res, err := h.svc.ComputeBaseline(r.Context(), vehicleID, stopID)
	if err != nil {
		h.logger.Debug("baseline eta failed", "vehicle_id", vehicleID, "stop_id", stopID, "error", err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *ETAHandler) Ensemble(w http.ResponseWriter, r *http.Request) {
	if h.metrics != nil {
		h.metrics.ETARequest("ensemble")
	}
	vehicleID := r.URL.Query().Get("vehicle_id")
	stopID := r.URL.Query().Get("stop_id")
	if vehicleID == "" || stopID == "" {
		respondError(w, http.StatusBadRequest, "vehicle_id and stop_id are required")
		return
	}

	toggles := map[string]bool{}
	for param, name := range map[string]string{"use_tmap": "tmap", "use_kakao": "kakao"} {
		if v := r.URL.Query().Get(param); v != "" {
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				respondError(w, http.StatusBadRequest, param+" must be a boolean")
				return
			}
			toggles[name] = enabled
		}
	}

	res, err := h.svc.ComputeEnsemble(r.Context(), vehicleID, stopID, toggles)
	if err != nil {
		h.logger.Debug("ensemble eta failed", "vehicle_id", vehicleID, "stop_id", stopID, "error", err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
