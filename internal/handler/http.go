package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"campusbus/internal/eta"
	"campusbus/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondDomainError maps the service error taxonomy onto HTTP
// statuses: unknown entities are 404, missing telemetry is 404 with a
// distinct message, everything else is 500.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, eta.ErrNoPosition):
		respondError(w, http.StatusNotFound, "no position recorded for vehicle")
	case errors.Is(err, eta.ErrNoStop):
		respondError(w, http.StatusNotFound, "stop not found")
	case errors.Is(err, eta.ErrNoRouteGeometry):
		respondError(w, http.StatusUnprocessableEntity, "route geometry unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
