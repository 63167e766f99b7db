package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"campusbus/internal/auth"
	"campusbus/internal/domain"
	"campusbus/internal/publisher"
	"campusbus/internal/store"
)

// IngestMetrics counts accept/reject outcomes.
type IngestMetrics interface {
	IngestAccepted()
	IngestRejected(reason string)
}

type IngestHandler struct {
	positions store.PositionStore
	vehicles  store.VehicleStore
	sink      publisher.Sink
	validate  *validator.Validate
	logger    *slog.Logger

	requireSignature bool
	maxBodyBytes     int64
	metrics          IngestMetrics
}

func NewIngestHandler(
	positions store.PositionStore,
	vehicles store.VehicleStore,
	sink publisher.Sink,
	requireSignature bool,
	logger *slog.Logger,
	metrics IngestMetrics,
) *IngestHandler {
	return &IngestHandler{
		positions:        positions,
		vehicles:         vehicles,
		sink:             sink,
		validate:         validator.New(),
		logger:           logger.With("handler", "ingest"),
		requireSignature: requireSignature,
		maxBodyBytes:     16 * 1024,
		metrics:          metrics,
	}
}

type ingestRequest struct {
	VehicleID string   `json:"vehicle_id" validate:"required,max=64"`
	TS        int64    `json:"ts" validate:"required,gt=0"`
	Lat       float64  `json:"lat" validate:"latitude"`
	Lon       float64  `json:"lon" validate:"longitude"`
	SpeedMps  *float64 `json:"speed_mps,omitempty" validate:"omitempty,gte=0,lte=60"`
	Heading   *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
}

type ingestResponse struct {
	Stored    bool   `json:"stored"`
	VehicleID string `json:"vehicle_id"`
	TS        int64  `json:"ts"`
}

func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.reject(w, http.StatusBadRequest, "validation", "invalid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.reject(w, http.StatusUnprocessableEntity, "validation", "invalid telemetry: "+err.Error())
		return
	}

	vehicle, err := h.vehicles.GetVehicle(r.Context(), req.VehicleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.reject(w, http.StatusNotFound, "unknown_vehicle", "unknown vehicle")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	signature := r.Header.Get("X-Device-Signature")
	if h.requireSignature || signature != "" {
		if !auth.VerifyBody(vehicle.Secret, body, signature) {
			h.logger.Warn("bad device signature", "vehicle_id", req.VehicleID)
			h.reject(w, http.StatusUnauthorized, "signature", "bad device signature")
			return
		}
	}

	pos := domain.Position{
		VehicleID: req.VehicleID,
		TS:        req.TS,
		Lat:       req.Lat,
		Lon:       req.Lon,
		SpeedMps:  req.SpeedMps,
		Heading:   req.Heading,
	}
	if err := h.positions.Append(r.Context(), pos); err != nil {
		h.logger.Error("position append failed", "vehicle_id", req.VehicleID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.vehicles.Touch(r.Context(), req.VehicleID, time.Now().Unix()); err != nil {
		h.logger.Warn("vehicle touch failed", "vehicle_id", req.VehicleID, "error", err)
	}

	if h.metrics != nil {
		h.metrics.IngestAccepted()
	}
	h.sink.Publish("vehicle:"+req.VehicleID, pos)

	respondJSON(w, http.StatusAccepted, ingestResponse{
		Stored:    true,
		VehicleID: req.VehicleID,
		TS:        req.TS,
	})
}

func (h *IngestHandler) reject(w http.ResponseWriter, status int, reason, message string) {
	if h.metrics != nil {
		h.metrics.IngestRejected(reason)
	}
	respondError(w, status, message)
}
