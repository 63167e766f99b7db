package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"campusbus/internal/domain"
	"campusbus/internal/store"
)

type SurveyHandler struct {
	surveys  *store.SurveyStore
	validate *validator.Validate
	logger   *slog.Logger
}

func NewSurveyHandler(surveys *store.SurveyStore, logger *slog.Logger) *SurveyHandler {
	return &SurveyHandler{
		surveys:  surveys,
		validate: validator.New(),
		logger:   logger.With("handler", "survey"),
	}
}

type surveyRequest struct {
	UserID        string    `json:"user_id" validate:"omitempty,max=64"`
	VehicleID     string    `json:"vehicle_id" validate:"required,max=64"`
	BoardStop     string    `json:"board_stop" validate:"required,max=64"`
	BoardTime     time.Time `json:"board_time" validate:"required"`
	ArrivalTime   time.Time `json:"arrival_time" validate:"required,gtefield=BoardTime"`
	TravelTimeMin int       `json:"travel_time_min" validate:"gte=0,lte=600"`
	EarlyMin      int       `json:"early_min" validate:"gte=0,lte=120"`
	LateMin       int       `json:"late_min" validate:"gte=0,lte=120"`
}

func (h *SurveyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req surveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid survey: "+err.Error())
		return
	}

	saved := h.surveys.Add(domain.RideSurvey{
		UserID:        req.UserID,
		VehicleID:     req.VehicleID,
		BoardStop:     req.BoardStop,
		BoardTime:     req.BoardTime,
		ArrivalTime:   req.ArrivalTime,
		TravelTimeMin: req.TravelTimeMin,
		EarlyMin:      req.EarlyMin,
		LateMin:       req.LateMin,
	})

	h.logger.Info("survey submitted", "survey_id", saved.ID, "vehicle_id", saved.VehicleID)
	respondJSON(w, http.StatusCreated, saved)
}

type SurveysResponse struct {
	Surveys []domain.RideSurvey `json:"surveys"`
	Count   int                 `json:"count"`
}

func (h *SurveyHandler) List(w http.ResponseWriter, r *http.Request) {
	surveys := h.surveys.List()
	respondJSON(w, http.StatusOK, SurveysResponse{Surveys: surveys, Count: len(surveys)})
}
