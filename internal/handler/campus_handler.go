package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"campusbus/internal/campus"
	"campusbus/internal/domain"
	"campusbus/internal/store"
)

// CampusHandler serves boarding guidance: which stop to board at and,
// per building, which stop to get off at.
type CampusHandler struct {
	guide  *campus.Service
	logger *slog.Logger
}

func NewCampusHandler(guide *campus.Service, logger *slog.Logger) *CampusHandler {
	return &CampusHandler{
		guide:  guide,
		logger: logger.With("handler", "campus"),
	}
}

func (h *CampusHandler) BoardingStop(w http.ResponseWriter, r *http.Request) {
	stop, err := h.guide.DefaultBoardStop(r.Context())
	if err != nil {
		if errors.Is(err, campus.ErrNoBoardStop) || errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusInternalServerError, "default boarding stop not configured")
			return
		}
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stop)
}

type GuidesResponse struct {
	DefaultBoardStop *domain.Stop    `json:"default_board_stop"`
	DropoffGuides    []*campus.Guide `json:"dropoff_guides"`
}

func (h *CampusHandler) ListGuides(w http.ResponseWriter, r *http.Request) {
	board, err := h.guide.DefaultBoardStop(r.Context())
	if err != nil {
		// the list stays useful without a boarding stop
		if !errors.Is(err, campus.ErrNoBoardStop) && !errors.Is(err, store.ErrNotFound) {
			respondDomainError(w, err)
			return
		}
		board = nil
	}

	guides, err := h.guide.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, GuidesResponse{
		DefaultBoardStop: board,
		DropoffGuides:    guides,
	})
}

func (h *CampusHandler) GetGuide(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing building id")
		return
	}

	guide, err := h.guide.Guide(r.Context(), id)
	if err != nil {
		if errors.Is(err, campus.ErrBuildingNotFound) {
			respondError(w, http.StatusNotFound, "building not found")
			return
		}
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, guide)
}
