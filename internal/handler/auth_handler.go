package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"campusbus/internal/auth"
)

type AuthHandler struct {
	tokens *auth.TokenStore
	logger *slog.Logger
}

func NewAuthHandler(tokens *auth.TokenStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{tokens: tokens, logger: logger.With("handler", "auth")}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	token, expires, err := h.tokens.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			h.logger.Warn("login rejected", "username", req.Username)
			respondError(w, http.StatusUnauthorized, "bad credentials")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info("login", "username", req.Username)
	respondJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		h.tokens.Revoke(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequireToken guards mutating endpoints with a bearer token check.
func (h *AuthHandler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, ok := h.tokens.Validate(token); !ok {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
