package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"studybot-backend/internal/middleware"
	"studybot-backend/internal/models"
)

type AuthHandler struct {
	jwtAuth       *middleware.JWTAuth
	adminPassword string
}

func NewAuthHandler(jwtAuth *middleware.JWTAuth, adminPassword string) *AuthHandler {
	return &AuthHandler{jwtAuth: jwtAuth, adminPassword: adminPassword}
}

// Login exchanges the admin password for a dashboard access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Password is required", r))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.adminPassword)) != 1 {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Invalid password", r))
		return
	}

	token, expiresIn, err := h.jwtAuth.GenerateAdminToken()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to issue token", r))
		return
	}

	writeJSON(w, http.StatusOK, models.TokenResponse{AccessToken: token, ExpiresIn: expiresIn})
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}
