package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-telemetry/internal/auth"
	"github.com/ukydev/fleet-telemetry/internal/middleware"
	"github.com/ukydev/fleet-telemetry/internal/models"
)

// Authenticator issues tokens for operator credentials. *auth.Service implements it.
type Authenticator interface {
	Login(username, password string) (*models.LoginResponse, error)
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService Authenticator
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService Authenticator) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Login handles operator login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var loginReq models.LoginRequest
	if err := json.Unmarshal(body, &loginReq); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if loginReq.Username == "" || loginReq.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	response, err := h.authService.Login(loginReq.Username, loginReq.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			log.WithField("username", loginReq.Username).Warn("Failed login attempt")
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		log.WithError(err).Error("Failed to issue token")
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// Me returns the claims of the calling operator
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, claims)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}
