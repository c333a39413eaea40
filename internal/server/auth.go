package server

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/carlosvictorodrigues/ratio/internal/auth"
)

// authHandler issues and refreshes the bearer tokens that gate the
// query API. Token issuance is reserved for trusted callers holding
// the shared service key; refresh only needs the token itself.
type authHandler struct {
	manager    *auth.Manager
	serviceKey string
	logger     *slog.Logger
}

type tokenRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (h *authHandler) token(w http.ResponseWriter, r *http.Request) {
	if h.serviceKey == "" {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "token issuance is not enabled"})
		return
	}
	key := r.Header.Get("X-Service-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.serviceKey)) != 1 {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid service key"})
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	userID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id must be a UUID"})
		return
	}

	token, err := h.manager.Generate(userID, req.UserName)
	if err != nil {
		h.logger.Error("token issuance failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to issue token"})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *authHandler) refresh(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	tokenString = strings.TrimSpace(tokenString)
	if !found || tokenString == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	token, err := h.manager.Refresh(tokenString)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}
