package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"reepay-bridge/internal/auth"
	"reepay-bridge/internal/logger"
	"reepay-bridge/internal/utils"

	"go.uber.org/zap"
)

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueToken exchanges operator credentials for a bearer token. The token is
// also set as an HttpOnly cookie for browser use.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	log := logger.FromCtx(r.Context()).With(zap.String("username", req.Username))

	if !h.credentials.Verify(req.Username, req.Password) {
		log.Warn("operator login failed")
		utils.WriteJSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateToken(h.jwtSecret, req.Username, h.tokenTTL)
	if err != nil {
		log.Error("failed to issue operator token", zap.Error(err))
		utils.WriteJSONError(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	expiresAt := time.Now().Add(h.tokenTTL).UTC()
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	log.Info("operator token issued")
	utils.WriteJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}
