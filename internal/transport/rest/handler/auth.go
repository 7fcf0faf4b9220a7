package handler

import (
	"net/http"

	"guesswho/internal/model"
	"guesswho/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// IssueToken handles POST /v1/auth/token. The roster provider has already
// vouched for the identity, so no credential is checked here.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req model.TokenRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, r, "ISSUE_TOKEN_ERROR", err)
		return
	}

	resp, err := h.authSvc.IssueToken(req)
	if err != nil {
		writeFailure(w, r, "ISSUE_TOKEN_ERROR", err)
		return
	}

	writeData(w, http.StatusOK, resp)
}
