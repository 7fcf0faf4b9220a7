package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"guesswho/internal/service"
)

// SessionHandler exposes the session facade over HTTP
type SessionHandler struct {
	sessionSvc *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionSvc *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc}
}

// ListRoles handles GET /v1/roles
func (h *SessionHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.sessionSvc.ListRoles(r.Context())
	if err != nil {
		writeFailure(w, r, "GET_ROLES_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, roles)
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateSessionInput
	if err := decode(r, &req); err != nil {
		writeFailure(w, r, "CREATE_SESSION_ERROR", err)
		return
	}

	view, err := h.sessionSvc.CreateSession(r.Context(), req)
	if err != nil {
		writeFailure(w, r, "CREATE_SESSION_ERROR", err)
		return
	}
	writeData(w, http.StatusCreated, view)
}

// GetByInstance handles GET /v1/sessions/instance/{instanceId}
func (h *SessionHandler) GetByInstance(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessionSvc.GetSession(r.Context(), mux.Vars(r)["instanceId"])
	if err != nil {
		writeFailure(w, r, "GET_SESSION_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, view)
}

// AssignRoleRequest is the request body for assigning a role
type AssignRoleRequest struct {
	SessionRoleID string `json:"sessionRoleId"`
}

// AssignRole handles POST /v1/players/{playerId}/role
func (h *SessionHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req AssignRoleRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, r, "ASSIGN_ROLE_ERROR", err)
		return
	}

	player, err := h.sessionSvc.AssignRole(r.Context(), mux.Vars(r)["playerId"], req.SessionRoleID)
	if err != nil {
		writeFailure(w, r, "ASSIGN_ROLE_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, player)
}

// SubmitGuesses handles POST /v1/sessions/{sessionId}/guesses
func (h *SessionHandler) SubmitGuesses(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitGuessesInput
	if err := decode(r, &req); err != nil {
		writeFailure(w, r, "SUBMIT_GUESSES_ERROR", err)
		return
	}
	req.SessionID = mux.Vars(r)["sessionId"]

	if err := h.sessionSvc.SubmitGuesses(r.Context(), req); err != nil {
		writeFailure(w, r, "SUBMIT_GUESSES_ERROR", err)
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true})
}

// AdvanceRoundRequest is the request body for closing a round
type AdvanceRoundRequest struct {
	RequestedBy string `json:"requestedBy"`
}

// AdvanceRound handles POST /v1/sessions/{sessionId}/next-round
func (h *SessionHandler) AdvanceRound(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRoundRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, r, "ADVANCE_ROUND_ERROR", err)
		return
	}

	if err := h.sessionSvc.AdvanceRound(r.Context(), mux.Vars(r)["sessionId"], req.RequestedBy); err != nil {
		writeFailure(w, r, "ADVANCE_ROUND_ERROR", err)
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true})
}

// Results handles GET /v1/sessions/{sessionId}/results
func (h *SessionHandler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.sessionSvc.GetRoundResults(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		writeFailure(w, r, "GET_RESULTS_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, results)
}

// Leaderboard handles GET /v1/sessions/{sessionId}/leaderboard
func (h *SessionHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.sessionSvc.GetLeaderboard(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		writeFailure(w, r, "GET_LEADERBOARD_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"leaderboard": entries})
}
