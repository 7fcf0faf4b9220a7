package game

import (
	"fmt"

	"guesswho/internal/model"
)

// AssignResult describes what an assignment did to the session.
type AssignResult struct {
	Player      model.Player
	Changes     *model.StateChanges
	BecameReady bool
}

// AssignRole gives the player a role for the current round. A player who
// already holds a role, even the same one, has to wait for the next round.
func AssignRole(st *model.SessionState, playerID, sessionRoleID string) (*AssignResult, error) {
	if sessionRoleID == "" {
		return nil, fmt.Errorf("%w: sessionRoleId is required", ErrValidation)
	}
	p := FindPlayer(st, playerID)
	if p == nil {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	if FindRole(st, sessionRoleID) == nil {
		return nil, fmt.Errorf("%w: role %s is not in this session", ErrNotFound, sessionRoleID)
	}
	if st.Session.Completed {
		return nil, fmt.Errorf("%w: session is completed", ErrInvalidTransition)
	}
	if p.HasRole() {
		return nil, fmt.Errorf("%w: player already has a role this round", ErrInvalidTransition)
	}

	id := sessionRoleID
	p.AssignedSessionRoleID = &id
	return &AssignResult{
		Player:      p.Clone(),
		Changes:     &model.StateChanges{Players: []model.Player{p.Clone()}},
		BecameReady: RoleReady(st),
	}, nil
}
