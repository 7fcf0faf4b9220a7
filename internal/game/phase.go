package game

import "guesswho/internal/model"

// Phase is derived from a session read, never stored.
type Phase string

const (
	PhaseAwaitingRoles   Phase = "AwaitingRoles"
	PhaseAwaitingGuesses Phase = "AwaitingGuesses"
	PhaseRoundComplete   Phase = "RoundComplete"
	PhaseCompleted       Phase = "Completed"
)

// DerivePhase computes the phase from the session, its players and the current round.
func DerivePhase(st *model.SessionState) Phase {
	switch {
	case st.Session.Completed:
		return PhaseCompleted
	case !RoleReady(st):
		return PhaseAwaitingRoles
	case !GuessesReady(st):
		return PhaseAwaitingGuesses
	default:
		return PhaseRoundComplete
	}
}

// RoleReady reports whether every player holds a role this round.
func RoleReady(st *model.SessionState) bool {
	if len(st.Players) == 0 {
		return false
	}
	for i := range st.Players {
		if !st.Players[i].HasRole() {
			return false
		}
	}
	return true
}

// GuessesReady reports whether every non-special player has submitted for the
// current round. At least one submission is required, so a session made only
// of special roles still waits for someone.
func GuessesReady(st *model.SessionState) bool {
	if !RoleReady(st) {
		return false
	}
	submitted := 0
	for i := range st.Players {
		p := &st.Players[i]
		if p.SubmittedRound == st.Session.Round {
			submitted++
			continue
		}
		if !IsSpecial(st, p) {
			return false
		}
	}
	return submitted > 0
}

// IsSpecial reports whether the player's current role is a special one.
func IsSpecial(st *model.SessionState, p *model.Player) bool {
	r := RoleOf(st, p)
	return r != nil && r.Special
}

// RoleOf returns the session role the player holds, or nil.
func RoleOf(st *model.SessionState, p *model.Player) *model.SessionRole {
	if !p.HasRole() {
		return nil
	}
	return FindRole(st, *p.AssignedSessionRoleID)
}

// FindRole looks a session role up by id.
func FindRole(st *model.SessionState, sessionRoleID string) *model.SessionRole {
	for i := range st.Roles {
		if st.Roles[i].ID == sessionRoleID {
			return &st.Roles[i]
		}
	}
	return nil
}

// FindPlayer looks a player up by id.
func FindPlayer(st *model.SessionState, playerID string) *model.Player {
	for i := range st.Players {
		if st.Players[i].ID == playerID {
			return &st.Players[i]
		}
	}
	return nil
}

// FindPlayerByUser looks a player up by external user id.
func FindPlayerByUser(st *model.SessionState, externalUserID string) *model.Player {
	for i := range st.Players {
		if st.Players[i].ExternalUserID == externalUserID {
			return &st.Players[i]
		}
	}
	return nil
}
