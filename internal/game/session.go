package game

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"guesswho/internal/model"
)

// MinPlayers is the smallest roster a session can start with.
const MinPlayers = 2

// CreateInput is everything needed to open a session for one external instance.
type CreateInput struct {
	ExternalInstanceID string
	Hosting            bool
	HostUserID         string
	ScoreToWin         int
	Players            []model.RosterEntry
	RoleIDs            []string
}

// NewSession validates the roster and role selection and builds the initial state.
// Every player starts without a role in round 1.
func NewSession(in CreateInput, catalog []model.Role, newID func() string, rng *rand.Rand, now time.Time) (*model.SessionState, error) {
	if strings.TrimSpace(in.ExternalInstanceID) == "" {
		return nil, fmt.Errorf("%w: externalInstanceId is required", ErrValidation)
	}
	if !in.Hosting {
		return nil, fmt.Errorf("%w: only the hosting player can create a session", ErrPermissionDenied)
	}
	if in.ScoreToWin < 1 {
		return nil, fmt.Errorf("%w: scoreToWin must be at least 1", ErrValidation)
	}
	if len(in.Players) < MinPlayers {
		return nil, fmt.Errorf("%w: at least %d players are required", ErrValidation, MinPlayers)
	}
	if len(in.RoleIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one role must be selected", ErrValidation)
	}

	seenUsers := make(map[string]bool, len(in.Players))
	hostFound := false
	for _, p := range in.Players {
		if strings.TrimSpace(p.ExternalUserID) == "" || strings.TrimSpace(p.DisplayName) == "" {
			return nil, fmt.Errorf("%w: every player needs externalUserId and displayName", ErrValidation)
		}
		if seenUsers[p.ExternalUserID] {
			return nil, fmt.Errorf("%w: duplicate player %s", ErrValidation, p.ExternalUserID)
		}
		seenUsers[p.ExternalUserID] = true
		if p.ExternalUserID == in.HostUserID {
			hostFound = true
		}
	}
	if !hostFound {
		return nil, fmt.Errorf("%w: host must be part of the roster", ErrValidation)
	}

	byID := make(map[string]model.Role, len(catalog))
	for _, r := range catalog {
		byID[r.ID] = r
	}

	session := &model.Session{
		ID:                 newID(),
		ExternalInstanceID: in.ExternalInstanceID,
		ScoreToWin:         in.ScoreToWin,
		Round:              1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	st := &model.SessionState{Session: session}

	seenRoles := make(map[string]bool, len(in.RoleIDs))
	for _, id := range in.RoleIDs {
		if seenRoles[id] {
			return nil, fmt.Errorf("%w: role %s selected twice", ErrValidation, id)
		}
		seenRoles[id] = true
		r, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: role %s", ErrNotFound, id)
		}
		st.Roles = append(st.Roles, model.SessionRole{
			ID:          newID(),
			SessionID:   session.ID,
			RoleID:      r.ID,
			Name:        r.Name,
			Description: r.Description,
			Special:     r.Special,
			CreatedAt:   now,
		})
	}

	cosmetics := AssignCosmetics(len(in.Players), rng)
	for i, p := range in.Players {
		st.Players = append(st.Players, model.Player{
			ID:             newID(),
			SessionID:      session.ID,
			ExternalUserID: p.ExternalUserID,
			DisplayName:    p.DisplayName,
			AvatarURL:      p.AvatarURL,
			Cosmetic:       cosmetics[i],
			IsHost:         p.ExternalUserID == in.HostUserID,
			Seat:           i,
			CreatedAt:      now,
		})
	}
	return st, nil
}
