package game

import (
	"fmt"
	"time"

	"guesswho/internal/model"
)

// AdvanceResult describes how a round ended.
type AdvanceResult struct {
	Changes   *model.StateChanges
	Completed bool
}

// AdvanceRound closes the current round on the host's request. Every role and
// completion flag is cleared; the session completes once any score reaches
// scoreToWin, otherwise the next round starts.
func AdvanceRound(st *model.SessionState, requestedBy string, now time.Time) (*AdvanceResult, error) {
	host := FindPlayer(st, requestedBy)
	if host == nil || !host.IsHost {
		return nil, fmt.Errorf("%w: only the host can advance the round", ErrPermissionDenied)
	}
	if phase := DerivePhase(st); phase != PhaseRoundComplete {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, phase)
	}

	res := &AdvanceResult{Changes: &model.StateChanges{}}
	for i := range st.Players {
		p := &st.Players[i]
		if p.Score >= st.Session.ScoreToWin {
			res.Completed = true
		}
		p.AssignedSessionRoleID = nil
		p.RoundCompleted = false
		res.Changes.Players = append(res.Changes.Players, p.Clone())
	}
	if res.Completed {
		st.Session.Completed = true
	} else {
		st.Session.Round++
	}
	st.Session.UpdatedAt = now
	sess := *st.Session
	res.Changes.Session = &sess
	return res, nil
}
