package game

import (
	"fmt"
	"sort"

	"guesswho/internal/model"
)

// RoundResults builds the guess matrix for the round that just closed.
// Rows are ordered by external user id, guesses by their target's.
func RoundResults(st *model.SessionState) (*model.RoundResults, error) {
	if phase := DerivePhase(st); phase != PhaseRoundComplete {
		return nil, fmt.Errorf("%w: results are only available once every guess is in (session is %s)", ErrInvalidTransition, phase)
	}

	round := st.Session.Round
	byGuesser := make(map[string][]model.Guess)
	for _, g := range st.Guesses {
		if g.Round == round {
			byGuesser[g.GuessingPlayerID] = append(byGuesser[g.GuessingPlayerID], g)
		}
	}

	out := &model.RoundResults{SessionID: st.Session.ID, Round: round}
	for i := range st.Players {
		p := &st.Players[i]
		row := model.ResultRow{
			PlayerID:       p.ID,
			ExternalUserID: p.ExternalUserID,
			DisplayName:    p.DisplayName,
			AvatarURL:      p.AvatarURL,
			Completed:      p.RoundCompleted,
			Guesses:        []model.ResultGuess{},
		}
		if r := RoleOf(st, p); r != nil {
			row.RoleName = r.Name
			row.Special = r.Special
		}
		correct := 0
		for _, g := range byGuesser[p.ID] {
			rg := model.ResultGuess{
				ID:                   g.ID,
				TargetPlayerID:       g.TargetPlayerID,
				GuessedSessionRoleID: g.GuessedSessionRoleID,
				Correct:              g.IsCorrect(),
			}
			if t := FindPlayer(st, g.TargetPlayerID); t != nil {
				rg.TargetName = t.DisplayName
			}
			if r := FindRole(st, g.GuessedSessionRoleID); r != nil {
				rg.GuessedRoleName = r.Name
			}
			if rg.Correct {
				correct++
			}
			row.Guesses = append(row.Guesses, rg)
		}
		sort.Slice(row.Guesses, func(a, b int) bool {
			return targetUser(st, row.Guesses[a].TargetPlayerID) < targetUser(st, row.Guesses[b].TargetPlayerID)
		})
		row.Points = correct * PointsPerCorrectGuess
		if row.Completed {
			row.Points += PointsForCompletion
		}
		out.Rows = append(out.Rows, row)
	}
	sort.Slice(out.Rows, func(a, b int) bool { return out.Rows[a].ExternalUserID < out.Rows[b].ExternalUserID })
	return out, nil
}

func targetUser(st *model.SessionState, playerID string) string {
	if p := FindPlayer(st, playerID); p != nil {
		return p.ExternalUserID
	}
	return ""
}
