package service

import (
	"guesswho/internal/game"
	"guesswho/internal/model"
)

// buildView renders the session for one viewer. Other players' roles stay
// hidden until the round's guesses are in.
func (s *SessionService) buildView(st *model.SessionState, viewerUserID string) *model.SessionView {
	phase := game.DerivePhase(st)
	reveal := phase == game.PhaseRoundComplete || phase == game.PhaseCompleted

	view := &model.SessionView{
		ID:                 st.Session.ID,
		ExternalInstanceID: st.Session.ExternalInstanceID,
		ScoreToWin:         st.Session.ScoreToWin,
		Completed:          st.Session.Completed,
		Round:              st.Session.Round,
		Phase:              string(phase),
		RoleReady:          game.RoleReady(st),
		GuessesReady:       game.GuessesReady(st),
		Roles:              make([]model.RoleView, 0, len(st.Roles)),
		Players:            make([]model.PlayerView, 0, len(st.Players)),
	}
	for i := range st.Roles {
		view.Roles = append(view.Roles, s.roleView(&st.Roles[i]))
	}
	for i := range st.Players {
		p := &st.Players[i]
		pv := model.PlayerView{
			ID:             p.ID,
			ExternalUserID: p.ExternalUserID,
			DisplayName:    p.DisplayName,
			AvatarURL:      p.AvatarURL,
			Cosmetic:       p.Cosmetic,
			CosmeticURL:    s.assets.CosmeticImageURL(p.Cosmetic),
			IsHost:         p.IsHost,
			Score:          p.Score,
			HasRole:        p.HasRole(),
			Submitted:      p.SubmittedRound == st.Session.Round,
			RoundCompleted: p.RoundCompleted,
		}
		if reveal || (viewerUserID != "" && p.ExternalUserID == viewerUserID) {
			if r := game.RoleOf(st, p); r != nil {
				rv := s.roleView(r)
				pv.Role = &rv
			}
		}
		view.Players = append(view.Players, pv)
	}
	return view
}

func (s *SessionService) roleView(r *model.SessionRole) model.RoleView {
	return model.RoleView{
		ID:          r.ID,
		RoleID:      r.RoleID,
		Name:        r.Name,
		Description: r.Description,
		Special:     r.Special,
		ImageURL:    s.assets.RoleImageURL(r.Name),
	}
}
