package game

import (
	"sort"

	"guesswho/internal/model"
)

// Leaderboard ranks players by score, ties broken by display name.
// Equal scores share a rank.
func Leaderboard(players []model.Player) []model.LeaderboardEntry {
	out := make([]model.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		out = append(out, model.LeaderboardEntry{PlayerID: p.ID, DisplayName: p.DisplayName, Score: p.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	for i := range out {
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	return out
}
