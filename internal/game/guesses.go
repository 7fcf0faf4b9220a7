package game

import (
	"fmt"
	"time"

	"guesswho/internal/model"
)

// Points awarded per outcome.
const (
	PointsPerCorrectGuess = 1
	PointsForCompletion   = 4
)

type GuessInput struct {
	TargetPlayerID       string `json:"targetPlayerId"`
	GuessedSessionRoleID string `json:"guessedSessionRoleId"`
}

type SubmitInput struct {
	PlayerID  string
	Completed bool
	Guesses   []GuessInput
}

// SubmitResult describes what a guess sheet did to the session.
type SubmitResult struct {
	Changes     *model.StateChanges
	Replayed    bool
	BecameReady bool
	// Awarded maps player id to points gained by this submission,
	// including special-role adjudication when the round closed.
	Awarded map[string]int
}

// SubmitGuesses records a player's guess sheet, scores it and, when it is the
// last one the round waits for, adjudicates special roles. A sheet for a round
// the player already submitted is acknowledged without a write.
func SubmitGuesses(st *model.SessionState, in SubmitInput, newID func() string, now time.Time) (*SubmitResult, error) {
	p := FindPlayer(st, in.PlayerID)
	if p == nil {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, in.PlayerID)
	}
	round := st.Session.Round
	if p.SubmittedRound == round {
		return &SubmitResult{Replayed: true}, nil
	}
	if phase := DerivePhase(st); phase != PhaseAwaitingGuesses {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, phase)
	}

	special := IsSpecial(st, p)
	if err := validateSheet(st, special, in.Guesses); err != nil {
		return nil, err
	}

	res := &SubmitResult{Changes: &model.StateChanges{}, Awarded: map[string]int{}}
	delta := 0
	for _, g := range in.Guesses {
		target := FindPlayer(st, g.TargetPlayerID)
		correct := target.HasRole() && *target.AssignedSessionRoleID == g.GuessedSessionRoleID
		if correct {
			delta += PointsPerCorrectGuess
		}
		guess := model.Guess{
			ID:                   newID(),
			SessionID:            st.Session.ID,
			Round:                round,
			GuessingPlayerID:     p.ID,
			TargetPlayerID:       g.TargetPlayerID,
			GuessedSessionRoleID: g.GuessedSessionRoleID,
			Correct:              &correct,
			CreatedAt:            now,
		}
		st.Guesses = append(st.Guesses, guess)
		res.Changes.Guesses = append(res.Changes.Guesses, guess)
	}
	if !special {
		p.RoundCompleted = in.Completed
		if in.Completed {
			delta += PointsForCompletion
		}
	}
	p.Score += delta
	p.SubmittedRound = round
	res.Awarded[p.ID] = delta

	changed := map[string]bool{p.ID: true}
	if GuessesReady(st) {
		res.BecameReady = true
		for id, succeeded := range adjudicateSpecials(st) {
			changed[id] = true
			if succeeded {
				res.Awarded[id] += PointsForCompletion
			}
		}
	}
	for i := range st.Players {
		if changed[st.Players[i].ID] {
			res.Changes.Players = append(res.Changes.Players, st.Players[i].Clone())
		}
	}
	return res, nil
}

func validateSheet(st *model.SessionState, special bool, guesses []GuessInput) error {
	if special && len(guesses) == 0 {
		return nil
	}
	want := len(st.Players) - 1
	if len(guesses) != want {
		return fmt.Errorf("%w: expected %d guesses, got %d", ErrValidation, want, len(guesses))
	}
	targets := make(map[string]bool, len(guesses))
	for _, g := range guesses {
		if g.TargetPlayerID == "" || g.GuessedSessionRoleID == "" {
			return fmt.Errorf("%w: guesses need targetPlayerId and guessedSessionRoleId", ErrValidation)
		}
		if FindPlayer(st, g.TargetPlayerID) == nil {
			return fmt.Errorf("%w: target %s is not in this session", ErrValidation, g.TargetPlayerID)
		}
		if targets[g.TargetPlayerID] {
			return fmt.Errorf("%w: target %s guessed twice", ErrValidation, g.TargetPlayerID)
		}
		targets[g.TargetPlayerID] = true
		if FindRole(st, g.GuessedSessionRoleID) == nil {
			return fmt.Errorf("%w: role %s is not in this session", ErrValidation, g.GuessedSessionRoleID)
		}
	}
	return nil
}

// adjudicateSpecials marks each special-role player as completed when no other
// player correctly identified their role this round, and awards the completion
// points. It returns every special-role player it touched and whether they succeeded.
func adjudicateSpecials(st *model.SessionState) map[string]bool {
	touched := map[string]bool{}
	for i := range st.Players {
		p := &st.Players[i]
		if !IsSpecial(st, p) {
			continue
		}
		exposed := false
		for j := range st.Guesses {
			g := &st.Guesses[j]
			if g.Round == st.Session.Round && g.TargetPlayerID == p.ID && g.GuessingPlayerID != p.ID && g.IsCorrect() {
				exposed = true
				break
			}
		}
		p.RoundCompleted = !exposed
		if !exposed {
			p.Score += PointsForCompletion
		}
		touched[p.ID] = !exposed
	}
	return touched
}
