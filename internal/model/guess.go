package model

import "time"

// Guess links a guessing player, a target player and a guessed role for one round.
// Correct is computed when the guess is written.
type Guess struct {
	ID                   string    `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	SessionID            string    `json:"sessionId" bson:"sessionId" gorm:"type:varchar(64);not null;uniqueIndex:idx_guesses_round_pair"`
	Round                int       `json:"round" bson:"round" gorm:"not null;uniqueIndex:idx_guesses_round_pair"`
	GuessingPlayerID     string    `json:"guessingPlayerId" bson:"guessingPlayerId" gorm:"type:varchar(64);not null;uniqueIndex:idx_guesses_round_pair"`
	TargetPlayerID       string    `json:"targetPlayerId" bson:"targetPlayerId" gorm:"type:varchar(64);not null;uniqueIndex:idx_guesses_round_pair"`
	GuessedSessionRoleID string    `json:"guessedSessionRoleId" bson:"guessedSessionRoleId" gorm:"type:varchar(64);not null"`
	Correct              *bool     `json:"correct" bson:"correct"`
	CreatedAt            time.Time `json:"createdAt" bson:"createdAt"`
}

// IsCorrect treats an unresolved guess as incorrect.
func (g *Guess) IsCorrect() bool {
	return g.Correct != nil && *g.Correct
}

// Clone copies the guess including the correctness pointer.
func (g Guess) Clone() Guess {
	if g.Correct != nil {
		c := *g.Correct
		g.Correct = &c
	}
	return g
}
