package model

import "time"

// Session is one game tied to an external room. Phase is never stored;
// it is derived from the session, its players and the current round's guesses.
type Session struct {
	ID                 string    `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	ExternalInstanceID string    `json:"externalInstanceId" bson:"externalInstanceId" gorm:"type:varchar(128);index;not null"`
	ScoreToWin         int       `json:"scoreToWin" bson:"scoreToWin" gorm:"not null"`
	Completed          bool      `json:"completed" bson:"completed" gorm:"not null;default:false"`
	Round              int       `json:"round" bson:"round" gorm:"not null;default:1"`
	Version            int64     `json:"-" bson:"version" gorm:"not null;default:0"`
	CreatedAt          time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt" bson:"updatedAt"`
}

// SessionState is a consistent read of everything a phase decision needs.
// Guesses only holds the current round.
type SessionState struct {
	Session *Session
	Roles   []SessionRole
	Players []Player
	Guesses []Guess
}

// Clone returns a deep copy so a failed decision never leaks into the original.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := &SessionState{}
	if s.Session != nil {
		sess := *s.Session
		out.Session = &sess
	}
	out.Roles = append([]SessionRole(nil), s.Roles...)
	out.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		out.Players[i] = p.Clone()
	}
	out.Guesses = make([]Guess, len(s.Guesses))
	for i, g := range s.Guesses {
		out.Guesses[i] = g.Clone()
	}
	return out
}

// StateChanges lists the rows a decision wants written back in one transaction.
type StateChanges struct {
	Session *Session
	Players []Player
	Guesses []Guess
}

// Empty reports whether there is nothing to write.
func (c *StateChanges) Empty() bool {
	return c == nil || (c.Session == nil && len(c.Players) == 0 && len(c.Guesses) == 0)
}
