package model

import "time"

// Player is one participant of one session, created from the roster snapshot.
type Player struct {
	ID                    string    `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	SessionID             string    `json:"sessionId" bson:"sessionId" gorm:"type:varchar(64);index;not null"`
	ExternalUserID        string    `json:"externalUserId" bson:"externalUserId" gorm:"type:varchar(128);not null"`
	DisplayName           string    `json:"displayName" bson:"displayName" gorm:"not null"`
	AvatarURL             string    `json:"avatarUrl" bson:"avatarUrl"`
	Cosmetic              string    `json:"cosmetic" bson:"cosmetic"`
	IsHost                bool      `json:"isHost" bson:"isHost" gorm:"not null;default:false"`
	AssignedSessionRoleID *string   `json:"assignedSessionRoleId" bson:"assignedSessionRoleId" gorm:"type:varchar(64)"`
	Score                 int       `json:"score" bson:"score" gorm:"not null;default:0"`
	RoundCompleted        bool      `json:"roundCompleted" bson:"roundCompleted" gorm:"not null;default:false"`
	SubmittedRound        int       `json:"submittedRound" bson:"submittedRound" gorm:"not null;default:0"`
	Seat                  int       `json:"seat" bson:"seat" gorm:"not null;default:0"`
	CreatedAt             time.Time `json:"createdAt" bson:"createdAt"`
}

// HasRole reports whether the player holds a role this round.
func (p *Player) HasRole() bool {
	return p.AssignedSessionRoleID != nil && *p.AssignedSessionRoleID != ""
}

// Clone copies the player including the role pointer.
func (p Player) Clone() Player {
	if p.AssignedSessionRoleID != nil {
		id := *p.AssignedSessionRoleID
		p.AssignedSessionRoleID = &id
	}
	return p
}

// RosterEntry is the identity provider's view of a participant.
type RosterEntry struct {
	ExternalUserID string `json:"externalUserId"`
	DisplayName    string `json:"displayName"`
	AvatarURL      string `json:"avatarUrl"`
}
