package model

import "time"

// Role is a catalog entry. Special roles are exempt from self-reported scoring.
type Role struct {
	ID          string    `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	Name        string    `json:"name" bson:"name" gorm:"uniqueIndex;not null"`
	Description string    `json:"description" bson:"description" gorm:"not null"`
	Special     bool      `json:"special" bson:"special" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// SessionRole is a catalog role selected into one session's pool.
// Name, description and the special flag are copied from the catalog at creation.
type SessionRole struct {
	ID          string    `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	SessionID   string    `json:"sessionId" bson:"sessionId" gorm:"type:varchar(64);index;not null"`
	RoleID      string    `json:"roleId" bson:"roleId" gorm:"type:varchar(64);not null"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description" bson:"description"`
	Special     bool      `json:"special" bson:"special"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}
