package models

import "time"

// Audit statuses of a VideoSession row.
const (
	SessionStatusActive   = "active"
	SessionStatusEnded    = "ended"
	SessionStatusReported = "reported"
)

// VideoSession is the audit record of a session that reached ACTIVE.
// It carries no message content.
type VideoSession struct {
	// ID is the session id issued by the registry (UUID).
	ID string `gorm:"primaryKey;type:uuid"`
	// User1ID is the initiator, the side expected to send the first offer.
	User1ID string `gorm:"index;not null"`
	// User2ID is the responder.
	User2ID    string `gorm:"index;not null"`
	IntentMode string `gorm:"type:varchar(16);default:'DATE'"`
	WithVideo  bool
	BlindDate  bool
	Status     string `gorm:"type:varchar(16);default:'active';index"`
	EndReason  string
	StartedAt  time.Time
	EndedAt    *time.Time
	// DurationSeconds is computed on close from StartedAt and EndedAt.
	DurationSeconds int
}

// TableName keeps the table name used by the rest of the product.
func (VideoSession) TableName() string {
	return "video_sessions"
}
