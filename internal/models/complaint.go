package models

import "time"

// Complaint is a report filed against a session partner.
type Complaint struct {
	ComplaintID   string    `gorm:"primaryKey"`
	ReporterID    string    `gorm:"index"`
	TargetID      string    `gorm:"index:idx_target_created"`
	SessionID     string    `gorm:"index"`
	Reason        string
	ComplaintType string    // "Low", "Medium", "Critical"
	Status        string    // "new", "processed", "banned"
	CreatedAt     time.Time `gorm:"index:idx_target_created"`
}
