package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User is the slice of the profile the matchmaking engine reads.
// The profile service owns the table; the engine only looks up gender.
type User struct {
	ID              string         `gorm:"primaryKey" json:"id"`
	DisplayName     string         `json:"display_name"`
	Age             int            `json:"age"`
	Gender          string         `gorm:"type:text;default:'unknown'" json:"gender"`
	Interests       pq.StringArray `gorm:"type:text[]" json:"interests"`
	ReputationScore int            `gorm:"default:1000" json:"reputation_score"`
}

// BeforeCreate generates the user ID when none was assigned.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// DeclaredGender maps the stored column to a Gender, treating anything
// unrecognised as unknown.
func (u *User) DeclaredGender() Gender {
	switch Gender(u.Gender) {
	case GenderMale, GenderFemale:
		return Gender(u.Gender)
	}
	return GenderUnknown
}
