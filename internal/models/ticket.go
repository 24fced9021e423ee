package models

import "time"

// IntentMode is what the user is looking for in a conversation.
type IntentMode string

const (
	IntentDate   IntentMode = "DATE"
	IntentStudy  IntentMode = "STUDY"
	IntentFriend IntentMode = "FRIEND"
)

// Valid reports whether m is one of the known intent modes.
func (m IntentMode) Valid() bool {
	switch m {
	case IntentDate, IntentStudy, IntentFriend:
		return true
	}
	return false
}

// Gender is the declared gender of a user as returned by the profile store.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// GenderPreference is the partner gender a user accepts.
type GenderPreference string

const (
	PreferMale   GenderPreference = "male"
	PreferFemale GenderPreference = "female"
	PreferAll    GenderPreference = "all"
)

// Valid reports whether p is one of the known preferences.
func (p GenderPreference) Valid() bool {
	switch p {
	case PreferMale, PreferFemale, PreferAll:
		return true
	}
	return false
}

// Accepts reports whether a partner of gender g satisfies the preference.
// A specific preference never accepts an unknown gender.
func (p GenderPreference) Accepts(g Gender) bool {
	if p == PreferAll {
		return true
	}
	return string(p) == string(g)
}

// MatchingStrategy selects how a partner is picked among compatible tickets.
type MatchingStrategy string

const (
	StrategyNormal   MatchingStrategy = "normal"
	StrategySemantic MatchingStrategy = "semantic"
)

// Criteria is the client supplied part of a queue request.
type Criteria struct {
	IntentMode       IntentMode       `json:"intent_mode"`
	GenderPreference GenderPreference `json:"gender_preference"`
	WantsVideo       bool             `json:"wants_video"`
	Strategy         MatchingStrategy `json:"matching_strategy"`
	// Query is free text for the semantic ranker; the pool never reads it.
	Query string `json:"query,omitempty"`
}

// WithDefaults fills the optional fields the way the client omits them.
func (c Criteria) WithDefaults() Criteria {
	if c.GenderPreference == "" {
		c.GenderPreference = PreferAll
	}
	if c.Strategy == "" {
		c.Strategy = StrategyNormal
	}
	return c
}

// QueueTicket is one user's standing request to be matched.
type QueueTicket struct {
	UserID string `json:"user_id"`
	Criteria
	EnqueuedAt time.Time `json:"enqueued_at"`
}
