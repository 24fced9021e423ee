package config

import "time"

const (
	// Reputation
	InitialReputation = 1000
	MaxReputation     = 1000
	MinReputation     = 0

	// Ban
	BanThresholdReputation = 500
	BanThresholdFrequency  = 5
	BanFrequencyWindow     = 24 * time.Hour
	BanLevel1Duration      = 30 * time.Minute
	BanLevel2Duration      = 6 * time.Hour
	BanLevel3Duration      = 24 * time.Hour
	BanLevel2Window        = 7 * 24 * time.Hour
	BanLevel3Window        = 30 * 24 * time.Hour
)

// Complaint types, from least to most severe.
const (
	ComplaintLow      = "Low"
	ComplaintMedium   = "Medium"
	ComplaintCritical = "Critical"
)

var ComplaintWeights = map[string]int{
	ComplaintLow:      5,
	ComplaintMedium:   50,
	ComplaintCritical: 250,
}
