// Package analysis provides functionalities for analyzing user behavior and complaints.
// It includes logic for determining the severity of complaints and calculating their impact on user reputation.
package analysis

import (
	"strings"

	"peerzee/backend/internal/config"
)

// Keywords that raise a free text report reason above the Low level.
var (
	criticalKeywords = []string{"nudity", "nude", "sexual", "minor", "underage", "threat", "violence", "self-harm"}
	mediumKeywords   = []string{"harass", "abuse", "hate", "racis", "insult", "rude", "scam", "spam", "fake"}
)

// GetWeight returns the weight (penalty) for a given complaint type.
// It returns 0 if the complaint type is not recognized.
func GetWeight(complaintType string) int {
	return config.ComplaintWeights[complaintType]
}

// Classify maps the free text reason of a report to a complaint type.
// Reasons that already name a known type are taken as is.
func Classify(reason string) string {
	r := strings.ToLower(strings.TrimSpace(reason))
	for _, t := range []string{config.ComplaintLow, config.ComplaintMedium, config.ComplaintCritical} {
		if r == strings.ToLower(t) {
			return t
		}
	}
	for _, k := range criticalKeywords {
		if strings.Contains(r, k) {
			return config.ComplaintCritical
		}
	}
	for _, k := range mediumKeywords {
		if strings.Contains(r, k) {
			return config.ComplaintMedium
		}
	}
	return config.ComplaintLow
}
