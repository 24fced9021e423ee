// Package complaint provides the core logic for handling user complaints,
// including reputation management and applying restrictions.
package complaint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"peerzee/backend/internal/analysis"
	"peerzee/backend/internal/config"
	"peerzee/backend/internal/models"
	"peerzee/backend/internal/storage"
)

// Service handles the business logic for complaints.
type Service struct {
	Storage storage.Storage
	Logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new complaint service.
func NewService(s storage.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Storage: s, Logger: logger, now: time.Now}
}

// Report turns an in-session report into a stored complaint and applies
// its reputation penalty. The session has already been ended by then.
func (s *Service) Report(_ context.Context, report models.Report) error {
	complaint := &models.Complaint{
		ComplaintID:   uuid.New().String(),
		ReporterID:    report.ReporterID,
		TargetID:      report.ReportedID,
		SessionID:     report.SessionID,
		Reason:        report.Reason,
		ComplaintType: analysis.Classify(report.Reason),
		CreatedAt:     s.now(),
	}
	if err := s.Storage.SaveComplaint(complaint); err != nil {
		return fmt.Errorf("save complaint: %w", err)
	}
	return s.HandleComplaint(complaint)
}

// HandleComplaint processes a new complaint.
func (s *Service) HandleComplaint(complaint *models.Complaint) error {
	weight := analysis.GetWeight(complaint.ComplaintType)
	if err := s.Storage.UpdateUserReputation(complaint.TargetID, -weight); err != nil {
		return err
	}

	return s.CheckForBan(complaint.TargetID)
}

// CheckForBan checks if a user should be banned based on their reputation and complaint history.
// Anonymous users without a profile are only subject to the frequency rule.
func (s *Service) CheckForBan(userID string) error {
	user, err := s.Storage.GetUserByID(userID)
	if err != nil {
		return err
	}

	// Threshold Ban
	if user != nil && user.ReputationScore < config.BanThresholdReputation {
		return s.applyBan(userID, "reputation")
	}

	// Frequency Ban
	complaints, err := s.Storage.GetComplaintsForUser(userID, s.now().Add(-config.BanFrequencyWindow))
	if err != nil {
		return err
	}
	if len(complaints) > config.BanThresholdFrequency {
		return s.applyBan(userID, "frequency")
	}

	return nil
}

func (s *Service) applyBan(userID, rule string) error {
	lastBanDate, err := s.Storage.GetLastBanDate(userID)
	if err != nil {
		return err
	}

	level := 1
	if lastBanDate > 0 {
		since := s.now().Sub(time.Unix(lastBanDate, 0))
		if since < config.BanLevel2Window {
			level = 2
		} else if since < config.BanLevel3Window {
			level = 3
		}
	}

	duration := getBanDuration(level)
	if err := s.Storage.BanUser(userID, duration); err != nil {
		return err
	}
	s.Logger.Warn("user banned", "user_id", userID, "rule", rule, "level", level, "duration", duration)
	return nil
}

func getBanDuration(level int) time.Duration {
	switch level {
	case 1:
		return config.BanLevel1Duration
	case 2:
		return config.BanLevel2Duration
	default:
		return config.BanLevel3Duration
	}
}
