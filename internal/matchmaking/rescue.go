package matchmaking

import (
	"context"
	"time"

	"peerzee/backend/internal/models"
)

const (
	// DefaultSilenceThreshold is how long a blind date may go quiet.
	DefaultSilenceThreshold = 15 * time.Second
	// DefaultRescueInterval is how often silent sessions are looked for.
	DefaultRescueInterval = 30 * time.Second
	// DefaultTopicRotationInterval is how long a blind date keeps one topic.
	DefaultTopicRotationInterval = 90 * time.Second

	// maxRescueTopics stops the loop from nagging a session forever.
	maxRescueTopics = 10
)

// RunSilenceRescue pushes a fresh icebreaker into quiet or long-running
// blind dates every interval until ctx is done.
func (e *Engine) RunSilenceRescue(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRescueInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.RescueSilentSessions(ctx); n > 0 {
				e.logger.Info("silence rescue", "sessions", n)
			}
		}
	}
}

// RescueSilentSessions runs one pass of the rescue loop and returns how
// many sessions got a new topic. Silent sessions get a rescue topic;
// sessions that kept one topic longer than the rotation interval get a
// regular one.
func (e *Engine) RescueSilentSessions(ctx context.Context) int {
	threshold := e.silence
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}
	now := e.now()
	var rotatedBefore time.Time
	if e.rotation > 0 {
		rotatedBefore = now.Add(-e.rotation)
	}

	silent, stale := e.registry.dueBlindDates(now.Add(-threshold), rotatedBefore)
	return e.pushTopics(ctx, silent, true) + e.pushTopics(ctx, stale, false)
}

func (e *Engine) pushTopics(ctx context.Context, sessions []models.Session, rescue bool) int {
	pushed := 0
	for _, s := range sessions {
		if s.BlindDate.CurrentTopicIndex+1 >= maxRescueTopics {
			continue
		}
		if _, err := e.rotateTopic(ctx, s, "", rescue); err != nil {
			e.logger.Debug("topic push skipped", "session_id", s.ID, "rescue", rescue, "error", err)
			continue
		}
		pushed++
	}
	return pushed
}
