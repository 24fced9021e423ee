package matchmaking

import (
	"context"

	"peerzee/backend/internal/models"
)

// Gateway holds the physical connection of every user. Disconnects are
// pushed into the engine through Engine.HandleDisconnect.
type Gateway interface {
	// SendTo queues msg for userID. It returns ErrNotConnected when the
	// user has no live connection or its buffer is full.
	SendTo(userID string, msg models.Message) error
	// ConfirmReachable delivers msg to userID, waiting at most until ctx
	// is done. It reports whether the delivery succeeded.
	ConfirmReachable(ctx context.Context, userID string, msg models.Message) bool
}

// ProfileLookup resolves the declared gender used by the compatibility check.
type ProfileLookup interface {
	GetGender(ctx context.Context, userID string) (models.Gender, error)
}

// SemanticRanker picks the best partner for a semantic ticket among
// compatible candidates, which arrive ordered oldest first.
type SemanticRanker interface {
	Rank(ctx context.Context, ticket models.QueueTicket, candidates []models.QueueTicket) (string, error)
}

// ContentProvider supplies blind-date icebreakers. previousIndex is -1
// for the first topic of a session.
type ContentProvider interface {
	NextTopic(ctx context.Context, mode models.IntentMode, previousIndex int) (models.Topic, error)
}

// Moderation receives reports. The session is already ending when it is called.
type Moderation interface {
	Report(ctx context.Context, report models.Report) error
}

// SessionRecorder is told about sessions that reached ACTIVE and about their end.
type SessionRecorder interface {
	SessionStarted(ctx context.Context, s models.Session) error
	SessionEnded(ctx context.Context, s models.Session) error
}

// FIFORanker keeps the pool's own ordering: the oldest candidate wins.
type FIFORanker struct{}

func (FIFORanker) Rank(_ context.Context, _ models.QueueTicket, candidates []models.QueueTicket) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}
	return candidates[0].UserID, nil
}

type unknownProfiles struct{}

func (unknownProfiles) GetGender(context.Context, string) (models.Gender, error) {
	return models.GenderUnknown, nil
}

type fallbackContent struct{}

func (fallbackContent) NextTopic(_ context.Context, _ models.IntentMode, previousIndex int) (models.Topic, error) {
	return models.Topic{Index: previousIndex + 1, Text: fallbackTopic}, nil
}

type nopModeration struct{}

func (nopModeration) Report(context.Context, models.Report) error { return nil }

type nopRecorder struct{}

func (nopRecorder) SessionStarted(context.Context, models.Session) error { return nil }
func (nopRecorder) SessionEnded(context.Context, models.Session) error   { return nil }
