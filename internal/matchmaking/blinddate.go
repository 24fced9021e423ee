package matchmaking

import (
	"context"

	"peerzee/backend/internal/models"
)

const (
	defaultIntro     = "Welcome to your blind date! Say hi and get to know each other."
	fallbackTopic    = "Tell your partner a little about yourself."
	initialBlurLevel = 20
)

// blindStateFor returns the initial negotiation state of a session that is
// about to become ACTIVE, or nil if it is not a blind date.
func (e *Engine) blindStateFor(ctx context.Context, s models.Session) *models.BlindDateState {
	if !e.blindDateEnabled || s.Mode != models.IntentDate {
		return nil
	}
	topic := e.nextTopic(ctx, s.Mode, -1)
	state := models.NewBlindDateState(topic, defaultIntro, initialBlurLevel)
	state.TopicChangedAt = e.now()
	return state
}

// nextTopic asks the content provider for the topic after previous. A
// provider failure never blocks the session: the fallback topic is used.
func (e *Engine) nextTopic(ctx context.Context, mode models.IntentMode, previous int) models.Topic {
	topic, err := e.content.NextTopic(ctx, mode, previous)
	if err != nil || topic.Text == "" {
		if err != nil {
			e.logger.Warn("content provider failed, using fallback topic", "mode", mode, "error", err)
		}
		return models.Topic{Index: previous + 1, Text: fallbackTopic}
	}
	return topic
}

// blindSession validates that userID may drive the blind-date flow of sessionID.
func (e *Engine) blindSession(sessionID, userID string) (models.Session, error) {
	s, err := e.registry.Get(sessionID)
	if err != nil {
		return models.Session{}, err
	}
	if !s.Has(userID) {
		return models.Session{}, ErrNotASessionMember
	}
	if s.State != models.StateActive {
		return models.Session{}, ErrSessionNotActive
	}
	if s.BlindDate == nil {
		return models.Session{}, ErrNotBlindDate
	}
	return s, nil
}

// RequestNewTopic replaces the current icebreaker and clears the answers
// given to the old one. Both members are notified.
func (e *Engine) RequestNewTopic(ctx context.Context, sessionID, userID string) (models.Topic, error) {
	s, err := e.blindSession(sessionID, userID)
	if err != nil {
		return models.Topic{}, err
	}
	return e.rotateTopic(ctx, s, userID, false)
}

// rotateTopic fetches a topic outside the registry lock and installs it.
// The index only ever grows, even when two requests race.
func (e *Engine) rotateTopic(ctx context.Context, s models.Session, requestedBy string, rescue bool) (models.Topic, error) {
	topic := e.nextTopic(ctx, s.Mode, s.BlindDate.CurrentTopicIndex)

	updated, err := e.registry.update(s.ID, requestedBy, func(live *models.Session) error {
		b := live.BlindDate
		if b == nil {
			return ErrNotBlindDate
		}
		if topic.Index <= b.CurrentTopicIndex {
			topic.Index = b.CurrentTopicIndex + 1
		}
		b.CurrentTopicIndex = topic.Index
		b.CurrentTopic = topic.Text
		b.TopicChangedAt = e.now()
		b.Answers = make(map[string]string)
		return nil
	})
	if err != nil {
		return models.Topic{}, err
	}
	if err := e.registry.touch(s.ID, ""); err != nil {
		return models.Topic{}, err
	}

	msg := models.NewMessage(models.EventBlindNewTopic, s.ID, newTopicPayload{
		Topic:       topic.Text,
		TopicIndex:  topic.Index,
		RequestedBy: requestedBy,
		IsRescue:    rescue,
	})
	for _, member := range updated.Members() {
		e.send(member, msg)
	}
	return topic, nil
}

// SubmitAnswer records userID's answer to the current topic. The partner
// learns that an answer arrived; blind:both_answered goes to both members
// the first time the second answer lands.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID, userID, text string) error {
	var completed bool
	updated, err := e.registry.update(sessionID, userID, func(live *models.Session) error {
		b := live.BlindDate
		if b == nil {
			return ErrNotBlindDate
		}
		before := len(b.Answers)
		b.Answers[userID] = text
		completed = before < 2 && len(b.Answers) == 2
		return nil
	})
	if err != nil {
		return err
	}
	_ = e.registry.touch(sessionID, userID)

	b := updated.BlindDate
	e.send(updated.Partner(userID), models.NewMessage(models.EventBlindAnswerSubmitted, sessionID, answerSubmittedPayload{
		UserID:     userID,
		TopicIndex: b.CurrentTopicIndex,
	}))
	if completed {
		msg := models.NewMessage(models.EventBlindBothAnswered, sessionID, bothAnsweredPayload{
			TopicIndex: b.CurrentTopicIndex,
			Answers:    b.Answers,
		})
		for _, member := range updated.Members() {
			e.send(member, msg)
		}
	}
	return nil
}

// RequestReveal records userID's consent to unblur. When the partner has
// already consented the reveal happens in the same step and both members
// are told; otherwise the partner is told a request is pending. The
// result reports whether the session is revealed.
func (e *Engine) RequestReveal(ctx context.Context, sessionID, userID string) (bool, error) {
	var flipped, already bool
	updated, err := e.registry.update(sessionID, userID, func(live *models.Session) error {
		b := live.BlindDate
		if b == nil {
			return ErrNotBlindDate
		}
		if b.Revealed {
			already = true
			return nil
		}
		b.RevealRequested[userID] = true
		members := live.Members()
		if b.RevealRequested[members[0]] && b.RevealRequested[members[1]] {
			b.Revealed = true
			b.BlurLevel = 0
			flipped = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	switch {
	case already:
	case flipped:
		msg := models.NewMessage(models.EventBlindRevealed, sessionID, revealedPayload{BlurLevel: 0})
		for _, member := range updated.Members() {
			e.send(member, msg)
		}
		e.logger.Info("blind date revealed", "session_id", sessionID)
	default:
		e.send(updated.Partner(userID), models.NewMessage(models.EventBlindRevealRequested, sessionID, revealRequestedPayload{
			RequestedBy: userID,
		}))
	}
	return updated.BlindDate.Revealed, nil
}

// AcceptReveal acknowledges a completed reveal. It changes nothing and
// fails with ErrRevealPending while consent is still one-sided.
func (e *Engine) AcceptReveal(ctx context.Context, sessionID, userID string) error {
	s, err := e.blindSession(sessionID, userID)
	if err != nil {
		return err
	}
	if !s.BlindDate.Revealed {
		return ErrRevealPending
	}
	return nil
}
