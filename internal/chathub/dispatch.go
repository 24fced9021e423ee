package chathub

import (
	"context"
	"errors"
	"strings"
	"time"

	"peerzee/backend/internal/matchmaking"
	"peerzee/backend/internal/models"
)

// Client to server payloads.

type reportRequest struct {
	Reason string `json:"reason"`
}

type chatRequest struct {
	Content string `json:"content"`
}

type subtitleRequest struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

type ackPayload struct {
	Event  string `json:"event"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// Dispatch routes one inbound frame of userID into the engine. Control
// events are always acknowledged; relayed traffic is acknowledged only
// when it fails. Frames of one connection are dispatched in order.
func (m *ManagerService) Dispatch(ctx context.Context, userID string, msg models.Message) {
	if m.Engine == nil {
		m.ack(userID, msg, nil, errors.New("engine not attached"))
		return
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = m.Engine.SessionOf(userID)
	}

	switch msg.Type {
	case models.EventQueueJoin:
		var criteria models.Criteria
		if err := msg.Decode(&criteria); err != nil {
			m.ack(userID, msg, nil, matchmaking.ErrInvalidCriteria)
			return
		}
		if err := m.checkBan(userID); err != nil {
			m.ack(userID, msg, nil, err)
			return
		}
		res, err := m.Engine.JoinQueue(ctx, userID, criteria)
		m.ack(userID, msg, res, err)

	case models.EventQueueLeave:
		m.ack(userID, msg, nil, m.Engine.LeaveQueue(userID))

	case models.EventCallNext:
		var criteria *models.Criteria
		if len(msg.Payload) > 0 && string(msg.Payload) != "null" {
			criteria = new(models.Criteria)
			if err := msg.Decode(criteria); err != nil {
				m.ack(userID, msg, nil, matchmaking.ErrInvalidCriteria)
				return
			}
		}
		if err := m.checkBan(userID); err != nil {
			m.ack(userID, msg, nil, err)
			return
		}
		res, err := m.Engine.NextPartner(ctx, userID, criteria)
		m.ack(userID, msg, res, err)

	case models.EventCallEnd:
		if sessionID == "" {
			m.ack(userID, msg, nil, matchmaking.ErrSessionNotFound)
			return
		}
		m.ack(userID, msg, nil, m.Engine.EndSession(ctx, sessionID, userID))

	case models.EventCallReport:
		var req reportRequest
		_ = msg.Decode(&req)
		if sessionID == "" {
			m.ack(userID, msg, nil, matchmaking.ErrSessionNotFound)
			return
		}
		m.ack(userID, msg, nil, m.Engine.Report(ctx, sessionID, userID, req.Reason))

	case models.EventCallOffer, models.EventCallAnswer, models.EventCallICECandidate:
		kind, _ := matchmaking.ParseSignalKind(strings.TrimPrefix(msg.Type, "call:"))
		err := m.Engine.RelaySignal(ctx, models.SignalingEnvelope{
			SessionID:  sessionID,
			FromUserID: userID,
			Kind:       kind,
			Payload:    msg.Payload,
		})
		m.nack(userID, msg, err)

	case models.EventChatMessage:
		var req chatRequest
		if err := msg.Decode(&req); err != nil {
			m.nack(userID, msg, matchmaking.ErrUnknownMessage)
			return
		}
		m.nack(userID, msg, m.relay(ctx, sessionID, userID, models.ChannelChat, req.Content, false))

	case models.EventSubtitleSend:
		var req subtitleRequest
		if err := msg.Decode(&req); err != nil {
			m.nack(userID, msg, matchmaking.ErrUnknownMessage)
			return
		}
		err := m.relay(ctx, sessionID, userID, models.ChannelSubtitle, req.Text, req.IsFinal)
		if errors.Is(err, matchmaking.ErrSubtitleThrottled) {
			return
		}
		m.nack(userID, msg, err)

	case models.EventBlindActivity:
		m.nack(userID, msg, m.relay(ctx, sessionID, userID, models.ChannelActivity, "", false))

	case models.EventBlindRequestTopic:
		m.ack(userID, msg, nil, m.relay(ctx, sessionID, userID, models.ChannelTopicRequest, "", false))

	case models.EventBlindAnswer:
		var req answerRequest
		_ = msg.Decode(&req)
		m.ack(userID, msg, nil, m.relay(ctx, sessionID, userID, models.ChannelAnswer, req.Answer, false))

	case models.EventBlindRequestReveal:
		m.ack(userID, msg, nil, m.relay(ctx, sessionID, userID, models.ChannelRevealRequest, "", false))

	case models.EventBlindAcceptReveal:
		m.ack(userID, msg, nil, m.relay(ctx, sessionID, userID, models.ChannelRevealAccept, "", false))

	default:
		m.ack(userID, msg, nil, matchmaking.ErrUnknownMessage)
	}
}

func (m *ManagerService) relay(ctx context.Context, sessionID, userID string, kind models.ChannelKind, text string, final bool) error {
	if sessionID == "" {
		return matchmaking.ErrSessionNotFound
	}
	return m.Engine.SendChannelMessage(ctx, models.ChannelMessage{
		SessionID:  sessionID,
		FromUserID: userID,
		Kind:       kind,
		Text:       text,
		Final:      final,
		SentAt:     time.Now(),
	})
}

// checkBan refuses banned users. A failing ban store does not lock
// anyone out.
func (m *ManagerService) checkBan(userID string) error {
	if m.Bans == nil {
		return nil
	}
	banned, err := m.Bans.IsUserBanned(userID)
	if err != nil {
		m.Logger.Error("ban check failed", "user_id", userID, "error", err)
		return nil
	}
	if banned {
		return matchmaking.ErrBanned
	}
	return nil
}

func (m *ManagerService) ack(userID string, msg models.Message, result any, err error) {
	payload := ackPayload{Event: msg.Type, OK: err == nil}
	if err == nil {
		payload.Result = result
	} else {
		payload.Error = matchmaking.CodeOf(err)
		m.Logger.Debug("event failed", "user_id", userID, "event", msg.Type, "error", err)
	}
	if sendErr := m.SendTo(userID, models.NewMessage(models.EventAck, msg.SessionID, payload)); sendErr != nil {
		m.Logger.Debug("ack not delivered", "user_id", userID, "event", msg.Type)
	}
}

// nack acknowledges relayed traffic only when it failed.
func (m *ManagerService) nack(userID string, msg models.Message, err error) {
	if err != nil {
		m.ack(userID, msg, nil, err)
	}
}
