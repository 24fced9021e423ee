package matchmaking

import (
	"context"
	"encoding/json"

	"peerzee/backend/internal/models"
)

// SendChannelMessage relays chat and subtitles to the partner and hands
// blind-date control messages to the flow controller. Nothing here is
// sequenced or retried; interim subtitle fragments over the sender's
// rate are dropped with ErrSubtitleThrottled.
func (e *Engine) SendChannelMessage(ctx context.Context, cm models.ChannelMessage) error {
	switch cm.Kind {
	case models.ChannelChat:
		sentAt := cm.SentAt
		if sentAt.IsZero() {
			sentAt = e.now()
		}
		return e.registry.forward(cm.SessionID, cm.FromUserID, forwardOptions{touch: true}, func(to string) error {
			return e.gateway.SendTo(to, models.Message{
				Type:      models.EventChatMessage,
				SessionID: cm.SessionID,
				SenderID:  cm.FromUserID,
				Payload: encodePayload(chatPayload{
					Content:   cm.Text,
					Timestamp: sentAt.UnixMilli(),
				}),
			})
		})

	case models.ChannelSubtitle:
		opts := forwardOptions{interim: !cm.Final}
		return e.registry.forward(cm.SessionID, cm.FromUserID, opts, func(to string) error {
			return e.gateway.SendTo(to, models.Message{
				Type:      models.EventSubtitleReceive,
				SessionID: cm.SessionID,
				SenderID:  cm.FromUserID,
				Payload:   encodePayload(subtitlePayload{Text: cm.Text, IsFinal: cm.Final}),
			})
		})

	case models.ChannelActivity:
		return e.registry.touch(cm.SessionID, cm.FromUserID)
	case models.ChannelTopicRequest:
		_, err := e.RequestNewTopic(ctx, cm.SessionID, cm.FromUserID)
		return err
	case models.ChannelAnswer:
		return e.SubmitAnswer(ctx, cm.SessionID, cm.FromUserID, cm.Text)
	case models.ChannelRevealRequest:
		_, err := e.RequestReveal(ctx, cm.SessionID, cm.FromUserID)
		return err
	case models.ChannelRevealAccept:
		return e.AcceptReveal(ctx, cm.SessionID, cm.FromUserID)
	}
	return ErrUnknownMessage
}

func encodePayload(v any) json.RawMessage {
	return models.NewMessage("", "", v).Payload
}
