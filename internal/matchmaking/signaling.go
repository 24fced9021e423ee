package matchmaking

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"peerzee/backend/internal/models"
)

// ParseSignalKind accepts the SDP types that take part in the
// offer/answer exchange plus trickled ICE candidates.
func ParseSignalKind(raw string) (models.SignalKind, bool) {
	if raw == string(models.SignalICECandidate) {
		return models.SignalICECandidate, true
	}
	switch webrtc.NewSDPType(raw) {
	case webrtc.SDPTypeOffer:
		return models.SignalOffer, true
	case webrtc.SDPTypeAnswer:
		return models.SignalAnswer, true
	}
	return "", false
}

func signalEvent(kind models.SignalKind) string {
	switch kind {
	case models.SignalOffer:
		return models.EventCallOffer
	case models.SignalAnswer:
		return models.EventCallAnswer
	default:
		return models.EventCallICECandidate
	}
}

// RelaySignal forwards a negotiation message to the sender's partner.
// Messages from one member reach the partner in the order they were
// accepted. A failed delivery is reported and never retried.
func (e *Engine) RelaySignal(_ context.Context, env models.SignalingEnvelope) error {
	kind, ok := ParseSignalKind(string(env.Kind))
	if !ok {
		return ErrUnknownMessage
	}
	payload := env.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}

	err := e.registry.forward(env.SessionID, env.FromUserID, forwardOptions{allowForming: true}, func(to string) error {
		msg := models.Message{
			Type:      signalEvent(kind),
			SessionID: env.SessionID,
			SenderID:  env.FromUserID,
			Payload:   payload,
		}
		return e.gateway.SendTo(to, msg)
	})
	if err != nil {
		e.logger.Debug("signal not relayed", "session_id", env.SessionID, "user_id", env.FromUserID, "kind", kind, "error", err)
		return err
	}
	if kind == models.SignalAnswer {
		e.registry.markHandshake(env.SessionID)
	}
	return nil
}
