package models

import (
	"encoding/json"
	"time"
)

// Message is the frame exchanged with a connected client in both directions.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	SenderID  string          `json:"sender_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a frame with payload encoded as JSON. A nil payload is omitted.
func NewMessage(eventType, sessionID string, payload any) Message {
	msg := Message{Type: eventType, SessionID: sessionID}
	if payload == nil {
		return msg
	}
	if raw, ok := payload.(json.RawMessage); ok {
		msg.Payload = raw
		return msg
	}
	data, err := json.Marshal(payload)
	if err == nil {
		msg.Payload = data
	}
	return msg
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// SignalKind is the WebRTC negotiation step carried by an envelope.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

// SignalingEnvelope is a transient WebRTC negotiation message. Payload is
// forwarded byte for byte; the server never parses SDP.
type SignalingEnvelope struct {
	SessionID  string          `json:"session_id"`
	FromUserID string          `json:"from_user_id"`
	Kind       SignalKind      `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
}

// ChannelKind is the type of a loss tolerant session message.
type ChannelKind string

const (
	ChannelChat          ChannelKind = "chat"
	ChannelSubtitle      ChannelKind = "subtitle"
	ChannelActivity      ChannelKind = "activity"
	ChannelTopicRequest  ChannelKind = "topic_request"
	ChannelAnswer        ChannelKind = "answer"
	ChannelRevealRequest ChannelKind = "reveal_request"
	ChannelRevealAccept  ChannelKind = "reveal_accept"
)

// ChannelMessage is chat, subtitle or blind-date control traffic.
type ChannelMessage struct {
	SessionID  string      `json:"session_id"`
	FromUserID string      `json:"from_user_id"`
	Kind       ChannelKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	// Final marks a finished subtitle fragment; interim ones may be dropped.
	Final  bool      `json:"is_final,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// Report is a moderation complaint raised from inside a session.
type Report struct {
	SessionID  string `json:"session_id"`
	ReporterID string `json:"reporter_id"`
	ReportedID string `json:"reported_id"`
	Reason     string `json:"reason"`
}
