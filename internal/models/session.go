package models

import "time"

// SessionState is the registry side lifecycle of a session.
type SessionState string

const (
	StateForming SessionState = "FORMING"
	StateActive  SessionState = "ACTIVE"
	StateEnding  SessionState = "ENDING"
	StateEnded   SessionState = "ENDED"
)

// ClientState is the projection of the registry state a client renders.
type ClientState string

const (
	ClientIdle      ClientState = "idle"
	ClientSearching ClientState = "searching"
	ClientMatched   ClientState = "matched"
	ClientConnected ClientState = "connected"
	ClientEnded     ClientState = "ended"
)

// Reasons a session ends, sent to clients with call:ended.
const (
	ReasonPartnerEnded        = "partner_ended"
	ReasonPartnerSkipped      = "partner_skipped"
	ReasonPartnerDisconnected = "partner_disconnected"
	ReasonReported            = "reported"
	ReasonPairingTimeout      = "pairing_timeout"
)

// Session is one paired conversation. Membership never changes after creation.
type Session struct {
	ID        string       `json:"session_id"`
	Initiator string       `json:"initiator"`
	Responder string       `json:"responder"`
	Mode      IntentMode   `json:"mode"`
	WithVideo bool         `json:"with_video"`
	State     SessionState `json:"state"`
	// HandshakeDone is set once an SDP answer has been relayed.
	HandshakeDone bool            `json:"handshake_done"`
	CreatedAt     time.Time       `json:"created_at"`
	ActivatedAt   time.Time       `json:"activated_at,omitempty"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
	EndReason     string          `json:"end_reason,omitempty"`
	LastActivity  time.Time       `json:"last_activity"`
	BlindDate     *BlindDateState `json:"blind_date,omitempty"`
}

// Members returns the initiator and responder in that order.
func (s *Session) Members() [2]string {
	return [2]string{s.Initiator, s.Responder}
}

// Has reports whether userID is one of the two members.
func (s *Session) Has(userID string) bool {
	return userID != "" && (s.Initiator == userID || s.Responder == userID)
}

// Partner returns the other member, or "" if userID is not a member.
func (s *Session) Partner(userID string) string {
	switch userID {
	case s.Initiator:
		return s.Responder
	case s.Responder:
		return s.Initiator
	}
	return ""
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	c.BlindDate = s.BlindDate.Clone()
	return c
}

// Topic is an icebreaker picked by the content provider.
type Topic struct {
	Index int    `json:"topic_index"`
	Text  string `json:"topic"`
}

// BlindDateState tracks the reveal negotiation of a blind-date session.
type BlindDateState struct {
	CurrentTopicIndex int               `json:"current_topic_index"`
	CurrentTopic      string            `json:"current_topic"`
	IntroMessage      string            `json:"intro_message"`
	Answers           map[string]string `json:"answers"`
	RevealRequested   map[string]bool   `json:"reveal_requested"`
	Revealed          bool              `json:"revealed"`
	BlurLevel         int               `json:"blur_level"`
	TopicChangedAt    time.Time         `json:"topic_changed_at"`
}

// NewBlindDateState starts a negotiation on the given topic.
func NewBlindDateState(topic Topic, intro string, blur int) *BlindDateState {
	return &BlindDateState{
		CurrentTopicIndex: topic.Index,
		CurrentTopic:      topic.Text,
		IntroMessage:      intro,
		Answers:           make(map[string]string),
		RevealRequested:   make(map[string]bool),
		BlurLevel:         blur,
	}
}

// Clone returns a deep copy; nil stays nil.
func (b *BlindDateState) Clone() *BlindDateState {
	if b == nil {
		return nil
	}
	c := *b
	c.Answers = make(map[string]string, len(b.Answers))
	for k, v := range b.Answers {
		c.Answers[k] = v
	}
	c.RevealRequested = make(map[string]bool, len(b.RevealRequested))
	for k, v := range b.RevealRequested {
		c.RevealRequested[k] = v
	}
	return &c
}
