package matchmaking

import (
	"github.com/pion/webrtc/v4"

	"peerzee/backend/internal/models"
)

// Server to client payloads.

type queueStatusPayload struct {
	QueueSize int  `json:"queue_size"`
	Position  int  `json:"position"`
	InQueue   bool `json:"in_queue"`
}

type confirmPayload struct {
	PartnerID   string `json:"partner_id"`
	IsInitiator bool   `json:"is_initiator"`
}

type blindDatePayload struct {
	IntroMessage string `json:"intro_message"`
	InitialTopic string `json:"initial_topic"`
	TopicIndex   int    `json:"topic_index"`
	BlurLevel    int    `json:"blur_level"`
}

type matchFoundPayload struct {
	PartnerID   string             `json:"partner_id"`
	IsInitiator bool               `json:"is_initiator"`
	Mode        models.IntentMode  `json:"mode"`
	WithVideo   bool               `json:"with_video"`
	ICEServers  []webrtc.ICEServer `json:"ice_servers,omitempty"`
	BlindDate   *blindDatePayload  `json:"blind_date,omitempty"`
}

type callEndedPayload struct {
	Reason  string `json:"reason"`
	EndedBy string `json:"ended_by,omitempty"`
}

type chatPayload struct {
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type subtitlePayload struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type newTopicPayload struct {
	Topic       string `json:"topic"`
	TopicIndex  int    `json:"topic_index"`
	RequestedBy string `json:"requested_by,omitempty"`
	IsRescue    bool   `json:"is_rescue,omitempty"`
}

type answerSubmittedPayload struct {
	UserID     string `json:"user_id"`
	TopicIndex int    `json:"topic_index"`
}

type bothAnsweredPayload struct {
	TopicIndex int               `json:"topic_index"`
	Answers    map[string]string `json:"answers"`
}

type revealRequestedPayload struct {
	RequestedBy string `json:"requested_by"`
}

type revealedPayload struct {
	BlurLevel int `json:"blur_level"`
}
