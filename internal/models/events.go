package models

// Client to server events.
const (
	EventQueueJoin          = "queue:join"
	EventQueueLeave         = "queue:leave"
	EventCallNext           = "call:next"
	EventCallEnd            = "call:end"
	EventCallReport         = "call:report"
	EventSubtitleSend       = "subtitle:send"
	EventBlindRequestTopic  = "blind:request_topic"
	EventBlindAnswer        = "blind:answer"
	EventBlindRequestReveal = "blind:request_reveal"
	EventBlindAcceptReveal  = "blind:accept_reveal"
	EventBlindActivity      = "blind:activity"
)

// Server to client events.
const (
	EventAck                  = "ack"
	EventQueueStatus          = "queue:status"
	EventSessionConfirm       = "session:confirm"
	EventMatchFound           = "match:found"
	EventCallEnded            = "call:ended"
	EventSubtitleReceive      = "subtitle:receive"
	EventBlindNewTopic        = "blind:new_topic"
	EventBlindAnswerSubmitted = "blind:answer_submitted"
	EventBlindBothAnswered    = "blind:both_answered"
	EventBlindRevealRequested = "blind:reveal_requested"
	EventBlindRevealed        = "blind:revealed"
)

// Events relayed in both directions under the same name.
const (
	EventCallOffer        = "call:offer"
	EventCallAnswer       = "call:answer"
	EventCallICECandidate = "call:ice-candidate"
	EventChatMessage      = "chat:message"
)
