package matchmaking

import "errors"

// Error is a recoverable condition surfaced to the connection handler.
// Code is the stable identifier sent to clients.
type Error struct {
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

var (
	ErrAlreadyQueued     = &Error{Code: "already_queued", msg: "user already has a newer queue ticket"}
	ErrAlreadyInSession  = &Error{Code: "already_in_session", msg: "user is already in a session"}
	ErrSessionNotFound   = &Error{Code: "session_not_found", msg: "session not found"}
	ErrNotASessionMember = &Error{Code: "not_a_session_member", msg: "user is not a member of the session"}
	ErrSessionNotActive  = &Error{Code: "session_not_active", msg: "session is not active"}
	ErrNotConnected      = &Error{Code: "not_connected", msg: "user is not connected"}
	ErrPairingTimeout    = &Error{Code: "pairing_timeout", msg: "session could not be confirmed in time"}

	ErrInvalidCriteria   = &Error{Code: "invalid_criteria", msg: "invalid queue criteria"}
	ErrUnknownMessage    = &Error{Code: "unknown_message", msg: "unknown message kind"}
	ErrNotBlindDate      = &Error{Code: "not_blind_date", msg: "session is not a blind date"}
	ErrRevealPending     = &Error{Code: "reveal_pending", msg: "reveal has not been agreed by both members"}
	ErrSubtitleThrottled = &Error{Code: "subtitle_throttled", msg: "interim subtitle dropped by rate limit"}
	ErrBanned            = &Error{Code: "banned", msg: "user is banned"}
)

// CodeOf returns the wire code for err, "internal" for anything that is not an *Error.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
