// Package matchmaking is the real-time session engine: it admits users
// into a waiting pool, pairs them, drives each pair through the session
// lifecycle and relays signaling, chat, subtitle and blind-date traffic
// between the two members.
//
// The engine never touches a network connection. Everything it sends goes
// through the Gateway, and the gateway reports disconnects back through
// HandleDisconnect. All state is in memory.
package matchmaking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"peerzee/backend/internal/models"
)

// DefaultFormingGracePeriod bounds the FORMING → ACTIVE confirmation.
const DefaultFormingGracePeriod = 5 * time.Second

// Options wires the engine to its collaborators. Only Gateway is required.
type Options struct {
	Gateway    Gateway
	Profiles   ProfileLookup
	Ranker     SemanticRanker
	Content    ContentProvider
	Moderation Moderation
	Recorder   SessionRecorder
	Logger     *slog.Logger

	FormingGracePeriod time.Duration
	// SubtitleInterimRate is interim fragments per second per sender; <= 0 disables the limit.
	SubtitleInterimRate  float64
	SubtitleInterimBurst int

	// BlindDateEnabled turns DATE sessions into blind dates.
	BlindDateEnabled bool
	// SilenceThreshold is how long a blind date may stay quiet before the
	// rescue loop pushes a new topic.
	SilenceThreshold time.Duration
	// TopicRotationInterval is how long a blind date keeps one topic before
	// the rescue loop replaces it; <= 0 rotates on silence only.
	TopicRotationInterval time.Duration
	// ICEServers are handed to both members with match:found.
	ICEServers []webrtc.ICEServer
}

// JoinResult is what a queue request resolves to: either a session or a
// place in the queue.
type JoinResult struct {
	SessionID string `json:"session_id,omitempty"`
	Queued    bool   `json:"queued"`
	Position  int    `json:"position,omitempty"`
	QueueSize int    `json:"queue_size"`
}

// Stats is a point-in-time view for the status endpoint.
type Stats struct {
	QueueSize      int `json:"queue_size"`
	ActiveSessions int `json:"active_sessions"`
}

// Engine is the exposed interface of the session engine.
type Engine struct {
	gateway    Gateway
	content    ContentProvider
	moderation Moderation
	recorder   SessionRecorder
	logger     *slog.Logger

	pool     *Pool
	registry *Registry

	grace            time.Duration
	blindDateEnabled bool
	silence          time.Duration
	rotation         time.Duration
	iceServers       []webrtc.ICEServer
	now              func() time.Time
}

// NewEngine builds an engine; nil collaborators get inert defaults.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ranker := opts.Ranker
	if ranker == nil {
		ranker = FIFORanker{}
	}
	e := &Engine{
		gateway:          opts.Gateway,
		content:          opts.Content,
		moderation:       opts.Moderation,
		recorder:         opts.Recorder,
		logger:           logger,
		grace:            opts.FormingGracePeriod,
		blindDateEnabled: opts.BlindDateEnabled,
		silence:          opts.SilenceThreshold,
		rotation:         opts.TopicRotationInterval,
		iceServers:       opts.ICEServers,
		now:              time.Now,
	}
	if e.content == nil {
		e.content = fallbackContent{}
	}
	if e.moderation == nil {
		e.moderation = nopModeration{}
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	if e.grace <= 0 {
		e.grace = DefaultFormingGracePeriod
	}
	e.registry = NewRegistry(opts.SubtitleInterimRate, opts.SubtitleInterimBurst)
	e.pool = NewPool(e.registry, opts.Profiles, ranker, logger)
	return e
}

// Registry exposes the session registry for read-only queries.
func (e *Engine) Registry() *Registry { return e.registry }

// Pool exposes the matching pool for read-only queries.
func (e *Engine) Pool() *Pool { return e.pool }

// JoinQueue admits userID into the pool and tries to pair it at once.
func (e *Engine) JoinQueue(ctx context.Context, userID string, criteria models.Criteria) (JoinResult, error) {
	criteria = criteria.WithDefaults()
	if userID == "" || !criteria.IntentMode.Valid() || !criteria.GenderPreference.Valid() {
		return JoinResult{}, ErrInvalidCriteria
	}
	if criteria.Strategy != models.StrategyNormal && criteria.Strategy != models.StrategySemantic {
		return JoinResult{}, ErrInvalidCriteria
	}

	ticket := models.QueueTicket{UserID: userID, Criteria: criteria, EnqueuedAt: e.now()}
	out, err := e.pool.Enqueue(ctx, ticket)
	if err != nil {
		return JoinResult{}, err
	}
	e.logger.Info("user joined queue", "user_id", userID, "intent_mode", criteria.IntentMode, "strategy", criteria.Strategy)
	return e.settle(ctx, userID, out)
}

// LeaveQueue withdraws the user's ticket. Leaving without a ticket is fine.
func (e *Engine) LeaveQueue(userID string) error {
	if e.pool.Dequeue(userID) {
		e.logger.Info("user left queue", "user_id", userID)
		e.broadcastQueueStatus()
	}
	return nil
}

// EndSession ends the session on behalf of one of its members.
func (e *Engine) EndSession(ctx context.Context, sessionID, userID string) error {
	if err := e.checkMember(sessionID, userID); err != nil {
		return err
	}
	if !e.endSession(ctx, sessionID, models.ReasonPartnerEnded, userID) {
		return ErrSessionNotActive
	}
	return nil
}

// NextPartner ends the user's current session, if any, and queues the
// user again. The partner is not re-queued. A nil criteria reuses the
// criteria of the ticket the user was paired or queued from.
func (e *Engine) NextPartner(ctx context.Context, userID string, criteria *models.Criteria) (JoinResult, error) {
	c := models.Criteria{IntentMode: models.IntentDate}
	if t, ok := e.registry.ticketOf(userID); ok {
		c = t.Criteria
	} else if t, ok := e.pool.Ticket(userID); ok {
		c = t.Criteria
	}
	if criteria != nil {
		c = *criteria
	}

	if sessionID := e.registry.SessionOf(userID); sessionID != "" {
		e.endSession(ctx, sessionID, models.ReasonPartnerSkipped, userID)
	}
	return e.JoinQueue(ctx, userID, c)
}

// Report ends the session immediately and hands the complaint to moderation.
func (e *Engine) Report(ctx context.Context, sessionID, reporterID, reason string) error {
	s, err := e.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if !s.Has(reporterID) {
		return ErrNotASessionMember
	}
	e.endSession(ctx, sessionID, models.ReasonReported, reporterID)

	report := models.Report{
		SessionID:  sessionID,
		ReporterID: reporterID,
		ReportedID: s.Partner(reporterID),
		Reason:     reason,
	}
	if err := e.moderation.Report(ctx, report); err != nil {
		e.logger.Error("moderation report failed", "session_id", sessionID, "reporter_id", reporterID, "error", err)
	}
	e.logger.Warn("session reported", "session_id", sessionID, "reporter_id", reporterID, "reason", reason)
	return nil
}

// HandleDisconnect is the gateway's close event. It removes the user's
// ticket and tears down its session; repeated calls are no-ops.
func (e *Engine) HandleDisconnect(ctx context.Context, userID string) {
	if e.pool.Dequeue(userID) {
		e.broadcastQueueStatus()
	}
	if sessionID := e.registry.SessionOf(userID); sessionID != "" {
		e.endSession(ctx, sessionID, models.ReasonPartnerDisconnected, userID)
	}
}

// Status projects the registry state to what the client should render.
func (e *Engine) Status(userID string) models.ClientState {
	if s, ok := e.registry.SessionFor(userID); ok {
		switch s.State {
		case models.StateForming:
			return models.ClientMatched
		case models.StateActive:
			if s.HandshakeDone {
				return models.ClientConnected
			}
			return models.ClientMatched
		default:
			return models.ClientEnded
		}
	}
	if e.pool.Contains(userID) {
		return models.ClientSearching
	}
	return models.ClientIdle
}

// SessionOf returns the user's live session id, or "".
func (e *Engine) SessionOf(userID string) string {
	return e.registry.SessionOf(userID)
}

// Stats returns the current pool and registry sizes.
func (e *Engine) Stats() Stats {
	return Stats{QueueSize: e.pool.Size(), ActiveSessions: e.registry.Count()}
}

func (e *Engine) checkMember(sessionID, userID string) error {
	s, err := e.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if !s.Has(userID) {
		return ErrNotASessionMember
	}
	return nil
}

// settle turns a pool outcome into the caller's result, driving a freshly
// formed session through confirmation.
func (e *Engine) settle(ctx context.Context, userID string, out PairOutcome) (JoinResult, error) {
	e.broadcastQueueStatus()
	for _, s := range out.Adopted {
		go e.adopt(context.WithoutCancel(ctx), s)
	}
	if out.Session == nil {
		if out.Position == 0 {
			return JoinResult{QueueSize: out.QueueSize}, nil
		}
		return JoinResult{Queued: true, Position: out.Position, QueueSize: out.QueueSize}, nil
	}

	s, res, ok := e.form(ctx, *out.Session)
	if ok {
		return JoinResult{SessionID: s.ID, QueueSize: out.QueueSize}, nil
	}

	// Formation aborted: reachable members that did not withdraw get their
	// tickets back with their original position in time.
	for _, member := range out.Session.Members() {
		if member != userID && res.restorable[member] {
			e.requeue(ctx, member, res.tickets[member])
		}
	}
	if !res.restorable[userID] {
		return JoinResult{}, ErrPairingTimeout
	}
	next, err := e.pool.Restore(ctx, res.tickets[userID])
	switch {
	case errors.Is(err, ErrAlreadyQueued):
		return JoinResult{Queued: true, QueueSize: e.pool.Size()}, nil
	case err != nil:
		return JoinResult{}, err
	}
	return e.settle(ctx, userID, next)
}

// requeue restores the ticket of a member who is not the current caller
// and settles it on that member's behalf.
func (e *Engine) requeue(ctx context.Context, userID string, ticket models.QueueTicket) {
	out, err := e.pool.Restore(ctx, ticket)
	if err != nil {
		e.logger.Debug("ticket not restored", "user_id", userID, "error", err)
		return
	}
	if _, err := e.settle(ctx, userID, out); err != nil {
		e.logger.Debug("restored ticket did not settle", "user_id", userID, "error", err)
	}
}

// adopt drives a session the pool formed for two waiting users, neither of
// whom is the caller.
func (e *Engine) adopt(ctx context.Context, s models.Session) {
	if _, res, ok := e.form(ctx, s); !ok {
		for _, member := range s.Members() {
			if res.restorable[member] {
				e.requeue(ctx, member, res.tickets[member])
			}
		}
	}
}

// formResult tells settle which members of an aborted session may go back
// to the pool.
type formResult struct {
	restorable map[string]bool
	tickets    map[string]models.QueueTicket
}

// form confirms both members within the grace period and activates the
// session. A member that is unreachable, or that withdrew while the
// confirmation was running, aborts the session.
func (e *Engine) form(ctx context.Context, s models.Session) (models.Session, formResult, bool) {
	confirmCtx, cancel := context.WithTimeout(ctx, e.grace)
	defer cancel()

	members := s.Members()
	var reachable [2]bool
	var g errgroup.Group
	for i, member := range members {
		g.Go(func() error {
			msg := models.NewMessage(models.EventSessionConfirm, s.ID, confirmPayload{
				PartnerID:   s.Partner(member),
				IsInitiator: member == s.Initiator,
			})
			reachable[i] = e.gateway.ConfirmReachable(confirmCtx, member, msg)
			return nil
		})
	}
	_ = g.Wait()

	if reachable[0] && reachable[1] {
		active, err := e.registry.activate(s.ID, e.blindStateFor(ctx, s))
		if err == nil {
			e.announce(active)
			if err := e.recorder.SessionStarted(ctx, active); err != nil {
				e.logger.Error("failed to record session start", "session_id", active.ID, "error", err)
			}
			return active, formResult{}, true
		}
		e.logger.Info("session lost a member while forming", "session_id", s.ID, "error", err)
	}

	res := formResult{restorable: make(map[string]bool, 2)}
	ended, ok := e.registry.beginEnd(s.ID, models.ReasonPairingTimeout)
	if ok {
		res.tickets = ended.tickets
		for i, member := range members {
			res.restorable[member] = reachable[i] && !ended.withdrawn[member]
		}
		e.registry.finish(s.ID)
	}
	e.logger.Warn("session aborted while forming",
		"session_id", s.ID,
		"initiator_reachable", reachable[0],
		"responder_reachable", reachable[1],
	)
	return models.Session{}, res, false
}

// announce tells both members of a new ACTIVE session who they are paired
// with and which side sends the offer.
func (e *Engine) announce(s models.Session) {
	for _, member := range s.Members() {
		payload := matchFoundPayload{
			PartnerID:   s.Partner(member),
			IsInitiator: member == s.Initiator,
			Mode:        s.Mode,
			WithVideo:   s.WithVideo,
			ICEServers:  e.iceServers,
		}
		if b := s.BlindDate; b != nil {
			payload.BlindDate = &blindDatePayload{
				IntroMessage: b.IntroMessage,
				InitialTopic: b.CurrentTopic,
				TopicIndex:   b.CurrentTopicIndex,
				BlurLevel:    b.BlurLevel,
			}
		}
		e.send(member, models.NewMessage(models.EventMatchFound, s.ID, payload))
	}
	e.logger.Info("session active", "session_id", s.ID, "initiator", s.Initiator, "responder", s.Responder)
}

// endSession drives ACTIVE → ENDING → ENDED and notifies both members. A
// member leaving a FORMING session only withdraws; the formation then
// aborts on its own. It reports whether actor's request had any effect.
func (e *Engine) endSession(ctx context.Context, sessionID, reason, actor string) bool {
	if e.registry.withdraw(sessionID, actor) {
		e.logger.Info("member withdrew from forming session", "session_id", sessionID, "user_id", actor, "reason", reason)
		return true
	}
	res, ok := e.registry.beginEnd(sessionID, reason)
	if !ok {
		return false
	}

	msg := models.NewMessage(models.EventCallEnded, sessionID, callEndedPayload{Reason: reason, EndedBy: actor})
	for _, member := range res.session.Members() {
		e.send(member, msg)
	}

	ended, ok := e.registry.finish(sessionID)
	if !ok {
		return true
	}
	if err := e.recorder.SessionEnded(ctx, ended); err != nil {
		e.logger.Error("failed to record session end", "session_id", sessionID, "error", err)
	}
	e.logger.Info("session ended", "session_id", sessionID, "reason", reason, "ended_by", actor)
	return true
}

// send delivers best effort; a member that is gone cannot be notified and
// that is not an error.
func (e *Engine) send(userID string, msg models.Message) {
	if err := e.gateway.SendTo(userID, msg); err != nil {
		e.logger.Debug("message not delivered", "user_id", userID, "type", msg.Type, "error", err)
	}
}

// broadcastQueueStatus tells every waiting user its position.
func (e *Engine) broadcastQueueStatus() {
	positions := e.pool.Positions()
	for userID, position := range positions {
		e.send(userID, models.NewMessage(models.EventQueueStatus, "", queueStatusPayload{
			QueueSize: len(positions),
			Position:  position,
			InQueue:   true,
		}))
	}
}
