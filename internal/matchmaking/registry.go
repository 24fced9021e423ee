package matchmaking

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"peerzee/backend/internal/models"
)

// sessionEntry is the registry's private record of a session.
type sessionEntry struct {
	session models.Session
	// tickets are the queue tickets the members were paired from, kept so a
	// failed formation or a next-partner request can reuse the criteria.
	tickets map[string]models.QueueTicket
	// lanes serialise relayed traffic per sending member.
	lanes map[string]*sync.Mutex
	// interim limits non-final subtitle fragments per sending member.
	interim map[string]*rate.Limiter
	// withdrawn marks members that left while the session was FORMING.
	withdrawn    map[string]bool
	lastActivity atomic.Int64
}

func (e *sessionEntry) snapshot() models.Session {
	s := e.session.Clone()
	s.LastActivity = time.Unix(0, e.lastActivity.Load())
	return s
}

// endResult describes a session that has just left FORMING or ACTIVE.
type endResult struct {
	session   models.Session
	previous  models.SessionState
	tickets   map[string]models.QueueTicket
	withdrawn map[string]bool
}

// Registry is the authoritative map of live sessions. It owns every state
// transition; the relays and the blind-date controller only read
// membership from it or mutate a session through Registry.update.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	byUser   map[string]string

	interimRate  rate.Limit
	interimBurst int

	now   func() time.Time
	newID func() string
}

// NewRegistry creates an empty registry. interimRate is the number of
// interim subtitle fragments per second a member may send; zero or less
// disables the limit.
func NewRegistry(interimRate float64, interimBurst int) *Registry {
	limit := rate.Inf
	if interimRate > 0 {
		limit = rate.Limit(interimRate)
	}
	if interimBurst < 1 {
		interimBurst = 1
	}
	return &Registry{
		sessions:     make(map[string]*sessionEntry),
		byUser:       make(map[string]string),
		interimRate:  limit,
		interimBurst: interimBurst,
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
	}
}

// create registers a FORMING session for two paired tickets. initiator is
// the member expected to send the first offer. It is only called by the
// pool while it holds its own lock, which makes pairing and creation one step.
func (r *Registry) create(initiator, responder models.QueueTicket) (models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if initiator.UserID == responder.UserID {
		return models.Session{}, ErrAlreadyInSession
	}
	if _, busy := r.byUser[initiator.UserID]; busy {
		return models.Session{}, ErrAlreadyInSession
	}
	if _, busy := r.byUser[responder.UserID]; busy {
		return models.Session{}, ErrAlreadyInSession
	}

	now := r.now()
	entry := &sessionEntry{
		session: models.Session{
			ID:        r.newID(),
			Initiator: initiator.UserID,
			Responder: responder.UserID,
			Mode:      initiator.IntentMode,
			// The lesser capability wins: video only when both want it.
			WithVideo: initiator.WantsVideo && responder.WantsVideo,
			State:     models.StateForming,
			CreatedAt: now,
		},
		tickets: map[string]models.QueueTicket{
			initiator.UserID: initiator,
			responder.UserID: responder,
		},
		lanes: map[string]*sync.Mutex{
			initiator.UserID: {},
			responder.UserID: {},
		},
		interim: map[string]*rate.Limiter{
			initiator.UserID: rate.NewLimiter(r.interimRate, r.interimBurst),
			responder.UserID: rate.NewLimiter(r.interimRate, r.interimBurst),
		},
		withdrawn: make(map[string]bool, 2),
	}
	entry.lastActivity.Store(now.UnixNano())

	r.sessions[entry.session.ID] = entry
	r.byUser[initiator.UserID] = entry.session.ID
	r.byUser[responder.UserID] = entry.session.ID
	return entry.snapshot(), nil
}

// activate moves a FORMING session to ACTIVE and attaches the blind-date
// state, if any.
func (r *Registry) activate(sessionID string, blind *models.BlindDateState) (models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sessionID]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	if entry.session.State != models.StateForming || len(entry.withdrawn) > 0 {
		return models.Session{}, ErrSessionNotActive
	}
	now := r.now()
	entry.session.State = models.StateActive
	entry.session.ActivatedAt = now
	entry.session.BlindDate = blind
	entry.lastActivity.Store(now.UnixNano())
	return entry.snapshot(), nil
}

// beginEnd moves a FORMING or ACTIVE session to ENDING. The boolean is
// false when the session is unknown or already ending, which makes every
// end path idempotent.
func (r *Registry) beginEnd(sessionID, reason string) (endResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sessionID]
	if !ok {
		return endResult{}, false
	}
	previous := entry.session.State
	if previous != models.StateForming && previous != models.StateActive {
		return endResult{}, false
	}
	entry.session.State = models.StateEnding
	entry.session.EndReason = reason

	res := endResult{
		session:   entry.snapshot(),
		previous:  previous,
		tickets:   make(map[string]models.QueueTicket, len(entry.tickets)),
		withdrawn: make(map[string]bool, len(entry.withdrawn)),
	}
	for k, v := range entry.tickets {
		res.tickets[k] = v
	}
	for k, v := range entry.withdrawn {
		res.withdrawn[k] = v
	}
	return res, true
}

// withdraw marks userID as gone from a FORMING session and frees the user
// for a new ticket. The session itself is left for the formation to abort.
// It reports false when the session is not FORMING or userID is not a member.
func (r *Registry) withdraw(sessionID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.lookupLocked(sessionID, userID)
	if err != nil || entry.session.State != models.StateForming {
		return false
	}
	entry.withdrawn[userID] = true
	if r.byUser[userID] == sessionID {
		delete(r.byUser, userID)
	}
	return true
}

// finish moves an ENDING session to ENDED and evicts it.
func (r *Registry) finish(sessionID string) (models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sessionID]
	if !ok || entry.session.State != models.StateEnding {
		return models.Session{}, false
	}
	endedAt := r.now()
	entry.session.State = models.StateEnded
	entry.session.EndedAt = &endedAt

	delete(r.sessions, sessionID)
	for _, member := range entry.session.Members() {
		if r.byUser[member] == sessionID {
			delete(r.byUser, member)
		}
	}
	return entry.snapshot(), true
}

// Get returns a snapshot of the session.
func (r *Registry) Get(sessionID string) (models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.sessions[sessionID]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	return entry.snapshot(), nil
}

// SessionOf returns the id of the user's live session, or "".
func (r *Registry) SessionOf(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// SessionFor returns a snapshot of the user's live session.
func (r *Registry) SessionFor(userID string) (models.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.sessions[r.byUser[userID]]
	if !ok {
		return models.Session{}, false
	}
	return entry.snapshot(), true
}

// ticketOf returns the ticket userID was paired from in its live session.
func (r *Registry) ticketOf(userID string) (models.QueueTicket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.sessions[r.byUser[userID]]
	if !ok {
		return models.QueueTicket{}, false
	}
	t, ok := entry.tickets[userID]
	return t, ok
}

// Count returns the number of sessions that have not been evicted yet.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// lookupLocked validates membership. userID "" skips the member check.
func (r *Registry) lookupLocked(sessionID, userID string) (*sessionEntry, error) {
	entry, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if userID != "" && !entry.session.Has(userID) {
		return nil, ErrNotASessionMember
	}
	return entry, nil
}

// update runs fn on the live ACTIVE session inside the registry's write
// lock. It is the single critical section for blind-date state. A
// non-empty userID must be a member.
func (r *Registry) update(sessionID, userID string, fn func(s *models.Session) error) (models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.lookupLocked(sessionID, userID)
	if err != nil {
		return models.Session{}, err
	}
	if entry.session.State != models.StateActive {
		return models.Session{}, ErrSessionNotActive
	}
	if err := fn(&entry.session); err != nil {
		return models.Session{}, err
	}
	return entry.snapshot(), nil
}

// forwardOptions selects the checks forward applies before sending.
type forwardOptions struct {
	allowForming bool
	interim      bool
	touch        bool
}

// forward validates that from may talk in the session and hands the
// partner id to send while holding from's lane. The lane is taken before
// the registry lock is released, so sends from one member leave in the
// order their validation happened.
func (r *Registry) forward(sessionID, from string, opts forwardOptions, send func(to string) error) error {
	r.mu.RLock()
	entry, err := r.lookupLocked(sessionID, from)
	if err != nil {
		r.mu.RUnlock()
		return err
	}
	state := entry.session.State
	to := entry.session.Partner(from)
	// A withdrawn member may already sit in another session.
	if entry.withdrawn[from] || entry.withdrawn[to] || (state != models.StateActive && !(opts.allowForming && state == models.StateForming)) {
		r.mu.RUnlock()
		return ErrSessionNotActive
	}
	if opts.interim && !entry.interim[from].Allow() {
		r.mu.RUnlock()
		return ErrSubtitleThrottled
	}
	if opts.touch {
		entry.lastActivity.Store(r.now().UnixNano())
	}
	lane := entry.lanes[from]
	lane.Lock()
	r.mu.RUnlock()
	defer lane.Unlock()

	return send(to)
}

// markHandshake records that an SDP answer went through.
func (r *Registry) markHandshake(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sessionID]; ok {
		entry.session.HandshakeDone = true
	}
}

// touch records activity without relaying anything.
func (r *Registry) touch(sessionID, userID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, err := r.lookupLocked(sessionID, userID)
	if err != nil {
		return err
	}
	if entry.session.State != models.StateActive {
		return ErrSessionNotActive
	}
	entry.lastActivity.Store(r.now().UnixNano())
	return nil
}

// dueBlindDates returns the ACTIVE blind-date sessions that need a new
// topic: silent ones have been idle since before silentBefore, stale ones
// are not silent but have kept their topic since before rotatedBefore. A
// zero rotatedBefore disables the stale check.
func (r *Registry) dueBlindDates(silentBefore, rotatedBefore time.Time) (silent, stale []models.Session) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.sessions {
		b := entry.session.BlindDate
		if entry.session.State != models.StateActive || b == nil {
			continue
		}
		switch {
		case time.Unix(0, entry.lastActivity.Load()).Before(silentBefore):
			silent = append(silent, entry.snapshot())
		case !rotatedBefore.IsZero() && b.TopicChangedAt.Before(rotatedBefore):
			stale = append(stale, entry.snapshot())
		}
	}
	return silent, stale
}
