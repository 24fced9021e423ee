package matchmaking

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"peerzee/backend/internal/models"
)

// poolEntry is a queued ticket plus what the pool learned about its owner
// before taking the lock.
type poolEntry struct {
	ticket models.QueueTicket
	gender models.Gender
	seq    uint64
	// reservedBy is the seq of the semantic ticket whose ranking holds this
	// entry, 0 when free. Reserved entries are invisible to other pairings.
	reservedBy uint64
}

// before orders entries oldest first; seq breaks equal timestamps.
func (e *poolEntry) before(o *poolEntry) bool {
	if !e.ticket.EnqueuedAt.Equal(o.ticket.EnqueuedAt) {
		return e.ticket.EnqueuedAt.Before(o.ticket.EnqueuedAt)
	}
	return e.seq < o.seq
}

func compatible(a, b *poolEntry) bool {
	return a.ticket.IntentMode == b.ticket.IntentMode &&
		a.ticket.GenderPreference.Accepts(b.gender) &&
		b.ticket.GenderPreference.Accepts(a.gender)
}

// PairOutcome is the result of placing a ticket in the pool. Session is
// set when the ticket was paired; otherwise Position and QueueSize
// describe where it waits. A zero Position without a Session means the
// ticket was withdrawn while a semantic ranking was in flight. Adopted
// holds sessions formed for other waiting users once a ranking released
// its reservations.
type PairOutcome struct {
	Session   *models.Session
	Position  int
	QueueSize int
	Adopted   []models.Session
}

// Pool holds waiting tickets and pairs them. Pair selection, removal of
// both tickets and session creation in the registry happen under one lock.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*poolEntry
	seq     uint64

	registry *Registry
	profiles ProfileLookup
	ranker   SemanticRanker
	logger   *slog.Logger
	now      func() time.Time
}

// NewPool creates a pool that forms sessions in registry. A nil ranker
// makes semantic tickets behave like normal ones.
func NewPool(registry *Registry, profiles ProfileLookup, ranker SemanticRanker, logger *slog.Logger) *Pool {
	if profiles == nil {
		profiles = unknownProfiles{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		entries:  make(map[string]*poolEntry),
		registry: registry,
		profiles: profiles,
		ranker:   ranker,
		logger:   logger,
		now:      time.Now,
	}
}

// Enqueue inserts or replaces the caller's ticket and tries to pair it.
// A zero EnqueuedAt is stamped with the current time.
func (p *Pool) Enqueue(ctx context.Context, ticket models.QueueTicket) (PairOutcome, error) {
	if ticket.EnqueuedAt.IsZero() {
		ticket.EnqueuedAt = p.now()
	}
	return p.place(ctx, ticket, false)
}

// Restore puts back a ticket whose session failed to form, keeping its
// original EnqueuedAt. It fails with ErrAlreadyQueued if the user queued
// again in the meantime.
func (p *Pool) Restore(ctx context.Context, ticket models.QueueTicket) (PairOutcome, error) {
	return p.place(ctx, ticket, true)
}

// Dequeue removes the user's ticket. It reports whether one was present.
func (p *Pool) Dequeue(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[userID]; !ok {
		return false
	}
	delete(p.entries, userID)
	return true
}

// Contains reports whether the user has a live ticket.
func (p *Pool) Contains(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[userID]
	return ok
}

// Ticket returns the user's live ticket.
func (p *Pool) Ticket(userID string) (models.QueueTicket, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[userID]
	if !ok {
		return models.QueueTicket{}, false
	}
	return e.ticket, true
}

// Size returns the number of waiting tickets.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Positions returns the 1-based queue position of every waiting user.
func (p *Pool) Positions() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	ordered := p.orderedLocked(func(*poolEntry) bool { return true })
	out := make(map[string]int, len(ordered))
	for i, e := range ordered {
		out[e.ticket.UserID] = i + 1
	}
	return out
}

func (p *Pool) place(ctx context.Context, ticket models.QueueTicket, restore bool) (PairOutcome, error) {
	// The profile lookup is external and stays outside the lock.
	gender, err := p.profiles.GetGender(ctx, ticket.UserID)
	if err != nil {
		p.logger.Warn("gender lookup failed, treating as unknown", "user_id", ticket.UserID, "error", err)
		gender = models.GenderUnknown
	}

	p.mu.Lock()
	if p.registry.SessionOf(ticket.UserID) != "" {
		p.mu.Unlock()
		return PairOutcome{}, ErrAlreadyInSession
	}
	if _, queued := p.entries[ticket.UserID]; queued && restore {
		p.mu.Unlock()
		return PairOutcome{}, ErrAlreadyQueued
	}

	p.seq++
	entry := &poolEntry{ticket: ticket, gender: gender, seq: p.seq}
	p.entries[ticket.UserID] = entry

	candidates := p.orderedLocked(func(c *poolEntry) bool {
		return c != entry && c.reservedBy == 0 && compatible(entry, c)
	})
	if len(candidates) == 0 {
		out := p.outcomeLocked(entry)
		p.mu.Unlock()
		return out, nil
	}

	if ticket.Strategy != models.StrategySemantic || p.ranker == nil {
		defer p.mu.Unlock()
		return p.pairLocked(entry, candidates[0])
	}

	// Semantic: reserve the candidate set so no concurrent pairing can take
	// any of it, then rank without holding the lock.
	entry.reservedBy = entry.seq
	tickets := make([]models.QueueTicket, len(candidates))
	for i, c := range candidates {
		c.reservedBy = entry.seq
		tickets[i] = c.ticket
	}
	p.mu.Unlock()

	chosen, rankErr := p.ranker.Rank(ctx, ticket, tickets)
	if rankErr != nil {
		p.logger.Warn("semantic ranking failed, falling back to FIFO", "user_id", ticket.UserID, "error", rankErr)
		chosen = ""
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range candidates {
		if c.reservedBy == entry.seq {
			c.reservedBy = 0
		}
	}
	if entry.reservedBy == entry.seq {
		entry.reservedBy = 0
	}

	// Tickets that arrived during the ranking skipped the reserved set, so
	// both the semantic ticket and the released candidates are matched
	// again against everything that is free now.
	var out PairOutcome
	if p.entries[ticket.UserID] == entry {
		free := p.orderedLocked(func(c *poolEntry) bool {
			return c != entry && c.reservedBy == 0 && compatible(entry, c)
		})
		if len(free) > 0 {
			partner := free[0]
			for _, c := range free {
				if c.ticket.UserID == chosen {
					partner = c
					break
				}
			}
			newer, older := entry, partner
			if newer.before(older) {
				newer, older = older, newer
			}
			var err error
			if out, err = p.pairLocked(newer, older); err != nil {
				return PairOutcome{}, err
			}
		}
	}

	adopted := p.rematchLocked(candidates)
	switch {
	case out.Session != nil:
		out.QueueSize = len(p.entries)
	case p.entries[ticket.UserID] == entry:
		out = p.outcomeLocked(entry)
	}
	out.Adopted = adopted
	return out, nil
}

// rematchLocked pairs each released candidate that is still waiting with
// the oldest free compatible ticket. The sessions it forms belong to other
// users and are returned for the caller to drive.
func (p *Pool) rematchLocked(released []*poolEntry) []models.Session {
	var formed []models.Session
	for _, c := range released {
		if p.entries[c.ticket.UserID] != c || c.reservedBy != 0 {
			continue
		}
		free := p.orderedLocked(func(o *poolEntry) bool {
			return o != c && o.reservedBy == 0 && compatible(c, o)
		})
		if len(free) == 0 {
			continue
		}
		newer, older := c, free[0]
		if newer.before(older) {
			newer, older = older, newer
		}
		out, err := p.pairLocked(newer, older)
		if err != nil {
			p.logger.Warn("rematch after ranking failed", "user_id", c.ticket.UserID, "error", err)
			continue
		}
		formed = append(formed, *out.Session)
	}
	return formed
}

// pairLocked removes both entries and creates the session with entry's
// owner as the initiator. Callers pass the newer ticket first.
func (p *Pool) pairLocked(entry, partner *poolEntry) (PairOutcome, error) {
	s, err := p.registry.create(entry.ticket, partner.ticket)
	if err != nil {
		return PairOutcome{}, err
	}
	delete(p.entries, entry.ticket.UserID)
	delete(p.entries, partner.ticket.UserID)

	p.logger.Info("pair formed",
		"session_id", s.ID,
		"initiator", s.Initiator,
		"responder", s.Responder,
		"mode", s.Mode,
		"with_video", s.WithVideo,
	)
	return PairOutcome{Session: &s, QueueSize: len(p.entries)}, nil
}

func (p *Pool) outcomeLocked(entry *poolEntry) PairOutcome {
	position := 1
	for _, e := range p.entries {
		if e != entry && e.before(entry) {
			position++
		}
	}
	return PairOutcome{Position: position, QueueSize: len(p.entries)}
}

func (p *Pool) orderedLocked(keep func(*poolEntry) bool) []*poolEntry {
	out := make([]*poolEntry, 0, len(p.entries))
	for _, e := range p.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].before(out[j]) })
	return out
}
