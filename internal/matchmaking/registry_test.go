package matchmaking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerzee/backend/internal/models"
)

func ticketFor(userID string) models.QueueTicket {
	return models.QueueTicket{UserID: userID, Criteria: models.Criteria{IntentMode: models.IntentFriend}.WithDefaults()}
}

func TestRegistry_LifecycleTransitionsOnce(t *testing.T) {
	r := NewRegistry(0, 0)

	s, err := r.create(ticketFor("a"), ticketFor("b"))
	require.NoError(t, err)
	assert.Equal(t, models.StateForming, s.State)

	_, err = r.create(ticketFor("a"), ticketFor("c"))
	assert.ErrorIs(t, err, ErrAlreadyInSession)

	active, err := r.activate(s.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, active.State)
	_, err = r.activate(s.ID, nil)
	assert.ErrorIs(t, err, ErrSessionNotActive)

	res, ok := r.beginEnd(s.ID, models.ReasonPartnerEnded)
	require.True(t, ok)
	assert.Equal(t, models.StateActive, res.previous)
	assert.Equal(t, models.StateEnding, res.session.State)
	_, ok = r.beginEnd(s.ID, models.ReasonPartnerDisconnected)
	assert.False(t, ok, "ending is idempotent")

	ended, ok := r.finish(s.ID)
	require.True(t, ok)
	assert.Equal(t, models.StateEnded, ended.State)
	assert.Equal(t, models.ReasonPartnerEnded, ended.EndReason)
	require.NotNil(t, ended.EndedAt)
	_, ok = r.finish(s.ID)
	assert.False(t, ok)

	assert.Empty(t, r.SessionOf("a"))
	assert.Empty(t, r.SessionOf("b"))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_WithdrawFromFormingSession(t *testing.T) {
	r := NewRegistry(0, 0)
	s, err := r.create(ticketFor("a"), ticketFor("b"))
	require.NoError(t, err)

	assert.False(t, r.withdraw(s.ID, "mallory"))
	require.True(t, r.withdraw(s.ID, "a"))

	assert.Empty(t, r.SessionOf("a"), "a withdrawn member may queue again")
	assert.Equal(t, s.ID, r.SessionOf("b"))

	err = r.forward(s.ID, "a", forwardOptions{allowForming: true}, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrSessionNotActive)
	sent := false
	err = r.forward(s.ID, "b", forwardOptions{allowForming: true}, func(string) error { sent = true; return nil })
	assert.ErrorIs(t, err, ErrSessionNotActive, "nothing reaches a member who already left")
	assert.False(t, sent)

	_, err = r.activate(s.ID, nil)
	assert.ErrorIs(t, err, ErrSessionNotActive)

	res, ok := r.beginEnd(s.ID, models.ReasonPairingTimeout)
	require.True(t, ok)
	assert.True(t, res.withdrawn["a"])
	assert.False(t, res.withdrawn["b"])
	assert.Equal(t, "b", res.tickets["b"].UserID)
}

func TestRegistry_ForwardRequiresActiveUnlessForming(t *testing.T) {
	r := NewRegistry(0, 0)
	s, err := r.create(ticketFor("a"), ticketFor("b"))
	require.NoError(t, err)

	var to string
	send := func(partner string) error { to = partner; return nil }

	assert.ErrorIs(t, r.forward(s.ID, "a", forwardOptions{}, send), ErrSessionNotActive)
	require.NoError(t, r.forward(s.ID, "a", forwardOptions{allowForming: true}, send))
	assert.Equal(t, "b", to)
	assert.ErrorIs(t, r.touch(s.ID, "a"), ErrSessionNotActive)
}

func TestRegistry_UpdateIsolatesSnapshots(t *testing.T) {
	r := NewRegistry(0, 0)
	s, err := r.create(ticketFor("a"), ticketFor("b"))
	require.NoError(t, err)
	_, err = r.activate(s.ID, models.NewBlindDateState(models.Topic{Text: "t"}, "hi", 20))
	require.NoError(t, err)

	snap, err := r.Get(s.ID)
	require.NoError(t, err)
	snap.BlindDate.Answers["a"] = "leaked"

	live, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Empty(t, live.BlindDate.Answers)

	_, err = r.update(s.ID, "c", func(*models.Session) error { return nil })
	assert.ErrorIs(t, err, ErrNotASessionMember)
}
