package matchmaking_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerzee/backend/internal/matchmaking"
	"peerzee/backend/internal/models"
)

func TestRelaySignal_PreservesOrderAndPayload(t *testing.T) {
	// Arrange
	e, gw := newTestEngine(t, matchmaking.Options{})
	ctx := context.Background()
	id := pair(t, e, "alice", "bob", dateCriteria())

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n"}`)
	candidates := []json.RawMessage{
		json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 50000 typ host"}`),
		json.RawMessage(`{"candidate":"candidate:2 1 udp 1686052607 1.2.3.4 50001 typ srflx"}`),
		json.RawMessage(`{"candidate":"candidate:3 1 tcp 1518280447 10.0.0.1 9 typ host tcptype active"}`),
	}

	// Act
	require.NoError(t, e.RelaySignal(ctx, models.SignalingEnvelope{SessionID: id, FromUserID: "bob", Kind: models.SignalOffer, Payload: offer}))
	for _, c := range candidates {
		require.NoError(t, e.RelaySignal(ctx, models.SignalingEnvelope{SessionID: id, FromUserID: "bob", Kind: models.SignalICECandidate, Payload: c}))
	}

	// Assert
	var relayed []models.Message
	for _, m := range gw.inbox["alice"] {
		if m.Type == models.EventCallOffer || m.Type == models.EventCallICECandidate {
			relayed = append(relayed, m)
		}
	}
	require.Len(t, relayed, 4)
	assert.Equal(t, models.EventCallOffer, relayed[0].Type)
	assert.Equal(t, string(offer), string(relayed[0].Payload))
	for i, c := range candidates {
		assert.Equal(t, models.EventCallICECandidate, relayed[i+1].Type)
		assert.Equal(t, string(c), string(relayed[i+1].Payload))
		assert.Equal(t, "bob", relayed[i+1].SenderID)
	}
	assert.Empty(t, gw.received("bob", models.EventCallOffer), "the sender never gets its own signal back")
}

func TestRelaySignal_AnswerCompletesHandshake(t *testing.T) {
	e, gw := newTestEngine(t, matchmaking.Options{})
	ctx := context.Background()
	id := pair(t, e, "alice", "bob", dateCriteria())
	assert.Equal(t, models.ClientMatched, e.Status("alice"))

	err := e.RelaySignal(ctx, models.SignalingEnvelope{
		SessionID:  id,
		FromUserID: "alice",
		Kind:       models.SignalAnswer,
		Payload:    json.RawMessage(`{"type":"answer","sdp":"v=0"}`),
	})
	require.NoError(t, err)

	assert.Len(t, gw.received("bob", models.EventCallAnswer), 1)
	assert.Equal(t, models.ClientConnected, e.Status("alice"))
	assert.Equal(t, models.ClientConnected, e.Status("bob"))
}

func TestRelaySignal_Errors(t *testing.T) {
	e, gw := newTestEngine(t, matchmaking.Options{})
	ctx := context.Background()
	id := pair(t, e, "alice", "bob", dateCriteria())
	payload := json.RawMessage(`{}`)

	tests := []struct {
		name string
		env  models.SignalingEnvelope
		want error
	}{
		{"unknown session", models.SignalingEnvelope{SessionID: "nope", FromUserID: "alice", Kind: models.SignalOffer, Payload: payload}, matchmaking.ErrSessionNotFound},
		{"stranger", models.SignalingEnvelope{SessionID: id, FromUserID: "mallory", Kind: models.SignalOffer, Payload: payload}, matchmaking.ErrNotASessionMember},
		{"unknown kind", models.SignalingEnvelope{SessionID: id, FromUserID: "alice", Kind: "rollback", Payload: payload}, matchmaking.ErrUnknownMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, e.RelaySignal(ctx, tt.env), tt.want)
		})
	}

	gw.setOffline("bob", true)
	err := e.RelaySignal(ctx, models.SignalingEnvelope{SessionID: id, FromUserID: "alice", Kind: models.SignalOffer, Payload: payload})
	assert.ErrorIs(t, err, matchmaking.ErrNotConnected)

	require.NoError(t, e.EndSession(ctx, id, "alice"))
	err = e.RelaySignal(ctx, models.SignalingEnvelope{SessionID: id, FromUserID: "alice", Kind: models.SignalOffer, Payload: payload})
	assert.ErrorIs(t, err, matchmaking.ErrSessionNotFound)
}

func TestParseSignalKind(t *testing.T) {
	tests := []struct {
		raw  string
		want models.SignalKind
		ok   bool
	}{
		{"offer", models.SignalOffer, true},
		{"answer", models.SignalAnswer, true},
		{"ice-candidate", models.SignalICECandidate, true},
		{"pranswer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := matchmaking.ParseSignalKind(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestSendChannelMessage_Chat(t *testing.T) {
	e, gw := newTestEngine(t, matchmaking.Options{})
	id := pair(t, e, "alice", "bob", dateCriteria())

	err := e.SendChannelMessage(context.Background(), models.ChannelMessage{
		SessionID:  id,
		FromUserID: "alice",
		Kind:       models.ChannelChat,
		Text:       "hi there",
	})
	require.NoError(t, err)

	got := gw.received("bob", models.EventChatMessage)
	require.Len(t, got, 1)
	var payload struct {
		Content   string `json:"content"`
		Timestamp int64  `json:"timestamp"`
	}
	require.NoError(t, got[0].Decode(&payload))
	assert.Equal(t, "hi there", payload.Content)
	assert.NotZero(t, payload.Timestamp)
	assert.Equal(t, "alice", got[0].SenderID)
}

func TestSendChannelMessage_InterimSubtitlesAreThrottled(t *testing.T) {
	// Arrange
	e, gw := newTestEngine(t, matchmaking.Options{SubtitleInterimRate: 0.001, SubtitleInterimBurst: 2})
	ctx := context.Background()
	id := pair(t, e, "alice", "bob", dateCriteria())
	interim := models.ChannelMessage{SessionID: id, FromUserID: "alice", Kind: models.ChannelSubtitle, Text: "hel"}

	// Act
	first := e.SendChannelMessage(ctx, interim)
	second := e.SendChannelMessage(ctx, interim)
	third := e.SendChannelMessage(ctx, interim)
	final := e.SendChannelMessage(ctx, models.ChannelMessage{
		SessionID: id, FromUserID: "alice", Kind: models.ChannelSubtitle, Text: "hello", Final: true,
	})
	other := e.SendChannelMessage(ctx, models.ChannelMessage{
		SessionID: id, FromUserID: "bob", Kind: models.ChannelSubtitle, Text: "hey",
	})

	// Assert
	assert.NoError(t, first)
	assert.NoError(t, second)
	assert.ErrorIs(t, third, matchmaking.ErrSubtitleThrottled)
	assert.NoError(t, final, "final fragments are never limited")
	assert.NoError(t, other, "each sender has its own budget")

	got := gw.received("bob", models.EventSubtitleReceive)
	require.Len(t, got, 3)
	var last struct {
		Text    string `json:"text"`
		IsFinal bool   `json:"is_final"`
	}
	require.NoError(t, got[2].Decode(&last))
	assert.Equal(t, "hello", last.Text)
	assert.True(t, last.IsFinal)
}

func TestSendChannelMessage_UnknownKind(t *testing.T) {
	e, _ := newTestEngine(t, matchmaking.Options{})
	id := pair(t, e, "alice", "bob", dateCriteria())

	err := e.SendChannelMessage(context.Background(), models.ChannelMessage{SessionID: id, FromUserID: "alice", Kind: "poke"})

	assert.ErrorIs(t, err, matchmaking.ErrUnknownMessage)
}

func TestSendChannelMessage_AfterSessionEnded(t *testing.T) {
	e, _ := newTestEngine(t, matchmaking.Options{})
	id := pair(t, e, "alice", "bob", dateCriteria())
	require.NoError(t, e.EndSession(context.Background(), id, "bob"))

	err := e.SendChannelMessage(context.Background(), models.ChannelMessage{SessionID: id, FromUserID: "alice", Kind: models.ChannelChat, Text: "?"})

	assert.ErrorIs(t, err, matchmaking.ErrSessionNotFound)
}
