package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerzee/backend/internal/api/handler"
	"peerzee/backend/internal/chathub"
	"peerzee/backend/internal/matchmaking"
	"peerzee/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type banList map[string]bool

func (b banList) IsUserBanned(userID string) (bool, error) {
	return b[userID], nil
}

// profileStore records saved profiles.
type profileStore struct {
	mu    sync.Mutex
	saved map[string]models.User
}

func (p *profileStore) SaveProfile(_ context.Context, user *models.User) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved[user.ID] = *user
	return nil
}

type fixture struct {
	server   *httptest.Server
	hub      *chathub.ManagerService
	engine   *matchmaking.Engine
	profiles *profileStore
}

func newFixture(t *testing.T, bans banList) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	hub := chathub.NewManagerService(bans, nil)
	engine := matchmaking.NewEngine(matchmaking.Options{Gateway: hub, FormingGracePeriod: time.Second})
	hub.SetEngine(engine)
	go hub.Run(ctx)

	h := handler.NewHandler(ctx, hub, engine, bans, "test-secret", nil)
	profiles := &profileStore{saved: make(map[string]models.User)}
	h.Profiles = profiles
	server := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		server.Close()
		cancel()
		<-hub.Done()
	})
	return &fixture{server: server, hub: hub, engine: engine, profiles: profiles}
}

func (f *fixture) anonID(t *testing.T) (token, anonID string) {
	t.Helper()
	resp, err := http.Get(f.server.URL + "/anonid")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token  string `json:"token"`
		AnonID string `json:"anon_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	require.NotEmpty(t, body.AnonID)
	return body.Token, body.AnonID
}

func (f *fixture) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readUntil(t *testing.T, conn *websocket.Conn, eventType string) models.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg models.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == eventType {
			return msg
		}
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServeWebSocket_RejectsMissingOrInvalidToken(t *testing.T) {
	f := newFixture(t, nil)

	_, resp, err := f.dial(t, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = f.dial(t, "not-a-jwt")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWebSocket_RejectsBannedUser(t *testing.T) {
	bans := banList{}
	f := newFixture(t, bans)
	token, anonID := f.anonID(t)
	bans[anonID] = true

	_, resp, err := f.dial(t, token)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeWebSocket_MatchesTwoUsers(t *testing.T) {
	// Arrange
	f := newFixture(t, nil)
	tokenA, idA := f.anonID(t)
	tokenB, idB := f.anonID(t)

	connA, _, err := f.dial(t, tokenA)
	require.NoError(t, err)
	connB, _, err := f.dial(t, tokenB)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.hub.IsConnected(idA) && f.hub.IsConnected(idB)
	}, time.Second, 10*time.Millisecond)

	join := models.NewMessage(models.EventQueueJoin, "", models.Criteria{IntentMode: models.IntentStudy})

	// Act
	require.NoError(t, connA.WriteJSON(join))
	readUntil(t, connA, models.EventAck)
	require.NoError(t, connB.WriteJSON(join))

	// Assert
	var found struct {
		PartnerID string `json:"partner_id"`
	}
	require.NoError(t, readUntil(t, connA, models.EventMatchFound).Decode(&found))
	assert.Equal(t, idB, found.PartnerID)
	require.NoError(t, readUntil(t, connB, models.EventMatchFound).Decode(&found))
	assert.Equal(t, idA, found.PartnerID)

	resp, err := http.Get(f.server.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats["active_sessions"])
	assert.Equal(t, 0, stats["queue_size"])
	assert.Equal(t, 2, stats["connected"])
}

func TestServeWebSocket_CloseEndsSession(t *testing.T) {
	f := newFixture(t, nil)
	tokenA, idA := f.anonID(t)
	tokenB, idB := f.anonID(t)
	connA, _, err := f.dial(t, tokenA)
	require.NoError(t, err)
	connB, _, err := f.dial(t, tokenB)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.hub.IsConnected(idA) && f.hub.IsConnected(idB)
	}, time.Second, 10*time.Millisecond)

	join := models.NewMessage(models.EventQueueJoin, "", models.Criteria{IntentMode: models.IntentFriend})
	require.NoError(t, connA.WriteJSON(join))
	readUntil(t, connA, models.EventAck)
	require.NoError(t, connB.WriteJSON(join))
	readUntil(t, connB, models.EventMatchFound)

	require.NoError(t, connA.Close())

	var ended struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, readUntil(t, connB, models.EventCallEnded).Decode(&ended))
	assert.Equal(t, models.ReasonPartnerDisconnected, ended.Reason)
	assert.Empty(t, f.engine.SessionOf(idB))
}

func (f *fixture) putProfile(t *testing.T, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, f.server.URL+"/profile", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPutProfile(t *testing.T) {
	f := newFixture(t, nil)
	token, anonID := f.anonID(t)

	resp := f.putProfile(t, token, `{"display_name":"Ann","age":27,"gender":"female","interests":["hiking"]}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	f.profiles.mu.Lock()
	saved, ok := f.profiles.saved[anonID]
	f.profiles.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, models.GenderFemale, saved.DeclaredGender())
	assert.Equal(t, "Ann", saved.DisplayName)
	assert.Equal(t, []string{"hiking"}, []string(saved.Interests))
}

func TestPutProfile_Rejects(t *testing.T) {
	f := newFixture(t, nil)
	token, _ := f.anonID(t)

	tests := []struct {
		name  string
		token string
		body  string
		want  int
	}{
		{"no token", "", `{"gender":"female"}`, http.StatusUnauthorized},
		{"unknown gender", token, `{"gender":"robot"}`, http.StatusBadRequest},
		{"under age", token, `{"age":12}`, http.StatusBadRequest},
		{"not json", token, `gender=female`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.putProfile(t, tt.token, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
	assert.Empty(t, f.profiles.saved)
}
