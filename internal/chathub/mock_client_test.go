package chathub_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"peerzee/backend/internal/matchmaking"
	"peerzee/backend/internal/models"
)

type MockClient struct {
	userID      string
	RecvChannel chan models.Message

	mu     sync.Mutex
	closed bool
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		userID:      userID,
		RecvChannel: make(chan models.Message, 64),
	}
}

func (c *MockClient) GetUserID() string {
	return c.userID
}

func (c *MockClient) Deliver(msg models.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.RecvChannel <- msg:
		return true
	default:
		return false
	}
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// waitFor reads frames until one of type eventType arrives.
func waitFor(t *testing.T, c *MockClient, eventType string) models.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.RecvChannel:
			if msg.Type == eventType {
				return msg
			}
		case <-timeout:
			t.Fatalf("%s did not receive %s", c.userID, eventType)
			return models.Message{}
		}
	}
}

// MockEngine is a mock implementation of the chathub.Engine interface.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) JoinQueue(ctx context.Context, userID string, criteria models.Criteria) (matchmaking.JoinResult, error) {
	args := m.Called(ctx, userID, criteria)
	return args.Get(0).(matchmaking.JoinResult), args.Error(1)
}

func (m *MockEngine) LeaveQueue(userID string) error {
	return m.Called(userID).Error(0)
}

func (m *MockEngine) EndSession(ctx context.Context, sessionID, userID string) error {
	return m.Called(ctx, sessionID, userID).Error(0)
}

func (m *MockEngine) NextPartner(ctx context.Context, userID string, criteria *models.Criteria) (matchmaking.JoinResult, error) {
	args := m.Called(ctx, userID, criteria)
	return args.Get(0).(matchmaking.JoinResult), args.Error(1)
}

func (m *MockEngine) Report(ctx context.Context, sessionID, reporterID, reason string) error {
	return m.Called(ctx, sessionID, reporterID, reason).Error(0)
}

func (m *MockEngine) RelaySignal(ctx context.Context, env models.SignalingEnvelope) error {
	return m.Called(ctx, env).Error(0)
}

func (m *MockEngine) SendChannelMessage(ctx context.Context, cm models.ChannelMessage) error {
	return m.Called(ctx, cm).Error(0)
}

func (m *MockEngine) SessionOf(userID string) string {
	return m.Called(userID).String(0)
}

func (m *MockEngine) HandleDisconnect(ctx context.Context, userID string) {
	m.Called(ctx, userID)
}

// MockBans is a mock implementation of the chathub.BanChecker interface.
type MockBans struct {
	mock.Mock
}

func (m *MockBans) IsUserBanned(userID string) (bool, error) {
	args := m.Called(userID)
	return args.Bool(0), args.Error(1)
}
