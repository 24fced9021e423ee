package matchmaking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"peerzee/backend/internal/matchmaking"
	"peerzee/backend/internal/models"
)

// fakeGateway records every message per user. Users marked offline refuse
// delivery and never confirm.
type fakeGateway struct {
	mu      sync.Mutex
	inbox   map[string][]models.Message
	offline map[string]bool
	// onConfirm, when set, runs before each reachability check.
	onConfirm func(userID string)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		inbox:   make(map[string][]models.Message),
		offline: make(map[string]bool),
	}
}

func (g *fakeGateway) SendTo(userID string, msg models.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline[userID] {
		return matchmaking.ErrNotConnected
	}
	g.inbox[userID] = append(g.inbox[userID], msg)
	return nil
}

func (g *fakeGateway) ConfirmReachable(ctx context.Context, userID string, msg models.Message) bool {
	if g.onConfirm != nil {
		g.onConfirm(userID)
	}
	g.mu.Lock()
	offline := g.offline[userID]
	g.mu.Unlock()
	if offline {
		<-ctx.Done()
		return false
	}
	return g.SendTo(userID, msg) == nil
}

func (g *fakeGateway) setOffline(userID string, offline bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offline[userID] = offline
}

// received returns the messages of the given type delivered to userID.
func (g *fakeGateway) received(userID, eventType string) []models.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.Message
	for _, m := range g.inbox[userID] {
		if m.Type == eventType {
			out = append(out, m)
		}
	}
	return out
}

type profileMap map[string]models.Gender

func (p profileMap) GetGender(_ context.Context, userID string) (models.Gender, error) {
	if g, ok := p[userID]; ok {
		return g, nil
	}
	return models.GenderUnknown, nil
}

// MockRanker is a testify mock of the semantic ranker.
type MockRanker struct {
	mock.Mock
}

func (m *MockRanker) Rank(ctx context.Context, ticket models.QueueTicket, candidates []models.QueueTicket) (string, error) {
	args := m.Called(ctx, ticket, candidates)
	return args.String(0), args.Error(1)
}

// MockModeration is a testify mock of the moderation sink.
type MockModeration struct {
	mock.Mock
}

func (m *MockModeration) Report(ctx context.Context, report models.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// MockContent is a testify mock of the content provider.
type MockContent struct {
	mock.Mock
}

func (m *MockContent) NextTopic(ctx context.Context, mode models.IntentMode, previousIndex int) (models.Topic, error) {
	args := m.Called(ctx, mode, previousIndex)
	return args.Get(0).(models.Topic), args.Error(1)
}

// MockRecorder is a testify mock of the session recorder.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) SessionStarted(ctx context.Context, s models.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockRecorder) SessionEnded(ctx context.Context, s models.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func newTestEngine(t *testing.T, opts matchmaking.Options) (*matchmaking.Engine, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	opts.Gateway = gw
	if opts.FormingGracePeriod == 0 {
		opts.FormingGracePeriod = 50 * time.Millisecond
	}
	return matchmaking.NewEngine(opts), gw
}

func dateCriteria() models.Criteria {
	return models.Criteria{IntentMode: models.IntentDate}
}

// pair queues a then b with the same criteria and returns the session id.
func pair(t *testing.T, e *matchmaking.Engine, a, b string, c models.Criteria) string {
	t.Helper()
	ctx := context.Background()

	res, err := e.JoinQueue(ctx, a, c)
	require.NoError(t, err)
	require.True(t, res.Queued)

	res, err = e.JoinQueue(ctx, b, c)
	require.NoError(t, err)
	require.NotEmpty(t, res.SessionID)
	return res.SessionID
}
