// Package chathub is the connection gateway: it owns every live client
// connection, routes inbound frames into the session engine and carries
// the engine's outbound messages back to the right connection.
package chathub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"peerzee/backend/internal/matchmaking"
	"peerzee/backend/internal/models"
)

// confirmRetry is how often ConfirmReachable retries a failed delivery.
const confirmRetry = 100 * time.Millisecond

// Engine is the part of the session engine the hub drives.
type Engine interface {
	JoinQueue(ctx context.Context, userID string, criteria models.Criteria) (matchmaking.JoinResult, error)
	LeaveQueue(userID string) error
	EndSession(ctx context.Context, sessionID, userID string) error
	NextPartner(ctx context.Context, userID string, criteria *models.Criteria) (matchmaking.JoinResult, error)
	Report(ctx context.Context, sessionID, reporterID, reason string) error
	RelaySignal(ctx context.Context, env models.SignalingEnvelope) error
	SendChannelMessage(ctx context.Context, cm models.ChannelMessage) error
	SessionOf(userID string) string
	HandleDisconnect(ctx context.Context, userID string)
}

// BanChecker tells whether a user is currently banned.
type BanChecker interface {
	IsUserBanned(userID string) (bool, error)
}

// ManagerService is the hub. Register and unregister go through its
// channels and are applied by Run; delivery reads the client map directly.
type ManagerService struct {
	mu      sync.RWMutex
	Clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client

	Engine Engine
	Bans   BanChecker
	Logger *slog.Logger

	done chan struct{}
}

// NewManagerService creates a hub. The engine is attached later with
// SetEngine, since the engine itself needs the hub as its gateway.
func NewManagerService(bans BanChecker, logger *slog.Logger) *ManagerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManagerService{
		Clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Bans:         bans,
		Logger:       logger,
		done:         make(chan struct{}),
	}
}

func (m *ManagerService) SetEngine(e Engine) {
	m.Engine = e
}

// Done is closed once Run has returned.
func (m *ManagerService) Done() <-chan struct{} {
	return m.done
}

// Run applies registrations until ctx is cancelled, then closes every
// remaining client.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.done)
	m.Logger.Info("hub started")

	for {
		select {
		case client := <-m.RegisterCh:
			m.register(ctx, client)

		case client := <-m.UnregisterCh:
			m.unregister(ctx, client)

		case <-ctx.Done():
			m.mu.Lock()
			for userID, client := range m.Clients {
				client.Close()
				delete(m.Clients, userID)
			}
			m.mu.Unlock()
			m.Logger.Info("hub stopped")
			return
		}
	}
}

func (m *ManagerService) register(ctx context.Context, client Client) {
	userID := client.GetUserID()

	m.mu.Lock()
	previous, replaced := m.Clients[userID]
	m.Clients[userID] = client
	m.mu.Unlock()

	// Нове з'єднання витісняє старе; стара сесія закривається як при розриві.
	if replaced && previous != client {
		previous.Close()
		if m.Engine != nil {
			m.Engine.HandleDisconnect(ctx, userID)
		}
		m.Logger.Info("client replaced", "user_id", userID)
		return
	}
	m.Logger.Info("client registered", "user_id", userID)
}

func (m *ManagerService) unregister(ctx context.Context, client Client) {
	userID := client.GetUserID()

	m.mu.Lock()
	current, ok := m.Clients[userID]
	if ok && current == client {
		delete(m.Clients, userID)
	}
	m.mu.Unlock()

	client.Close()
	if !ok || current != client {
		return
	}
	if m.Engine != nil {
		m.Engine.HandleDisconnect(ctx, userID)
	}
	m.Logger.Info("client unregistered", "user_id", userID)
}

// Register hands client to Run. It reports false once the hub has stopped.
func (m *ManagerService) Register(client Client) bool {
	select {
	case m.RegisterCh <- client:
		return true
	case <-m.done:
		return false
	}
}

// Unregister hands client to Run for removal. It does not block once the
// hub has stopped.
func (m *ManagerService) Unregister(client Client) {
	select {
	case m.UnregisterCh <- client:
	case <-m.done:
	}
}

// IsConnected reports whether userID has a registered client.
func (m *ManagerService) IsConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.Clients[userID]
	return ok
}

// Count returns the number of registered clients.
func (m *ManagerService) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Clients)
}

// SendTo implements matchmaking.Gateway.
func (m *ManagerService) SendTo(userID string, msg models.Message) error {
	m.mu.RLock()
	client, ok := m.Clients[userID]
	m.mu.RUnlock()

	if !ok || !client.Deliver(msg) {
		return matchmaking.ErrNotConnected
	}
	return nil
}

// ConfirmReachable implements matchmaking.Gateway. A user that is not
// registered yet, or whose buffer is full, is retried until ctx is done.
func (m *ManagerService) ConfirmReachable(ctx context.Context, userID string, msg models.Message) bool {
	ticker := time.NewTicker(confirmRetry)
	defer ticker.Stop()

	for {
		if m.SendTo(userID, msg) == nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// Kick closes the connection of userID, if any. Run then unregisters it
// and the engine tears down its queue ticket and session.
func (m *ManagerService) Kick(userID string) bool {
	m.mu.RLock()
	client, ok := m.Clients[userID]
	m.mu.RUnlock()
	if ok {
		client.Close()
	}
	return ok
}
