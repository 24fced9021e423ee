package chathub

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// ListenForBans слухає Redis Pub/Sub канал банів і розриває з'єднання
// забанених користувачів на цьому сервері. It returns when ctx is done.
func (m *ManagerService) ListenForBans(ctx context.Context, rdb *redis.Client, channel string) {
	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			m.handleBan(msg.Payload)
		}
	}
}

func (m *ManagerService) handleBan(userID string) {
	if userID == "" {
		return
	}
	if m.Kick(userID) {
		m.Logger.Warn("banned user disconnected", "user_id", userID)
	}
}
