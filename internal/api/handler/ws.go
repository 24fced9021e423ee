package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"peerzee/backend/internal/chathub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin перевіряє CORS-шар перед gin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bearerToken бере токен із заголовка Authorization, а для браузерів,
// які не можуть його встановити, із параметра ?token=.
func bearerToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return c.Query("token")
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket
func (h *Handler) ServeWebSocket(c *gin.Context) {
	tokenString := bearerToken(c)
	if tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}

	anonID, err := h.validateAndGetAnonID(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	if h.Bans != nil {
		banned, err := h.Bans.IsUserBanned(anonID)
		if err != nil {
			h.Logger.Error("ban check failed", "user_id", anonID, "error", err)
		}
		if banned {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "User is banned"})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade вже відповів клієнту.
		h.Logger.Warn("websocket upgrade failed", "user_id", anonID, "error", err)
		return
	}

	client := chathub.NewWebSocketClient(h.ctx, h.Hub, anonID, conn)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	client.Run()
}
