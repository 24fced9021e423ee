package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"peerzee/backend/internal/chathub"
	"peerzee/backend/internal/matchmaking"
	"peerzee/backend/internal/models"
)

// StatsSource reports the engine's queue and session counts.
type StatsSource interface {
	Stats() matchmaking.Stats
}

// ProfileStore зберігає профіль, з якого рушій бере стать.
type ProfileStore interface {
	SaveProfile(ctx context.Context, user *models.User) error
}

// Handler містить посилання на ChatHub
type Handler struct {
	Hub    *chathub.ManagerService
	Stats  StatsSource
	Bans   chathub.BanChecker
	Secret []byte
	Logger *slog.Logger
	// Profiles enables PUT /profile when set.
	Profiles ProfileStore

	// ctx is handed to every WebSocket client for dispatching its frames.
	ctx context.Context
}

func NewHandler(ctx context.Context, hub *chathub.ManagerService, stats StatsSource, bans chathub.BanChecker, secret string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Hub:    hub,
		Stats:  stats,
		Bans:   bans,
		Secret: []byte(secret),
		Logger: logger,
		ctx:    ctx,
	}
}

// Router registers the routes on a gin engine and wraps it with CORS.
func (h *Handler) Router() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/anonid", h.GetAnonID) // Отримання JWT для AnonID
	r.GET("/ws", h.ServeWebSocket) // WebSocket Upgrade
	r.GET("/health", h.Health)
	r.GET("/stats", h.GetStats)
	if h.Profiles != nil {
		r.PUT("/profile", h.PutProfile)
	}

	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// GetStats повертає розмір черги, кількість сесій та з'єднань.
func (h *Handler) GetStats(c *gin.Context) {
	stats := h.Stats.Stats()
	c.JSON(http.StatusOK, gin.H{
		"queue_size":      stats.QueueSize,
		"active_sessions": stats.ActiveSessions,
		"connected":       h.Hub.Count(),
	})
}
