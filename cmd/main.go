package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"peerzee/backend/internal/api/handler"
	"peerzee/backend/internal/chathub"
	"peerzee/backend/internal/complaint"
	"peerzee/backend/internal/config"
	"peerzee/backend/internal/matchmaking"
	"peerzee/backend/internal/storage"
	"peerzee/backend/internal/topics"
)

func setupDependencies(cfg config.Config) (*gorm.DB, *redis.Client) {
	// 1. PostgreSQL
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	// 2. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	// Перевірка з'єднання Redis
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	log.Println("Database and Redis connections established.")
	return db, rdb
}

func main() {
	log.Println("Starting Peerzee Backend...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// 1. Ініціалізація залежностей
	db, rdb := setupDependencies(cfg)
	s := storage.NewStorageService(db, rdb)
	s.GenderTTL = cfg.GenderCacheTTL
	s.Logger = logger
	if err := s.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	catalogue, err := topics.Load(cfg.TopicsFile)
	if err != nil {
		log.Fatalf("Failed to load topics: %v", err)
	}

	// 2. Ініціалізація Hub та рушія сесій
	hub := chathub.NewManagerService(s, logger)
	engine := matchmaking.NewEngine(matchmaking.Options{
		Gateway:               hub,
		Profiles:              s,
		Content:               catalogue,
		Moderation:            complaint.NewService(s, logger),
		Recorder:              s,
		Logger:                logger,
		FormingGracePeriod:    cfg.FormingGracePeriod,
		SubtitleInterimRate:   cfg.SubtitleInterimRate,
		SubtitleInterimBurst:  cfg.SubtitleInterimBurst,
		BlindDateEnabled:      cfg.BlindDateEnabled,
		SilenceThreshold:      cfg.SilenceThreshold,
		TopicRotationInterval: cfg.TopicRotation,
		ICEServers:            cfg.ICEServers,
	})
	hub.SetEngine(engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Запуск основних Goroutines
	go hub.Run(ctx) // Головний диспетчер
	// Бани, виставлені адмінкою або іншими серверами
	go hub.ListenForBans(ctx, rdb, storage.BanChannel)
	if cfg.BlindDateEnabled {
		go engine.RunSilenceRescue(ctx, cfg.RescueInterval)
	}

	// 4. Налаштування HTTP-сервера
	h := handler.NewHandler(ctx, hub, engine, s, cfg.JWTSecret, logger)
	h.Profiles = s
	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        h.Router(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	<-hub.Done()
	if err := rdb.Close(); err != nil {
		log.Printf("Redis close: %v", err)
	}
}
