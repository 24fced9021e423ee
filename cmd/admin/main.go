package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"peerzee/backend/internal/config"
	"peerzee/backend/internal/storage"
)

const usage = `Usage: admin <command> [args]
  ban <user_id> [duration_in_hours]
  unban <user_id>
  sessions [limit]`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(os.Getenv("DATABASE_DSN")), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, Password: os.Getenv("REDIS_PASSWORD")})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	storageSvc := storage.NewStorageService(db, rdb)

	switch os.Args[1] {
	case "ban":
		if len(os.Args) < 3 {
			fmt.Println("Usage: admin ban <user_id> [duration_in_hours]")
			os.Exit(1)
		}
		userID := os.Args[2]
		duration := config.BanLevel3Duration
		if len(os.Args) > 3 {
			hours, err := strconv.Atoi(os.Args[3])
			if err != nil || hours <= 0 {
				fmt.Println("Invalid duration. Please provide a positive integer.")
				os.Exit(1)
			}
			duration = time.Duration(hours) * time.Hour
		}
		if err := banUser(storageSvc, userID, duration); err != nil {
			log.Fatalf("Error banning user: %v", err)
		}
		fmt.Printf("User %s has been banned for %s.\n", userID, duration)
	case "unban":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin unban <user_id>")
			os.Exit(1)
		}
		userID := os.Args[2]
		if err := storageSvc.UnbanUser(userID); err != nil {
			log.Fatalf("Error unbanning user: %v", err)
		}
		fmt.Printf("User %s has been unbanned.\n", userID)
	case "sessions":
		limit := 20
		if len(os.Args) > 2 {
			limit, err = strconv.Atoi(os.Args[2])
			if err != nil || limit <= 0 {
				fmt.Println("Invalid limit. Please provide a positive integer.")
				os.Exit(1)
			}
		}
		if err := listSessions(storageSvc, limit); err != nil {
			log.Fatalf("Error listing sessions: %v", err)
		}
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

// banUser bans through Redis, so servers holding a connection of the
// user drop it at once.
func banUser(s storage.Storage, userID string, duration time.Duration) error {
	return s.BanUser(userID, duration)
}

func listSessions(s storage.Storage, limit int) error {
	sessions, err := s.RecentSessions(limit)
	if err != nil {
		return err
	}
	for _, vs := range sessions {
		ended := "-"
		if vs.EndedAt != nil {
			ended = vs.EndedAt.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-8s %-6s %s <-> %s  started=%s ended=%s duration=%ds reason=%s\n",
			vs.ID, vs.Status, vs.IntentMode, vs.User1ID, vs.User2ID,
			vs.StartedAt.Format(time.RFC3339), ended, vs.DurationSeconds, vs.EndReason)
	}
	return nil
}
