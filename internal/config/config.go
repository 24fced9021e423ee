// Package config holds the moderation constants and loads the server
// configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

// Config is the environment driven configuration of the server.
type Config struct {
	HTTPAddr      string
	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string

	FormingGracePeriod   time.Duration
	SubtitleInterimRate  float64
	SubtitleInterimBurst int

	ICEServers []webrtc.ICEServer
	TopicsFile string

	BlindDateEnabled bool
	SilenceThreshold time.Duration
	RescueInterval   time.Duration
	TopicRotation    time.Duration
	GenderCacheTTL   time.Duration
}

const defaultICEServer = "stun:stun.l.google.com:19302"

// Load parses the configuration from the process environment, applying
// defaults to optional values. Missing required values and malformed
// values are reported together.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:             ":8080",
		RedisAddr:            "localhost:6379",
		FormingGracePeriod:   5 * time.Second,
		SubtitleInterimRate:  10,
		SubtitleInterimBurst: 20,
		BlindDateEnabled:     true,
		SilenceThreshold:     15 * time.Second,
		RescueInterval:       30 * time.Second,
		TopicRotation:        90 * time.Second,
		GenderCacheTTL:       10 * time.Minute,
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if addr := env("HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if dsn := env("DATABASE_DSN"); dsn == "" {
		missing = append(missing, "DATABASE_DSN")
	} else {
		cfg.DatabaseDSN = dsn
	}
	if addr := env("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if secret := env("JWT_SECRET"); secret == "" {
		missing = append(missing, "JWT_SECRET")
	} else {
		cfg.JWTSecret = secret
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"FORMING_GRACE_PERIOD", &cfg.FormingGracePeriod},
		{"SILENCE_THRESHOLD", &cfg.SilenceThreshold},
		{"RESCUE_INTERVAL", &cfg.RescueInterval},
		{"TOPIC_ROTATION_INTERVAL", &cfg.TopicRotation},
		{"GENDER_CACHE_TTL", &cfg.GenderCacheTTL},
	}
	for _, d := range durations {
		if value := env(d.key); value != "" {
			parsed, err := time.ParseDuration(value)
			if err != nil || parsed <= 0 {
				invalid = append(invalid, d.key)
			} else {
				*d.dst = parsed
			}
		}
	}

	if value := env("SUBTITLE_INTERIM_RATE"); value != "" {
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil || rate < 0 {
			invalid = append(invalid, "SUBTITLE_INTERIM_RATE")
		} else {
			cfg.SubtitleInterimRate = rate
		}
	}
	if value := env("SUBTITLE_INTERIM_BURST"); value != "" {
		burst, err := strconv.Atoi(value)
		if err != nil || burst <= 0 {
			invalid = append(invalid, "SUBTITLE_INTERIM_BURST")
		} else {
			cfg.SubtitleInterimBurst = burst
		}
	}
	if value := env("BLIND_DATE_ENABLED"); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			invalid = append(invalid, "BLIND_DATE_ENABLED")
		} else {
			cfg.BlindDateEnabled = enabled
		}
	}

	cfg.TopicsFile = env("TOPICS_FILE")

	servers, err := ParseICEServers(env("ICE_SERVERS"), env("TURN_USERNAME"), os.Getenv("TURN_CREDENTIAL"))
	if err != nil {
		invalid = append(invalid, "ICE_SERVERS")
	} else {
		cfg.ICEServers = servers
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

// ParseICEServers turns a comma separated URL list into ICE servers. TURN
// URLs get the given credentials; STUN URLs never carry any. An empty list
// yields the public default STUN server.
func ParseICEServers(list, username, credential string) ([]webrtc.ICEServer, error) {
	if strings.TrimSpace(list) == "" {
		list = defaultICEServer
	}

	var servers []webrtc.ICEServer
	for _, raw := range strings.Split(list, ",") {
		url := strings.TrimSpace(raw)
		if url == "" {
			continue
		}
		server := webrtc.ICEServer{URLs: []string{url}}
		switch {
		case strings.HasPrefix(url, "stun:") || strings.HasPrefix(url, "stuns:"):
		case strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:"):
			if username == "" || credential == "" {
				return nil, fmt.Errorf("turn server %s needs TURN_USERNAME and TURN_CREDENTIAL", url)
			}
			server.Username = username
			server.Credential = credential
		default:
			return nil, fmt.Errorf("unsupported ICE server url %q", url)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
