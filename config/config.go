package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeBot    Mode = "bot"
	ModeServer Mode = "server"
)

const defaultCORSOrigins = "http://localhost:5173,http://127.0.0.1:5173,http://localhost:3000,http://127.0.0.1:3000"

// Config holds all the configuration for the application
type Config struct {
	Mode  Mode
	Debug bool

	// bot mode
	BotToken         string
	ChatID           int64
	GeneratorBaseURL string

	// server mode
	DeepseekAPIKey string
	DeepseekAPIURL string
	DeepseekModel  string
	DatabasePath   string
	CacheTTL       time.Duration
	PurgeSchedule  string
	HTTPAddr       string
	CORSOrigins    []string
}

// Load loads the configuration from environment variables, reading .env first if present
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Mode:             Mode(envOr("MODE", string(ModeBot))),
		Debug:            os.Getenv("DEBUG") == "true",
		BotToken:         os.Getenv("BOT_TOKEN"),
		GeneratorBaseURL: strings.TrimSuffix(envOr("GENERATOR_BASE_URL", "http://localhost:8000/api"), "/"),
		DeepseekAPIKey:   os.Getenv("DEEPSEEK_API_KEY"),
		DeepseekAPIURL:   os.Getenv("DEEPSEEK_API_URL"),
		DeepseekModel:    os.Getenv("DEEPSEEK_MODEL"),
		DatabasePath:     envOr("DB_PATH", "./data/quizcache.db"),
		PurgeSchedule:    envOr("CACHE_PURGE_SCHEDULE", "@hourly"),
		HTTPAddr:         envOr("HTTP_ADDR", ":8000"),
		CORSOrigins:      csvOr("CORS_ORIGINS", defaultCORSOrigins),
	}

	if v := os.Getenv("CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("CHAT_ID must be an integer: %w", err)
		}
		cfg.ChatID = id
	}

	ttl, err := time.ParseDuration(envOr("CACHE_TTL", "168h"))
	if err != nil {
		return nil, fmt.Errorf("CACHE_TTL: %w", err)
	}
	cfg.CacheTTL = ttl

	switch cfg.Mode {
	case ModeBot:
		if cfg.BotToken == "" {
			return nil, errors.New("BOT_TOKEN environment variable is required")
		}
	case ModeServer:
		if cfg.DeepseekAPIKey == "" {
			return nil, errors.New("DEEPSEEK_API_KEY environment variable is required")
		}
	default:
		return nil, fmt.Errorf("unknown MODE %q (want %q or %q)", cfg.Mode, ModeBot, ModeServer)
	}

	return cfg, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func csvOr(k, def string) []string {
	parts := strings.Split(envOr(k, def), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
