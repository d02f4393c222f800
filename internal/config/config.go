package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the client.
type Config struct {
	// Backend
	APIBaseURL string
	WSBaseURL  string
	AuthToken  string

	// Session
	MarketID     int64
	PollInterval time.Duration

	// Mode
	Debug bool

	// Telegram notifications (optional)
	TelegramToken  string
	TelegramChatID int64

	// Local trade journal
	JournalPath string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8000"),
		WSBaseURL:  getEnv("WS_BASE_URL", "ws://localhost:8000"),
		AuthToken:  os.Getenv("AUTH_TOKEN"),

		PollInterval: getEnvDuration("POLL_INTERVAL", 5*time.Second),
		Debug:        getEnvBool("DEBUG", false),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		JournalPath: getEnv("JOURNAL_PATH", "data/tradeclient.db"),
	}

	if raw := os.Getenv("MARKET_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MARKET_ID: %w", err)
		}
		cfg.MarketID = id
	}

	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("AUTH_TOKEN is required")
	}
	if cfg.MarketID <= 0 {
		return nil, fmt.Errorf("MARKET_ID is required")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
