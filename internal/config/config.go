// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	// Twitter API access.
	TwitterBaseURL     string
	TwitterBearerToken string
	RequestTimeout     time.Duration

	// Monitoring pipeline.
	PollInterval     time.Duration
	MonitoringWindow time.Duration
	QuotePageSize    int
	MaxQuotePages    int

	// Persistence and surfaces.
	DatabasePath string
	ListenAddr   string
	LogLevel     string

	// Optional Telegram warning channel.
	TelegramBotToken string
	TelegramChatID   int64
}

// Default values for optional settings.
const (
	DefaultBaseURL          = "https://api.twitterapi.io"
	DefaultRequestTimeout   = 30 * time.Second
	DefaultPollInterval     = 10 * time.Minute
	DefaultMonitoringWindow = 72 * time.Hour
	DefaultQuotePageSize    = 20
	DefaultMaxQuotePages    = 25
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TWITTER_BEARER_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TWITTER_BEARER_TOKEN is required")
	}

	cfg := &Config{
		TwitterBaseURL:     envOrDefault("TWITTER_BASE_URL", DefaultBaseURL),
		TwitterBearerToken: token,
		RequestTimeout:     DefaultRequestTimeout,
		PollInterval:       DefaultPollInterval,
		MonitoringWindow:   DefaultMonitoringWindow,
		QuotePageSize:      DefaultQuotePageSize,
		MaxQuotePages:      DefaultMaxQuotePages,
		DatabasePath:       envOrDefault("DATABASE_PATH", "./data/monitor.db"),
		ListenAddr:         envOrDefault("LISTEN_ADDR", ":8080"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	var err error
	if cfg.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.MonitoringWindow, err = envDuration("MONITORING_WINDOW", cfg.MonitoringWindow); err != nil {
		return nil, err
	}
	if cfg.QuotePageSize, err = envInt("QUOTE_PAGE_SIZE", cfg.QuotePageSize); err != nil {
		return nil, err
	}
	if cfg.MaxQuotePages, err = envInt("MAX_QUOTE_PAGES", cfg.MaxQuotePages); err != nil {
		return nil, err
	}

	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if cfg.MonitoringWindow <= 0 {
		return nil, fmt.Errorf("MONITORING_WINDOW must be positive")
	}
	if cfg.QuotePageSize <= 0 || cfg.MaxQuotePages <= 0 {
		return nil, fmt.Errorf("QUOTE_PAGE_SIZE and MAX_QUOTE_PAGES must be positive")
	}

	return cfg, nil
}

// NotifyEnabled reports whether the Telegram warning channel is configured.
func (c *Config) NotifyEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}
