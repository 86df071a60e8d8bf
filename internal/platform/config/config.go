package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// RedisURL links processes into one channel layer. Empty keeps the
	// registry in-process.
	RedisURL          string        `env:"REDIS_URL"`
	ChannelPrefix     string        `env:"CHANNEL_PREFIX" default:"chatrelay"`
	PresenceHeartbeat time.Duration `env:"PRESENCE_HEARTBEAT" default:"15s"`

	ReplyTimeout  time.Duration `env:"REPLY_TIMEOUT" default:"10s"`
	FolderTimeout time.Duration `env:"FOLDER_TIMEOUT" default:"15s"`
	FolderPath    string        `env:"FOLDER_PATH" default:"app/mcp"`
	MailboxSize   int           `env:"MAILBOX_SIZE" default:"64"`

	MaxConnections int     `env:"MAX_CONNECTIONS" default:"1000"`
	InboundRate    float64 `env:"INBOUND_RATE" default:"20"`
	InboundBurst   int     `env:"INBOUND_BURST" default:"40"`
	AckDelivery    bool    `env:"ACK_DELIVERY" default:"false"`

	// APIRate and APIBurst throttle the /api routes per client IP.
	APIRate  float64 `env:"API_RATE" default:"10"`
	APIBurst int     `env:"API_BURST" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV selects production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	durations := map[string]time.Duration{
		"REPLY_TIMEOUT":      cfg.ReplyTimeout,
		"FOLDER_TIMEOUT":     cfg.FolderTimeout,
		"PRESENCE_HEARTBEAT": cfg.PresenceHeartbeat,
	}
	for name, value := range durations {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	sizes := map[string]int{
		"MAILBOX_SIZE":    cfg.MailboxSize,
		"MAX_CONNECTIONS": cfg.MaxConnections,
		"INBOUND_BURST":   cfg.InboundBurst,
		"API_BURST":       cfg.APIBurst,
	}
	for name, value := range sizes {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.InboundRate <= 0 {
		return errors.New("INBOUND_RATE must be positive")
	}
	if cfg.APIRate <= 0 {
		return errors.New("API_RATE must be positive")
	}
	if cfg.ChannelPrefix == "" {
		return errors.New("CHANNEL_PREFIX must not be empty")
	}

	if cfg.RedisURL != "" {
		if _, err := url.Parse(cfg.RedisURL); err != nil {
			return fmt.Errorf("REDIS_URL is not a valid URL: %w", err)
		}
	}

	if cfg.IsProduction() && cfg.AppURL == "" {
		return errors.New("APP_URL is required in production for WebSocket origin checks")
	}

	return nil
}
