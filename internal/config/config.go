// Package config loads signal engine settings from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Feed modes.
const (
	FeedNone  = "none"
	FeedHTTP  = "http"
	FeedRedis = "redis"
	FeedWS    = "ws"
)

// Config holds all application configuration.
type Config struct {
	Instrument string `yaml:"instrument" validate:"required"`
	LogLevel   string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// HTTP API (and /ws) listen address.
	HTTPAddr string `yaml:"http_addr" validate:"required"`
	// Prometheus /metrics and /healthz listen address. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// Engine
	WindowCapacity      int `yaml:"window_capacity" validate:"gte=1"`
	SignalGranularityMs int `yaml:"signal_granularity_ms" validate:"gte=0"`
	SignalHistorySize   int `yaml:"signal_history_size" validate:"gte=1"`
	// Buffer of the best-effort signal channel (gateway, redis).
	SignalBuffer int `yaml:"signal_buffer" validate:"gte=1"`
	// Buffer of the lossless journal/notifier handoff.
	AlertBuffer int `yaml:"alert_buffer" validate:"gte=1"`
	// Minimum spacing of state snapshots pushed to websocket and Redis.
	StatePublishMs int `yaml:"state_publish_ms" validate:"gt=0"`

	// Price feed
	FeedMode         string `yaml:"feed_mode" validate:"oneof=none http redis ws"`
	FeedURL          string `yaml:"feed_url" validate:"required_if=FeedMode http,required_if=FeedMode ws"`
	FeedJSONField    string `yaml:"feed_json_field"`
	FeedPollMs       int    `yaml:"feed_poll_ms" validate:"gt=0"`
	FeedMaxBackoffMs int    `yaml:"feed_max_backoff_ms" validate:"gtefield=FeedPollMs"`

	// Redis signal publisher / price subscriber
	RedisEnabled  bool   `yaml:"redis_enabled"`
	RedisAddr     string `yaml:"redis_addr" validate:"required_if=RedisEnabled true"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"gte=0"`

	// Signal journal. Empty disables it.
	SQLitePath string `yaml:"sqlite_path"`

	// Notifications
	WebhookURL       string `yaml:"webhook_url" validate:"omitempty,url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id" validate:"required_with=TelegramBotToken"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Instrument:          "XAUUSD",
		LogLevel:            "info",
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		WindowCapacity:      50,
		SignalGranularityMs: 1000,
		SignalHistorySize:   5,
		SignalBuffer:        64,
		AlertBuffer:         256,
		StatePublishMs:      250,
		FeedMode:            FeedNone,
		FeedJSONField:       "price",
		FeedPollMs:          1000,
		FeedMaxBackoffMs:    30000,
		RedisAddr:           "localhost:6379",
		SQLitePath:          "data/signals.db",
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and environment variables, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.mergeEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	c.Instrument = getEnv("INSTRUMENT", c.Instrument)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)

	c.WindowCapacity = getEnvInt("WINDOW_CAPACITY", c.WindowCapacity)
	c.SignalGranularityMs = getEnvInt("SIGNAL_GRANULARITY_MS", c.SignalGranularityMs)
	c.SignalHistorySize = getEnvInt("SIGNAL_HISTORY_SIZE", c.SignalHistorySize)
	c.SignalBuffer = getEnvInt("SIGNAL_BUFFER", c.SignalBuffer)
	c.AlertBuffer = getEnvInt("ALERT_BUFFER", c.AlertBuffer)
	c.StatePublishMs = getEnvInt("STATE_PUBLISH_MS", c.StatePublishMs)

	c.FeedMode = strings.ToLower(getEnv("FEED_MODE", c.FeedMode))
	c.FeedURL = getEnv("FEED_URL", c.FeedURL)
	c.FeedJSONField = getEnv("FEED_JSON_FIELD", c.FeedJSONField)
	c.FeedPollMs = getEnvInt("FEED_POLL_MS", c.FeedPollMs)
	c.FeedMaxBackoffMs = getEnvInt("FEED_MAX_BACKOFF_MS", c.FeedMaxBackoffMs)

	c.RedisEnabled = getEnvBool("REDIS_ENABLED", c.RedisEnabled)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)

	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)

	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.TelegramChatID)
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.FeedMode == FeedRedis && !c.RedisEnabled {
		return errors.New("config: FEED_MODE=redis requires REDIS_ENABLED=true")
	}
	return nil
}

// SignalGranularity is the signal timestamp truncation unit.
func (c *Config) SignalGranularity() time.Duration {
	return time.Duration(c.SignalGranularityMs) * time.Millisecond
}

// StatePublishInterval is the minimum spacing of pushed state snapshots.
func (c *Config) StatePublishInterval() time.Duration {
	return time.Duration(c.StatePublishMs) * time.Millisecond
}

// FeedPollInterval is the delay between successful feed polls.
func (c *Config) FeedPollInterval() time.Duration {
	return time.Duration(c.FeedPollMs) * time.Millisecond
}

// FeedMaxBackoff caps the feed retry delay.
func (c *Config) FeedMaxBackoff() time.Duration {
	return time.Duration(c.FeedMaxBackoffMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return b
}
