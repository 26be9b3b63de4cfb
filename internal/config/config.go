// Package config loads and validates the daemon configuration from a JSON
// file or from DESKHIVE_-prefixed environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the top-level deskhive configuration.
type Config struct {
	DataDir   string          `json:"data_dir"`
	FreeScout FreeScoutConfig `json:"freescout"`
	Poller    PollerConfig    `json:"poller"`
	API       APIConfig       `json:"api"`
	Notify    NotifyConfig    `json:"notify"`
	Janitor   JanitorConfig   `json:"janitor"`
}

// FreeScoutConfig points at the helpdesk instance and the agent account.
type FreeScoutConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	UserID  int64  `json:"user_id"`
}

// PollerConfig holds ticket synchronization settings.
type PollerConfig struct {
	IntervalSeconds int  `json:"interval_seconds"`
	AutoProcess     bool `json:"auto_process"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// NotifyConfig holds agent notification settings. Nil sections disable the
// platform.
type NotifyConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Slack    *SlackConfig    `json:"slack,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// SlackConfig holds Slack bot settings.
type SlackConfig struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
}

// JanitorConfig holds queue eviction settings.
type JanitorConfig struct {
	Schedule       string `json:"schedule"`
	DoneTTLMinutes int    `json:"done_ttl_minutes"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DataDir: getenv("DESKHIVE_DATA_DIR", "/data"),
		FreeScout: FreeScoutConfig{
			BaseURL: os.Getenv("DESKHIVE_FREESCOUT_URL"),
			APIKey:  os.Getenv("DESKHIVE_FREESCOUT_API_KEY"),
			UserID:  getenvInt64("DESKHIVE_FREESCOUT_USER_ID", 0),
		},
		Poller: PollerConfig{
			IntervalSeconds: getenvInt("DESKHIVE_POLL_INTERVAL", 0),
			AutoProcess:     os.Getenv("DESKHIVE_AUTO_PROCESS") == "true",
		},
		API: APIConfig{
			Host: getenv("DESKHIVE_API_HOST", "127.0.0.1"),
			Port: getenvInt("DESKHIVE_API_PORT", 0),
			Key:  os.Getenv("DESKHIVE_API_KEY"),
		},
		Janitor: JanitorConfig{
			Schedule:       os.Getenv("DESKHIVE_JANITOR_SCHEDULE"),
			DoneTTLMinutes: getenvInt("DESKHIVE_DONE_TTL_MINUTES", 0),
		},
	}

	if token := os.Getenv("DESKHIVE_TELEGRAM_TOKEN"); token != "" {
		chatID, err := strconv.ParseInt(os.Getenv("DESKHIVE_TELEGRAM_CHAT_ID"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: DESKHIVE_TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Notify.Telegram = &TelegramConfig{Token: token, ChatID: chatID}
	}
	if token := os.Getenv("DESKHIVE_SLACK_TOKEN"); token != "" {
		cfg.Notify.Slack = &SlackConfig{
			Token:   token,
			Channel: os.Getenv("DESKHIVE_SLACK_CHANNEL"),
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Poller.IntervalSeconds == 0 {
		c.Poller.IntervalSeconds = 60
	}
	if c.API.Host == "" {
		c.API.Host = "127.0.0.1"
	}
	if c.API.Port == 0 {
		c.API.Port = 8420
	}
	if c.Janitor.Schedule == "" {
		c.Janitor.Schedule = "@every 15m"
	}
	if c.Janitor.DoneTTLMinutes == 0 {
		c.Janitor.DoneTTLMinutes = 240
	}
}

// Validate checks required fields, collecting every problem.
func (c *Config) Validate() error {
	var errs []string

	if c.DataDir == "" {
		errs = append(errs, "data_dir is required")
	}
	if c.FreeScout.BaseURL == "" {
		errs = append(errs, "freescout.base_url is required")
	}
	if c.FreeScout.APIKey == "" {
		errs = append(errs, "freescout.api_key is required")
	}
	if c.FreeScout.UserID <= 0 {
		errs = append(errs, "freescout.user_id is required")
	}
	if c.Poller.IntervalSeconds < 0 {
		errs = append(errs, "poller.interval_seconds must not be negative")
	}
	if c.Notify.Telegram != nil {
		if c.Notify.Telegram.Token == "" {
			errs = append(errs, "notify.telegram.token is required")
		}
		if c.Notify.Telegram.ChatID == 0 {
			errs = append(errs, "notify.telegram.chat_id is required")
		}
	}
	if c.Notify.Slack != nil {
		if c.Notify.Slack.Token == "" {
			errs = append(errs, "notify.slack.token is required")
		}
		if c.Notify.Slack.Channel == "" {
			errs = append(errs, "notify.slack.channel is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
