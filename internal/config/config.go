package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config keeps runtime settings for the bot and the reference server.
// Values come from an optional TOML file, overridden by environment
// variables; a .env file is honored when present.
type Config struct {
	TelegramToken string `toml:"telegram_token"`
	APIBaseURL    string `toml:"api_base_url"`
	APIToken      string `toml:"api_token"`
	GroupID       int64  `toml:"group_id"`
	SummaryTime   string `toml:"summary_time"`

	// RefreshInterval is how often the cached group views are dropped and
	// re-warmed, as a Go duration string. Empty disables the refresh job.
	RefreshInterval string `toml:"refresh_interval"`

	// Reference server settings, used by the server binary only.
	ServerAddr   string `toml:"server_addr"`
	DatabaseURL  string `toml:"database_url"`
	ServerSecret string `toml:"server_secret"`
}

// Load reads configuration. The client binary requires the Telegram token,
// API base URL, bearer token and group id; the server binary calls
// LoadServer instead.
func Load() (Config, error) {
	cfg, err := load()
	if err != nil {
		return cfg, err
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if cfg.APIBaseURL == "" {
		return cfg, fmt.Errorf("API_BASE_URL is required")
	}
	if cfg.APIToken == "" {
		return cfg, fmt.Errorf("API_TOKEN is required")
	}
	if cfg.GroupID == 0 {
		return cfg, fmt.Errorf("GROUP_ID is required")
	}
	if cfg.RefreshInterval != "" {
		if _, err := time.ParseDuration(cfg.RefreshInterval); err != nil {
			return cfg, fmt.Errorf("REFRESH_INTERVAL: %w", err)
		}
	}
	return cfg, nil
}

// LoadServer reads configuration for the reference server.
func LoadServer() (Config, error) {
	cfg, err := load()
	if err != nil {
		return cfg, err
	}
	if cfg.ServerSecret == "" {
		return cfg, fmt.Errorf("SERVER_SECRET is required")
	}
	return cfg, nil
}

func load() (Config, error) {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := Config{
		SummaryTime:     "09:00",
		RefreshInterval: "10m",
		ServerAddr:      ":8080",
		DatabaseURL:     "teamtasks.db",
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.TelegramToken, "TELEGRAM_TOKEN")
	setString(&cfg.APIBaseURL, "API_BASE_URL")
	setString(&cfg.APIToken, "API_TOKEN")
	setString(&cfg.SummaryTime, "SUMMARY_TIME")
	setString(&cfg.RefreshInterval, "REFRESH_INTERVAL")
	setString(&cfg.ServerAddr, "SERVER_ADDR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.ServerSecret, "SERVER_SECRET")

	if raw := strings.TrimSpace(os.Getenv("GROUP_ID")); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			cfg.GroupID = id
		}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
