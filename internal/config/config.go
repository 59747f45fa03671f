// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (HOMEWORK_* prefix, plus DATABASE_URL and
//     OPENAI_API_KEY for cloud-deployment compatibility)
//  2. Config file (~/.homework-agent/config.yaml)
//  3. Default values
//
// Categories:
//   - Database: PostgreSQL connection URL
//   - Model: OpenAI API key, model name, temperature
//   - Session: inactivity window, model history window, greeting
//   - Server: listen address, CORS origins, rate limiting, proxy trust
//
// Sensitive values (database password, API key) are never logged; use
// Redacted() when a config summary needs to appear in logs.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingDatabaseURL indicates no database connection URL was configured.
	ErrMissingDatabaseURL = errors.New("missing database URL")

	// ErrInvalidDatabaseURL indicates the database URL could not be parsed
	// or uses an unsupported scheme.
	ErrInvalidDatabaseURL = errors.New("invalid database URL")

	// ErrMissingAPIKey indicates the OpenAI API key is not set.
	ErrMissingAPIKey = errors.New("missing OpenAI API key")

	// ErrInvalidTemperature indicates the model temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidSessionWindow indicates the session inactivity window is not positive.
	ErrInvalidSessionWindow = errors.New("invalid session inactivity window")

	// ErrInvalidHistoryTurns indicates the model history window is out of range.
	ErrInvalidHistoryTurns = errors.New("invalid history turns")

	// ErrInvalidListenAddr indicates the server listen address is malformed.
	ErrInvalidListenAddr = errors.New("invalid listen address")
)

const (
	// DefaultModel is the chat-completion model used when none is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultSessionWindow is the inactivity window after which an active
	// session is considered abandoned and no longer resumable.
	DefaultSessionWindow = 7 * 24 * time.Hour

	// DefaultHistoryTurns is the number of most recent exchanges included
	// in the model context window.
	DefaultHistoryTurns = 20

	// MaxHistoryTurns bounds the model context window.
	MaxHistoryTurns = 500

	// DefaultGreeting is the assistant opener for a fresh session.
	// %s is replaced with the participant's display name.
	DefaultGreeting = "%s님, 안녕하세요. 오늘 어떤 이야기를 해보고 싶으신가요?"
)

// Config stores application configuration.
type Config struct {
	// Database
	DatabaseURL string `mapstructure:"database_url"`

	// Model
	OpenAIAPIKey string  `mapstructure:"openai_api_key"`
	Model        string  `mapstructure:"model"`
	Temperature  float32 `mapstructure:"temperature"`

	// Session behavior
	SessionWindow time.Duration `mapstructure:"session_window"`
	HistoryTurns  int           `mapstructure:"history_turns"`
	Greeting      string        `mapstructure:"greeting"`

	// SystemPromptPath points at a file whose contents are prepended to
	// every model request. Empty means no system prompt.
	SystemPromptPath string `mapstructure:"system_prompt_path"`

	// Server
	ListenAddr  string   `mapstructure:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	RateBurst   int      `mapstructure:"rate_burst"`
	TrustProxy  bool     `mapstructure:"trust_proxy"`

	// Logging
	LogJSON  bool   `mapstructure:"log_json"`
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("HOMEWORK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configDir, err := configDir()
	if err == nil {
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			// Missing config file is fine; env vars and defaults apply.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Cloud-deployment conventions override file settings.
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAIAPIKey = key
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", DefaultModel)
	v.SetDefault("temperature", 0.3)
	v.SetDefault("session_window", DefaultSessionWindow)
	v.SetDefault("history_turns", DefaultHistoryTurns)
	v.SetDefault("greeting", DefaultGreeting)
	v.SetDefault("listen_addr", ":8501")
	v.SetDefault("rate_burst", 60)
	v.SetDefault("log_level", "info")
}

// configDir returns the configuration directory (~/.homework-agent).
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".homework-agent"), nil
}

// Validate checks settings needed by every command that touches the database.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDatabaseURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDatabaseURL, u.Scheme)
	}

	if c.SessionWindow <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSessionWindow, c.SessionWindow)
	}
	if c.HistoryTurns <= 0 || c.HistoryTurns > MaxHistoryTurns {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidHistoryTurns, c.HistoryTurns, MaxHistoryTurns)
	}
	return nil
}

// ValidateServe checks the additional settings the serve command needs.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.OpenAIAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v (must be 0..2)", ErrInvalidTemperature, c.Temperature)
	}
	if c.ListenAddr == "" || !strings.Contains(c.ListenAddr, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidListenAddr, c.ListenAddr)
	}
	return nil
}

// Redacted returns a copy safe for logging: credentials are masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.OpenAIAPIKey != "" {
		out.OpenAIAPIKey = "***"
	}
	if out.DatabaseURL != "" {
		if u, err := url.Parse(out.DatabaseURL); err == nil && u.User != nil {
			u.User = url.User(u.User.Username())
			out.DatabaseURL = u.String()
		}
	}
	return out
}
