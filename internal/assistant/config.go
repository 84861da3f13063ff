package assistant

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds the assistant configuration.
type Config struct {
	// Identity
	Name string `json:"name"` // "selam"

	// HTTP front end
	HTTP HTTPConfig `json:"http"`

	// Conversation cache
	Redis        RedisConfig        `json:"redis"`
	Conversation ConversationConfig `json:"conversation"`

	// Reasoning brain
	Brain BrainConfig `json:"brain"`

	// Chat channels
	Telegram TelegramConfig `json:"telegram"`
	Matrix   MatrixConfig   `json:"matrix"`

	// Speech service (transcription + rendering)
	Speech SpeechConfig `json:"speech"`

	// Tesfa platform (domain store + action handlers)
	Platform PlatformConfig `json:"platform"`
}

// HTTPConfig holds the HTTP front-end settings.
type HTTPConfig struct {
	Addr     string `json:"addr"`                // e.g. ":8080"
	APIToken string `json:"api_token,omitempty"` // bearer token, empty disables auth
}

// RedisConfig holds the shared conversation cache settings.
type RedisConfig struct {
	Addr     string `json:"addr"` // empty disables Redis, conversations live in memory
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// ConversationConfig bounds stored history.
type ConversationConfig struct {
	TTL      string `json:"ttl,omitempty"`       // e.g. "30m"
	MaxTurns int    `json:"max_turns,omitempty"` // default 40
}

// BrainConfig holds reasoning-model settings.
type BrainConfig struct {
	Provider    string  `json:"provider"`           // "anthropic"
	Model       string  `json:"model"`              // e.g. "claude-sonnet-4-5"
	APIKey      string  `json:"api_key"`            // can use env var reference: "$ANTHROPIC_API_KEY"
	BaseURL     string  `json:"base_url,omitempty"` // optional override
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTurns    int     `json:"max_turns,omitempty"` // tool-loop ceiling
	Timeout     string  `json:"timeout,omitempty"`   // per-request, e.g. "60s"
}

// TelegramConfig holds Telegram channel settings.
type TelegramConfig struct {
	Token        string   `json:"token"` // empty disables the channel
	AllowedUsers []string `json:"allowed_users,omitempty"`
}

// MatrixConfig holds Matrix channel settings.
type MatrixConfig struct {
	Homeserver   string   `json:"homeserver"` // empty disables the channel
	UserID       string   `json:"user_id"`
	Password     string   `json:"password"`
	ServerName   string   `json:"server_name"`
	AllowedUsers []string `json:"allowed_users,omitempty"`
	DataDir      string   `json:"data_dir,omitempty"`
}

// SpeechConfig holds speech-service settings.
type SpeechConfig struct {
	URL           string `json:"url"` // empty disables voice entirely
	Token         string `json:"token,omitempty"`
	RenderTimeout string `json:"render_timeout,omitempty"` // e.g. "45s"
}

// PlatformConfig holds Tesfa platform connection settings.
type PlatformConfig struct {
	PostgresURL  string `json:"postgres_url,omitempty"` // production store
	SQLitePath   string `json:"sqlite_path,omitempty"`  // dev/single-node store
	ActionsURL   string `json:"actions_url"`            // action-handler API base
	ActionsToken string `json:"actions_token,omitempty"`
}

// LoadConfig reads config from a file path or environment.
// If path is empty, uses environment-variable defaults suitable for
// container deployment.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Resolve env var references in all $-prefixed values
	cfg.HTTP.APIToken = resolveEnv(cfg.HTTP.APIToken)
	cfg.Redis.Addr = resolveEnv(cfg.Redis.Addr)
	cfg.Redis.Password = resolveEnv(cfg.Redis.Password)
	cfg.Brain.APIKey = resolveEnv(cfg.Brain.APIKey)
	cfg.Brain.BaseURL = resolveEnv(cfg.Brain.BaseURL)
	cfg.Telegram.Token = resolveEnv(cfg.Telegram.Token)
	cfg.Matrix.Homeserver = resolveEnv(cfg.Matrix.Homeserver)
	cfg.Matrix.UserID = resolveEnv(cfg.Matrix.UserID)
	cfg.Matrix.Password = resolveEnv(cfg.Matrix.Password)
	cfg.Matrix.ServerName = resolveEnv(cfg.Matrix.ServerName)
	cfg.Speech.URL = resolveEnv(cfg.Speech.URL)
	cfg.Speech.Token = resolveEnv(cfg.Speech.Token)
	cfg.Platform.PostgresURL = resolveEnv(cfg.Platform.PostgresURL)
	cfg.Platform.ActionsURL = resolveEnv(cfg.Platform.ActionsURL)
	cfg.Platform.ActionsToken = resolveEnv(cfg.Platform.ActionsToken)

	return &cfg, nil
}

// resolveEnv replaces $ENV_VAR references with actual values.
func resolveEnv(s string) string {
	if len(s) > 1 && s[0] == '$' {
		if v := os.Getenv(s[1:]); v != "" {
			return v
		}
	}
	return s
}

// defaultConfig returns a config using environment variables,
// suitable for the existing Docker Compose setup.
func defaultConfig() *Config {
	return &Config{
		Name: "selam",
		HTTP: HTTPConfig{
			Addr:     envOr("SELAM_HTTP_ADDR", ":8080"),
			APIToken: envOr("SELAM_API_TOKEN", ""),
		},
		Redis: RedisConfig{
			Addr:     envOr("SELAM_REDIS_ADDR", "redis:6379"),
			Password: envOr("SELAM_REDIS_PASSWORD", ""),
		},
		Brain: BrainConfig{
			Provider:    "anthropic",
			Model:       envOr("SELAM_BRAIN_MODEL", "claude-sonnet-4-5"),
			APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		Telegram: TelegramConfig{
			Token: envOr("TELEGRAM_BOT_TOKEN", ""),
		},
		Matrix: MatrixConfig{
			Homeserver: envOr("MATRIX_HOMESERVER", ""),
			UserID:     envOr("MATRIX_BOT_USER", "selam"),
			Password:   envOr("MATRIX_BOT_PASSWORD", ""),
			ServerName: envOr("MATRIX_SERVER_NAME", ""),
			DataDir:    envOr("SELAM_DATA_DIR", "/data"),
		},
		Speech: SpeechConfig{
			URL:   envOr("SELAM_SPEECH_URL", ""),
			Token: envOr("SELAM_SPEECH_TOKEN", ""),
		},
		Platform: PlatformConfig{
			PostgresURL:  envOr("SELAM_PG_URL", ""),
			SQLitePath:   envOr("SELAM_SQLITE_PATH", ""),
			ActionsURL:   envOr("SELAM_ACTIONS_URL", "http://tesfa-api:3000"),
			ActionsToken: envOr("SELAM_ACTIONS_TOKEN", ""),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// TTLOrDefault parses the conversation TTL, zero on empty or bad input so
// the store applies its own default.
func (c ConversationConfig) TTLOrDefault() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0
	}
	return d
}

// TimeoutOrDefault parses the brain request timeout, zero on empty or bad
// input so the provider applies its own default.
func (b BrainConfig) TimeoutOrDefault() time.Duration {
	d, err := time.ParseDuration(b.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// RenderTimeoutOrDefault parses the render timeout, zero on empty or bad
// input so the deliverer applies its own default.
func (s SpeechConfig) RenderTimeoutOrDefault() time.Duration {
	d, err := time.ParseDuration(s.RenderTimeout)
	if err != nil {
		return 0
	}
	return d
}
