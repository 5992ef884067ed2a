// ABOUTME: Configuration loading and parsing for parley-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete parley-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	Stats    StatsConfig    `yaml:"stats"`
	Robots   RobotsConfig   `yaml:"robots"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DedupeConfig holds message dedup index tuning
type DedupeConfig struct {
	TTL     time.Duration `yaml:"-"`
	MaxSize int           `yaml:"max_size"`

	// Raw string value for YAML unmarshaling
	TTLRaw string `yaml:"ttl"`
}

// StatsConfig holds dashboard statistics tuning
type StatsConfig struct {
	ActiveUserWindow time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ActiveUserWindowRaw string `yaml:"active_user_window"`
}

// RobotsConfig holds robot identity, prompt, and response-mode configuration
type RobotsConfig struct {
	Name         string        `yaml:"name"`
	SystemPrompt string        `yaml:"system_prompt"`
	DefaultMode  string        `yaml:"default_mode"` // immediate, streaming, multipart
	TokenBudget  int           `yaml:"token_budget"`
	Backend      BackendConfig `yaml:"backend"`

	ModelTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ModelTimeoutRaw string `yaml:"model_timeout"`

	// Conversations maps conversation IDs to per-conversation overrides
	Conversations map[string]ConversationRobotConfig `yaml:"conversations"`
}

// ConversationRobotConfig overrides robot behavior for one conversation
type ConversationRobotConfig struct {
	Mode string `yaml:"mode"`
}

// BackendConfig points at an OpenAI-compatible chat completions endpoint.
// Robots are disabled when the URL is empty.
type BackendConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// SnapshotConfig holds the optional snapshot sink configuration
type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// robotModes are the accepted response-mode names. Empty means immediate.
var robotModes = map[string]bool{
	"":          true,
	"immediate": true,
	"streaming": true,
	"multipart": true,
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Snapshot.Enabled && c.Snapshot.Path == "" {
		return fmt.Errorf("snapshot.path is required when snapshot is enabled")
	}

	if !robotModes[c.Robots.DefaultMode] {
		return fmt.Errorf("robots.default_mode %q is not one of immediate, streaming, multipart", c.Robots.DefaultMode)
	}
	for convID, override := range c.Robots.Conversations {
		if !robotModes[override.Mode] {
			return fmt.Errorf("robots.conversations.%s.mode %q is not one of immediate, streaming, multipart", convID, override.Mode)
		}
	}

	if c.Robots.Backend.URL != "" && c.Robots.Backend.Model == "" {
		return fmt.Errorf("robots.backend.model is required when robots.backend.url is set")
	}

	if c.Dedupe.MaxSize < 0 {
		return fmt.Errorf("dedupe.max_size must not be negative")
	}
	if c.Robots.TokenBudget < 0 {
		return fmt.Errorf("robots.token_budget must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}

	if cfg.Stats.ActiveUserWindowRaw != "" {
		cfg.Stats.ActiveUserWindow, err = time.ParseDuration(cfg.Stats.ActiveUserWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing stats.active_user_window %q: %w", cfg.Stats.ActiveUserWindowRaw, err)
		}
	}

	if cfg.Robots.ModelTimeoutRaw != "" {
		cfg.Robots.ModelTimeout, err = time.ParseDuration(cfg.Robots.ModelTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing robots.model_timeout %q: %w", cfg.Robots.ModelTimeoutRaw, err)
		}
	}

	return nil
}
