// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

dedupe:
  ttl: "24h"
  max_size: 50000

stats:
  active_user_window: "30m"

robots:
  name: "parley-robot"
  system_prompt: "You are a support assistant."
  default_mode: "immediate"
  token_budget: 4096
  model_timeout: "30s"
  conversations:
    vip-support:
      mode: "streaming"
    bulk-returns:
      mode: "multipart"

snapshot:
  enabled: true
  path: "./snapshots.db"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify server config
	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}

	// Verify dedupe config with duration parsing
	if cfg.Dedupe.TTL != 24*time.Hour {
		t.Errorf("Dedupe.TTL = %v, want %v", cfg.Dedupe.TTL, 24*time.Hour)
	}
	if cfg.Dedupe.MaxSize != 50000 {
		t.Errorf("Dedupe.MaxSize = %d, want 50000", cfg.Dedupe.MaxSize)
	}

	// Verify stats config
	if cfg.Stats.ActiveUserWindow != 30*time.Minute {
		t.Errorf("Stats.ActiveUserWindow = %v, want %v", cfg.Stats.ActiveUserWindow, 30*time.Minute)
	}

	// Verify robots config
	if cfg.Robots.Name != "parley-robot" {
		t.Errorf("Robots.Name = %q, want %q", cfg.Robots.Name, "parley-robot")
	}
	if cfg.Robots.TokenBudget != 4096 {
		t.Errorf("Robots.TokenBudget = %d, want 4096", cfg.Robots.TokenBudget)
	}
	if cfg.Robots.ModelTimeout != 30*time.Second {
		t.Errorf("Robots.ModelTimeout = %v, want %v", cfg.Robots.ModelTimeout, 30*time.Second)
	}
	if len(cfg.Robots.Conversations) != 2 {
		t.Errorf("Robots.Conversations len = %d, want 2", len(cfg.Robots.Conversations))
	}
	if cfg.Robots.Conversations["vip-support"].Mode != "streaming" {
		t.Errorf("Robots.Conversations[vip-support].Mode = %q, want %q",
			cfg.Robots.Conversations["vip-support"].Mode, "streaming")
	}

	// Verify snapshot config
	if !cfg.Snapshot.Enabled {
		t.Error("Snapshot.Enabled = false, want true")
	}
	if cfg.Snapshot.Path != "./snapshots.db" {
		t.Errorf("Snapshot.Path = %q, want %q", cfg.Snapshot.Path, "./snapshots.db")
	}

	// Verify logging config
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("PARLEY_TEST_PROMPT", "expanded prompt")

	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
robots:
  system_prompt: "${PARLEY_TEST_PROMPT}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Robots.SystemPrompt != "expanded prompt" {
		t.Errorf("Robots.SystemPrompt = %q, want %q", cfg.Robots.SystemPrompt, "expanded prompt")
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
robots:
  system_prompt: "${PARLEY_DEFINITELY_UNSET_VAR}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Robots.SystemPrompt != "" {
		t.Errorf("Robots.SystemPrompt = %q, want empty", cfg.Robots.SystemPrompt)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("error = %v, want reading config file", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "server: [not: valid: yaml")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
dedupe:
  ttl: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "dedupe.ttl") {
		t.Errorf("error = %v, want mention of dedupe.ttl", err)
	}
}

func TestValidate_MissingHTTPAddr(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for missing http_addr")
	}
	if !strings.Contains(err.Error(), "server.http_addr") {
		t.Errorf("error = %v, want mention of server.http_addr", err)
	}
}

func TestValidate_SnapshotRequiresPath(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{HTTPAddr: "0.0.0.0:8080"},
		Snapshot: SnapshotConfig{Enabled: true},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for enabled snapshot without path")
	}
	if !strings.Contains(err.Error(), "snapshot.path") {
		t.Errorf("error = %v, want mention of snapshot.path", err)
	}
}

func TestValidate_BadRobotMode(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{HTTPAddr: "0.0.0.0:8080"},
		Robots: RobotsConfig{DefaultMode: "telepathic"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for unknown robot mode")
	}

	cfg = &Config{
		Server: ServerConfig{HTTPAddr: "0.0.0.0:8080"},
		Robots: RobotsConfig{
			Conversations: map[string]ConversationRobotConfig{
				"c1": {Mode: "bogus"},
			},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for unknown per-conversation mode")
	}
}

func TestValidate_EmptyModeIsImmediate(t *testing.T) {
	cfg := &Config{Server: ServerConfig{HTTPAddr: "0.0.0.0:8080"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil for empty mode", err)
	}
}
