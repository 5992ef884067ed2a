// Package config handles configuration loading for parley-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PARLEY_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/parley/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	robots:
//	  system_prompt: "${PARLEY_SYSTEM_PROMPT}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	dedupe:
//	  ttl: "24h"
//	stats:
//	  active_user_window: "1h"
//	robots:
//	  model_timeout: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API, dashboard, and websocket rooms
//
// Dedup index tuning:
//
//	dedupe:
//	  ttl: "24h"        # how long content hashes are remembered
//	  max_size: 100000  # hash count cap before oldest-first eviction
//
// Dashboard statistics:
//
//	stats:
//	  active_user_window: "1h"  # trailing window for the active-user count
//
// Robots:
//
//	robots:
//	  name: "parley-robot"
//	  system_prompt: "You are a support assistant."
//	  default_mode: "immediate"   # immediate, streaming, multipart
//	  token_budget: 4096
//	  model_timeout: "30s"
//	  backend:
//	    url: "http://localhost:4000"      # OpenAI-compatible endpoint
//	    api_key: "${PARLEY_MODEL_KEY}"
//	    model: "gpt-4o-mini"
//	  conversations:
//	    vip-support:
//	      mode: "streaming"
//
// Snapshots (optional debug sink):
//
//	snapshot:
//	  enabled: true
//	  path: "/var/lib/parley/snapshots.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - HTTP address presence
//   - Snapshot path presence when the sink is enabled
//   - Robot mode values
//   - Duration format validity
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/parley/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
