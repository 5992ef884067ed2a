// ABOUTME: Entry point for the parley-gateway support chat server
// ABOUTME: Wires the store, robots, dispatcher, and HTTP surface together

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/parley/internal/builtins"
	"github.com/2389/parley/internal/catalog"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/dispatch"
	"github.com/2389/parley/internal/gateway"
	"github.com/2389/parley/internal/robot"
	"github.com/2389/parley/internal/snapshot"
	"github.com/2389/parley/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                      _
 _ __   __ _ _ __| | ___ _   _
| '_ \ / _' | '__| |/ _ \ | | |
| |_) | (_| | |  | |  __/ |_| |
| .__/ \__,_|_|  |_|\___|\__, |
|_|                      |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: PARLEY_CONFIG env var > ./config.yaml > XDG_CONFIG_HOME/parley/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PARLEY_CONFIG"); envPath != "" {
		return envPath
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "parley", "gateway.yaml")
}

// getDataPath returns the path to the parley data directory.
// Priority: XDG_DATA_HOME/parley > ~/.local/share/parley
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "parley")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: parley-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the gateway server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)

	if cfg.Robots.Backend.URL != "" {
		green.Print("    ▶ ")
		fmt.Printf("Robot:     ")
		cyan.Print(robotName(cfg))
		gray.Printf(" (%s)\n", cfg.Robots.Backend.Model)
	} else {
		yellow.Print("    ▶ ")
		fmt.Println("Robot:     disabled (no backend url)")
	}

	if cfg.Snapshot.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Snapshots: %s\n", cfg.Snapshot.Path)
	}

	fmt.Println()

	logger.Info("starting parley-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	// Store
	st := store.NewMemoryStore(store.Options{
		ActiveUserWindow: cfg.Stats.ActiveUserWindow,
		DedupTTL:         cfg.Dedupe.TTL,
		DedupMaxSize:     cfg.Dedupe.MaxSize,
		Logger:           logger,
	})
	defer st.Close()

	// Broadcaster
	broadcaster := dispatch.NewBroadcaster(logger)
	defer broadcaster.Close()

	// Optional snapshot sink
	var sink snapshot.Sink
	if cfg.Snapshot.Enabled {
		sqliteSink, err := snapshot.NewSQLiteSink(cfg.Snapshot.Path, logger)
		if err != nil {
			return fmt.Errorf("opening snapshot sink: %w", err)
		}
		defer sqliteSink.Close()
		sink = sqliteSink
	}

	// Robot bindings
	var defaultBinding *dispatch.Binding
	robots := make(map[string]dispatch.Binding)
	if cfg.Robots.Backend.URL != "" {
		rb, err := buildRobot(cfg, st, logger)
		if err != nil {
			return fmt.Errorf("building robot: %w", err)
		}

		defaultMode, err := dispatch.ParseMode(cfg.Robots.DefaultMode)
		if err != nil {
			return err
		}
		defaultBinding = &dispatch.Binding{Robot: rb, Mode: defaultMode}

		for convID, override := range cfg.Robots.Conversations {
			mode, err := dispatch.ParseMode(override.Mode)
			if err != nil {
				return err
			}
			robots[convID] = dispatch.Binding{Robot: rb, Mode: mode}
		}
	} else {
		logger.Warn("robot backend not configured; robot-addressed messages will go unanswered")
	}

	// Dispatcher
	dispatcher, err := dispatch.NewDispatcher(dispatch.Options{
		Store:       st,
		Broadcaster: broadcaster,
		Robots:      robots,
		Default:     defaultBinding,
		Sink:        sink,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	// HTTP server
	srv := gateway.NewServer(gateway.Options{
		Addr:        cfg.Server.HTTPAddr,
		Store:       st,
		Broadcaster: broadcaster,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	return srv.Run(ctx)
}

// robotName returns the configured robot name or the default.
func robotName(cfg *config.Config) string {
	if cfg.Robots.Name != "" {
		return cfg.Robots.Name
	}
	return "parley-robot"
}

// buildRobot assembles the support robot: HTTP model backend plus the
// built-in tool packs composed into one catalog.
func buildRobot(cfg *config.Config, st store.Store, logger *slog.Logger) (robot.Robot, error) {
	backend := robot.NewHTTPBackend(cfg.Robots.Backend.URL, cfg.Robots.Backend.APIKey, cfg.Robots.Backend.Model)

	tools := catalog.Compose(
		builtins.OrdersPack(builtins.DemoOrderDirectory()),
		builtins.CustomersPack(builtins.DemoCustomerDirectory()),
		builtins.HistoryPack(st),
	)

	return robot.NewSupportRobot(robot.Options{
		Name:         robotName(cfg),
		SystemPrompt: cfg.Robots.SystemPrompt,
		Backend:      backend,
		Catalog:      tools,
		TokenBudget:  cfg.Robots.TokenBudget,
		ModelTimeout: cfg.Robots.ModelTimeout,
		Logger:       logger,
	})
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("parley-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultSnapshotPath := filepath.Join(defaultDataPath, "snapshots.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Robot backend
	fmt.Println("\n--- Robot Configuration ---")
	backendURL := prompt(reader, "Model endpoint URL (leave empty to disable robots)", "")
	var backendModel, defaultMode string
	if backendURL != "" {
		backendModel = prompt(reader, "Model name", "gpt-4o-mini")
		defaultMode = prompt(reader, "Response mode (immediate/streaming/multipart)", "immediate")
	}

	// Snapshots
	fmt.Println("\n--- Snapshot Configuration ---")
	enableSnapshots := prompt(reader, "Enable snapshots?", "no")
	snapshotsEnabled := strings.ToLower(enableSnapshots) == "yes" || strings.ToLower(enableSnapshots) == "y"
	var snapshotPath string
	if snapshotsEnabled {
		snapshotPath = prompt(reader, "Snapshot database path", defaultSnapshotPath)
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# parley-gateway configuration\n")
	cfg.WriteString("# Generated by parley-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("dedupe:\n")
	cfg.WriteString("  ttl: \"24h\"\n")
	cfg.WriteString("  max_size: 100000\n")
	cfg.WriteString("\n")

	cfg.WriteString("stats:\n")
	cfg.WriteString("  active_user_window: \"1h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("robots:\n")
	cfg.WriteString("  name: \"parley-robot\"\n")
	cfg.WriteString("  system_prompt: \"You are a customer support assistant.\"\n")
	if backendURL != "" {
		cfg.WriteString(fmt.Sprintf("  default_mode: \"%s\"\n", defaultMode))
		cfg.WriteString("  token_budget: 4096\n")
		cfg.WriteString("  model_timeout: \"30s\"\n")
		cfg.WriteString("  backend:\n")
		cfg.WriteString(fmt.Sprintf("    url: \"%s\"\n", backendURL))
		cfg.WriteString("    api_key: \"${PARLEY_MODEL_KEY}\"\n")
		cfg.WriteString(fmt.Sprintf("    model: \"%s\"\n", backendModel))
	}
	cfg.WriteString("\n")

	cfg.WriteString("snapshot:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", snapshotsEnabled))
	if snapshotsEnabled {
		cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", snapshotPath))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists when snapshots are on
	if snapshotsEnabled {
		if err := os.MkdirAll(filepath.Dir(snapshotPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  parley-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
