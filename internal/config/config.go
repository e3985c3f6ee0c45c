package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the HTTP and websocket server listens on.
	DefaultAddr = ":43127"
	// DefaultGRPCAddr is the default gRPC listen address.
	DefaultGRPCAddr = ":43128"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 16
	// DefaultMaxClients bounds concurrent WebSocket viewers. Zero disables the limit.
	DefaultMaxClients = 256
	// DefaultTickHz is how many swarm iterations the service runs per second.
	DefaultTickHz = 30.0

	// DefaultResetRate bounds admin resets and config swaps per second.
	DefaultResetRate = 1.0
	// DefaultResetBurst is how many admin mutations may arrive back to back.
	DefaultResetBurst = 3

	// DefaultReplayMaxRuns caps retained replay bundles.
	DefaultReplayMaxRuns = 20
	// DefaultReplayMaxAge prunes replay bundles older than this.
	DefaultReplayMaxAge = 7 * 24 * time.Hour
	// DefaultViewerBytesPerSecond bounds snapshot bandwidth per websocket viewer.
	DefaultViewerBytesPerSecond = 512 * 1024

	// DefaultLogLevel controls verbosity.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "rdpso.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the simulation service.
type Config struct {
	Address         string
	GRPCAddress     string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int
	TLSCertPath     string
	TLSKeyPath      string
	AdminToken      string
	TickHz          float64
	// SimConfigPath points at a JSON or TOML simulation config; empty uses defaults.
	SimConfigPath string
	// Seed overrides the simulation seed when SeedSet is true.
	Seed       uint64
	SeedSet    bool
	ResetRate  float64
	ResetBurst int
	// ReplayDir enables replay bundles when non-empty.
	ReplayDir     string
	ReplayMaxRuns int
	ReplayMaxAge  time.Duration
	// ViewerBytesPerSecond throttles snapshot delivery to each websocket viewer.
	ViewerBytesPerSecond int
	// StorePath enables the SQLite run history when non-empty.
	StorePath string
	Logging   LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the service configuration from environment variables, applying
// defaults and reporting every invalid override at once.
func Load() (*Config, error) {
	cfg := &Config{
		Address:              getString("RDPSO_ADDR", DefaultAddr),
		GRPCAddress:          DefaultGRPCAddr,
		AllowedOrigins:       parseList(os.Getenv("RDPSO_ALLOWED_ORIGINS")),
		MaxPayloadBytes:      DefaultMaxPayloadBytes,
		PingInterval:         DefaultPingInterval,
		MaxClients:           DefaultMaxClients,
		TLSCertPath:          strings.TrimSpace(os.Getenv("RDPSO_TLS_CERT")),
		TLSKeyPath:           strings.TrimSpace(os.Getenv("RDPSO_TLS_KEY")),
		AdminToken:           strings.TrimSpace(os.Getenv("RDPSO_ADMIN_TOKEN")),
		TickHz:               DefaultTickHz,
		SimConfigPath:        strings.TrimSpace(os.Getenv("RDPSO_SIM_CONFIG")),
		ResetRate:            DefaultResetRate,
		ResetBurst:           DefaultResetBurst,
		ReplayDir:            strings.TrimSpace(os.Getenv("RDPSO_REPLAY_DIR")),
		ReplayMaxRuns:        DefaultReplayMaxRuns,
		ReplayMaxAge:         DefaultReplayMaxAge,
		StorePath:            strings.TrimSpace(os.Getenv("RDPSO_STORE_PATH")),
		ViewerBytesPerSecond: DefaultViewerBytesPerSecond,
		Logging: LoggingConfig{
			Level:      getString("RDPSO_LOG_LEVEL", DefaultLogLevel),
			Path:       getString("RDPSO_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	// RDPSO_GRPC_ADDR may be set to an empty string to disable gRPC.
	if raw, ok := os.LookupEnv("RDPSO_GRPC_ADDR"); ok {
		cfg.GRPCAddress = strings.TrimSpace(raw)
	}

	p := &parser{}
	p.int64Var("RDPSO_MAX_PAYLOAD_BYTES", &cfg.MaxPayloadBytes, 1)
	p.durationVar("RDPSO_PING_INTERVAL", &cfg.PingInterval)
	p.intVar("RDPSO_MAX_CLIENTS", &cfg.MaxClients, 0)
	p.positiveFloatVar("RDPSO_TICK_HZ", &cfg.TickHz)
	p.positiveFloatVar("RDPSO_RESET_RATE", &cfg.ResetRate)
	p.intVar("RDPSO_RESET_BURST", &cfg.ResetBurst, 1)
	p.intVar("RDPSO_REPLAY_MAX_RUNS", &cfg.ReplayMaxRuns, 0)
	p.durationVar("RDPSO_REPLAY_MAX_AGE", &cfg.ReplayMaxAge)
	p.intVar("RDPSO_VIEWER_BYTES_PER_SEC", &cfg.ViewerBytesPerSecond, 1)
	p.intVar("RDPSO_LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB, 1)
	p.intVar("RDPSO_LOG_MAX_BACKUPS", &cfg.Logging.MaxBackups, 0)
	p.intVar("RDPSO_LOG_MAX_AGE_DAYS", &cfg.Logging.MaxAgeDays, 0)
	p.boolVar("RDPSO_LOG_COMPRESS", &cfg.Logging.Compress)
	cfg.SeedSet = p.uint64Var("RDPSO_SEED", &cfg.Seed)

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		p.problems = append(p.problems, "RDPSO_TLS_CERT and RDPSO_TLS_KEY must be provided together")
	}

	if len(p.problems) > 0 {
		return nil, errors.New(strings.Join(p.problems, "; "))
	}
	return cfg, nil
}

// parser collects problems while applying environment overrides.
type parser struct {
	problems []string
}

func (p *parser) lookup(key string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	return raw, raw != ""
}

func (p *parser) intVar(key string, dst *int, floor int) {
	raw, ok := p.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < floor {
		p.problems = append(p.problems, fmt.Sprintf("%s must be an integer >= %d, got %q", key, floor, raw))
		return
	}
	*dst = value
}

func (p *parser) int64Var(key string, dst *int64, floor int64) {
	raw, ok := p.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < floor {
		p.problems = append(p.problems, fmt.Sprintf("%s must be an integer >= %d, got %q", key, floor, raw))
		return
	}
	*dst = value
}

func (p *parser) uint64Var(key string, dst *uint64) bool {
	raw, ok := p.lookup(key)
	if !ok {
		return false
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s must be an unsigned integer, got %q", key, raw))
		return false
	}
	*dst = value
	return true
}

func (p *parser) positiveFloatVar(key string, dst *float64) {
	raw, ok := p.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(value > 0) {
		p.problems = append(p.problems, fmt.Sprintf("%s must be a positive number, got %q", key, raw))
		return
	}
	*dst = value
}

func (p *parser) durationVar(key string, dst *time.Duration) {
	raw, ok := p.lookup(key)
	if !ok {
		return
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		p.problems = append(p.problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return
	}
	*dst = value
}

func (p *parser) boolVar(key string, dst *bool) {
	raw, ok := p.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s must be a boolean value, got %q", key, raw))
		return
	}
	*dst = value
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
