package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// ConfigFileName is the config file inside the station home.
const ConfigFileName = "config.toml"

// Config is the station configuration, read from ~/.timbang/config.toml
// and overridden by TIMBANG_* environment variables.
type Config struct {
	API      APIConfig      `toml:"api"`
	Database DatabaseConfig `toml:"database"`
	Scale    ScaleConfig    `toml:"scale"`
	Sync     SyncConfig     `toml:"sync"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Station  StationConfig  `toml:"station"`
}

// APIConfig controls the HTTP server.
type APIConfig struct {
	Host   string `toml:"host"`
	Port   int    `toml:"port"`
	WebDir string `toml:"web_dir"` // operator UI; empty disables it
}

// Addr returns host:port.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Dir string `toml:"dir"` // default: station home
}

// ScaleConfig describes the weighing indicator connection.
type ScaleConfig struct {
	Port           string `toml:"port"`
	BaudRate       int    `toml:"baud_rate"`
	AutoConnect    bool   `toml:"auto_connect"`
	FallbackWindow string `toml:"fallback_window"`
}

// Fallback is FallbackWindow parsed; zero means the decoder default.
func (c ScaleConfig) Fallback() time.Duration { return mustDuration(c.FallbackWindow) }

// SyncConfig controls the spreadsheet outbox worker.
type SyncConfig struct {
	Enabled       bool   `toml:"enabled"`
	URL           string `toml:"url"` // overridden by the google_script_url setting
	PollInterval  string `toml:"poll_interval"`
	PushTimeout   string `toml:"push_timeout"`
	MaxConcurrent int    `toml:"max_concurrent"`
	MaxRedirects  int    `toml:"max_redirects"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level             string `toml:"level"`
	Encoding          string `toml:"encoding"` // console | json
	Development       bool   `toml:"development"`
	DisableCaller     bool   `toml:"disable_caller"`
	DisableStacktrace bool   `toml:"disable_stacktrace"`
	File              string `toml:"file"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// StationConfig identifies this weighbridge.
type StationConfig struct {
	NodeID      int64  `toml:"node_id"`     // snowflake node of the daemon, 0-1023
	CLINodeID   int64  `toml:"cli_node_id"` // snowflake node of offline commands, 0-1023
	DefaultUnit string `toml:"default_unit"`
}

// DefaultConfig returns the station defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Scale: ScaleConfig{
			BaudRate:       9600,
			FallbackWindow: "2s",
		},
		Sync: SyncConfig{
			Enabled:       true,
			PollInterval:  "5s",
			PushTimeout:   "30s",
			MaxConcurrent: 2,
			MaxRedirects:  5,
		},
		Log: LogConfig{
			Level:             "info",
			Encoding:          "console",
			DisableStacktrace: true,
		},
		Station: StationConfig{
			NodeID:      1,
			CLINodeID:   2,
			DefaultUnit: "kg",
		},
	}
}

// Home returns the station home directory: $TIMBANG_HOME or ~/.timbang.
func Home() string {
	if env := os.Getenv("TIMBANG_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".timbang"
	}
	return filepath.Join(home, ".timbang")
}

// LoadConfig reads path (missing is fine), then .env files, then the
// environment. An empty path means <home>/config.toml.
func LoadConfig(home, path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = filepath.Join(home, ConfigFileName)
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	// godotenv never overrides variables already set, so the process
	// environment wins over either file.
	for _, f := range []string{".env", filepath.Join(home, ".env")} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg.applyEnv()

	if cfg.Database.Dir == "" {
		cfg.Database.Dir = home
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays TIMBANG_* variables.
func (c *Config) applyEnv() {
	c.API.Host = getEnv("TIMBANG_API_HOST", c.API.Host)
	c.API.Port = getEnvInt("TIMBANG_API_PORT", c.API.Port)
	c.API.WebDir = getEnv("TIMBANG_WEB_DIR", c.API.WebDir)
	c.Database.Dir = getEnv("TIMBANG_DB_DIR", c.Database.Dir)
	c.Scale.Port = getEnv("TIMBANG_SCALE_PORT", c.Scale.Port)
	c.Scale.BaudRate = getEnvInt("TIMBANG_SCALE_BAUD", c.Scale.BaudRate)
	c.Scale.AutoConnect = getEnvBool("TIMBANG_SCALE_AUTOCONNECT", c.Scale.AutoConnect)
	c.Sync.Enabled = getEnvBool("TIMBANG_SYNC_ENABLED", c.Sync.Enabled)
	c.Sync.URL = getEnv("TIMBANG_SYNC_URL", c.Sync.URL)
	c.Log.Level = getEnv("TIMBANG_LOG_LEVEL", c.Log.Level)
	c.Log.Encoding = getEnv("TIMBANG_LOG_ENCODING", c.Log.Encoding)
	c.Log.Development = getEnvBool("TIMBANG_LOG_DEVELOPMENT", c.Log.Development)
	c.Metrics.Enabled = getEnvBool("TIMBANG_METRICS_ENABLED", c.Metrics.Enabled)
	c.Station.NodeID = int64(getEnvInt("TIMBANG_NODE_ID", int(c.Station.NodeID)))
	c.Station.CLINodeID = int64(getEnvInt("TIMBANG_CLI_NODE_ID", int(c.Station.CLINodeID)))
}

// Offline returns the config for commands that open the database next to a
// running daemon: the same settings under the CLI's own id node.
func (c Config) Offline() Config {
	c.Station.NodeID = c.Station.CLINodeID
	return c
}

// Validate rejects values the station cannot start with.
func (c Config) Validate() error {
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Scale.BaudRate <= 0 {
		return fmt.Errorf("scale.baud_rate must be positive, got %d", c.Scale.BaudRate)
	}
	if c.Station.NodeID < 0 || c.Station.NodeID > 1023 {
		return fmt.Errorf("station.node_id %d out of range 0-1023", c.Station.NodeID)
	}
	if c.Station.CLINodeID < 0 || c.Station.CLINodeID > 1023 {
		return fmt.Errorf("station.cli_node_id %d out of range 0-1023", c.Station.CLINodeID)
	}
	// Both processes write tickets to one file; ids would collide.
	if c.Station.CLINodeID == c.Station.NodeID {
		return fmt.Errorf("station.cli_node_id must differ from station.node_id (%d)", c.Station.NodeID)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Encoding {
	case "console", "json":
	default:
		return fmt.Errorf("log.encoding must be console or json, got %q", c.Log.Encoding)
	}
	for name, v := range map[string]string{
		"scale.fallback_window": c.Scale.FallbackWindow,
		"sync.poll_interval":    c.Sync.PollInterval,
		"sync.push_timeout":     c.Sync.PushTimeout,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// parseDuration accepts "" as zero so component defaults apply.
func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// mustDuration is parseDuration for values Validate already checked.
func mustDuration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}

// WriteConfig writes cfg as TOML, creating the directory if needed.
func WriteConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ─── Env helpers ────────────────────────────────────────────────────────────

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
