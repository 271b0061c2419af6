package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8787 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8787)
	}
	if cfg.Scale.BaudRate != 9600 {
		t.Errorf("Scale.BaudRate = %d, want %d", cfg.Scale.BaudRate, 9600)
	}
	if cfg.Scale.AutoConnect {
		t.Error("Scale.AutoConnect should be false by default (opt-in)")
	}

	if !cfg.Sync.Enabled {
		t.Error("Sync.Enabled should be true by default")
	}
	if cfg.Sync.PollInterval != "5s" {
		t.Errorf("Sync.PollInterval = %q, want %q", cfg.Sync.PollInterval, "5s")
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false by default")
	}
	if cfg.Station.CLINodeID == cfg.Station.NodeID {
		t.Errorf("Station.CLINodeID = NodeID = %d, want distinct nodes", cfg.Station.NodeID)
	}
	if cfg.Station.DefaultUnit != "kg" {
		t.Errorf("Station.DefaultUnit = %q, want %q", cfg.Station.DefaultUnit, "kg")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := LoadConfig(home, "")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 8787 {
		t.Errorf("API.Port = %d, want default", cfg.API.Port)
	}
	if cfg.Database.Dir != home {
		t.Errorf("Database.Dir = %q, want home %q", cfg.Database.Dir, home)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, ConfigFileName)
	os.WriteFile(path, []byte(`
[api]
port = 9000

[scale]
port = "/dev/ttyUSB0"
auto_connect = true

[sync]
poll_interval = "1m"
`), 0o600)

	t.Setenv("TIMBANG_API_PORT", "9100")
	t.Setenv("TIMBANG_METRICS_ENABLED", "true")
	t.Setenv("TIMBANG_SCALE_BAUD", "not-a-number")

	cfg, err := LoadConfig(home, "")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("API.Port = %d, want env override 9100", cfg.API.Port)
	}
	if cfg.Scale.Port != "/dev/ttyUSB0" || !cfg.Scale.AutoConnect {
		t.Errorf("Scale = %+v", cfg.Scale)
	}
	if cfg.Scale.BaudRate != 9600 {
		t.Errorf("Scale.BaudRate = %d, unparsable env should keep 9600", cfg.Scale.BaudRate)
	}
	if mustDuration(cfg.Sync.PollInterval) != time.Minute {
		t.Errorf("Sync.PollInterval = %q", cfg.Sync.PollInterval)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should come from env")
	}
	// Untouched keys keep their defaults.
	if cfg.API.Host != "127.0.0.1" || !cfg.Sync.Enabled {
		t.Errorf("defaults lost: api.host=%q sync.enabled=%v", cfg.API.Host, cfg.Sync.Enabled)
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	home := t.TempDir()
	os.WriteFile(filepath.Join(home, ".env"), []byte("TIMBANG_SYNC_URL=https://example.test/exec\n"), 0o600)
	t.Setenv("TIMBANG_SYNC_URL", "")
	os.Unsetenv("TIMBANG_SYNC_URL")

	cfg, err := LoadConfig(home, "")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Sync.URL != "https://example.test/exec" {
		t.Errorf("Sync.URL = %q, want value from .env", cfg.Sync.URL)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want string
	}{
		{"bad toml", `[api`, "read config"},
		{"node id", "[station]\nnode_id = 2048", "node_id"},
		{"cli node id", "[station]\ncli_node_id = -1", "cli_node_id"},
		{"shared node id", "[station]\nnode_id = 7\ncli_node_id = 7", "must differ"},
		{"log level", "[log]\nlevel = \"loud\"", "log.level"},
		{"encoding", "[log]\nencoding = \"xml\"", "log.encoding"},
		{"duration", "[sync]\npush_timeout = \"soon\"", "sync.push_timeout"},
		{"baud", "[scale]\nbaud_rate = 0", "baud_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			path := filepath.Join(home, "custom.toml")
			os.WriteFile(path, []byte(tt.toml), 0o600)
			_, err := LoadConfig(home, path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "sub", ConfigFileName)
	cfg := DefaultConfig()
	cfg.Scale.Port = "COM3"

	if err := WriteConfig(path, cfg); err != nil {
		t.Fatalf("WriteConfig() error: %v", err)
	}
	if err := WriteConfig(path, cfg); err == nil {
		t.Error("WriteConfig() should refuse to overwrite")
	}

	got, err := LoadConfig(home, path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got.Scale.Port != "COM3" {
		t.Errorf("Scale.Port = %q, want COM3", got.Scale.Port)
	}
}

func TestNewLogger(t *testing.T) {
	for _, enc := range []string{"console", "json"} {
		log, err := NewLogger(LogConfig{Level: "debug", Encoding: enc})
		if err != nil {
			t.Fatalf("NewLogger(%s) error: %v", enc, err)
		}
		if !log.Core().Enabled(-1) {
			t.Errorf("%s logger should enable debug", enc)
		}
	}
	if _, err := NewLogger(LogConfig{Level: "loud"}); err == nil {
		t.Error("NewLogger() should reject an unknown level")
	}
}
