package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/struk/internal/ble"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return cfgPath
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Printer.Transport != "ble" {
		t.Errorf("Printer.Transport = %q, want %q", cfg.Printer.Transport, "ble")
	}
	if cfg.Printer.LineWidth != 32 {
		t.Errorf("Printer.LineWidth = %d, want 32", cfg.Printer.LineWidth)
	}
	if cfg.Printer.ChunkSize != 150 {
		t.Errorf("Printer.ChunkSize = %d, want 150", cfg.Printer.ChunkSize)
	}
	if cfg.Printer.ChunkDelay != 40*time.Millisecond {
		t.Errorf("Printer.ChunkDelay = %v, want 40ms", cfg.Printer.ChunkDelay)
	}
	if cfg.Printer.ConnectTimeout != 15*time.Second {
		t.Errorf("Printer.ConnectTimeout = %v, want 15s", cfg.Printer.ConnectTimeout)
	}
	if cfg.Printer.WriteTimeout != 5*time.Second {
		t.Errorf("Printer.WriteTimeout = %v, want 5s", cfg.Printer.WriteTimeout)
	}
	if len(cfg.Printer.Candidates) != len(ble.DefaultCandidates) {
		t.Errorf("Printer.Candidates length = %d, want %d", len(cfg.Printer.Candidates), len(ble.DefaultCandidates))
	}
	if cfg.Shop.Timezone != "Asia/Jakarta" {
		t.Errorf("Shop.Timezone = %q, want %q", cfg.Shop.Timezone, "Asia/Jakarta")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if strings.HasPrefix(cfg.Store.Path, "~") {
		t.Errorf("Store.Path = %q, tilde should be expanded", cfg.Store.Path)
	}
}

func TestDefaultCandidatesAreCopied(t *testing.T) {
	cfg := Default()
	cfg.Printer.Candidates[0].Service = "changed"
	if ble.DefaultCandidates[0].Service == "changed" {
		t.Error("Default() must not alias ble.DefaultCandidates")
	}
}

func TestLoad(t *testing.T) {
	cfgPath := writeConfig(t, `
printer:
  transport: serial
  line_width: 48
  chunk_size: 100
  chunk_delay: 60ms
  connect_timeout: 20s
  charset: cp437
  format: tagged
  reconnect_on_drop: true
  candidates:
    - service: 0000ff00-0000-1000-8000-00805f9b34fb
      characteristic: 0000ff02-0000-1000-8000-00805f9b34fb
  serial:
    baud_rate: 115200
shop:
  name: Toko Maju
  contacts: ["0812"]
  timezone: Asia/Makassar
store:
  path: /var/lib/struk/printer.yaml
agent:
  listen: 0.0.0.0:9000
  jwt_secret: s3cret
log_level: debug
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Printer.Transport != "serial" {
		t.Errorf("Printer.Transport = %q, want %q", cfg.Printer.Transport, "serial")
	}
	if cfg.Printer.LineWidth != 48 {
		t.Errorf("Printer.LineWidth = %d, want 48", cfg.Printer.LineWidth)
	}
	if cfg.Printer.ChunkDelay != 60*time.Millisecond {
		t.Errorf("Printer.ChunkDelay = %v, want 60ms", cfg.Printer.ChunkDelay)
	}
	if cfg.Printer.ConnectTimeout != 20*time.Second {
		t.Errorf("Printer.ConnectTimeout = %v, want 20s", cfg.Printer.ConnectTimeout)
	}
	if cfg.Printer.WriteTimeout != 5*time.Second {
		t.Errorf("Printer.WriteTimeout = %v, want default 5s", cfg.Printer.WriteTimeout)
	}
	if len(cfg.Printer.Candidates) != 1 || cfg.Printer.Candidates[0].Characteristic != "0000ff02-0000-1000-8000-00805f9b34fb" {
		t.Errorf("Printer.Candidates = %v", cfg.Printer.Candidates)
	}
	if !cfg.Printer.ReconnectOnDrop {
		t.Error("Printer.ReconnectOnDrop = false, want true")
	}
	if cfg.Printer.Serial.BaudRate != 115200 {
		t.Errorf("Printer.Serial.BaudRate = %d, want 115200", cfg.Printer.Serial.BaudRate)
	}
	if cfg.Shop.Name != "Toko Maju" {
		t.Errorf("Shop.Name = %q, want %q", cfg.Shop.Name, "Toko Maju")
	}
	if cfg.Store.Path != "/var/lib/struk/printer.yaml" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Agent.JWTSecret != "s3cret" {
		t.Errorf("Agent.JWTSecret = %q, want %q", cfg.Agent.JWTSecret, "s3cret")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	cfg, err := Load(writeConfig(t, "store:\n  path: ~/struk/printer.yaml\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "struk/printer.yaml")
	if cfg.Store.Path != expected {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, expected)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "printer: [oops\n"))
	if err == nil {
		t.Error("Load() should return error for invalid YAML")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("STRUK_PRINTER_CHARSET", "cp850")
	t.Setenv("STRUK_PRINTER_WRITE_TIMEOUT", "2s")
	t.Setenv("STRUK_PRINTER_NAME_PREFIXES", "RPP,ZJ")
	t.Setenv("STRUK_PRINTER_SERIAL_BAUD_RATE", "19200")
	t.Setenv("STRUK_SHOP_NAME", "Toko Env")
	t.Setenv("STRUK_AGENT_JWT_SECRET", "from-env")
	t.Setenv("STRUK_LOG_LEVEL", "warn")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Printer.Charset != "cp850" {
		t.Errorf("Printer.Charset = %q, want %q", cfg.Printer.Charset, "cp850")
	}
	if cfg.Printer.WriteTimeout != 2*time.Second {
		t.Errorf("Printer.WriteTimeout = %v, want 2s", cfg.Printer.WriteTimeout)
	}
	if len(cfg.Printer.NamePrefixes) != 2 || cfg.Printer.NamePrefixes[1] != "ZJ" {
		t.Errorf("Printer.NamePrefixes = %v, want [RPP ZJ]", cfg.Printer.NamePrefixes)
	}
	if cfg.Printer.Serial.BaudRate != 19200 {
		t.Errorf("Printer.Serial.BaudRate = %d, want 19200", cfg.Printer.Serial.BaudRate)
	}
	if cfg.Shop.Name != "Toko Env" {
		t.Errorf("Shop.Name = %q, want %q", cfg.Shop.Name, "Toko Env")
	}
	if cfg.Agent.JWTSecret != "from-env" {
		t.Errorf("Agent.JWTSecret = %q, want %q", cfg.Agent.JWTSecret, "from-env")
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "warn")
	}
	// Untouched fields keep their values.
	if cfg.Printer.ChunkSize != 150 {
		t.Errorf("Printer.ChunkSize = %d, want 150", cfg.Printer.ChunkSize)
	}
	if len(cfg.Printer.Candidates) != len(ble.DefaultCandidates) {
		t.Errorf("Printer.Candidates length = %d, want %d", len(cfg.Printer.Candidates), len(ble.DefaultCandidates))
	}
}

func TestApplyEnvIgnoresUnprefixed(t *testing.T) {
	t.Setenv("NAME", "host-name")
	t.Setenv("FORMAT", "tagged")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Shop.Name != "UD. KLAMPIS DEPO" {
		t.Errorf("Shop.Name = %q, unprefixed NAME must be ignored", cfg.Shop.Name)
	}
	if cfg.Printer.Format != "plain" {
		t.Errorf("Printer.Format = %q, unprefixed FORMAT must be ignored", cfg.Printer.Format)
	}
}

func TestApplyEnvBadValue(t *testing.T) {
	t.Setenv("STRUK_PRINTER_CHUNK_SIZE", "lots")

	if err := Default().ApplyEnv(); err == nil {
		t.Error("ApplyEnv() should fail for a non-numeric chunk size")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid transport",
			modify:  func(c *Config) { c.Printer.Transport = "usb" },
			wantErr: true,
		},
		{
			name:    "line width too small",
			modify:  func(c *Config) { c.Printer.LineWidth = 8 },
			wantErr: true,
		},
		{
			name:    "zero chunk size",
			modify:  func(c *Config) { c.Printer.ChunkSize = 0 },
			wantErr: true,
		},
		{
			name:    "zero chunk delay",
			modify:  func(c *Config) { c.Printer.ChunkDelay = 0 },
			wantErr: true,
		},
		{
			name:    "zero connect timeout",
			modify:  func(c *Config) { c.Printer.ConnectTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "empty candidates",
			modify:  func(c *Config) { c.Printer.Candidates = nil },
			wantErr: true,
		},
		{
			name:    "half candidate",
			modify:  func(c *Config) { c.Printer.Candidates = []ble.GATTPair{{Service: "ffe0"}} },
			wantErr: true,
		},
		{
			name:    "unknown charset",
			modify:  func(c *Config) { c.Printer.Charset = "koi8" },
			wantErr: true,
		},
		{
			name:    "unknown format",
			modify:  func(c *Config) { c.Printer.Format = "escpos" },
			wantErr: true,
		},
		{
			name:    "serial without baud rate",
			modify:  func(c *Config) { c.Printer.Transport = "serial"; c.Printer.Serial.BaudRate = 0 },
			wantErr: true,
		},
		{
			name:    "unknown timezone",
			modify:  func(c *Config) { c.Shop.Timezone = "Mars/Olympus" },
			wantErr: true,
		},
		{
			name:    "empty timezone",
			modify:  func(c *Config) { c.Shop.Timezone = "" },
			wantErr: false,
		},
		{
			name:    "empty store path",
			modify:  func(c *Config) { c.Store.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestShopReceipt(t *testing.T) {
	shop, err := Default().Shop.Receipt()
	if err != nil {
		t.Fatalf("Receipt() error = %v", err)
	}
	if shop.Location == nil || shop.Location.String() != "Asia/Jakarta" {
		t.Errorf("Location = %v, want Asia/Jakarta", shop.Location)
	}
	if shop.Name != "UD. KLAMPIS DEPO" {
		t.Errorf("Name = %q", shop.Name)
	}
}

func TestManagerOptions(t *testing.T) {
	p := Default().Printer
	p.ReconnectOnDrop = true

	opts := p.ManagerOptions()

	if opts.ConnectTimeout != 15*time.Second {
		t.Errorf("ConnectTimeout = %v, want 15s", opts.ConnectTimeout)
	}
	if opts.Transport.ChunkSize != 150 || opts.Transport.Delay != 40*time.Millisecond || opts.Transport.WriteTimeout != 5*time.Second {
		t.Errorf("Transport = %+v", opts.Transport)
	}
	if opts.ReconnectAttempts != 3 || opts.ReconnectMax != 30 || !opts.ReconnectOnDrop {
		t.Errorf("reconnect options = %+v", opts)
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "struk", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}

	if !strings.HasPrefix(string(data), "# struk") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}

	if cfg.Printer.ChunkDelay != 40*time.Millisecond {
		t.Errorf("written config Printer.ChunkDelay = %v, want 40ms", cfg.Printer.ChunkDelay)
	}
	if len(cfg.Printer.Candidates) != len(ble.DefaultCandidates) {
		t.Errorf("written config has %d candidates, want %d", len(cfg.Printer.Candidates), len(ble.DefaultCandidates))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config does not validate: %v", err)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "struk")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("log_level: debug\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
