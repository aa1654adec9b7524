package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // shop timezones on hosts without a zoneinfo database

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/struk/internal/ble"
	"github.com/chaz8081/struk/internal/receipt"
)

// EnvPrefix prefixes environment overrides, e.g. STRUK_PRINTER_CHARSET.
const EnvPrefix = "STRUK"

// Config holds all application configuration.
type Config struct {
	Printer  PrinterConfig `yaml:"printer" split_words:"true"`
	Shop     ShopConfig    `yaml:"shop" split_words:"true"`
	Store    StoreConfig   `yaml:"store" split_words:"true"`
	Agent    AgentConfig   `yaml:"agent" split_words:"true"`
	LogLevel string        `yaml:"log_level" split_words:"true"`
}

// PrinterConfig holds printer connection and output settings.
type PrinterConfig struct {
	Transport         string         `yaml:"transport" split_words:"true"` // "ble" or "serial"
	LineWidth         int            `yaml:"line_width" split_words:"true"`
	ChunkSize         int            `yaml:"chunk_size" split_words:"true"`
	ChunkDelay        time.Duration  `yaml:"chunk_delay" split_words:"true"`
	ConnectTimeout    time.Duration  `yaml:"connect_timeout" split_words:"true"`
	WriteTimeout      time.Duration  `yaml:"write_timeout" split_words:"true"`
	ScanTimeout       time.Duration  `yaml:"scan_timeout" split_words:"true"`
	NamePrefixes      []string       `yaml:"name_prefixes" split_words:"true"`
	Candidates        []ble.GATTPair `yaml:"candidates" ignored:"true"`
	Charset           string         `yaml:"charset" split_words:"true"`
	Format            string         `yaml:"format" split_words:"true"` // "plain" or "tagged"
	ReconnectAttempts int            `yaml:"reconnect_attempts" split_words:"true"`
	ReconnectMax      int            `yaml:"reconnect_max" split_words:"true"` // seconds
	ReconnectOnDrop   bool           `yaml:"reconnect_on_drop" split_words:"true"`
	Serial            SerialConfig   `yaml:"serial" split_words:"true"`
}

// SerialConfig holds settings for the serial (SPP/USB) transport.
type SerialConfig struct {
	BaudRate int `yaml:"baud_rate" split_words:"true"`
}

// ShopConfig is printed in the receipt header and footer.
type ShopConfig struct {
	Name     string   `yaml:"name" split_words:"true"`
	Contacts []string `yaml:"contacts" split_words:"true"`
	Footer   []string `yaml:"footer" split_words:"true"`
	Timezone string   `yaml:"timezone" split_words:"true"`
}

// StoreConfig locates the saved-printer file.
type StoreConfig struct {
	Path string `yaml:"path" split_words:"true"`
}

// AgentConfig holds the local HTTP print agent settings.
type AgentConfig struct {
	Listen         string   `yaml:"listen" split_words:"true"`
	AllowedOrigins []string `yaml:"allowed_origins" split_words:"true"`
	JWTSecret      string   `yaml:"jwt_secret" split_words:"true"` // empty disables auth
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "struk")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Printer: PrinterConfig{
			Transport:         "ble",
			LineWidth:         32,
			ChunkSize:         150,
			ChunkDelay:        40 * time.Millisecond,
			ConnectTimeout:    15 * time.Second,
			WriteTimeout:      5 * time.Second,
			ScanTimeout:       8 * time.Second,
			NamePrefixes:      append([]string(nil), ble.DefaultNamePrefixes...),
			Candidates:        append([]ble.GATTPair(nil), ble.DefaultCandidates...),
			Charset:           "utf-8",
			Format:            "plain",
			ReconnectAttempts: 3,
			ReconnectMax:      30,
			Serial:            SerialConfig{BaudRate: 9600},
		},
		Shop: ShopConfig{
			Name:     "UD. KLAMPIS DEPO",
			Contacts: []string{"085100549376 | 085101381453"},
			Footer:   []string{receipt.DefaultFooter},
			Timezone: "Asia/Jakarta",
		},
		Store: StoreConfig{
			Path: expandTilde("~/.local/state/struk/printer.yaml"),
		},
		Agent: AgentConfig{
			Listen:         "127.0.0.1:8765",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in store.path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Store.Path = expandTilde(cfg.Store.Path)

	return cfg, nil
}

// ApplyEnv overrides fields from STRUK_* environment variables, e.g.
// STRUK_PRINTER_CHARSET=cp437 or STRUK_AGENT_JWT_SECRET=....
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	c.Store.Path = expandTilde(c.Store.Path)
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	p := c.Printer

	switch p.Transport {
	case "ble", "serial":
	default:
		return fmt.Errorf("printer.transport must be \"ble\" or \"serial\", got %q", p.Transport)
	}

	if p.LineWidth < 16 || p.LineWidth > 64 {
		return fmt.Errorf("printer.line_width must be between 16 and 64, got %d", p.LineWidth)
	}

	if p.ChunkSize <= 0 || p.ChunkSize > 512 {
		return fmt.Errorf("printer.chunk_size must be between 1 and 512, got %d", p.ChunkSize)
	}

	if p.ChunkDelay <= 0 {
		return fmt.Errorf("printer.chunk_delay must be > 0")
	}

	if p.ConnectTimeout <= 0 || p.WriteTimeout <= 0 || p.ScanTimeout <= 0 {
		return fmt.Errorf("printer timeouts must be > 0")
	}

	if len(p.Candidates) == 0 {
		return fmt.Errorf("printer.candidates must not be empty")
	}
	for i, cand := range p.Candidates {
		if cand.Service == "" || cand.Characteristic == "" {
			return fmt.Errorf("printer.candidates[%d] needs service and characteristic", i)
		}
	}

	switch strings.ToLower(p.Charset) {
	case "utf-8", "utf8", "cp437", "cp850", "cp1252":
	default:
		return fmt.Errorf("printer.charset must be utf-8, cp437, cp850, or cp1252, got %q", p.Charset)
	}

	switch p.Format {
	case "plain", "tagged":
	default:
		return fmt.Errorf("printer.format must be \"plain\" or \"tagged\", got %q", p.Format)
	}

	if p.ReconnectAttempts < 0 || p.ReconnectMax < 0 {
		return fmt.Errorf("printer.reconnect_attempts and printer.reconnect_max must be >= 0")
	}

	if p.Transport == "serial" && p.Serial.BaudRate <= 0 {
		return fmt.Errorf("printer.serial.baud_rate must be > 0")
	}

	if _, err := c.Shop.Location(); err != nil {
		return fmt.Errorf("shop.timezone: %w", err)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}

	if c.Agent.Listen == "" {
		return fmt.Errorf("agent.listen must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Location returns the shop's time zone, or nil to print times as stored.
func (s ShopConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return nil, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Receipt converts the shop settings for the receipt composer.
func (s ShopConfig) Receipt() (receipt.Shop, error) {
	loc, err := s.Location()
	if err != nil {
		return receipt.Shop{}, err
	}
	return receipt.Shop{
		Name:     s.Name,
		Contacts: s.Contacts,
		Footer:   s.Footer,
		Location: loc,
	}, nil
}

// ManagerOptions converts the printer settings for ble.NewManager.
func (p PrinterConfig) ManagerOptions() ble.ManagerOptions {
	return ble.ManagerOptions{
		ConnectTimeout:    p.ConnectTimeout,
		Candidates:        p.Candidates,
		ReconnectAttempts: p.ReconnectAttempts,
		ReconnectMax:      p.ReconnectMax,
		ReconnectOnDrop:   p.ReconnectOnDrop,
		Transport: ble.Transport{
			ChunkSize:    p.ChunkSize,
			Delay:        p.ChunkDelay,
			WriteTimeout: p.WriteTimeout,
		},
	}
}

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the written path, or "" when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	header := "# struk configuration\n# Environment variables prefixed with STRUK_ override these values.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a config log level to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
