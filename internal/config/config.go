package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Scan     ScanConfig    `yaml:"scan"`
	Store    StoreConfig   `yaml:"store"`
	Receipt  ReceiptConfig `yaml:"receipt"`
}

// ScanConfig holds discovery settings.
type ScanConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects where the bound printer is remembered.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "file" or "sqlite"
	Path    string `yaml:"path"`
}

// ReceiptConfig holds receipt layout settings.
type ReceiptConfig struct {
	Width    int    `yaml:"width"` // characters per line in font A
	Currency string `yaml:"currency"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bleprint")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultStorePath returns the default printer store path for a backend.
func DefaultStorePath(backend string) string {
	if backend == "sqlite" {
		return filepath.Join(DefaultConfigDir(), "printer.db")
	}
	return filepath.Join(DefaultConfigDir(), "printer.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Scan: ScanConfig{
			Timeout: 7 * time.Second,
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    DefaultStorePath("file"),
		},
		Receipt: ReceiptConfig{
			Width:    32,
			Currency: "$",
		},
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
	cfg.Store.Path = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath(cfg.Store.Backend)
	}
	cfg.Store.Path = expandTilde(cfg.Store.Path)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("scan.timeout must be > 0")
	}

	switch c.Store.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("store.backend must be \"file\" or \"sqlite\", got %q", c.Store.Backend)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}

	if c.Receipt.Width < 16 {
		return fmt.Errorf("receipt.width must be >= 16, got %d", c.Receipt.Width)
	}

	return nil
}

const defaultHeader = `# bleprint configuration
# log_level: debug | info | warn | error
# store.backend: file | sqlite
`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the written path, or "" if a config was
// already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a log_level value to a slog.Level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
