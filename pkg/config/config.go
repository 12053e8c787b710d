// Package config provides the YAML configuration file of blockjobctl.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jdziat/simple-block-jobs/pkg/blockcopy"
	"github.com/jdziat/simple-block-jobs/pkg/copyjob"
	"github.com/jdziat/simple-block-jobs/pkg/schedule"
	"github.com/jdziat/simple-block-jobs/pkg/security"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "blockjobs.yaml"

// Config represents the blockjobctl configuration.
type Config struct {
	Copy     CopyConfig     `yaml:"copy"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Schedule string         `yaml:"schedule,omitempty"`
}

// CopyConfig configures the copy engine and driver.
type CopyConfig struct {
	ClusterSize     int64  `yaml:"cluster_size"`
	MemoryLimit     int64  `yaml:"memory_limit"`
	CopyRange       bool   `yaml:"copy_range"`
	SkipUnallocated bool   `yaml:"skip_unallocated"`
	Speed           int64  `yaml:"speed"`
	Mode            string `yaml:"mode"`
}

// DatabaseConfig configures the job history store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres
	DSN    string `yaml:"dsn"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Copy: CopyConfig{
			ClusterSize: 64 << 10,
			MemoryLimit: blockcopy.MaxMem,
			CopyRange:   true,
			Mode:        copyjob.ModeBackup.String(),
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "blockjobs.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the values that cannot be caught by the YAML decoder.
func (c *Config) Validate() error {
	if cs := c.Copy.ClusterSize; cs <= 0 || cs&(cs-1) != 0 {
		return fmt.Errorf("config: cluster_size %d is not a power of two", cs)
	}
	if c.Copy.MemoryLimit <= 0 {
		return fmt.Errorf("config: memory_limit must be positive")
	}
	if err := security.ValidateSpeed(c.Copy.Speed); err != nil {
		return fmt.Errorf("config: speed: %w", err)
	}
	if _, err := copyjob.ParseMode(c.Copy.Mode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Schedule != "" {
		if _, err := schedule.Parse(c.Schedule); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", name)
	}
	return l, nil
}

// Logger builds the logger described by the logging section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
