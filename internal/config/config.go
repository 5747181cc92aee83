// Package config loads and saves the YAML server configuration.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text or json
}

// DatabaseConfig selects the storage driver.
type DatabaseConfig struct {
	// Driver is "sqlite3" (default) or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the SQLite file. Relative paths are resolved against the data directory.
	Path string `yaml:"path" json:"path"`
	// DSN is the lib/pq connection string used when Driver is postgres.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// SyncConfig controls calendar reconciliation.
type SyncConfig struct {
	Interval           Duration `yaml:"interval" json:"interval"`
	StartupDelay       Duration `yaml:"startup_delay" json:"startup_delay"`
	FetchTimeout       Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	StaleAfter         Duration `yaml:"stale_after" json:"stale_after"`
	RecurrenceHorizon  Duration `yaml:"recurrence_horizon" json:"recurrence_horizon"`
	MaxParallelFetches int      `yaml:"max_parallel_fetches" json:"max_parallel_fetches"`
}

// LabelsConfig holds the guest names used for events without a guest.
type LabelsConfig struct {
	CalendarBlock   string `yaml:"calendar_block" json:"calendar_block"`
	ExternalBooking string `yaml:"external_booking" json:"external_booking"`
}

// TelegramConfig enables sync failure alerts. Disabled when Token or ChatID is empty.
type TelegramConfig struct {
	Token  string `yaml:"token,omitempty" json:"-"`
	ChatID int64  `yaml:"chat_id,omitempty" json:"chat_id,omitempty"`
}

// Enabled reports whether alerts can be sent.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != 0
}

// Config is the top-level application configuration.
type Config struct {
	Listen   string         `yaml:"listen" json:"listen"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Sync     SyncConfig     `yaml:"sync" json:"sync"`
	Labels   LabelsConfig   `yaml:"labels" json:"labels"`
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`
}

// Defaults
const (
	DefaultListen             = ":8099"
	DefaultSyncInterval       = 30 * time.Minute
	DefaultStartupDelay       = 10 * time.Second
	DefaultFetchTimeout       = 30 * time.Second
	DefaultStaleAfter         = 7 * 24 * time.Hour
	DefaultRecurrenceHorizon  = 365 * 24 * time.Hour
	DefaultMaxParallelFetches = 4
	DefaultCalendarBlockLabel = "calendar block"
	DefaultExternalLabel      = "external booking"
	DefaultDatabaseFile       = "stayledger.db"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabaseFile
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = Duration(DefaultSyncInterval)
	}
	if c.Sync.StartupDelay <= 0 {
		c.Sync.StartupDelay = Duration(DefaultStartupDelay)
	}
	if c.Sync.FetchTimeout <= 0 {
		c.Sync.FetchTimeout = Duration(DefaultFetchTimeout)
	}
	if c.Sync.StaleAfter <= 0 {
		c.Sync.StaleAfter = Duration(DefaultStaleAfter)
	}
	if c.Sync.RecurrenceHorizon <= 0 {
		c.Sync.RecurrenceHorizon = Duration(DefaultRecurrenceHorizon)
	}
	if c.Sync.MaxParallelFetches <= 0 {
		c.Sync.MaxParallelFetches = DefaultMaxParallelFetches
	}
	if c.Labels.CalendarBlock == "" {
		c.Labels.CalendarBlock = DefaultCalendarBlockLabel
	}
	if c.Labels.ExternalBooking == "" {
		c.Labels.ExternalBooking = DefaultExternalLabel
	}
}

// ApplyEnv overrides file values with environment variables:
// DATABASE_URL switches to postgres, TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID set alerts.
func (c *Config) ApplyEnv() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.Driver = "postgres"
		c.Database.DSN = dsn
	}
	if tok := os.Getenv("TELEGRAM_BOT_TOKEN"); tok != "" {
		c.Telegram.Token = tok
	}
	if chat := os.Getenv("TELEGRAM_CHAT_ID"); chat != "" {
		if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
}

// DatabasePath resolves the SQLite path against dataDir.
func (c *Config) DatabasePath(dataDir string) string {
	if filepath.IsAbs(c.Database.Path) || dataDir == "" {
		return c.Database.Path
	}
	return filepath.Join(dataDir, c.Database.Path)
}

// Load loads configuration from the given YAML path.
// A missing file is created with defaults (0600) and the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg anyway so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".stayledger-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
