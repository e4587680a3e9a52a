// Package config loads the server configuration from a YAML file and
// ASDB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sydlexius/anisongdb/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     logging.Config    `yaml:"logging"`
	Search      SearchConfig      `yaml:"search"`
	Backup      BackupConfig      `yaml:"backup"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Watch       WatchConfig       `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	// SearchRate is the sustained number of search requests per second
	// allowed from one client. Zero disables limiting.
	SearchRate  float64 `yaml:"search_rate"`
	SearchBurst int     `yaml:"search_burst"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig holds search and artist resolution limits.
type SearchConfig struct {
	MaxResults int `yaml:"max_results"`
	// Threshold is the candidate count above which artist resolution
	// narrows partial matches to full matches.
	Threshold int `yaml:"threshold"`
	// CacheTTL expires the in-memory song corpus. Zero keeps it until the
	// database changes.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// BackupConfig holds database snapshot settings.
type BackupConfig struct {
	Path       string `yaml:"path"`
	MaxCount   int    `yaml:"max_count"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MaintenanceConfig holds database upkeep settings.
type MaintenanceConfig struct {
	// IntervalHours between optimize runs. Zero disables the scheduler.
	IntervalHours int `yaml:"interval_hours"`
}

// WatchConfig controls reloading when the database file is replaced.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			BasePath:    "/",
			SearchRate:  5,
			SearchBurst: 10,
		},
		Database: DatabaseConfig{
			Path: "/data/anisongdb.db",
		},
		Logging: logging.DefaultConfig(),
		Search: SearchConfig{
			MaxResults: 250,
			Threshold:  10,
		},
		Backup: BackupConfig{
			Path:       "/data/backups",
			MaxCount:   7,
			MaxAgeDays: 30,
		},
		Maintenance: MaintenanceConfig{
			IntervalHours: 24,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 2 * time.Second,
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from the command line
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

type lookupFunc func(string) (string, bool)

// envVar binds one ASDB_* variable to a field.
type envVar struct {
	name string
	set  func(string) error
}

func (c *Config) envVars() []envVar {
	return []envVar{
		{"ASDB_PORT", intSetter(&c.Server.Port)},
		{"ASDB_BASE_PATH", stringSetter(&c.Server.BasePath)},
		{"ASDB_SEARCH_RATE", floatSetter(&c.Server.SearchRate)},
		{"ASDB_SEARCH_BURST", intSetter(&c.Server.SearchBurst)},
		{"ASDB_DB_PATH", stringSetter(&c.Database.Path)},
		{"ASDB_LOG_LEVEL", stringSetter(&c.Logging.Level)},
		{"ASDB_LOG_FORMAT", stringSetter(&c.Logging.Format)},
		{"ASDB_LOG_FILE", stringSetter(&c.Logging.FilePath)},
		{"ASDB_MAX_RESULTS", intSetter(&c.Search.MaxResults)},
		{"ASDB_RESOLVE_THRESHOLD", intSetter(&c.Search.Threshold)},
		{"ASDB_CACHE_TTL", durationSetter(&c.Search.CacheTTL)},
		{"ASDB_BACKUP_PATH", stringSetter(&c.Backup.Path)},
		{"ASDB_BACKUP_MAX_COUNT", intSetter(&c.Backup.MaxCount)},
		{"ASDB_BACKUP_MAX_AGE_DAYS", intSetter(&c.Backup.MaxAgeDays)},
		{"ASDB_MAINTENANCE_INTERVAL_HOURS", intSetter(&c.Maintenance.IntervalHours)},
		{"ASDB_WATCH", boolSetter(&c.Watch.Enabled)},
		{"ASDB_WATCH_DEBOUNCE", durationSetter(&c.Watch.Debounce)},
	}
}

func (c *Config) loadFromEnv(lookup lookupFunc) error {
	var errs []error
	for _, v := range c.envVars() {
		raw, ok := lookup(v.name)
		if !ok || raw == "" {
			continue
		}
		if err := v.set(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.name, err))
		}
	}
	return errors.Join(errs...)
}

func stringSetter(p *string) func(string) error {
	return func(s string) error { *p = s; return nil }
}

func intSetter(p *int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func floatSetter(p *float64) func(string) error {
	return func(s string) error {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*p = f
		return nil
	}
}

func boolSetter(p *bool) func(string) error {
	return func(s string) error {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		*p = b
		return nil
	}
}

func durationSetter(p *time.Duration) func(string) error {
	return func(s string) error {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*p = d
		return nil
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.SearchRate < 0 || c.Server.SearchBurst < 0 {
		return fmt.Errorf("search rate limit must not be negative")
	}
	if c.Server.SearchRate > 0 && c.Server.SearchBurst == 0 {
		c.Server.SearchBurst = 1
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("invalid max results: %d", c.Search.MaxResults)
	}
	if c.Search.Threshold < 1 {
		return fmt.Errorf("invalid resolve threshold: %d", c.Search.Threshold)
	}
	if c.Search.CacheTTL < 0 {
		return fmt.Errorf("invalid cache ttl: %s", c.Search.CacheTTL)
	}
	if c.Backup.MaxCount < 0 || c.Backup.MaxAgeDays < 0 {
		return fmt.Errorf("backup retention must not be negative")
	}
	if c.Maintenance.IntervalHours < 0 {
		return fmt.Errorf("invalid maintenance interval: %d", c.Maintenance.IntervalHours)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("invalid watch debounce: %s", c.Watch.Debounce)
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}
