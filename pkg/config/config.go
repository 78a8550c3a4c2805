// Package config loads sql-tracker settings from a TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"sql-tracker/pkg/tracker"
)

// EnvConfigPath names the variable holding the config file location.
const EnvConfigPath = "SQL_TRACKER_CONFIG"

// DefaultPath is used when neither a flag nor EnvConfigPath names a file.
const DefaultPath = "sql_tracker.toml"

// Config is the complete sql-tracker configuration.
type Config struct {
	Tracker TrackerConfig `toml:"tracker"`
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Docker  DockerConfig  `toml:"docker"`
	Notion  NotionConfig  `toml:"notion"`
}

// TrackerConfig configures which statements are tracked and where the dump goes.
type TrackerConfig struct {
	Enabled           bool     `toml:"enabled" envconfig:"SQL_TRACKER_ENABLED"`
	TrackedSQLCommand []string `toml:"tracked_sql_command" envconfig:"SQL_TRACKER_TRACKED_SQL_COMMAND"`
	TrackedPaths      []string `toml:"tracked_paths" envconfig:"SQL_TRACKER_TRACKED_PATHS"`
	OutputPath        string   `toml:"output_path" envconfig:"SQL_TRACKER_OUTPUT_PATH"`
	MaxSources        int      `toml:"max_sources" envconfig:"SQL_TRACKER_MAX_SOURCES"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr                string `toml:"addr" envconfig:"SQL_TRACKER_ADDR"`
	PushIntervalSeconds int    `toml:"push_interval_seconds" envconfig:"SQL_TRACKER_PUSH_INTERVAL_SECONDS"`
	TopN                int    `toml:"top_n" envconfig:"SQL_TRACKER_TOP_N"`
	SortBy              string `toml:"sort_by" envconfig:"SQL_TRACKER_SORT_BY"`
	RecentEvents        int    `toml:"recent_events" envconfig:"SQL_TRACKER_RECENT_EVENTS"`
}

// StorageConfig configures snapshot persistence. An empty DatabasePath
// disables it.
type StorageConfig struct {
	DatabasePath            string `toml:"database_path" envconfig:"SQL_TRACKER_DATABASE_PATH"`
	SnapshotIntervalSeconds int    `toml:"snapshot_interval_seconds" envconfig:"SQL_TRACKER_SNAPSHOT_INTERVAL_SECONDS"`
	RetentionHours          int    `toml:"retention_hours" envconfig:"SQL_TRACKER_RETENTION_HOURS"`
	// TrackQueries routes the store's own statements through the tracker.
	TrackQueries bool `toml:"track_queries" envconfig:"SQL_TRACKER_TRACK_QUERIES"`
}

// DockerConfig lists containers whose logs are tailed by the server.
type DockerConfig struct {
	Containers []string `toml:"containers" envconfig:"SQL_TRACKER_DOCKER_CONTAINERS"`
}

// NotionConfig holds the Notion export credentials.
type NotionConfig struct {
	APIKey     string `toml:"api_key" envconfig:"NOTION_API_KEY"`
	DatabaseID string `toml:"database_id" envconfig:"NOTION_DATABASE_ID"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Tracker: TrackerConfig{
			Enabled:           true,
			TrackedSQLCommand: []string{"SELECT", "INSERT", "UPDATE", "DELETE"},
			OutputPath:        DefaultOutputPath(os.Getpid(), time.Now()),
			MaxSources:        tracker.DefaultMaxSources,
		},
		Server: ServerConfig{
			Addr:                ":9000",
			PushIntervalSeconds: 5,
			TopN:                20,
			SortBy:              tracker.SortByCount,
			RecentEvents:        1000,
		},
		Storage: StorageConfig{
			DatabasePath:            "tmp/sql_tracker.db",
			SnapshotIntervalSeconds: 300,
			RetentionHours:          24 * 7,
		},
	}
}

// DefaultOutputPath is the dump location for a process.
func DefaultOutputPath(pid int, now time.Time) string {
	return filepath.Join("tmp", fmt.Sprintf("sql_tracker-%d-%d.json", pid, now.Unix()))
}

// LoadFromFile loads configuration from a TOML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path (or the file named by SQL_TRACKER_CONFIG, or DefaultPath),
// falling back to defaults when the file does not exist, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = DefaultConfig()
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overwrites fields whose environment variable is set. A
// blank SQL_TRACKER_TRACKED_PATHS turns path filtering off; an empty list
// can only be set from the config file.
func (c *Config) ApplyEnvOverrides() error {
	if err := envconfig.Process("", c); err != nil {
		return fmt.Errorf("failed to process env config: %w", err)
	}
	if v, ok := os.LookupEnv("SQL_TRACKER_TRACKED_PATHS"); ok && strings.TrimSpace(v) == "" {
		c.Tracker.TrackedPaths = nil
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.SortBy != "" && !tracker.ValidSortKey(c.Server.SortBy) {
		return fmt.Errorf("server.sort_by: unknown sort key %q", c.Server.SortBy)
	}
	if c.Server.PushIntervalSeconds < 0 {
		return fmt.Errorf("server.push_interval_seconds must not be negative, got %d", c.Server.PushIntervalSeconds)
	}
	if c.Server.TopN < 0 {
		return fmt.Errorf("server.top_n must not be negative, got %d", c.Server.TopN)
	}
	if c.Storage.SnapshotIntervalSeconds < 0 {
		return fmt.Errorf("storage.snapshot_interval_seconds must not be negative, got %d", c.Storage.SnapshotIntervalSeconds)
	}
	if c.Server.RecentEvents < 0 {
		return fmt.Errorf("server.recent_events must not be negative, got %d", c.Server.RecentEvents)
	}
	if c.Storage.RetentionHours < 0 {
		return fmt.Errorf("storage.retention_hours must not be negative, got %d", c.Storage.RetentionHours)
	}
	if c.Tracker.MaxSources < 0 {
		return fmt.Errorf("tracker.max_sources must not be negative, got %d", c.Tracker.MaxSources)
	}
	return nil
}

// Core returns the read-only configuration consumed by tracker.Handler.
func (t TrackerConfig) Core() *tracker.Config {
	return &tracker.Config{
		Enabled:           t.Enabled,
		TrackedSQLCommand: append([]string(nil), t.TrackedSQLCommand...),
		TrackedPaths:      copyPaths(t.TrackedPaths),
		MaxSources:        t.MaxSources,
	}
}

func copyPaths(paths []string) []string {
	if paths == nil {
		return nil
	}
	return append([]string{}, paths...)
}

// PushInterval returns the websocket push period.
func (s ServerConfig) PushInterval() time.Duration {
	return time.Duration(s.PushIntervalSeconds) * time.Second
}

// SnapshotInterval returns the period between automatic snapshots. Zero
// disables them.
func (s StorageConfig) SnapshotInterval() time.Duration {
	return time.Duration(s.SnapshotIntervalSeconds) * time.Second
}

// Retention returns how long snapshots are kept. Zero keeps them forever.
func (s StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionHours) * time.Hour
}

// Enabled reports whether Notion export is configured.
func (n NotionConfig) Enabled() bool {
	return n.APIKey != "" && n.DatabaseID != ""
}
