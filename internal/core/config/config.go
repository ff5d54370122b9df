// Package config handles configuration loading and validation for streamnook.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Sounds      SoundConfig       `yaml:"sounds"`
	Sources     SourcesConfig     `yaml:"sources"`
	Database    DatabaseConfig    `yaml:"database"`
	UpdateCheck UpdateCheckConfig `yaml:"update_check"`
	DataDir     string            `yaml:"-"` // set by caller, not from config file
}

// EngineConfig tunes the notification engine.
type EngineConfig struct {
	// MaxNotifications caps the in-memory store and the persisted snapshot.
	MaxNotifications int `yaml:"max_notifications"`
	// IdleWindowMS is the cluster debounce window in milliseconds.
	IdleWindowMS int `yaml:"idle_window_ms"`
	// PreviewMS is the auto-hide duration of the tray preview in milliseconds.
	PreviewMS int `yaml:"preview_ms"`
	// RetentionDays bounds the age of persisted entries restored on load.
	RetentionDays int `yaml:"retention_days"`
	// ClusterEventCap bounds the contributing-event list per cluster.
	ClusterEventCap int `yaml:"cluster_event_cap"`
	// EnrichTimeoutMS bounds optional payload enrichment lookups.
	EnrichTimeoutMS int `yaml:"enrich_timeout_ms"`
}

// IdleWindow returns the cluster debounce window as a duration.
func (c EngineConfig) IdleWindow() time.Duration {
	return time.Duration(c.IdleWindowMS) * time.Millisecond
}

// Preview returns the preview auto-hide duration.
func (c EngineConfig) Preview() time.Duration {
	return time.Duration(c.PreviewMS) * time.Millisecond
}

// Retention returns the persisted-entry retention window.
func (c EngineConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// EnrichTimeout returns the enrichment deadline.
func (c EngineConfig) EnrichTimeout() time.Duration {
	return time.Duration(c.EnrichTimeoutMS) * time.Millisecond
}

// SoundConfig holds the externally owned sound preference flags. The
// engine reads these; it never mutates them.
type SoundConfig struct {
	// Enabled is the master switch for audio cues.
	Enabled bool `yaml:"enabled"`
	// Style selects the cue sample set.
	Style string `yaml:"style"`
	// Method is the presentation surface this process renders with.
	Method string `yaml:"method"`
	// Kinds disables cues per notification kind. Absent kinds are enabled.
	Kinds map[string]bool `yaml:"kinds"`
	// Methods disables cues per presentation method (island, toast, native).
	Methods map[string]bool `yaml:"methods"`
	// Mute lists glob patterns of kinds to silence, e.g. "channel_*".
	Mute []string `yaml:"mute"`
}

// SourcesConfig controls which event sources are subscribed.
type SourcesConfig struct {
	// Enabled lists glob patterns matched against source IDs.
	Enabled []string `yaml:"enabled"`
	// DropDir is the spool directory backends drop event files into.
	// Empty disables the spool source.
	DropDir string `yaml:"drop_dir"`
}

// Allows reports whether a source ID matches any enabled pattern.
func (c SourcesConfig) Allows(sourceID string) bool {
	for _, pattern := range c.Enabled {
		if ok, err := doublestar.Match(pattern, sourceID); err == nil && ok {
			return true
		}
	}
	return false
}

// DatabaseConfig tunes the SQLite connection pool.
type DatabaseConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
	BusyTimeout  int `yaml:"busy_timeout"`
}

// UpdateCheckConfig controls the release-poll source.
type UpdateCheckConfig struct {
	// Enabled turns the update-check source on.
	Enabled bool `yaml:"enabled"`
	// IntervalHours is the poll interval.
	IntervalHours int `yaml:"interval_hours"`
}

// Interval returns the poll interval as a duration.
func (c UpdateCheckConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			MaxNotifications: 20,
			IdleWindowMS:     3000,
			PreviewMS:        3000,
			RetentionDays:    7,
			ClusterEventCap:  25,
			EnrichTimeoutMS:  1500,
		},
		Sounds: SoundConfig{
			Enabled: true,
			Style:   "default",
			Method:  "island",
		},
		Sources: SourcesConfig{
			Enabled: []string{"*"},
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			BusyTimeout:  5000,
		},
		UpdateCheck: UpdateCheckConfig{
			Enabled:       true,
			IntervalHours: 24,
		},
	}
}

// Load reads the config file at path, merging it over defaults. A missing
// file yields the defaults. The dataDir is recorded on the returned config.
func Load(path, dataDir string) (Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.DataDir = dataDir

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config %s: %w", path, err)
	}

	return cfg, nil
}
