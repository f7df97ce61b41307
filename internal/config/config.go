// Package config provides configuration loading and management for the
// room watcher daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roomwatch/roomwatch/internal/refresh"
	"github.com/roomwatch/roomwatch/internal/room"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "ROOMWATCH"

const (
	defaultAddress        = ":8080"
	defaultCooldown       = 10 * time.Second
	defaultAutoInterval   = 2 * time.Minute
	defaultJitterMax      = 3 * time.Second
	defaultAvatarTTL      = 6 * time.Hour
	defaultRequestTimeout = 10 * time.Second
	defaultFlushInterval  = 30 * time.Second
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Rooms     []RoomConfig     `yaml:"rooms"`
	Server    *ServerConfig    `yaml:"server,omitempty"`
	Refresh   *RefreshConfig   `yaml:"refresh,omitempty"`
	Store     *StoreConfig     `yaml:"store,omitempty"`
	Notify    *NotifyConfig    `yaml:"notify,omitempty"`
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// RoomConfig identifies a single monitored room
type RoomConfig struct {
	// Platform is the streaming platform (bilibili, douyu, or huya)
	Platform string `yaml:"platform"`

	// ID is the platform-specific room identifier
	ID string `yaml:"id"`

	// Favorite rooms are refreshed before the rest of the roster
	Favorite bool `yaml:"favorite,omitempty"`
}

// ServerConfig defines HTTP server settings
type ServerConfig struct {
	// Address is the listen address, e.g. ":8080"
	Address string `yaml:"address,omitempty"`
}

// RefreshConfig defines refresh engine settings. Durations are strings
// parsed with time.ParseDuration, e.g. "10s" or "2m".
type RefreshConfig struct {
	// Cooldown is the minimum gap between manual refreshes
	Cooldown string `yaml:"cooldown,omitempty"`

	// AutoInterval is the period of the auto-refresh schedule
	AutoInterval string `yaml:"autoInterval,omitempty"`

	// JitterMax is the maximum per-room delay applied on the initial load
	JitterMax string `yaml:"jitterMax,omitempty"`

	// AvatarTTL is how long a cached avatar is trusted before it is
	// requested again
	AvatarTTL string `yaml:"avatarTTL,omitempty"`

	// RequestTimeout bounds each upstream HTTP request
	RequestTimeout string `yaml:"requestTimeout,omitempty"`

	// Concurrency overrides the roster-size concurrency tiers
	Concurrency *ConcurrencyConfig `yaml:"concurrency,omitempty"`

	// Batch overrides the roster-size batch-notify tiers
	Batch *BatchConfig `yaml:"batch,omitempty"`
}

// ConcurrencyConfig defines the roster-size tiers for the fetch
// concurrency ceiling
type ConcurrencyConfig struct {
	SmallRoster   int `yaml:"smallRoster,omitempty"`
	MediumRoster  int `yaml:"mediumRoster,omitempty"`
	SmallCeiling  int `yaml:"smallCeiling,omitempty"`
	MediumCeiling int `yaml:"mediumCeiling,omitempty"`
	LargeCeiling  int `yaml:"largeCeiling,omitempty"`
}

// BatchConfig defines the roster-size tiers for batch notifications
type BatchConfig struct {
	Threshold  int `yaml:"threshold,omitempty"`
	SmallBatch int `yaml:"smallBatch,omitempty"`
	LargeBatch int `yaml:"largeBatch,omitempty"`
}

// StoreConfig defines cache persistence settings
type StoreConfig struct {
	// Path is the LevelDB database directory. Empty disables persistence.
	Path string `yaml:"path,omitempty"`

	// FlushInterval is how often buffered cache entries are written out
	FlushInterval string `yaml:"flushInterval,omitempty"`
}

// NotifyConfig defines cycle notification settings
type NotifyConfig struct {
	// WebhookURL receives a JSON summary after each cycle that changed
	// something. Empty disables the webhook.
	WebhookURL string `yaml:"webhookUrl,omitempty"`
}

// TelemetryConfig defines metrics exposure settings
type TelemetryConfig struct {
	// Metrics enables the Prometheus /metrics endpoint
	Metrics bool `yaml:"metrics,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	// Read the entire file into memory
	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML content
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Validate the config
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Roster converts the configured rooms to descriptors, in file order.
func (c *Config) Roster() []room.Descriptor {
	roster := make([]room.Descriptor, len(c.Rooms))
	for i, r := range c.Rooms {
		roster[i] = room.Descriptor{
			Platform: room.Platform(r.Platform),
			ID:       r.ID,
			Favorite: r.Favorite,
		}
	}
	return roster
}

// GetAddress returns the server listen address, using ":8080" if not
// specified.
func (c *Config) GetAddress() string {
	if c.Server == nil || c.Server.Address == "" {
		return defaultAddress
	}
	return c.Server.Address
}

// GetCooldown returns the manual refresh cooldown.
func (c *Config) GetCooldown() time.Duration {
	return c.refreshDuration(func(r *RefreshConfig) string { return r.Cooldown }, defaultCooldown)
}

// GetAutoInterval returns the auto-refresh period.
func (c *Config) GetAutoInterval() time.Duration {
	return c.refreshDuration(func(r *RefreshConfig) string { return r.AutoInterval }, defaultAutoInterval)
}

// GetJitterMax returns the maximum cold-start jitter delay.
func (c *Config) GetJitterMax() time.Duration {
	return c.refreshDuration(func(r *RefreshConfig) string { return r.JitterMax }, defaultJitterMax)
}

// GetAvatarTTL returns the cached avatar lifetime.
func (c *Config) GetAvatarTTL() time.Duration {
	return c.refreshDuration(func(r *RefreshConfig) string { return r.AvatarTTL }, defaultAvatarTTL)
}

// GetRequestTimeout returns the per-request upstream timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return c.refreshDuration(func(r *RefreshConfig) string { return r.RequestTimeout }, defaultRequestTimeout)
}

// GetFlushInterval returns the persistence flush period.
func (c *Config) GetFlushInterval() time.Duration {
	if c.Store == nil || c.Store.FlushInterval == "" {
		return defaultFlushInterval
	}
	d, err := time.ParseDuration(c.Store.FlushInterval)
	if err != nil {
		return defaultFlushInterval
	}
	return d
}

// GetSizing returns the cycle sizing tiers, applying any configured
// overrides on top of the defaults.
func (c *Config) GetSizing() refresh.Sizing {
	s := refresh.DefaultSizing()
	if c.Refresh == nil {
		return s
	}
	if cc := c.Refresh.Concurrency; cc != nil {
		overrideInt(&s.SmallRoster, cc.SmallRoster)
		overrideInt(&s.MediumRoster, cc.MediumRoster)
		overrideInt(&s.SmallCeiling, cc.SmallCeiling)
		overrideInt(&s.MediumCeiling, cc.MediumCeiling)
		overrideInt(&s.LargeCeiling, cc.LargeCeiling)
	}
	if bc := c.Refresh.Batch; bc != nil {
		overrideInt(&s.BatchThreshold, bc.Threshold)
		overrideInt(&s.SmallBatch, bc.SmallBatch)
		overrideInt(&s.LargeBatch, bc.LargeBatch)
	}
	return s
}

func overrideInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// refreshDuration parses the selected refresh duration field, falling back
// to the default when the field is absent. Validation already rejected
// unparseable values.
func (c *Config) refreshDuration(field func(*RefreshConfig) string, fallback time.Duration) time.Duration {
	if c.Refresh == nil {
		return fallback
	}
	raw := field(c.Refresh)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if len(c.Rooms) == 0 {
		return fmt.Errorf("at least one room must be configured")
	}

	seen := make(map[string]bool)
	for i, r := range c.Rooms {
		if r.ID == "" {
			return fmt.Errorf("room[%d]: id is required", i)
		}
		if !room.Platform(r.Platform).Valid() {
			return fmt.Errorf("room[%d]: unsupported platform %q", i, r.Platform)
		}
		key := room.Key(room.Platform(r.Platform), r.ID)
		if seen[key] {
			return fmt.Errorf("room[%d]: duplicate room %s", i, key)
		}
		seen[key] = true
	}

	if err := c.validateDurations(); err != nil {
		return err
	}

	if c.Store != nil && c.Store.FlushInterval != "" {
		if _, err := time.ParseDuration(c.Store.FlushInterval); err != nil {
			return fmt.Errorf("store.flushInterval must be a valid duration (e.g., '30s', '1m'): %w", err)
		}
	}

	return nil
}

// validateDurations checks each refresh duration string parses
func (c *Config) validateDurations() error {
	if c.Refresh == nil {
		return nil
	}
	fields := []struct {
		name  string
		value string
	}{
		{"refresh.cooldown", c.Refresh.Cooldown},
		{"refresh.autoInterval", c.Refresh.AutoInterval},
		{"refresh.jitterMax", c.Refresh.JitterMax},
		{"refresh.avatarTTL", c.Refresh.AvatarTTL},
		{"refresh.requestTimeout", c.Refresh.RequestTimeout},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if _, err := time.ParseDuration(f.value); err != nil {
			return fmt.Errorf("%s must be a valid duration (e.g., '30s', '2m'): %w", f.name, err)
		}
	}
	return nil
}
