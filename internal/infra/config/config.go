// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/waveroom/waveroom/internal/app/ratelimit"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Limits  LimitsConfig  `yaml:"limits"`
	Sync    SyncConfig    `yaml:"sync"`
	Catalog CatalogConfig `yaml:"catalog"`
	Auth    AuthConfig    `yaml:"auth"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// LimitsConfig represents the abuse-control configuration.
type LimitsConfig struct {
	MaxConnectionsPerSession int `yaml:"max_connections_per_session" default:"3" validate:"gte=0"`
	MaxConnectionsPerIP      int `yaml:"max_connections_per_ip" default:"5" validate:"gte=0"`
	// DailyLimitSeconds caps cumulative connected time per day for
	// unauthenticated sessions. Zero disables the quota.
	DailyLimitSeconds int `yaml:"daily_limit_seconds" default:"3600" validate:"gte=0"`

	Throttles map[string]ThrottleConfig `yaml:"throttles"`
}

// ThrottleConfig represents one message-throttle rule's configuration.
type ThrottleConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// SyncConfig represents the room synchronization configuration.
type SyncConfig struct {
	IntervalSec int `yaml:"interval_sec" default:"5" validate:"gte=1"`
	RoomTTLSec  int `yaml:"room_ttl_sec" default:"3600" validate:"gte=60"`
}

// CatalogConfig represents the song library configuration.
type CatalogConfig struct {
	Path string `yaml:"path" default:"waveroom.db"`
}

// AuthConfig represents authentication configuration. Sessions
// presenting one of the bearer tokens bypass the daily quota.
type AuthConfig struct {
	Tokens []string `yaml:"tokens"`
}

// Throttle rule names recognized in limits.throttles.
const (
	ThrottleBurst  = "burst"
	ThrottleMinute = "minute"
)

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	// Defaults go in first so an explicit zero in the file or the
	// environment survives instead of being re-defaulted.
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	cfg.overrideFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("WAVEROOM_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("WAVEROOM_CATALOG_PATH"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("WAVEROOM_AUTH_TOKENS"); v != "" {
		c.Auth.Tokens = strings.Split(v, ",")
	}
	if v := os.Getenv("WAVEROOM_DAILY_LIMIT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limits.DailyLimitSeconds = n
		}
	}
}

// Validate validates the configuration, including every enabled
// throttle rule's settings.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	for name, rule := range c.Limits.Throttles {
		if name != ThrottleBurst && name != ThrottleMinute {
			return errors.Newf("unknown throttle rule: %s", name)
		}
		if !rule.Enabled {
			continue
		}
		if _, err := ratelimit.ParseWindowConfig(rule.Settings); err != nil {
			return errors.Wrapf(err, "throttle rule %s", name)
		}
	}

	return nil
}

// LimiterOptions materializes the abuse-control knobs. A throttle rule
// absent from the map runs with its default window; an explicitly
// disabled rule is off.
func (c *Config) LimiterOptions() (ratelimit.Options, error) {
	opts := ratelimit.Options{
		MaxConnectionsPerSession: c.Limits.MaxConnectionsPerSession,
		MaxConnectionsPerIP:      c.Limits.MaxConnectionsPerIP,
		DailyLimitSeconds:        c.Limits.DailyLimitSeconds,
		Burst:                    ratelimit.DefaultBurst(),
		Minute:                   ratelimit.DefaultMinute(),
	}

	if rule, ok := c.Limits.Throttles[ThrottleBurst]; ok {
		w, err := throttleWindow(rule)
		if err != nil {
			return opts, errors.Wrap(err, "throttle rule burst")
		}
		opts.Burst = w
	}
	if rule, ok := c.Limits.Throttles[ThrottleMinute]; ok {
		w, err := throttleWindow(rule)
		if err != nil {
			return opts, errors.Wrap(err, "throttle rule minute")
		}
		opts.Minute = w
	}

	return opts, nil
}

// SyncInterval returns the clock broadcast period.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSec) * time.Second
}

// RoomTTL returns how long an untouched room survives.
func (c *Config) RoomTTL() time.Duration {
	return time.Duration(c.Sync.RoomTTLSec) * time.Second
}

func throttleWindow(rule ThrottleConfig) (ratelimit.WindowConfig, error) {
	if !rule.Enabled {
		// zero limit disables the rule in the limiter
		return ratelimit.WindowConfig{}, nil
	}
	return ratelimit.ParseWindowConfig(rule.Settings)
}
