package ratelimit

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// WindowConfig describes one sliding-window throttle rule.
type WindowConfig struct {
	Limit     int     `yaml:"limit" mapstructure:"limit" default:"10" validate:"gte=1"`
	WindowSec float64 `yaml:"window_sec" mapstructure:"window_sec" default:"10" validate:"gt=0"`
}

// DefaultBurst is the burst throttle applied when no rule is configured.
func DefaultBurst() WindowConfig {
	return WindowConfig{Limit: 10, WindowSec: 10}
}

// DefaultMinute is the per-minute throttle applied when no rule is
// configured.
func DefaultMinute() WindowConfig {
	return WindowConfig{Limit: 30, WindowSec: 60}
}

// ParseWindowConfig decodes a throttle rule's settings map into a
// WindowConfig, applying defaults and validating the result.
func ParseWindowConfig(settings map[string]any) (WindowConfig, error) {
	var cfg WindowConfig

	// Defaults go in first so an explicit zero in the settings survives
	// to validation instead of being re-defaulted.
	if err := defaults.Set(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to set defaults")
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &cfg,
		TagName: "mapstructure",
	})
	if err != nil {
		return cfg, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return cfg, errors.Wrap(err, "failed to decode settings")
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return cfg, errors.Wrap(err, "validation failed")
	}

	return cfg, nil
}
