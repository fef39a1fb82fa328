package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultWindow is the trailing interval over which calls are counted.
	DefaultWindow = time.Minute
	// DefaultLimit applies to every key without an override.
	DefaultLimit = 60
)

// Override sets the per-window limit for one operation key.
type Override struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Limit int    `yaml:"limit" mapstructure:"limit"`
}

// Config holds the limiter's window and limits.
// Overrides is a list rather than a map because keys such as
// "clipboard.write" contain the config loader's key delimiter.
type Config struct {
	Default   int           `yaml:"default" mapstructure:"default"`
	Window    time.Duration `yaml:"window" mapstructure:"window"`
	Overrides []Override    `yaml:"overrides" mapstructure:"overrides"`
}

// DefaultConfig returns the built-in limits, in calls per minute.
func DefaultConfig() Config {
	return Config{
		Default: DefaultLimit,
		Window:  DefaultWindow,
		Overrides: []Override{
			{Key: "notify", Limit: 10},
			{Key: "clipboard.write", Limit: 30},
			{Key: "screenshot", Limit: 5},
			{Key: "system.service_restart", Limit: 5},
		},
	}
}

// Validate reports every unusable value.
func (c Config) Validate() error {
	var errs []error
	if c.Default <= 0 {
		errs = append(errs, fmt.Errorf("default limit must be positive, got %d", c.Default))
	}
	if c.Window <= 0 {
		errs = append(errs, fmt.Errorf("window must be positive, got %s", c.Window))
	}
	seen := make(map[string]bool, len(c.Overrides))
	for i, o := range c.Overrides {
		switch {
		case o.Key == "":
			errs = append(errs, fmt.Errorf("overrides[%d]: key is required", i))
		case seen[o.Key]:
			errs = append(errs, fmt.Errorf("overrides[%d]: duplicate key %q", i, o.Key))
		case o.Limit <= 0:
			errs = append(errs, fmt.Errorf("overrides[%d] %q: limit must be positive, got %d", i, o.Key, o.Limit))
		}
		seen[o.Key] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("ratelimit: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) limits() map[string]int {
	m := make(map[string]int, len(c.Overrides))
	for _, o := range c.Overrides {
		m[o.Key] = o.Limit
	}
	return m
}
