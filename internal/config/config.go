// Package config loads busgate settings from defaults, an optional YAML
// file, BUSGATE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ppiankov/busgate/internal/audit"
	"github.com/ppiankov/busgate/internal/ratelimit"
)

// EnvPrefix prefixes every environment override, e.g. BUSGATE_SAFETY_LEVEL.
const EnvPrefix = "BUSGATE"

// Config is the root configuration.
type Config struct {
	SafetyLevel string          `mapstructure:"safety_level"`
	Profile     string          `mapstructure:"profile"`
	CatalogPath string          `mapstructure:"catalog_path"`
	Log         LogConfig       `mapstructure:"log"`
	Audit       AuditConfig     `mapstructure:"audit"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`

	// Source is the config file that was read, empty if none.
	Source string `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type AuditConfig struct {
	Capacity   int      `mapstructure:"capacity"`
	RedactKeys []string `mapstructure:"redact_keys"`
}

type RateLimitConfig struct {
	Default   int                  `mapstructure:"default"`
	Window    time.Duration        `mapstructure:"window"`
	Overrides []ratelimit.Override `mapstructure:"overrides"`
	// Methods also rate limits raw bus method checks.
	Methods bool `mapstructure:"methods"`
}

type MetricsConfig struct {
	// Addr enables the Prometheus listener when non-empty, e.g. ":9464".
	Addr string `mapstructure:"addr"`
}

// flagKeys maps config keys to the flag names that override them.
var flagKeys = map[string]string{
	"safety_level":   "safety-level",
	"profile":        "profile",
	"catalog_path":   "catalog",
	"log.level":      "log-level",
	"log.format":     "log-format",
	"metrics.addr":   "metrics-addr",
	"audit.capacity": "audit-capacity",
}

// Load reads configuration. An explicit path must exist; without one,
// busgate.yaml is looked up in the working directory and the user config
// directory and silently skipped when absent. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("busgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "busgate"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()

	if cfg.RateLimit.Overrides == nil {
		cfg.RateLimit.Overrides = ratelimit.DefaultConfig().Overrides
	}
	return &cfg, nil
}

// RateLimits returns the limiter configuration.
func (c *Config) RateLimits() ratelimit.Config {
	return ratelimit.Config{
		Default:   c.RateLimit.Default,
		Window:    c.RateLimit.Window,
		Overrides: c.RateLimit.Overrides,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("safety_level", "high")
	v.SetDefault("profile", "auto")
	v.SetDefault("catalog_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("audit.capacity", audit.DefaultCapacity)
	v.SetDefault("audit.redact_keys", []string{})
	v.SetDefault("rate_limit.default", ratelimit.DefaultLimit)
	v.SetDefault("rate_limit.window", ratelimit.DefaultWindow)
	v.SetDefault("rate_limit.methods", false)
	v.SetDefault("metrics.addr", "")
}
