package policy

import (
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/busgate/internal/catalog"
	"github.com/ppiankov/busgate/internal/metrics"
	"github.com/ppiankov/busgate/internal/ratelimit"
)

// DefaultForbiddenTools are tool names refused before rate limiting,
// whatever the safety level.
var DefaultForbiddenTools = []string{
	"system.shutdown",
	"system.reboot",
	"system.poweroff",
	"system.format_disk",
	"system.install_package",
	"system.remove_package",
}

// Config holds everything an Engine is built from.
// Zero values select the defaults.
type Config struct {
	// Level is the configured safety level. Unknown values fall back to high.
	Level string

	// Catalog classifies bus methods. Nil uses catalog.Default().
	Catalog *catalog.Catalog

	// RateLimits configures the per-key limiter. The zero value uses
	// ratelimit.DefaultConfig().
	RateLimits ratelimit.Config

	// MethodRateLimit also rate limits CheckMethod, keyed by
	// "service:interface.method".
	MethodRateLimit bool

	// AuditCapacity is the audit log high-water mark. Zero uses the default.
	AuditCapacity int

	// RedactKeys are argument names redacted in addition to the built-in set.
	RedactKeys []string

	// ForbiddenTools overrides DefaultForbiddenTools when non-nil.
	ForbiddenTools []string

	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Clock replaces time.Now for the rate limiter and audit log.
	Clock func() time.Time
}

func (c Config) rateLimits() ratelimit.Config {
	if c.RateLimits.Default == 0 && c.RateLimits.Window == 0 && c.RateLimits.Overrides == nil {
		return ratelimit.DefaultConfig()
	}
	return c.RateLimits
}

func (c Config) forbiddenTools() []string {
	if c.ForbiddenTools != nil {
		return c.ForbiddenTools
	}
	return DefaultForbiddenTools
}
