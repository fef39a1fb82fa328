package policy

import (
	"go.uber.org/zap"

	"github.com/ppiankov/busgate/internal/catalog"
)

// ResolveLevel parses a configured safety level. An unrecognized value
// never stops startup: it degrades to the most restrictive level and is
// logged.
func ResolveLevel(s string, logger *zap.Logger) catalog.Level {
	if s == "" {
		return catalog.LevelHigh
	}
	level, err := catalog.ParseLevel(s)
	if err != nil {
		if logger != nil {
			logger.Warn("unknown safety level, using high",
				zap.String("configured", s),
				zap.Error(err))
		}
		return catalog.LevelHigh
	}
	return level
}
