package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Level is a safety level, ordered by permissiveness.
// LevelHigh is the most restrictive, LevelLow the most permissive.
// The same scale expresses a category's tier (the minimum level at which
// the category is allowed) and the engine's configured level.
type Level int

const (
	LevelHigh   Level = iota // read-only operations and notifications
	LevelMedium              // adds productivity operations
	LevelLow                 // adds system-modifying operations
)

// Levels lists every level from most to least restrictive.
var Levels = []Level{LevelHigh, LevelMedium, LevelLow}

// String returns the configuration name of the level.
func (l Level) String() string {
	switch l {
	case LevelHigh:
		return "high"
	case LevelMedium:
		return "medium"
	case LevelLow:
		return "low"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// Valid reports whether l is one of the three recognized levels.
func (l Level) Valid() bool {
	return l >= LevelHigh && l <= LevelLow
}

// Permits reports whether a category of the given tier is allowed when
// the engine runs at level l.
func (l Level) Permits(tier Level) bool {
	return l.Valid() && tier.Valid() && l >= tier
}

// ParseLevel parses a level name. Only the exact lowercase names are
// recognized.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "high":
		return LevelHigh, nil
	case "medium":
		return LevelMedium, nil
	case "low":
		return LevelLow, nil
	default:
		return LevelHigh, fmt.Errorf("unknown safety level %q (want high, medium or low)", s)
	}
}

// UnmarshalYAML decodes a level from its name.
func (l *Level) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*l = parsed
	return nil
}

// MarshalYAML encodes a level as its name.
func (l Level) MarshalYAML() (any, error) {
	return l.String(), nil
}

// MarshalText encodes a level as its name, so JSON output carries "high"
// rather than 0.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
