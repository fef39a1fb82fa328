package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// compileGlob converts a name pattern to an anchored regexp.
// "*" matches any run of characters (including none); every other
// character matches itself, case-sensitively.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	for _, r := range pattern {
		if !isPatternRune(r) {
			return nil, fmt.Errorf("pattern %q: unsupported character %q", pattern, r)
		}
	}
	if strings.Trim(pattern, "*") == "" {
		return nil, fmt.Errorf("pattern %q matches every name", pattern)
	}

	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, ".*")
	return regexp.Compile("^" + escaped + "$")
}

// isPatternRune accepts the characters of bus member names and dotted
// tool names, plus the wildcard.
func isPatternRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '-', r == '*':
		return true
	default:
		return false
	}
}
