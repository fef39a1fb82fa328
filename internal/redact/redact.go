package redact

import "strings"

// Marker replaces the value of every redacted field.
const Marker = "<redacted>"

// SensitiveKeys are the argument names whose values never reach the audit log.
var SensitiveKeys = []string{"password", "token", "secret", "key"}

var sensitiveSet = func() map[string]bool {
	m := make(map[string]bool, len(SensitiveKeys))
	for _, k := range SensitiveKeys {
		m[k] = true
	}
	return m
}()

// IsSensitive reports whether an argument name is on the denylist.
// Matching ignores case.
func IsSensitive(key string) bool {
	return sensitiveSet[strings.ToLower(key)]
}

// Arguments returns a copy of args with sensitive top-level values replaced
// by Marker. Nested maps are copied by reference and not inspected.
// The input map is never modified; a nil input yields nil.
func Arguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if IsSensitive(k) {
			out[k] = Marker
		} else {
			out[k] = v
		}
	}
	return out
}

// Map redacts the given extra keys in addition to SensitiveKeys.
func Map(args map[string]any, extraKeys []string) map[string]any {
	out := Arguments(args)
	if len(extraKeys) == 0 || out == nil {
		return out
	}
	extra := make(map[string]bool, len(extraKeys))
	for _, k := range extraKeys {
		extra[strings.ToLower(k)] = true
	}
	for k := range out {
		if extra[strings.ToLower(k)] {
			out[k] = Marker
		}
	}
	return out
}
