package profile

import (
	"os"
	"strings"
)

// Env abstracts the process environment so detection can be tested.
type Env struct {
	Getenv func(string) string
	Exists func(path string) bool
}

// OSEnv reads the real environment and filesystem.
func OSEnv() Env {
	return Env{
		Getenv: os.Getenv,
		Exists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// Detect picks a built-in profile for the environment and stamps it with
// the detected init system. Without a display server the headless profile
// is used; a KDE session selects kde; anything else gets generic.
func Detect(env Env) *Static {
	if env.Getenv == nil || env.Exists == nil {
		env = OSEnv()
	}

	hasDisplay := env.Getenv("DISPLAY") != "" || env.Getenv("WAYLAND_DISPLAY") != ""

	name := "generic"
	switch {
	case !hasDisplay:
		name = "headless"
	case strings.Contains(strings.ToLower(env.Getenv("XDG_CURRENT_DESKTOP")), "kde"):
		name = "kde"
	}

	p, err := Load(name)
	if err != nil {
		// Built-in profiles are embedded and validated by tests.
		panic(err)
	}
	p.Init = DetectInitSystem(env)
	return p
}

// DetectInitSystem reports systemd, openrc or unknown.
func DetectInitSystem(env Env) string {
	switch {
	case env.Exists("/run/systemd/system"):
		return InitSystemd
	case env.Exists("/run/openrc"):
		return "openrc"
	default:
		return "unknown"
	}
}

// Resolve returns the named profile, or the detected one when name is empty
// or "auto". An explicitly named profile still gets the detected init system
// unless its file sets one.
func Resolve(name string, env Env) (*Static, error) {
	if name == "" || name == "auto" {
		return Detect(env), nil
	}
	p, err := Load(name)
	if err != nil {
		return nil, err
	}
	if p.Init == "" {
		if env.Getenv == nil || env.Exists == nil {
			env = OSEnv()
		}
		p.Init = DetectInitSystem(env)
	}
	return p, nil
}
