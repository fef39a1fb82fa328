package profile

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// InitSystemd is the init system that provides privileged service control.
const InitSystemd = "systemd"

// Profile describes what the current environment can support.
// The policy engine consults it to switch whole tool categories on or off.
type Profile interface {
	Name() string
	// AvailableCategories maps tool namespaces (the part of a tool name
	// before the first dot) to whether they may be used. Namespaces not
	// listed are not restricted by the profile.
	AvailableCategories() map[string]bool
	// RequiresPrivilegedInit reports whether system tools need the
	// privileged init context (systemd) to be present.
	RequiresPrivilegedInit() bool
	// InitSystem names the detected init system: systemd, openrc or unknown.
	InitSystem() string
}

// Clipboard names the bus object and members that read and write
// clipboard text in a desktop environment.
type Clipboard struct {
	Service   string `yaml:"service"`
	Path      string `yaml:"path"`
	Interface string `yaml:"interface"`
	Read      string `yaml:"read"`
	Write     string `yaml:"write"`
}

// ClipboardProvider is implemented by profiles that know a clipboard adapter.
type ClipboardProvider interface {
	Clipboard() (Clipboard, bool)
}

// Static is a profile defined by data, either built in or loaded from YAML.
type Static struct {
	ProfileName      string          `yaml:"name"`
	Description      string          `yaml:"description"`
	Categories       map[string]bool `yaml:"categories"`
	PrivilegedInit   bool            `yaml:"requires_privileged_init"`
	Init             string          `yaml:"init_system"`
	ClipboardAdapter *Clipboard      `yaml:"clipboard_adapter,omitempty"`
}

var (
	_ Profile           = (*Static)(nil)
	_ ClipboardProvider = (*Static)(nil)
)

func (s *Static) Name() string { return s.ProfileName }

// AvailableCategories returns a copy of the category flags.
func (s *Static) AvailableCategories() map[string]bool {
	return maps.Clone(s.Categories)
}

func (s *Static) RequiresPrivilegedInit() bool { return s.PrivilegedInit }

func (s *Static) InitSystem() string {
	if s.Init == "" {
		return "unknown"
	}
	return s.Init
}

// Clipboard returns the clipboard adapter, if the profile has one.
func (s *Static) Clipboard() (Clipboard, bool) {
	if s.ClipboardAdapter == nil {
		return Clipboard{}, false
	}
	return *s.ClipboardAdapter, true
}

// Clone returns a deep copy.
func (s *Static) Clone() *Static {
	c := *s
	c.Categories = maps.Clone(s.Categories)
	if s.ClipboardAdapter != nil {
		adapter := *s.ClipboardAdapter
		c.ClipboardAdapter = &adapter
	}
	return &c
}

// Load loads a profile by name. Checks built-in profiles first,
// then falls back to $XDG_CONFIG_HOME/busgate/profiles/<name>.yaml.
func Load(name string) (*Static, error) {
	if data, ok := builtinProfiles[name]; ok {
		p, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse built-in profile %q: %w", name, err)
		}
		return p, nil
	}

	dir, err := userDir()
	if err != nil {
		return nil, fmt.Errorf("profile %q not found (no built-in, cannot determine config dir)", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("profile %q not found", name)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile %q: %w", name, err)
	}
	return p, nil
}

// Parse decodes and validates a profile document.
func Parse(data []byte) (*Static, error) {
	var p Static
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that a profile is well-formed.
func Validate(p *Static) error {
	if p.ProfileName == "" {
		return fmt.Errorf("profile name is required")
	}
	for cat := range p.Categories {
		if cat == "" {
			return fmt.Errorf("profile %q: empty category name", p.ProfileName)
		}
	}
	if c := p.ClipboardAdapter; c != nil {
		if c.Service == "" || c.Path == "" || c.Interface == "" || c.Read == "" || c.Write == "" {
			return fmt.Errorf("profile %q: clipboard_adapter needs service, path, interface, read and write", p.ProfileName)
		}
	}
	return nil
}

// List returns sorted names of all available profiles (built-in + user).
func List() []string {
	seen := make(map[string]bool)
	for name := range builtinProfiles {
		seen[name] = true
	}

	if dir, err := userDir(); err == nil {
		entries, err := os.ReadDir(dir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				name := e.Name()
				if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
					seen[name[:len(name)-len(ext)]] = true
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func userDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "busgate", "profiles"), nil
}
