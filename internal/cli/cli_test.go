package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/busgate/internal/catalog"
	"github.com/ppiankov/busgate/internal/config"
	"github.com/ppiankov/busgate/internal/model"
	"github.com/ppiankov/busgate/internal/profile"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func testRuntime(t *testing.T, level, profileName string) *runtime {
	t.Helper()
	cfg := &config.Config{
		SafetyLevel: level,
		Profile:     profileName,
		Log:         config.LogConfig{Level: "error", Format: "json"},
	}
	cfg.RateLimit.Default = 60
	cfg.RateLimit.Window = time.Minute
	env := profile.Env{
		Getenv: func(string) string { return "" },
		Exists: func(p string) bool { return p == "/run/systemd/system" },
	}
	rt, err := buildRuntime(cfg, nil, env)
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	return rt
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, out)
	}
	if info["name"] != "busgate" || info["version"] == "" {
		t.Errorf("unexpected version info %v", info)
	}
}

func TestCheckCommand(t *testing.T) {
	isolate(t)
	t.Setenv("BUSGATE_LOG_LEVEL", "error")

	out, err := execute(t, "check", "org.freedesktop.Notifications.Notify", "--format", "json")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	var d model.Decision
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("check output is not JSON: %v\n%s", err, out)
	}
	if !d.Allowed || d.Category != "notifications" {
		t.Errorf("unexpected decision %+v", d)
	}

	_, err = execute(t, "check", "RestartUnit", "--format", "json")
	if !errors.Is(err, errDenied) {
		t.Errorf("expected denied error for RestartUnit at high, got %v", err)
	}
}

func TestBuildRuntime(t *testing.T) {
	rt := testRuntime(t, "medium", "auto")
	if rt.engine.Level() != catalog.LevelMedium {
		t.Errorf("level = %s, want medium", rt.engine.Level())
	}
	if rt.profile.Name() != "headless" || rt.profile.InitSystem() != "systemd" {
		t.Errorf("expected detected headless/systemd, got %s/%s", rt.profile.Name(), rt.profile.InitSystem())
	}
}

func TestBuildRuntimeUnknownLevelFallsBack(t *testing.T) {
	rt := testRuntime(t, "reckless", "generic")
	if rt.engine.Level() != catalog.LevelHigh {
		t.Errorf("expected fallback to high, got %s", rt.engine.Level())
	}
}

func TestBuildRuntimeErrors(t *testing.T) {
	isolate(t)
	cfg := &config.Config{Profile: "nope", Log: config.LogConfig{Level: "error"}}
	if _, err := buildRuntime(cfg, nil, profile.OSEnv()); err == nil {
		t.Error("expected error for unknown profile")
	}
	cfg = &config.Config{CatalogPath: "/does/not/exist.yaml", Log: config.LogConfig{Level: "error"}}
	if _, err := buildRuntime(cfg, nil, profile.OSEnv()); err == nil {
		t.Error("expected error for missing catalog")
	}
}

func TestDecideMethod(t *testing.T) {
	rt := testRuntime(t, "high", "generic")
	tests := []struct {
		service string
		target  string
		want    model.Verdict
	}{
		{"", "Notify", model.Allowed},
		{"", "org.freedesktop.login1.Manager.PowerOff", model.Forbidden},
		{"org.freedesktop.portal.Desktop", "org.freedesktop.portal.Clipboard.SetSelection", model.Allowed},
		{"", "SetSelection", model.InsufficientLevel},
		{"", "frobnicate", model.Uncategorized},
	}
	for _, tt := range tests {
		if d := decideMethod(rt.engine, tt.service, tt.target); d.Verdict != tt.want {
			t.Errorf("decideMethod(%q, %q) = %s, want %s", tt.service, tt.target, d.Verdict, tt.want)
		}
	}
}

func TestPrintDecision(t *testing.T) {
	d := model.Deny(model.InsufficientLevel, "category \"screenshot\" requires safety level medium (current: high)")
	d.Category = "screenshot"
	d.Tier = "medium"

	var buf bytes.Buffer
	if err := printDecision(&buf, d, "text"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "DENIED (insufficient_safety_level)") ||
		!strings.Contains(buf.String(), "category: screenshot (tier medium)") {
		t.Errorf("unexpected text output:\n%s", buf.String())
	}

	if err := printDecision(&buf, d, "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestPrintCatalog(t *testing.T) {
	cat := catalog.Default()

	var buf bytes.Buffer
	if err := printCatalog(&buf, cat.Hash(), cat.Categories(), "text"); err != nil {
		t.Fatal(err)
	}
	text := buf.String()
	if !strings.Contains(text, "system_power") || !strings.Contains(text, "forbidden") {
		t.Errorf("text output missing forbidden category:\n%s", text)
	}
	if !strings.Contains(text, "interaction:selection") {
		t.Errorf("text output missing interaction flag:\n%s", text)
	}

	buf.Reset()
	if err := printCatalog(&buf, cat.Hash(), cat.AllowedAt(catalog.LevelHigh), "json"); err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Hash       string           `json:"hash"`
		Categories []map[string]any `json:"categories"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("json output invalid: %v", err)
	}
	if doc.Hash != cat.Hash() || len(doc.Categories) != len(cat.AllowedAt(catalog.LevelHigh)) {
		t.Errorf("unexpected json doc: hash %s, %d categories", doc.Hash, len(doc.Categories))
	}

	buf.Reset()
	if err := printCatalog(&buf, cat.Hash(), cat.Categories(), "yaml"); err != nil {
		t.Fatal(err)
	}
	if _, err := catalog.Parse(buf.Bytes()); err != nil {
		t.Errorf("yaml output does not parse back: %v", err)
	}
}

func TestPrintProfile(t *testing.T) {
	p, err := profile.Load("headless")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	printProfile(&buf, p)
	if !strings.Contains(buf.String(), fmt.Sprintf("  %-15s %s\n", "clipboard", "disabled")) {
		t.Errorf("unexpected profile output:\n%s", buf.String())
	}
}
