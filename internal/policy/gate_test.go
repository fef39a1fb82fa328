package policy

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/busgate/internal/catalog"
	"github.com/ppiankov/busgate/internal/model"
)

func TestAuthorizeNilFailsClosed(t *testing.T) {
	for _, level := range catalog.Levels {
		d := Authorize(nil, level)
		if d.Allowed || d.Verdict != model.Uncategorized {
			t.Errorf("level %s: expected uncategorized denial, got %+v", level, d)
		}
	}
}

func TestAuthorizeForbiddenOverridesTier(t *testing.T) {
	cat := catalog.Category{Name: "danger", Tier: catalog.LevelHigh, Forbidden: true}
	for _, level := range catalog.Levels {
		d := Authorize(&cat, level)
		if d.Allowed || d.Verdict != model.Forbidden {
			t.Errorf("level %s: expected forbidden, got %+v", level, d)
		}
		if d.Reason != "forbidden category" {
			t.Errorf("unexpected reason %q", d.Reason)
		}
	}
}

func TestAuthorizeTierMatrix(t *testing.T) {
	tests := []struct {
		tier  catalog.Level
		level catalog.Level
		want  bool
	}{
		{catalog.LevelHigh, catalog.LevelHigh, true},
		{catalog.LevelHigh, catalog.LevelMedium, true},
		{catalog.LevelHigh, catalog.LevelLow, true},
		{catalog.LevelMedium, catalog.LevelHigh, false},
		{catalog.LevelMedium, catalog.LevelMedium, true},
		{catalog.LevelMedium, catalog.LevelLow, true},
		{catalog.LevelLow, catalog.LevelHigh, false},
		{catalog.LevelLow, catalog.LevelMedium, false},
		{catalog.LevelLow, catalog.LevelLow, true},
	}
	for _, tt := range tests {
		cat := catalog.Category{Name: "c", Tier: tt.tier}
		d := Authorize(&cat, tt.level)
		if d.Allowed != tt.want {
			t.Errorf("tier %s at level %s: allowed = %v, want %v", tt.tier, tt.level, d.Allowed, tt.want)
		}
		if !d.Allowed && d.Verdict != model.InsufficientLevel {
			t.Errorf("tier %s at level %s: verdict %s, want %s", tt.tier, tt.level, d.Verdict, model.InsufficientLevel)
		}
	}
}

func TestAuthorizeInsufficientReason(t *testing.T) {
	cat := catalog.Category{Name: "service_control", Tier: catalog.LevelLow}
	d := Authorize(&cat, catalog.LevelHigh)
	want := `category "service_control" requires safety level low (current: high)`
	if d.Reason != want {
		t.Errorf("reason = %q, want %q", d.Reason, want)
	}
}

// Every category allowed at a level stays allowed at every looser level.
func TestLatticeIsMonotonic(t *testing.T) {
	for _, cat := range catalog.Default().Categories() {
		prev := false
		for _, level := range catalog.Levels {
			allowed := Authorize(&cat, level).Allowed
			if prev && !allowed {
				t.Errorf("category %s allowed at a stricter level but denied at %s", cat.Name, level)
			}
			prev = allowed
		}
	}
}

func TestAuthorizeInteractionAdvisory(t *testing.T) {
	cat, ok := catalog.Default().Lookup("interactive_capture")
	if !ok {
		t.Fatal("interactive_capture missing from default catalog")
	}

	d := Authorize(&cat, catalog.LevelMedium)
	if !d.Allowed {
		t.Fatalf("expected allowed, got %+v", d)
	}
	if d.Interaction == nil || d.Interaction.Kind != catalog.InteractionSelection {
		t.Fatalf("expected selection advisory, got %+v", d.Interaction)
	}
	if !strings.Contains(d.Interaction.Message, "click on the target") {
		t.Errorf("unexpected message %q", d.Interaction.Message)
	}

	if d := Authorize(&cat, catalog.LevelHigh); d.Interaction != nil {
		t.Error("denied decisions must not carry an advisory")
	}
}

func TestResolveLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	tests := []struct {
		in   string
		want catalog.Level
		warn bool
	}{
		{"", catalog.LevelHigh, false},
		{"high", catalog.LevelHigh, false},
		{"medium", catalog.LevelMedium, false},
		{"low", catalog.LevelLow, false},
		{"LOW", catalog.LevelHigh, true},
		{" medium ", catalog.LevelHigh, true},
		{"paranoid", catalog.LevelHigh, true},
	}
	for _, tt := range tests {
		before := logs.Len()
		if got := ResolveLevel(tt.in, logger); got != tt.want {
			t.Errorf("ResolveLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
		if warned := logs.Len() > before; warned != tt.warn {
			t.Errorf("ResolveLevel(%q): warned = %v, want %v", tt.in, warned, tt.warn)
		}
	}
}
