package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected nil error for missing config, got %v", err)
	}

	def := Default()
	if cfg.Symbol != def.Symbol {
		t.Fatalf("symbol %q, want default %q", cfg.Symbol, def.Symbol)
	}
	if cfg.Signal.BaselineWindowS != 300 || cfg.Signal.Multiplier != 3.0 {
		t.Fatalf("signal defaults wrong: %+v", cfg.Signal)
	}
	if cfg.Risk.MaxHold.Duration != 30*time.Minute {
		t.Fatalf("max hold default = %v", cfg.Risk.MaxHold.Duration)
	}
	if cfg.Session.Timezone != "Asia/Kolkata" {
		t.Fatalf("timezone default = %q", cfg.Session.Timezone)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `symbol: BANKNIFTY
signal:
  short_window_s: 15
  baseline_window_s: 600
  multiplier: 4
risk:
  side: sell
  target_pct: 0.4
  stop_pct: 0.6
  max_hold: 45m
strikes:
  step: 100
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Symbol != "BANKNIFTY" || cfg.Strikes.Step != 100 {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.Signal.ShortWindowS != 15 || cfg.Signal.BaselineWindowS != 600 {
		t.Fatalf("signal overlay wrong: %+v", cfg.Signal)
	}
	if cfg.Risk.MaxHold.Duration != 45*time.Minute {
		t.Fatalf("max hold = %v", cfg.Risk.MaxHold.Duration)
	}
	// Untouched keys keep defaults.
	if cfg.Session.Open != "09:15:00" {
		t.Fatalf("session open default lost: %q", cfg.Session.Open)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short exceeds baseline", func(c *Config) { c.Signal.ShortWindowS = 500 }},
		{"zero baseline", func(c *Config) { c.Signal.BaselineWindowS = 0 }},
		{"bad side", func(c *Config) { c.Risk.Side = "hold" }},
		{"zero target", func(c *Config) { c.Risk.TargetPct = 0 }},
		{"zero step", func(c *Config) { c.Strikes.Step = 0 }},
		{"negative depth", func(c *Config) { c.Strikes.LadderDepth = -1 }},
		{"no anchors", func(c *Config) { c.Session.Anchors = nil }},
		{"bad trend filter", func(c *Config) { c.Risk.TrendFilter = "sideways" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestHashStableAndSensitive(t *testing.T) {
	a := Default()
	b := Default()
	if a.Hash() != b.Hash() {
		t.Fatal("identical configs must hash identically")
	}
	b.Signal.Multiplier = 5
	if a.Hash() == b.Hash() {
		t.Fatal("different configs must hash differently")
	}
}
