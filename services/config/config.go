// Package config defines the immutable run configuration. Defaults are
// documented here, an optional YAML file overlays them, and the CLI
// applies flag overrides on top. Components receive the resulting struct
// by reference; there are no ambient globals.
package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration unmarshals YAML scalars like "30m" into a time.Duration.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be scalar")
	}
	dd, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

type Config struct {
	Symbol    string `yaml:"symbol" json:"symbol"`
	StartDate string `yaml:"start_date" json:"start_date"` // 2006-01-02
	EndDate   string `yaml:"end_date" json:"end_date"`

	Session SessionConfig `yaml:"session" json:"session"`
	Signal  SignalConfig  `yaml:"signal" json:"signal"`
	Risk    RiskConfig    `yaml:"risk" json:"risk"`
	Strikes StrikesConfig `yaml:"strikes" json:"strikes"`
	Paths   PathsConfig   `yaml:"paths" json:"paths"`

	ClickHouse ClickHouseConfig `yaml:"clickhouse" json:"clickhouse"`

	// Workers is the size of the (symbol, day) worker pool; 0 means one
	// worker per CPU.
	Workers int `yaml:"workers" json:"workers"`
}

type SessionConfig struct {
	Timezone string `yaml:"timezone" json:"timezone"`
	Open     string `yaml:"open" json:"open"`
	Close    string `yaml:"close" json:"close"`
	// Anchors are the scan-window start clocks within a session; each
	// anchor yields at most one trade.
	Anchors []string `yaml:"anchors" json:"anchors"`
	// Rollover is the forced square-off clock; open trades are closed
	// here even if the session runs longer.
	Rollover string `yaml:"rollover" json:"rollover"`
}

type SignalConfig struct {
	ShortWindowS    int     `yaml:"short_window_s" json:"short_window_s"`
	BaselineWindowS int     `yaml:"baseline_window_s" json:"baseline_window_s"`
	Multiplier      float64 `yaml:"multiplier" json:"multiplier"`
	MomentumLagS    int     `yaml:"momentum_lag_s" json:"momentum_lag_s"`
	MomentumUp      float64 `yaml:"momentum_up" json:"momentum_up"`
	MomentumDown    float64 `yaml:"momentum_down" json:"momentum_down"`
}

type RiskConfig struct {
	Side        string   `yaml:"side" json:"side"` // buy | sell
	TargetPct   float64  `yaml:"target_pct" json:"target_pct"`
	StopPct     float64  `yaml:"stop_pct" json:"stop_pct"`
	TrailingPct float64  `yaml:"trailing_pct" json:"trailing_pct"`
	Trailing    bool     `yaml:"trailing" json:"trailing"`
	MaxHold     Duration `yaml:"max_hold" json:"max_hold"`
	// SignalDeathFrac closes the trade when the short-window volume rate
	// falls below this fraction of its entry value; 0 disables the exit.
	SignalDeathFrac float64 `yaml:"signal_death_frac" json:"signal_death_frac"`
	// TrendFilter gates entries against the session-anchor spot price:
	// off | with | against.
	TrendFilter string `yaml:"trend_filter" json:"trend_filter"`
}

type StrikesConfig struct {
	Step        float64 `yaml:"step" json:"step"`
	LadderDepth int     `yaml:"ladder_depth" json:"ladder_depth"`
}

type PathsConfig struct {
	DataDir    string `yaml:"data_dir" json:"data_dir"`
	CacheDir   string `yaml:"cache_dir" json:"cache_dir"`
	OutDir     string `yaml:"out_dir" json:"out_dir"`
	ExpiryFile string `yaml:"expiry_file" json:"expiry_file"`
}

type ClickHouseConfig struct {
	Addr     string `yaml:"addr" json:"addr"` // empty disables the sink
	Database string `yaml:"database" json:"database"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	Table    string `yaml:"table" json:"table"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Symbol: "NIFTY",
		Session: SessionConfig{
			Timezone: "Asia/Kolkata",
			Open:     "09:15:00",
			Close:    "15:30:00",
			Anchors:  []string{"09:20:00"},
			Rollover: "15:20:00",
		},
		Signal: SignalConfig{
			ShortWindowS:    10,
			BaselineWindowS: 300,
			Multiplier:      3.0,
			MomentumLagS:    30,
		},
		Risk: RiskConfig{
			Side:        "sell",
			TargetPct:   0.5,
			StopPct:     0.5,
			TrailingPct: 0.25,
			Trailing:    false,
			MaxHold:     Duration{30 * time.Minute},
			TrendFilter: "with",
		},
		Strikes: StrikesConfig{
			Step:        50, // BANKNIFTY runs use 100
			LadderDepth: 1,
		},
		Paths: PathsConfig{
			DataDir:    "./data",
			CacheDir:   "./cache",
			OutDir:     "./out",
			ExpiryFile: "./data/expiries.csv",
		},
		ClickHouse: ClickHouseConfig{
			Database: "nfoops",
			Table:    "trades",
		},
	}
}

// Load reads a YAML overlay on top of the defaults. A missing file is not
// an error; the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the engine cannot run deterministically.
func (c *Config) Validate() error {
	if c.Signal.ShortWindowS < 1 || c.Signal.BaselineWindowS < 1 {
		return fmt.Errorf("signal windows must be positive")
	}
	if c.Signal.ShortWindowS > c.Signal.BaselineWindowS {
		return fmt.Errorf("short window %ds exceeds baseline window %ds",
			c.Signal.ShortWindowS, c.Signal.BaselineWindowS)
	}
	if c.Risk.Side != "buy" && c.Risk.Side != "sell" {
		return fmt.Errorf("risk side must be buy or sell, got %q", c.Risk.Side)
	}
	if c.Risk.TargetPct <= 0 || c.Risk.StopPct <= 0 {
		return fmt.Errorf("target and stop percentages must be positive")
	}
	switch c.Risk.TrendFilter {
	case "", "off", "with", "against":
	default:
		return fmt.Errorf("trend filter must be off, with or against, got %q", c.Risk.TrendFilter)
	}
	if c.Strikes.Step <= 0 {
		return fmt.Errorf("strike step must be positive")
	}
	if c.Strikes.LadderDepth < 0 {
		return fmt.Errorf("ladder depth must not be negative")
	}
	if len(c.Session.Anchors) == 0 {
		return fmt.Errorf("at least one session anchor is required")
	}
	return nil
}

// Hash returns a stable digest of the configuration for the run manifest.
func (c *Config) Hash() string {
	b, _ := json.Marshal(c)
	return fmt.Sprintf("%x", sha256.Sum256(b))
}

// JSON returns the configuration echo embedded in the run manifest.
func (c *Config) JSON() json.RawMessage {
	b, _ := json.Marshal(c)
	return b
}
