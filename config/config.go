// Package config loads the planner configuration from YAML or JSON
// files with koanf, with environment variable overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ncharlet/bessopt/core/metrics"
	"github.com/ncharlet/bessopt/core/model"
)

// Config is the full configuration surface of the planner.
type Config struct {
	Battery BatteryConfig  `json:"battery"`
	Horizon HorizonConfig  `json:"horizon"`
	Solver  SolverConfig   `json:"solver"`
	Metrics metrics.Config `json:"metrics"`
}

// BatteryConfig mirrors the BatterySpec fields.
type BatteryConfig struct {
	CapacityKWh         float64 `json:"capacity_kwh"`
	ChargePowerKW       float64 `json:"charge_power_kw"`
	DischargePowerKW    float64 `json:"discharge_power_kw"`
	ChargeEfficiency    float64 `json:"charge_efficiency"`
	DischargeEfficiency float64 `json:"discharge_efficiency"`
	MinSOCFraction      float64 `json:"min_soc_fraction"`
	MaxSOCFraction      float64 `json:"max_soc_fraction"`
}

// Spec validates the fields and builds the immutable battery spec.
func (c BatteryConfig) Spec() (model.BatterySpec, error) {
	return model.NewBatterySpec(
		c.CapacityKWh,
		c.ChargePowerKW,
		c.DischargePowerKW,
		c.ChargeEfficiency,
		c.DischargeEfficiency,
		c.MinSOCFraction,
		c.MaxSOCFraction,
	)
}

// HorizonConfig drives the rolling-horizon loop.
type HorizonConfig struct {
	// StepMinutes is the fixed duration of one timestep.
	StepMinutes int `json:"step_minutes"`
	// BigM is the disjunctive constant of the mode constraints.
	BigM float64 `json:"big_m"`
	// InitialSOCKWh seeds the first period.
	InitialSOCKWh float64 `json:"initial_soc_kwh"`
	// Periods selects the slicing scheme: "monthly" (default),
	// "single", or "explicit" with Boundaries.
	Periods string `json:"periods"`
	// Boundaries are step indices starting each period after the
	// first; used when Periods is "explicit".
	Boundaries []int `json:"boundaries"`
}

// SetDefaults applies sane defaults.
func (c *HorizonConfig) SetDefaults() {
	if c.StepMinutes == 0 {
		c.StepMinutes = 30
	}
	if c.Periods == "" {
		c.Periods = "monthly"
	}
}

// Validate checks mandatory fields.
func (c HorizonConfig) Validate() error {
	if c.StepMinutes <= 0 {
		return fmt.Errorf("step_minutes must be positive")
	}
	switch c.Periods {
	case "monthly", "single":
	case "explicit":
		last := 0
		for _, b := range c.Boundaries {
			if b <= last {
				return fmt.Errorf("boundaries must be strictly increasing and positive")
			}
			last = b
		}
	default:
		return fmt.Errorf("unknown periods scheme %q", c.Periods)
	}
	return nil
}

// SolverConfig tunes the MILP engine.
type SolverConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
	MaxNodes       int `json:"max_nodes"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides. The callback rewrites the key
	// into koanf's dotted form, so the provider splits on ".".
	if err := k.Load(env.Provider("BESSOPT_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "bessopt_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Horizon.SetDefaults()
	if err := cfg.Horizon.Validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Battery.Spec(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
