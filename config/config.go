// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrMissingField is returned when a preset file lacks a required field.
var ErrMissingField = errors.New("missing required field")

// Config holds all simulation configuration parameters.
type Config struct {
	Screen        ScreenConfig        `yaml:"screen"`
	Vessel        VesselConfig        `yaml:"vessel"`
	Thermal       ThermalConfig       `yaml:"thermal"`
	Fluid         FluidConfig         `yaml:"fluid"`
	Visualization VisualizationConfig `yaml:"visualization"`
	Convection    ConvectionConfig    `yaml:"convection"`
	Simulation    SimulationConfig    `yaml:"simulation"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Stream        StreamConfig        `yaml:"stream"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	TargetFPS int `yaml:"target_fps"`
}

// VesselConfig holds the cylinder geometry in meters.
type VesselConfig struct {
	Radius float64 `yaml:"radius"`
	Height float64 `yaml:"height"`
}

// ThermalConfig holds thermal boundary temperatures in kelvin.
type ThermalConfig struct {
	SurfaceTemp  float64 `yaml:"surface_temp"`  // Heated floor
	InitialTemp  float64 `yaml:"initial_temp"`  // Ambient / initial fluid
	BoilingPoint float64 `yaml:"boiling_point"` // Liquid -> gas threshold
}

// FluidConfig holds fluid properties.
type FluidConfig struct {
	Gravity        float64 `yaml:"gravity"`         // m/s²
	Viscosity      float64 `yaml:"viscosity"`       // Dynamic viscosity, Pa·s
	ExpansionCoeff float64 `yaml:"expansion_coeff"` // 1/K
	Diffusivity    float64 `yaml:"diffusivity"`     // Thermal diffusivity, m²/s
	Density        float64 `yaml:"density"`         // kg/m³
	DensityEffect  float64 `yaml:"density_effect"`  // Inertia multiplier (>= 0)
}

// VisualizationConfig holds ensemble size and display mode.
type VisualizationConfig struct {
	ParticleCount int     `yaml:"particle_count"`
	ParticleSize  float64 `yaml:"particle_size"` // Render-only
	HeatMap       bool    `yaml:"heat_map"`
}

// ConvectionConfig carries the regime gate produced by the Rayleigh calculator.
type ConvectionConfig struct {
	Allowed bool `yaml:"allowed"`
}

// SimulationConfig holds stepping parameters.
type SimulationConfig struct {
	FixedDT           float64 `yaml:"fixed_dt"`           // Headless tick length
	Workers           int     `yaml:"workers"`            // 0 = GOMAXPROCS
	ParallelThreshold int     `yaml:"parallel_threshold"` // Minimum particles for worker pool
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"`
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
}

// StreamConfig holds websocket frame streaming parameters.
type StreamConfig struct {
	Addr          string `yaml:"addr"`           // Empty = disabled
	IntervalTicks int    `yaml:"interval_ticks"` // Broadcast every N ticks
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	HalfHeight float64 // Vessel.Height / 2
	DeltaTemp  float64 // max(1, surface - initial), for color normalization
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Defaults returns a fresh configuration built from the embedded defaults only.
func Defaults() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := Merge(cfg, data); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Merge applies a persisted preset over base. The preset must name at least
// vessel.radius and fluid.gravity; otherwise nothing is applied.
func Merge(base *Config, data []byte) error {
	if err := checkRequired(data); err != nil {
		return err
	}

	// Decode into a copy so a failed parse never leaves base half-written
	next := *base
	if err := yaml.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.computeDerived()
	*base = next
	return nil
}

// presence mirrors the required keys with pointer fields so absence is observable.
type presence struct {
	Vessel struct {
		Radius *float64 `yaml:"radius"`
	} `yaml:"vessel"`
	Fluid struct {
		Gravity *float64 `yaml:"gravity"`
	} `yaml:"fluid"`
}

func checkRequired(data []byte) error {
	var p presence
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if p.Vessel.Radius == nil {
		return fmt.Errorf("vessel.radius: %w", ErrMissingField)
	}
	if p.Fluid.Gravity == nil {
		return fmt.Errorf("fluid.gravity: %w", ErrMissingField)
	}
	return nil
}

// Validate rejects values the simulation cannot run with.
func (c *Config) Validate() error {
	if c.Vessel.Radius <= 0 {
		return fmt.Errorf("vessel.radius must be positive, got %g", c.Vessel.Radius)
	}
	if c.Vessel.Height <= 0 {
		return fmt.Errorf("vessel.height must be positive, got %g", c.Vessel.Height)
	}
	if c.Fluid.DensityEffect < 0 {
		return fmt.Errorf("fluid.density_effect must be >= 0, got %g", c.Fluid.DensityEffect)
	}
	if c.Visualization.ParticleCount < 0 {
		return fmt.Errorf("visualization.particle_count must be >= 0, got %d", c.Visualization.ParticleCount)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.HalfHeight = c.Vessel.Height / 2
	c.Derived.DeltaTemp = max(1, c.Thermal.SurfaceTemp-c.Thermal.InitialTemp)

	if c.Simulation.FixedDT <= 0 {
		c.Simulation.FixedDT = 1.0 / 60.0
	}
	if c.Stream.IntervalTicks < 1 {
		c.Stream.IntervalTicks = 1
	}
}

// Clone returns a copy of the configuration. Config holds no reference types.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
