package systems

import "github.com/pthm-cable/convection/config"

// Smoothing rates per tick. Not scaled by dt.
const (
	ParamLerpRate   = 0.05 // Configuration parameters
	AvgTempLerpRate = 0.1  // Running ensemble average temperature
)

// SimState is the persistent per-run state threaded through every tick.
// The caller owns it; nothing in this package keeps a copy between ticks.
type SimState struct {
	SurfaceTemp    float64
	InitialTemp    float64
	Gravity        float64
	Viscosity      float64
	ExpansionCoeff float64
	Diffusivity    float64
	Density        float64

	// AvgTemp trails the instantaneous ensemble mean.
	AvgTemp float64
}

// NewSimState starts every smoothed value at its configured target.
func NewSimState(cfg *config.Config) SimState {
	return SimState{
		SurfaceTemp:    cfg.Thermal.SurfaceTemp,
		InitialTemp:    cfg.Thermal.InitialTemp,
		Gravity:        cfg.Fluid.Gravity,
		Viscosity:      cfg.Fluid.Viscosity,
		ExpansionCoeff: cfg.Fluid.ExpansionCoeff,
		Diffusivity:    cfg.Fluid.Diffusivity,
		Density:        cfg.Fluid.Density,
		AvgTemp:        cfg.Thermal.InitialTemp,
	}
}

// Smooth moves each parameter a fixed fraction of the way to its target.
func (s *SimState) Smooth(cfg *config.Config) {
	s.SurfaceTemp = lerpToward(s.SurfaceTemp, cfg.Thermal.SurfaceTemp, ParamLerpRate)
	s.InitialTemp = lerpToward(s.InitialTemp, cfg.Thermal.InitialTemp, ParamLerpRate)
	s.Gravity = lerpToward(s.Gravity, cfg.Fluid.Gravity, ParamLerpRate)
	s.Viscosity = lerpToward(s.Viscosity, cfg.Fluid.Viscosity, ParamLerpRate)
	s.ExpansionCoeff = lerpToward(s.ExpansionCoeff, cfg.Fluid.ExpansionCoeff, ParamLerpRate)
	s.Diffusivity = lerpToward(s.Diffusivity, cfg.Fluid.Diffusivity, ParamLerpRate)
	s.Density = lerpToward(s.Density, cfg.Fluid.Density, ParamLerpRate)
}

// ResetAverage restarts the running average at temp, the temperature the
// rebuilt ensemble was spawned at.
func (s *SimState) ResetAverage(temp float64) {
	s.AvgTemp = temp
}
