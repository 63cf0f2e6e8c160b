// Package systems contains the particle convection core: the ensemble store,
// parameter smoothing, the per-tick integrator and the color mapper.
package systems

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Phase classifies a particle for the current tick.
type Phase uint8

const (
	PhaseLiquid Phase = iota
	PhaseGas
)

func (p Phase) String() string {
	if p == PhaseGas {
		return "gas"
	}
	return "liquid"
}

// Spawn geometry
const (
	minSpawnRadius      = 1e-4 // Keeps angular force terms away from r = 0
	spawnRadiusFraction = 0.9  // Initializer fills 0.9R
	resetRadiusFraction = 0.8  // Recovery respawns within 0.8R
)

// Ensemble is the columnar particle store. Vector quantities are interleaved
// x, y, z so Positions and Colors can be uploaded to a renderer as-is.
// The particle count is fixed for the lifetime of an Ensemble.
type Ensemble struct {
	Radius float64 // Vessel radius (m)
	Height float64 // Vessel height (m); y spans [-Height/2, Height/2]

	Positions    []float32 // 3N
	Velocities   []float32 // 3N
	Colors       []float32 // 3N, each channel in [0, 1]
	Temperatures []float64 // N, kelvin
	Phases       []Phase   // N
	Variance     []float32 // N, fixed at creation in [0.8, 1.2]
}

// NewEnsemble creates n particles at rest inside a cylinder of the given
// radius and height, all at initialTemp. Radii are sqrt-distributed so the
// areal density is uniform.
func NewEnsemble(n int, radius, height, initialTemp float64, rng *rand.Rand) *Ensemble {
	if n < 0 {
		n = 0
	}
	e := &Ensemble{
		Radius:       radius,
		Height:       height,
		Positions:    make([]float32, 3*n),
		Velocities:   make([]float32, 3*n),
		Colors:       make([]float32, 3*n),
		Temperatures: make([]float64, n),
		Phases:       make([]Phase, n),
		Variance:     make([]float32, n),
	}

	for i := 0; i < n; i++ {
		r := max(minSpawnRadius, math.Sqrt(rng.Float64())*spawnRadiusFraction*radius)
		theta := rng.Float64() * 2 * math.Pi
		y := (rng.Float64() - 0.5) * height

		j := 3 * i
		e.Positions[j] = float32(r * math.Cos(theta))
		e.Positions[j+1] = float32(y)
		e.Positions[j+2] = float32(r * math.Sin(theta))
		e.Temperatures[i] = initialTemp
		e.Variance[i] = float32(0.8 + 0.4*rng.Float64())
	}

	return e
}

// Len returns the number of particles.
func (e *Ensemble) Len() int {
	return len(e.Temperatures)
}

// Matches reports whether the ensemble was built for this count and geometry.
// Any mismatch requires a new ensemble.
func (e *Ensemble) Matches(n int, radius, height float64) bool {
	return e.Len() == n && e.Radius == radius && e.Height == height
}

// Position returns particle i's position.
func (e *Ensemble) Position(i int) (x, y, z float32) {
	j := 3 * i
	return e.Positions[j], e.Positions[j+1], e.Positions[j+2]
}

// SetPosition overwrites particle i's position.
func (e *Ensemble) SetPosition(i int, x, y, z float32) {
	j := 3 * i
	e.Positions[j], e.Positions[j+1], e.Positions[j+2] = x, y, z
}

// Velocity returns particle i's velocity.
func (e *Ensemble) Velocity(i int) (vx, vy, vz float32) {
	j := 3 * i
	return e.Velocities[j], e.Velocities[j+1], e.Velocities[j+2]
}

// SetVelocity overwrites particle i's velocity.
func (e *Ensemble) SetVelocity(i int, vx, vy, vz float32) {
	j := 3 * i
	e.Velocities[j], e.Velocities[j+1], e.Velocities[j+2] = vx, vy, vz
}

// Speed returns the magnitude of particle i's velocity.
func (e *Ensemble) Speed(i int) float64 {
	return velocityMagnitude(e.Velocity(i))
}

// MeanTemperature returns the arithmetic mean temperature, or ok=false for an
// empty ensemble.
func (e *Ensemble) MeanTemperature() (mean float64, ok bool) {
	n := e.Len()
	if n == 0 {
		return 0, false
	}
	return floats.Sum(e.Temperatures) / float64(n), true
}

// respawn discards particle i's kinematic state after a numerical blow-up.
func (e *Ensemble) respawn(i int, ambient float64, rng *rand.Rand) {
	r := math.Sqrt(rng.Float64()) * resetRadiusFraction * e.Radius
	theta := rng.Float64() * 2 * math.Pi
	y := (rng.Float64() - 0.5) * e.Height

	e.SetPosition(i, float32(r*math.Cos(theta)), float32(y), float32(r*math.Sin(theta)))
	e.SetVelocity(i, 0, 0, 0)
	e.Temperatures[i] = ambient
	e.Phases[i] = PhaseLiquid
}
