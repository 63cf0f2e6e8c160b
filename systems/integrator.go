package systems

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/convection/config"
)

// MaxTimeStep bounds the worst-case step size in seconds.
const MaxTimeStep = 0.05

// MaxVelocity is the per-axis velocity ceiling in m/s.
const MaxVelocity = 10.0

// Force model constants
const (
	minDensity       = 1.0
	minInertia       = 0.01
	dragScale        = 100.0
	maxDragFactor    = 0.999
	diffusionScale   = 80000.0
	buoyancyScale    = 250.0
	gasLiftFactor    = 2.0
	circulationForce = 2.0
	jitterRefTemp    = 500.0
	jitterAmplitude  = 0.05
)

// Thermal boundary layers (m) and rate multipliers
const (
	surfaceLayer    = 0.02
	wallLayer       = 0.015
	topLayer        = 0.01
	surfaceRateMul  = 20.0
	coolingRateMul  = 5.0
	mixingRateMul   = 0.1
	bounceHeatLerp  = 0.2
	conductingLayer = 0.015
	conductingDelta = 5.0
)

// Collision response
const (
	boundaryInset    = 0.001
	wallInset        = 1e-6 // Keeps reprojected float32 positions inside R
	floorRestitution = -0.4
	wallRestitution  = -0.5
	minCirculationR  = 0.001
)

// TickInput is the per-tick snapshot the scheduler hands to the integrator.
type TickInput struct {
	Config     *config.Config
	CanConvect bool    // Rayleigh-regime gate from the derived-quantity calculator
	Elapsed    float64 // Wall time since the previous tick, seconds
	Running    bool
	HeatMap    bool
}

// TickScalars holds the values shared by every particle within one tick.
type TickScalars struct {
	DT            float64
	InertiaFactor float64
	DragFactor    float64
	ThermalRate   float64
	AvgTemp       float64
	CanConvect    bool

	SurfaceTemp    float64
	AmbientTemp    float64
	BoilingPoint   float64
	Gravity        float64
	ExpansionCoeff float64

	Radius     float64
	Height     float64
	HalfHeight float64

	HeatMap bool
}

// TickReport counts what happened during a tick. Recoveries are reported here
// and nowhere else.
type TickReport struct {
	Particles      int
	FloorBounces   int
	CeilingBounces int
	WallHits       int
	Recoveries     int
	Gas            int
	Conducting     int
	SpeedSum       float64
	MaxSpeed       float64
}

// Merge folds another chunk's report into r.
func (r *TickReport) Merge(o TickReport) {
	r.Particles += o.Particles
	r.FloorBounces += o.FloorBounces
	r.CeilingBounces += o.CeilingBounces
	r.WallHits += o.WallHits
	r.Recoveries += o.Recoveries
	r.Gas += o.Gas
	r.Conducting += o.Conducting
	r.SpeedSum += o.SpeedSum
	r.MaxSpeed = max(r.MaxSpeed, o.MaxSpeed)
}

// MeanSpeed returns the average particle speed for the tick.
func (r TickReport) MeanSpeed() float64 {
	if r.Particles == 0 {
		return 0
	}
	return r.SpeedSum / float64(r.Particles)
}

// Stage names reported to a StageTimer, in tick order.
const (
	StageSmooth     = "smooth"
	StageStatistics = "statistics"
	StageIntegrate  = "integrate"
	StageColor      = "color"
)

// StageTimer is notified as a tick enters each stage.
type StageTimer interface {
	StartPhase(name string)
}

// ChunkFunc processes particles [start, end) with its own rng.
type ChunkFunc func(start, end int, rng *rand.Rand) TickReport

// Runner splits [0, n) into disjoint chunks, runs fn on each and merges the
// reports. Chunks may run concurrently but must not share an rng.
type Runner interface {
	Run(n int, fn ChunkFunc) TickReport
}

// Integrator advances an ensemble one tick at a time.
type Integrator struct {
	rng    *rand.Rand
	runner Runner
	timer  StageTimer
}

// NewIntegrator creates a single-threaded integrator drawing jitter and
// respawn positions from rng.
func NewIntegrator(rng *rand.Rand) *Integrator {
	return &Integrator{rng: rng}
}

// SetRunner installs a chunk runner. Nil restores single-threaded stepping.
func (it *Integrator) SetRunner(r Runner) {
	it.runner = r
}

// SetStageTimer installs a stage timer. Nil disables timing.
func (it *Integrator) SetStageTimer(t StageTimer) {
	it.timer = t
}

func (it *Integrator) stage(name string) {
	if it.timer != nil {
		it.timer.StartPhase(name)
	}
}

func (it *Integrator) run(n int, fn ChunkFunc) TickReport {
	if it.runner == nil || n == 0 {
		return fn(0, n, it.rng)
	}
	return it.runner.Run(n, fn)
}

// Step runs a full tick: smoothing, shared scalars, every particle, then colors.
// A paused tick only refreshes colors.
func (it *Integrator) Step(e *Ensemble, st *SimState, in TickInput) TickReport {
	if !in.Running {
		it.stage(StageColor)
		it.colorize(e, ColorScalars(e, st, in))
		return TickReport{}
	}

	it.stage(StageSmooth)
	st.Smooth(in.Config)

	it.stage(StageStatistics)
	sc := BeginTick(e, st, in)

	it.stage(StageIntegrate)
	report := it.run(e.Len(), func(start, end int, rng *rand.Rand) TickReport {
		return e.Integrate(sc, start, end, rng)
	})

	it.stage(StageColor)
	it.colorize(e, sc)
	return report
}

func (it *Integrator) colorize(e *Ensemble, sc TickScalars) {
	it.run(e.Len(), func(start, end int, _ *rand.Rand) TickReport {
		e.Colorize(sc, start, end)
		return TickReport{}
	})
}

// ColorScalars builds the subset of tick scalars the color mapper reads,
// without touching the running state.
func ColorScalars(e *Ensemble, st *SimState, in TickInput) TickScalars {
	return TickScalars{
		SurfaceTemp: st.SurfaceTemp,
		AmbientTemp: st.InitialTemp,
		Radius:      e.Radius,
		Height:      e.Height,
		HalfHeight:  e.Height / 2,
		HeatMap:     in.HeatMap,
	}
}

// BeginTick computes the shared scalars and folds this tick's ensemble mean
// into the running average. It must complete before any particle is updated.
func BeginTick(e *Ensemble, st *SimState, in TickInput) TickScalars {
	cfg := in.Config
	dt := clamp(in.Elapsed, 0, MaxTimeStep)

	safeDensity := max(minDensity, st.Density)
	inertia := max(minInertia, safeDensity*0.001*cfg.Fluid.DensityEffect)
	dragCoeff := st.Viscosity * dragScale / inertia

	if mean, ok := e.MeanTemperature(); ok && isFinite(mean) {
		st.AvgTemp = lerpToward(st.AvgTemp, mean, AvgTempLerpRate)
	}

	sc := ColorScalars(e, st, in)
	sc.DT = dt
	sc.InertiaFactor = inertia
	sc.DragFactor = clamp(1-dragCoeff*dt, 0, maxDragFactor)
	sc.ThermalRate = st.Diffusivity * diffusionScale
	sc.AvgTemp = st.AvgTemp
	sc.CanConvect = in.CanConvect
	sc.BoilingPoint = cfg.Thermal.BoilingPoint
	sc.Gravity = st.Gravity
	sc.ExpansionCoeff = st.ExpansionCoeff
	return sc
}

// Integrate updates particles [start, end). Each particle reads only its own
// prior state and sc, so disjoint ranges may run concurrently given separate
// rng instances.
func (e *Ensemble) Integrate(sc TickScalars, start, end int, rng *rand.Rand) TickReport {
	var rep TickReport
	for i := start; i < end; i++ {
		e.integrateParticle(i, &sc, rng, &rep)
	}
	return rep
}

func (e *Ensemble) integrateParticle(i int, sc *TickScalars, rng *rand.Rand, rep *TickReport) {
	j := 3 * i
	if !isFinite32(e.Positions[j]) || !isFinite32(e.Positions[j+1]) || !isFinite32(e.Positions[j+2]) ||
		!isFinite(e.Temperatures[i]) {
		e.recover(i, sc, rng, rep)
		return
	}

	x, y, z := float64(e.Positions[j]), float64(e.Positions[j+1]), float64(e.Positions[j+2])
	vx, vy, vz := float64(e.Velocities[j]), float64(e.Velocities[j+1]), float64(e.Velocities[j+2])
	temp := e.Temperatures[i]
	dt := sc.DT
	hh := sc.HalfHeight
	r := math.Hypot(x, z)

	// Thermal exchange; all three rules may stack
	distToSurface := y + hh
	if distToSurface < surfaceLayer {
		contact := max(0, 1-distToSurface/surfaceLayer)
		temp = lerpToward(temp, sc.SurfaceTemp, sc.ThermalRate*surfaceRateMul*contact*dt)
	}
	if sc.Radius-r < wallLayer || hh-y < topLayer {
		temp = lerpToward(temp, sc.AmbientTemp, sc.ThermalRate*coolingRateMul*dt)
	}
	if sc.CanConvect {
		temp = lerpToward(temp, sc.AvgTemp, sc.ThermalRate*mixingRateMul*dt)
	}

	// Phase and vertical buoyancy (Boussinesq)
	var fx, fy, fz float64
	tempDiff := temp - sc.AvgTemp
	if temp > sc.BoilingPoint {
		e.Phases[i] = PhaseGas
		fy += sc.Gravity * gasLiftFactor
	} else {
		e.Phases[i] = PhaseLiquid
		fy += sc.Gravity * sc.ExpansionCoeff * tempDiff * buoyancyScale
	}

	// Toroidal circulation: hot fluid spreads at the top, cold is drawn in at the bottom
	if sc.CanConvect && r > minCirculationR {
		rNorm := r / sc.Radius
		yNorm := (y + hh) / sc.Height
		ux, uz := x/r, z/r
		if tempDiff > 0 && yNorm > 0.8 {
			fx += circulationForce * rNorm * ux
			fz += circulationForce * rNorm * uz
		}
		if tempDiff < 0 && yNorm < 0.2 {
			fx -= circulationForce * ux
			fz -= circulationForce * uz
		}
	}

	// Thermal agitation
	jitter := (temp / jitterRefTemp) * jitterAmplitude
	fx += (rng.Float64() - 0.5) * jitter
	fy += (rng.Float64() - 0.5) * jitter
	fz += (rng.Float64() - 0.5) * jitter

	// Semi-implicit Euler. A zero-length step leaves kinematics untouched.
	if dt > 0 {
		k := dt / sc.InertiaFactor
		vx = clamp((vx+fx*k)*sc.DragFactor, -MaxVelocity, MaxVelocity)
		vy = clamp((vy+fy*k)*sc.DragFactor, -MaxVelocity, MaxVelocity)
		vz = clamp((vz+fz*k)*sc.DragFactor, -MaxVelocity, MaxVelocity)
		x += vx * dt
		y += vy * dt
		z += vz * dt
	}

	// Boundaries
	if y < -hh {
		y = -hh + boundaryInset
		vy *= floorRestitution
		temp = lerpToward(temp, sc.SurfaceTemp, bounceHeatLerp)
		rep.FloorBounces++
	}
	if y > hh {
		y = hh - boundaryInset
		vy *= floorRestitution
		rep.CeilingBounces++
	}
	if d := math.Hypot(x, z); d > sc.Radius {
		x = x / d * (sc.Radius - wallInset)
		z = z / d * (sc.Radius - wallInset)
		vx *= wallRestitution
		vz *= wallRestitution
		rep.WallHits++
	}

	px, py, pz := float32(x), float32(y), float32(z)
	if !isFinite32(px) || !isFinite32(py) || !isFinite32(pz) || !isFinite(temp) {
		e.recover(i, sc, rng, rep)
		return
	}

	e.Positions[j], e.Positions[j+1], e.Positions[j+2] = px, py, pz
	e.Velocities[j], e.Velocities[j+1], e.Velocities[j+2] = float32(vx), float32(vy), float32(vz)
	e.Temperatures[i] = temp

	speed := math.Sqrt(vx*vx + vy*vy + vz*vz)
	rep.Particles++
	rep.SpeedSum += speed
	rep.MaxSpeed = max(rep.MaxSpeed, speed)
	if e.Phases[i] == PhaseGas {
		rep.Gas++
	}
	if py+float32(hh) < conductingLayer && temp > sc.AmbientTemp+conductingDelta {
		rep.Conducting++
	}
}

func (e *Ensemble) recover(i int, sc *TickScalars, rng *rand.Rand, rep *TickReport) {
	e.respawn(i, sc.AmbientTemp, rng)
	rep.Recoveries++
	rep.Particles++
}
