package telemetry

import "github.com/pthm-cable/convection/systems"

// Collector accumulates tick reports within time windows and produces WindowStats.
// Windows are measured in simulated seconds since graphical ticks vary in length.
type Collector struct {
	windowDurationSec float64

	// Current window tracking
	windowStartTick int32
	windowElapsed   float64
	simTime         float64

	// Event counters for current window
	ticks          int
	speedMeanSum   float64
	maxSpeed       float64
	floorBounces   int
	ceilingBounces int
	wallHits       int
	recoveries     int

	// Latest tick snapshot
	lastGas        int
	lastConducting int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds.
func NewCollector(windowDurationSec float64) *Collector {
	if windowDurationSec <= 0 {
		windowDurationSec = 5
	}
	return &Collector{windowDurationSec: windowDurationSec}
}

// RecordTick folds one tick's report into the current window.
func (c *Collector) RecordTick(rep systems.TickReport, dt float64) {
	c.windowElapsed += dt
	c.simTime += dt
	c.ticks++
	c.speedMeanSum += rep.MeanSpeed()
	c.maxSpeed = max(c.maxSpeed, rep.MaxSpeed)
	c.floorBounces += rep.FloorBounces
	c.ceilingBounces += rep.CeilingBounces
	c.wallHits += rep.WallHits
	c.recoveries += rep.Recoveries
	c.lastGas = rep.Gas
	c.lastConducting = rep.Conducting
}

// ShouldFlush returns true once the window has covered its duration.
func (c *Collector) ShouldFlush() bool {
	return c.windowElapsed >= c.windowDurationSec
}

// SimTime returns the total simulated seconds recorded.
func (c *Collector) SimTime() float64 {
	return c.simTime
}

// Flush produces a WindowStats from the ensemble's current state and resets
// counters for the next window.
func (c *Collector) Flush(currentTick int32, e *systems.Ensemble, st *systems.SimState) WindowStats {
	ts := ComputeTemperatureStats(e.Temperatures)
	n := e.Len()

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      c.simTime,

		Particles: n,

		TempMean: ts.Mean,
		TempStd:  ts.Std,
		TempMin:  ts.Min,
		TempP10:  ts.P10,
		TempP50:  ts.P50,
		TempP90:  ts.P90,
		TempMax:  ts.Max,

		AvgSystemTemp: st.AvgTemp,
		SurfaceTemp:   st.SurfaceTemp,

		MaxSpeed: c.maxSpeed,

		FloorBounces:   c.floorBounces,
		CeilingBounces: c.ceilingBounces,
		WallHits:       c.wallHits,
		Recoveries:     c.recoveries,
	}
	if c.ticks > 0 {
		stats.MeanSpeed = c.speedMeanSum / float64(c.ticks)
	}
	if n > 0 {
		stats.GasFraction = float64(c.lastGas) / float64(n)
		stats.ConductingFraction = float64(c.lastConducting) / float64(n)
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.windowElapsed = 0
	c.ticks = 0
	c.speedMeanSum = 0
	c.maxSpeed = 0
	c.floorBounces = 0
	c.ceilingBounces = 0
	c.wallHits = 0
	c.recoveries = 0

	return stats
}

// WindowDuration returns the window length in simulated seconds.
func (c *Collector) WindowDuration() float64 {
	return c.windowDurationSec
}
