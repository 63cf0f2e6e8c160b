package telemetry

import (
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/convection/systems"
)

// Phase names for the simulation step. The first four are reported by the
// integrator itself.
const (
	PhaseSmooth     = systems.StageSmooth
	PhaseStatistics = systems.StageStatistics
	PhaseIntegrate  = systems.StageIntegrate
	PhaseColor      = systems.StageColor
	PhaseTelemetry  = "telemetry"
	PhaseStream     = "stream"
)

const numPhases = 6

// phaseOrder maps slot index to phase name, in tick order.
var phaseOrder = [numPhases]string{
	PhaseSmooth, PhaseStatistics, PhaseIntegrate,
	PhaseColor, PhaseTelemetry, PhaseStream,
}

func phaseSlot(name string) int {
	for i, p := range phaseOrder {
		if p == name {
			return i
		}
	}
	return -1
}

// PerfCollector keeps wall-clock timings of the last windowSize ticks.
// Durations are stored in seconds so gonum can reduce them directly.
type PerfCollector struct {
	windowSize int
	next       int
	count      int

	tickSec   []float64
	phaseSec  [][numPhases]float64
	particles []float64

	tickStart  time.Time
	phaseStart time.Time
	phase      int // -1 outside a phase
	pending    [numPhases]float64
}

// NewPerfCollector creates a collector averaging over windowSize ticks.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize: windowSize,
		tickSec:    make([]float64, windowSize),
		phaseSec:   make([][numPhases]float64, windowSize),
		particles:  make([]float64, windowSize),
		phase:      -1,
	}
}

// StartTick begins timing a new simulation tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.pending = [numPhases]float64{}
	p.phase = -1
}

// StartPhase closes the running phase and opens the named one. Unknown names
// only close the running phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = phaseSlot(phase)
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase >= 0 {
		p.pending[p.phase] += now.Sub(p.phaseStart).Seconds()
	}
}

// EndTick records the tick. particles is the ensemble size that was stepped.
func (p *PerfCollector) EndTick(particles int) {
	now := time.Now()
	p.closePhase(now)
	p.phase = -1

	p.tickSec[p.next] = now.Sub(p.tickStart).Seconds()
	p.phaseSec[p.next] = p.pending
	p.particles[p.next] = float64(particles)
	p.next = (p.next + 1) % p.windowSize
	p.count = min(p.count+1, p.windowSize)
}

// PerfStats summarizes the collector window.
type PerfStats struct {
	Ticks   int
	AvgTick time.Duration
	P95Tick time.Duration
	MaxTick time.Duration

	TicksPerSecond float64
	// ParticleRate is particle updates per wall-clock second.
	ParticleRate float64

	// PhasePct is each phase's share of tick time, indexed like phaseOrder.
	PhasePct [numPhases]float64
}

// Pct returns the share of tick time spent in the named phase.
func (s PerfStats) Pct(phase string) float64 {
	if i := phaseSlot(phase); i >= 0 {
		return s.PhasePct[i]
	}
	return 0
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Stats reduces the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.count == 0 {
		return PerfStats{}
	}

	ticks := make([]float64, p.count)
	copy(ticks, p.tickSec[:p.count])
	sort.Float64s(ticks)
	total := floats.Sum(ticks)

	s := PerfStats{
		Ticks:   p.count,
		AvgTick: seconds(stat.Mean(ticks, nil)),
		P95Tick: seconds(stat.Quantile(0.95, stat.Empirical, ticks, nil)),
		MaxTick: seconds(floats.Max(ticks)),
	}
	if total <= 0 {
		return s
	}

	s.TicksPerSecond = float64(p.count) / total
	s.ParticleRate = floats.Sum(p.particles[:p.count]) / total

	var phaseTotal [numPhases]float64
	for _, ph := range p.phaseSec[:p.count] {
		floats.Add(phaseTotal[:], ph[:])
	}
	for i, sum := range phaseTotal {
		s.PhasePct[i] = sum / total * 100
	}
	return s
}

// LogStats logs the window at info level.
func (s PerfStats) LogStats() {
	slog.Info("perf", "window", s)
}

// LogValue implements slog.LogValuer. Phases under 0.1% are omitted.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("ticks", s.Ticks),
		slog.Int64("avg_tick_us", s.AvgTick.Microseconds()),
		slog.Int64("p95_tick_us", s.P95Tick.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTick.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
		slog.Float64("particles_per_sec", s.ParticleRate),
	}
	for i, pct := range s.PhasePct {
		if pct >= 0.1 {
			attrs = append(attrs, slog.Float64(phaseOrder[i]+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one perf.csv row.
type PerfStatsCSV struct {
	WindowEnd     int32   `csv:"window_end"`
	AvgTickUS     int64   `csv:"avg_tick_us"`
	P95TickUS     int64   `csv:"p95_tick_us"`
	MaxTickUS     int64   `csv:"max_tick_us"`
	TicksPerSec   float64 `csv:"ticks_per_sec"`
	ParticlesPerS float64 `csv:"particles_per_sec"`
	SmoothPct     float64 `csv:"smooth_pct"`
	StatisticsPct float64 `csv:"statistics_pct"`
	IntegratePct  float64 `csv:"integrate_pct"`
	ColorPct      float64 `csv:"color_pct"`
	TelemetryPct  float64 `csv:"telemetry_pct"`
	StreamPct     float64 `csv:"stream_pct"`
}

// ToCSV flattens the stats for the window ending at windowEnd.
func (s PerfStats) ToCSV(windowEnd int32) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:     windowEnd,
		AvgTickUS:     s.AvgTick.Microseconds(),
		P95TickUS:     s.P95Tick.Microseconds(),
		MaxTickUS:     s.MaxTick.Microseconds(),
		TicksPerSec:   s.TicksPerSecond,
		ParticlesPerS: s.ParticleRate,
		SmoothPct:     s.PhasePct[0],
		StatisticsPct: s.PhasePct[1],
		IntegratePct:  s.PhasePct[2],
		ColorPct:      s.PhasePct[3],
		TelemetryPct:  s.PhasePct[4],
		StreamPct:     s.PhasePct[5],
	}
}
