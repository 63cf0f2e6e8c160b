// Package game schedules the convection simulation: it owns the configuration
// snapshot, smoothed state and ensemble, and drives ticks from either the
// raylib frame loop or a fixed headless clock.
package game

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/convection/camera"
	"github.com/pthm-cable/convection/config"
	"github.com/pthm-cable/convection/renderer"
	"github.com/pthm-cable/convection/stream"
	"github.com/pthm-cable/convection/systems"
	"github.com/pthm-cable/convection/telemetry"
)

// Steps-per-update bounds for the , and . keys.
const (
	minStepsPerUpdate = 1
	maxStepsPerUpdate = 10
)

// Options configures a new game.
type Options struct {
	Seed           int64
	LogStats       bool
	StatsWindowSec float64 // 0 = use config
	OutputDir      string  // empty = no CSV output
	PresetPath     string  // file used by the load/save keys
	Headless       bool
	StepsPerUpdate int

	// StatsCallback, if set, receives every flushed window.
	StatsCallback func(telemetry.WindowStats)
}

// Game holds the complete simulation state.
type Game struct {
	cfg *config.Config
	rng *rand.Rand

	state      systems.SimState
	ensemble   *systems.Ensemble
	integrator *systems.Integrator
	parallel   *parallelState

	// State
	tick           int32
	paused         bool
	heatMap        bool
	stepsPerUpdate int
	headless       bool
	presetPath     string
	lastReport     systems.TickReport

	// Telemetry
	collector     *telemetry.Collector
	perfCollector *telemetry.PerfCollector
	outputManager *telemetry.OutputManager
	logStats      bool
	statsCallback func(telemetry.WindowStats)

	// Remote viewers
	hub *stream.Hub

	// Rendering (graphical mode only)
	camera    *camera.Camera
	particles *renderer.ParticleRenderer
	vessel    *renderer.VesselRenderer
	hud       *renderer.HUD
}

// NewGameWithOptions builds a game from cfg. The game keeps its own copy of
// cfg; later changes go through LoadPreset.
func NewGameWithOptions(cfg *config.Config, opts Options) (*Game, error) {
	cfg = cfg.Clone()

	statsWindow := cfg.Telemetry.StatsWindow
	if opts.StatsWindowSec > 0 {
		statsWindow = opts.StatsWindowSec
	}
	steps := opts.StepsPerUpdate
	if steps < minStepsPerUpdate {
		steps = minStepsPerUpdate
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	g := &Game{
		cfg:            cfg,
		rng:            rng,
		state:          systems.NewSimState(cfg),
		integrator:     systems.NewIntegrator(rng),
		heatMap:        cfg.Visualization.HeatMap,
		stepsPerUpdate: steps,
		headless:       opts.Headless,
		presetPath:     opts.PresetPath,
		collector:      telemetry.NewCollector(statsWindow),
		perfCollector:  telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		logStats:       opts.LogStats,
		statsCallback:  opts.StatsCallback,
	}
	g.rebuildEnsemble()

	g.parallel = newParallelState(cfg.Simulation.Workers, cfg.Simulation.ParallelThreshold, rng)
	g.integrator.SetRunner(g.parallel)
	g.integrator.SetStageTimer(g.perfCollector)

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("creating output: %w", err)
	}
	g.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}

	if cfg.Stream.Addr != "" {
		g.hub = stream.NewHub()
		if _, err := g.hub.Listen(cfg.Stream.Addr); err != nil {
			om.Close()
			return nil, fmt.Errorf("starting stream: %w", err)
		}
	}

	if !g.headless {
		g.camera = camera.New(cfg.Vessel.Radius, cfg.Vessel.Height)
		g.particles = renderer.NewParticleRenderer()
		g.vessel = renderer.NewVesselRenderer()
		g.hud = renderer.NewHUD()
	}

	slog.Info("simulation created",
		"particles", g.ensemble.Len(),
		"radius", cfg.Vessel.Radius,
		"height", cfg.Vessel.Height,
		"workers", g.parallel.numWorkers,
		"seed", opts.Seed,
	)
	return g, nil
}

// UpdateHeadless advances stepsPerUpdate ticks of fixed_dt seconds each.
func (g *Game) UpdateHeadless() {
	g.handleCommands()
	for i := 0; i < g.stepsPerUpdate; i++ {
		g.Step(g.cfg.Simulation.FixedDT)
	}
}

// Step runs a single tick with the given elapsed time. A paused game still
// refreshes colors but leaves every other field untouched.
func (g *Game) Step(elapsed float64) systems.TickReport {
	g.syncEnsemble()

	g.perfCollector.StartTick()
	in := systems.TickInput{
		Config:     g.cfg,
		CanConvect: g.cfg.Convection.Allowed,
		Elapsed:    elapsed,
		Running:    !g.paused,
		HeatMap:    g.heatMap,
	}
	rep := g.integrator.Step(g.ensemble, &g.state, in)

	stepped := 0
	if !g.paused {
		stepped = g.ensemble.Len()
		g.lastReport = rep
		g.perfCollector.StartPhase(telemetry.PhaseTelemetry)
		g.collector.RecordTick(rep, min(max(elapsed, 0), systems.MaxTimeStep))
		g.flushTelemetry()
		g.tick++
	}

	g.perfCollector.StartPhase(telemetry.PhaseStream)
	g.broadcastFrame()
	g.perfCollector.EndTick(stepped)
	return rep
}

// Tick returns the number of running ticks so far.
func (g *Game) Tick() int32 {
	return g.tick
}

// Paused reports whether stepping is suspended.
func (g *Game) Paused() bool {
	return g.paused
}

// SetPaused suspends or resumes stepping.
func (g *Game) SetPaused(p bool) {
	g.paused = p
}

// HeatMap reports whether particles are colored by temperature.
func (g *Game) HeatMap() bool {
	return g.heatMap
}

// SetHeatMap switches between temperature and speed coloring.
func (g *Game) SetHeatMap(on bool) {
	g.heatMap = on
}

// Ensemble exposes the particle buffers for rendering and inspection.
func (g *Game) Ensemble() *systems.Ensemble {
	return g.ensemble
}

// State returns a copy of the smoothed simulation state.
func (g *Game) State() systems.SimState {
	return g.state
}

// Config returns the active configuration. Callers must not modify it.
func (g *Game) Config() *config.Config {
	return g.cfg
}

// LastReport returns the report of the most recent running tick.
func (g *Game) LastReport() systems.TickReport {
	return g.lastReport
}

// Unload stops workers, closes the stream and flushes output files.
func (g *Game) Unload() {
	g.parallel.stopWorkers()
	if g.hub != nil {
		if err := g.hub.Close(); err != nil {
			slog.Error("failed to close stream", "error", err)
		}
	}
	if err := g.outputManager.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	if g.particles != nil {
		g.particles.Unload()
	}
}
