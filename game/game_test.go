package game

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/convection/config"
	"github.com/pthm-cable/convection/stream"
	"github.com/pthm-cable/convection/systems"
	"github.com/pthm-cable/convection/telemetry"
)

func newHeadless(t *testing.T, cfg *config.Config, opts Options) *Game {
	t.Helper()
	opts.Headless = true
	g, err := NewGameWithOptions(cfg, opts)
	require.NoError(t, err)
	t.Cleanup(g.Unload)
	return g
}

func smallConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Visualization.ParticleCount = 200
	return cfg
}

func TestHeadlessStepping(t *testing.T) {
	g := newHeadless(t, smallConfig(), Options{Seed: 1, StepsPerUpdate: 3})

	start := g.Ensemble().Temperatures[0]
	for i := 0; i < 100; i++ {
		g.UpdateHeadless()
	}
	assert.Equal(t, int32(300), g.Tick())
	assert.Equal(t, 200, g.LastReport().Particles)

	// Heated floor warms the fluid
	st := g.State()
	assert.Greater(t, st.AvgTemp, start)

	e := g.Ensemble()
	hh := float32(e.Height / 2)
	for i := 0; i < e.Len(); i++ {
		_, y, _ := e.Position(i)
		require.True(t, y >= -hh && y <= hh, "particle %d y=%f outside vessel", i, y)
	}
}

func TestSameSeedSameRun(t *testing.T) {
	a := newHeadless(t, smallConfig(), Options{Seed: 7})
	b := newHeadless(t, smallConfig(), Options{Seed: 7})
	for i := 0; i < 50; i++ {
		a.UpdateHeadless()
		b.UpdateHeadless()
	}
	assert.Equal(t, a.Ensemble().Positions, b.Ensemble().Positions)
	assert.Equal(t, a.Ensemble().Temperatures, b.Ensemble().Temperatures)
}

func TestPausedStepLeavesStateAlone(t *testing.T) {
	g := newHeadless(t, smallConfig(), Options{Seed: 2})
	g.UpdateHeadless()

	g.SetPaused(true)
	before := append([]float32(nil), g.Ensemble().Positions...)
	temps := append([]float64(nil), g.Ensemble().Temperatures...)
	st := g.State()

	g.UpdateHeadless()
	assert.Equal(t, int32(1), g.Tick())
	assert.Equal(t, before, g.Ensemble().Positions)
	assert.Equal(t, temps, g.Ensemble().Temperatures)
	assert.Equal(t, st, g.State())

	g.SetPaused(false)
	g.UpdateHeadless()
	assert.Equal(t, int32(2), g.Tick())
}

func TestHeatMapToggleRecolorsWhilePaused(t *testing.T) {
	g := newHeadless(t, smallConfig(), Options{Seed: 3})
	g.UpdateHeadless()
	g.SetPaused(true)

	heat := append([]float32(nil), g.Ensemble().Colors...)
	g.SetHeatMap(false)
	g.UpdateHeadless()
	assert.NotEqual(t, heat, g.Ensemble().Colors)
}

func TestLoadPresetRejectsMissingFields(t *testing.T) {
	g := newHeadless(t, smallConfig(), Options{Seed: 4})
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("vessel:\n  radius: 0.3\nvisualization:\n  particle_count: 50\n"), 0644))

	err := g.LoadPreset(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrMissingField))
	assert.Equal(t, 0.1, g.Config().Vessel.Radius)
	assert.Equal(t, 200, g.Config().Visualization.ParticleCount)

	assert.Error(t, g.LoadPreset(filepath.Join(dir, "missing.yaml")))
}

func TestLoadPresetRebuildsEnsemble(t *testing.T) {
	g := newHeadless(t, smallConfig(), Options{Seed: 5})
	g.UpdateHeadless()

	preset := filepath.Join(t.TempDir(), "wide.yaml")
	require.NoError(t, os.WriteFile(preset, []byte(
		"vessel:\n  radius: 0.25\n  height: 0.3\nfluid:\n  gravity: 1.62\nvisualization:\n  particle_count: 80\n"), 0644))
	require.NoError(t, g.LoadPreset(preset))

	// Gravity glides toward the target instead of jumping
	g.UpdateHeadless()
	st := g.State()
	assert.Less(t, st.Gravity, 9.81)
	assert.Greater(t, st.Gravity, 1.62)

	e := g.Ensemble()
	assert.Equal(t, 80, e.Len())
	assert.Equal(t, 0.25, e.Radius)
	assert.Equal(t, 0.3, e.Height)
}

func TestRebuildSeedsAverageAtSpawnTemperature(t *testing.T) {
	g := newHeadless(t, smallConfig(), Options{Seed: 8})
	g.UpdateHeadless()

	preset := filepath.Join(t.TempDir(), "warm.yaml")
	require.NoError(t, os.WriteFile(preset, []byte(
		"vessel:\n  radius: 0.1\nfluid:\n  gravity: 9.81\nthermal:\n  initial_temp: 320\nvisualization:\n  particle_count: 60\n"), 0644))
	require.NoError(t, g.LoadPreset(preset))

	// A zero-length tick rebuilds without moving heat
	g.Step(0)
	st := g.State()
	require.Equal(t, 60, g.Ensemble().Len())
	assert.InDelta(t, 320, st.AvgTemp, 1e-9)
	assert.Less(t, st.InitialTemp, 320.0, "ambient still gliding toward the new target")
}

func TestSavePresetRoundTrip(t *testing.T) {
	g := newHeadless(t, smallConfig(), Options{Seed: 6})
	g.SetHeatMap(false)

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, g.SavePreset(path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 200, loaded.Visualization.ParticleCount)
	assert.False(t, loaded.Visualization.HeatMap)
}

func TestResetRespawnsAtAmbient(t *testing.T) {
	g := newHeadless(t, smallConfig(), Options{Seed: 8})
	for i := 0; i < 60; i++ {
		g.UpdateHeadless()
	}
	g.Reset()

	for _, temp := range g.Ensemble().Temperatures {
		require.Equal(t, 293.0, temp)
	}
	assert.Equal(t, g.State().InitialTemp, g.State().AvgTemp)
}

func TestStatsWindowFlushes(t *testing.T) {
	var windows []telemetry.WindowStats
	dir := filepath.Join(t.TempDir(), "out")
	g := newHeadless(t, smallConfig(), Options{
		Seed:           9,
		StatsWindowSec: 0.5,
		OutputDir:      dir,
		StatsCallback:  func(s telemetry.WindowStats) { windows = append(windows, s) },
	})

	// 0.5s at 1/60 per tick is 30 ticks per window
	for i := 0; i < 95; i++ {
		g.UpdateHeadless()
	}
	require.Len(t, windows, 3)
	assert.Equal(t, 200, windows[0].Particles)
	assert.Greater(t, windows[2].WindowEndTick, windows[1].WindowEndTick)
	assert.FileExists(t, filepath.Join(dir, "telemetry.csv"))
	assert.FileExists(t, filepath.Join(dir, "perf.csv"))
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
}

func TestViewerCommandsApply(t *testing.T) {
	g := newHeadless(t, smallConfig(), Options{Seed: 10})
	yes, no := true, false

	g.applyCommand(stream.Command{Paused: &yes, HeatMap: &no})
	assert.True(t, g.Paused())
	assert.False(t, g.HeatMap())

	g.applyCommand(stream.Command{})
	assert.True(t, g.Paused(), "empty command changes nothing")

	f := g.frame()
	assert.True(t, f.Paused)
	assert.Equal(t, 200, f.Particles)
	assert.Len(t, f.Positions, 600)
}

func TestParallelMatchesCount(t *testing.T) {
	p := newParallelState(4, 16, rand.New(rand.NewSource(1)))
	defer p.stopWorkers()

	cfg := smallConfig()
	e := systems.NewEnsemble(1000, cfg.Vessel.Radius, cfg.Vessel.Height, 293, rand.New(rand.NewSource(2)))
	st := systems.NewSimState(cfg)
	it := systems.NewIntegrator(rand.New(rand.NewSource(3)))
	it.SetRunner(p)

	in := systems.TickInput{Config: cfg, CanConvect: true, Elapsed: 1.0 / 60, Running: true, HeatMap: true}
	var rep systems.TickReport
	for i := 0; i < 30; i++ {
		rep = it.Step(e, &st, in)
	}
	assert.Equal(t, 1000, rep.Particles)
	assert.True(t, p.running, "pool should start above threshold")

	// Below threshold runs inline
	small := newParallelState(4, 16, rand.New(rand.NewSource(1)))
	calls := 0
	small.Run(10, func(start, end int, _ *rand.Rand) systems.TickReport {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
		return systems.TickReport{}
	})
	assert.Equal(t, 1, calls)
	assert.False(t, small.running)
}

func TestParallelSameSeedSameRun(t *testing.T) {
	run := func() []float32 {
		cfg := smallConfig()
		cfg.Visualization.ParticleCount = 600
		cfg.Simulation.Workers = 3
		cfg.Simulation.ParallelThreshold = 100
		g := newHeadless(t, cfg, Options{Seed: 11})
		for i := 0; i < 40; i++ {
			g.UpdateHeadless()
		}
		return append([]float32(nil), g.Ensemble().Positions...)
	}
	assert.Equal(t, run(), run())
}
