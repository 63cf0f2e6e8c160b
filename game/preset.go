package game

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pthm-cable/convection/config"
	"github.com/pthm-cable/convection/systems"
)

// LoadPreset merges a persisted preset over the active configuration.
// A file missing vessel.radius or fluid.gravity, or failing validation, is
// rejected as a whole and the current configuration stays in effect.
// Smoothed parameters glide toward the new targets over the following ticks.
func (g *Game) LoadPreset(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading preset: %w", err)
	}

	next := g.cfg.Clone()
	if err := config.Merge(next, data); err != nil {
		return fmt.Errorf("loading preset %s: %w", path, err)
	}
	g.cfg = next
	g.heatMap = next.Visualization.HeatMap

	if g.camera != nil {
		g.camera.Refit(next.Vessel.Radius, next.Vessel.Height)
	}
	slog.Info("preset loaded", "path", path,
		"radius", next.Vessel.Radius,
		"height", next.Vessel.Height,
		"particles", next.Visualization.ParticleCount,
	)
	return nil
}

// SavePreset writes the active configuration to path.
func (g *Game) SavePreset(path string) error {
	cfg := g.cfg.Clone()
	cfg.Visualization.HeatMap = g.heatMap
	if err := cfg.WriteYAML(path); err != nil {
		return fmt.Errorf("saving preset: %w", err)
	}
	slog.Info("preset saved", "path", path)
	return nil
}

// Reset respawns the ensemble from the current configuration and restarts
// the running average.
func (g *Game) Reset() {
	g.rebuildEnsemble()
	slog.Info("ensemble reset", "particles", g.ensemble.Len())
}

// syncEnsemble rebuilds the ensemble when the particle count or vessel
// geometry differ from the configuration.
func (g *Game) syncEnsemble() {
	v := g.cfg.Vessel
	if g.ensemble.Matches(g.cfg.Visualization.ParticleCount, v.Radius, v.Height) {
		return
	}
	g.rebuildEnsemble()
	slog.Info("ensemble rebuilt", "particles", g.ensemble.Len(), "radius", v.Radius, "height", v.Height)
}

func (g *Game) rebuildEnsemble() {
	v := g.cfg.Vessel
	spawn := g.cfg.Thermal.InitialTemp
	g.ensemble = systems.NewEnsemble(g.cfg.Visualization.ParticleCount, v.Radius, v.Height, spawn, g.rng)
	g.state.ResetAverage(spawn)
}
