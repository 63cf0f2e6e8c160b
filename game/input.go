package game

import (
	"fmt"
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Orbit sensitivities
const (
	orbitRadPerPixel = 0.008
	zoomPerWheel     = 1.1
)

// handleInput processes keyboard and mouse input.
func (g *Game) handleInput() {
	if rl.IsKeyPressed(rl.KeySpace) {
		g.paused = !g.paused
	}

	if rl.IsKeyPressed(rl.KeyH) {
		g.heatMap = !g.heatMap
	}

	// Steps-per-update control with < > keys (comma and period)
	if rl.IsKeyPressed(rl.KeyComma) && g.stepsPerUpdate > minStepsPerUpdate {
		g.stepsPerUpdate--
	}
	if rl.IsKeyPressed(rl.KeyPeriod) && g.stepsPerUpdate < maxStepsPerUpdate {
		g.stepsPerUpdate++
	}

	if rl.IsKeyPressed(rl.KeyR) {
		g.Reset()
		g.notify("ensemble reset", false)
	}

	if rl.IsKeyPressed(rl.KeyL) {
		g.loadPresetInteractive()
	}
	if rl.IsKeyPressed(rl.KeyS) {
		g.savePresetInteractive()
	}

	g.handleCameraInput()
}

// handleCameraInput orbits with a left drag, zooms with the wheel and
// recenters with C.
func (g *Game) handleCameraInput() {
	if rl.IsMouseButtonDown(rl.MouseButtonLeft) {
		d := rl.GetMouseDelta()
		g.camera.Orbit(-float64(d.X)*orbitRadPerPixel, float64(d.Y)*orbitRadPerPixel)
	}

	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		factor := zoomPerWheel
		if wheel < 0 {
			factor = 1 / zoomPerWheel
		}
		g.camera.ZoomBy(factor)
	}

	if rl.IsKeyPressed(rl.KeyC) {
		g.camera.Reset()
	}
}

func (g *Game) loadPresetInteractive() {
	if g.presetPath == "" {
		g.notify("no preset file configured (-preset)", true)
		return
	}
	if err := g.LoadPreset(g.presetPath); err != nil {
		slog.Warn("preset rejected", "path", g.presetPath, "error", err)
		g.notify(fmt.Sprintf("preset rejected: %v", err), true)
		return
	}
	g.notify("preset loaded: "+g.presetPath, false)
}

func (g *Game) savePresetInteractive() {
	if g.presetPath == "" {
		g.notify("no preset file configured (-preset)", true)
		return
	}
	if err := g.SavePreset(g.presetPath); err != nil {
		slog.Error("preset save failed", "path", g.presetPath, "error", err)
		g.notify(fmt.Sprintf("save failed: %v", err), true)
		return
	}
	g.notify("preset saved: "+g.presetPath, false)
}

func (g *Game) notify(msg string, isError bool) {
	if g.hud != nil {
		g.hud.Notify(msg, isError, rl.GetTime())
	}
}
