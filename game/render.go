package game

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/convection/renderer"
)

var backgroundColor = rl.Color{R: 18, G: 20, B: 26, A: 255}

// Update handles input and advances stepsPerUpdate ticks using the frame time.
func (g *Game) Update() {
	g.handleInput()
	g.handleCommands()

	elapsed := float64(rl.GetFrameTime())
	if g.paused {
		g.Step(elapsed)
		return
	}
	for i := 0; i < g.stepsPerUpdate; i++ {
		g.Step(elapsed)
	}
}

// Draw renders the vessel, particles and HUD.
func (g *Game) Draw() {
	rl.BeginDrawing()
	rl.ClearBackground(backgroundColor)

	rl.BeginMode3D(renderer.Camera3D(g.camera))
	g.vessel.Draw(g.ensemble.Radius, g.ensemble.Height, g.plateHeat())
	g.particles.Draw(g.ensemble, g.camera, g.cfg.Visualization.ParticleSize)
	rl.EndMode3D()

	g.hud.Draw(g.hudLines(), rl.GetTime())

	rl.EndDrawing()
}

// plateHeat maps the smoothed surface temperature onto [0, 1] between
// ambient and boiling.
func (g *Game) plateHeat() float64 {
	span := max(1, g.cfg.Thermal.BoilingPoint-g.state.InitialTemp)
	return (g.state.SurfaceTemp - g.state.InitialTemp) / span
}

func (g *Game) hudLines() []string {
	mode := "heat map"
	if !g.heatMap {
		mode = "speed"
	}
	status := "running"
	if g.paused {
		status = "paused"
	}
	rep := g.lastReport
	return []string{
		fmt.Sprintf("tick %d  %s  x%d", g.tick, status, g.stepsPerUpdate),
		fmt.Sprintf("particles %d  color %s", g.ensemble.Len(), mode),
		fmt.Sprintf("surface %.1f K  avg %.2f K", g.state.SurfaceTemp, g.state.AvgTemp),
		fmt.Sprintf("mean speed %.4f m/s  gas %d  conducting %d", rep.MeanSpeed(), rep.Gas, rep.Conducting),
		"space pause  H colors  , . speed  R reset  L/S preset  C camera",
	}
}
