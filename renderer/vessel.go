package renderer

import (
	rl "github.com/gen2brain/raylib-go/raylib"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/pthm-cable/convection/systems"
)

const (
	vesselSlices   = 48
	plateThickness = 0.02 // fraction of vessel height
)

var wallColor = rl.Color{R: 180, G: 190, B: 200, A: 90}

// VesselRenderer draws the cylinder walls and the heated floor plate.
type VesselRenderer struct{}

// NewVesselRenderer creates a new vessel renderer.
func NewVesselRenderer() *VesselRenderer {
	return &VesselRenderer{}
}

// Draw renders the vessel. heat in [0, 1] picks the plate color from the
// temperature gradient. Must be called inside 3D mode.
func (v *VesselRenderer) Draw(radius, height, heat float64) {
	r := float32(radius)
	h := float32(height)
	floor := -h / 2
	plate := h * plateThickness

	rl.DrawCylinder(rl.NewVector3(0, floor-plate, 0), r, r, plate, vesselSlices, plateColor(heat))
	rl.DrawCylinderWires(rl.NewVector3(0, floor, 0), r, r, h, vesselSlices, wallColor)
}

// plateColor blends from a dull grey toward the gradient color as heat rises.
func plateColor(heat float64) rl.Color {
	heat = min(max(heat, 0), 1)
	cold := colorful.Color{R: 0.35, G: 0.35, B: 0.38}
	return toRL(cold.BlendRgb(systems.HeatColor(heat), heat), 255)
}

func toRL(c colorful.Color, alpha uint8) rl.Color {
	r, g, b := c.Clamped().RGB255()
	return rl.Color{R: r, G: g, B: b, A: alpha}
}
