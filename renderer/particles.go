// Package renderer draws the ensemble and vessel with raylib.
package renderer

import (
	"sort"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/convection/camera"
	"github.com/pthm-cable/convection/systems"
)

// Sphere tessellation for particles. Kept coarse, particles are a few pixels wide.
const (
	sphereRings  = 4
	sphereSlices = 6
	liquidAlpha  = 255
	steamAlpha   = 150
)

// ParticleRenderer renders the ensemble straight from its flat buffers.
type ParticleRenderer struct {
	gas   []int     // scratch: gas particle indices
	depth []float64 // scratch: depth per gas particle
}

// NewParticleRenderer creates a new particle renderer.
func NewParticleRenderer() *ParticleRenderer {
	return &ParticleRenderer{}
}

// Draw renders liquid particles opaque, then steam back-to-front with alpha.
// Must be called between rl.BeginMode3D and rl.EndMode3D.
func (r *ParticleRenderer) Draw(e *systems.Ensemble, cam *camera.Camera, baseSize float64) {
	r.gas = r.gas[:0]
	for i := 0; i < e.Len(); i++ {
		if e.Phases[i] == systems.PhaseGas {
			r.gas = append(r.gas, i)
			continue
		}
		r.drawParticle(e, i, baseSize, liquidAlpha)
	}

	for _, i := range r.backToFront(e, cam) {
		r.drawParticle(e, i, baseSize, steamAlpha)
	}
}

func (r *ParticleRenderer) drawParticle(e *systems.Ensemble, i int, baseSize float64, alpha uint8) {
	x, y, z := e.Position(i)
	rl.DrawSphereEx(rl.NewVector3(x, y, z), particleRadius(baseSize, e.Variance[i]), sphereRings, sphereSlices, particleColor(e.Colors, i, alpha))
}

// backToFront orders the collected gas indices from farthest to nearest.
func (r *ParticleRenderer) backToFront(e *systems.Ensemble, cam *camera.Camera) []int {
	if cap(r.depth) < e.Len() {
		r.depth = make([]float64, e.Len())
	}
	r.depth = r.depth[:e.Len()]
	for _, i := range r.gas {
		x, y, z := e.Position(i)
		r.depth[i] = cam.Depth(mgl64.Vec3{float64(x), float64(y), float64(z)})
	}
	sort.Slice(r.gas, func(a, b int) bool {
		return r.depth[r.gas[a]] > r.depth[r.gas[b]]
	})
	return r.gas
}

// Unload frees resources.
func (r *ParticleRenderer) Unload() {
	r.gas = nil
	r.depth = nil
}

// particleRadius scales the configured size by the particle's fixed variance.
func particleRadius(baseSize float64, variance float32) float32 {
	return float32(baseSize) * variance
}

// particleColor reads the rgb triple of particle i from the color buffer.
func particleColor(colors []float32, i int, alpha uint8) rl.Color {
	j := 3 * i
	return rl.Color{
		R: unitToByte(colors[j]),
		G: unitToByte(colors[j+1]),
		B: unitToByte(colors[j+2]),
		A: alpha,
	}
}

func unitToByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

// Camera3D converts an orbit camera into a raylib perspective camera.
func Camera3D(cam *camera.Camera) rl.Camera3D {
	return rl.Camera3D{
		Position:   toVector3(cam.Eye()),
		Target:     toVector3(cam.Target()),
		Up:         toVector3(cam.Up()),
		Fovy:       float32(cam.Fovy),
		Projection: rl.CameraPerspective,
	}
}

func toVector3(v mgl64.Vec3) rl.Vector3 {
	return rl.NewVector3(float32(v.X()), float32(v.Y()), float32(v.Z()))
}
