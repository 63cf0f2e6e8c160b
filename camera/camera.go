// Package camera provides an orbit camera around the vessel.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Camera orbits a target point on the vessel axis.
// Angles are in radians; distances are in world meters.
type Camera struct {
	// Yaw rotates around the vertical axis, Pitch lifts above the horizon
	Yaw, Pitch float64

	// Distance from the eye to the target
	Distance float64

	// TargetY is the height of the orbit center on the vessel axis
	TargetY float64

	// Fovy is the vertical field of view in degrees
	Fovy float64

	// Zoom and pitch constraints
	MinDistance, MaxDistance float64
	MinPitch, MaxPitch       float64

	home pose
}

// pose is the resting orientation restored by Reset.
type pose struct {
	Yaw, Pitch, Distance float64
}

const (
	defaultFovy  = 45.0
	defaultYaw   = math.Pi / 4
	defaultPitch = 0.35
	fitMargin    = 1.4
)

// New creates a camera that frames a cylinder of the given radius and height.
func New(radius, height float64) *Camera {
	extent := max(radius, height/2)
	halfFov := defaultFovy / 2 * math.Pi / 180
	fit := fitMargin * extent / math.Tan(halfFov)

	c := &Camera{
		Yaw:         defaultYaw,
		Pitch:       defaultPitch,
		Distance:    fit + radius,
		Fovy:        defaultFovy,
		MinDistance: radius * 1.1,
		MaxDistance: fit * 6,
		MinPitch:    -1.4,
		MaxPitch:    1.4,
	}
	c.home = pose{Yaw: c.Yaw, Pitch: c.Pitch, Distance: c.Distance}
	return c
}

// Eye returns the camera position in world coordinates.
func (c *Camera) Eye() mgl64.Vec3 {
	cp := math.Cos(c.Pitch)
	offset := mgl64.Vec3{cp * math.Sin(c.Yaw), math.Sin(c.Pitch), cp * math.Cos(c.Yaw)}
	return c.Target().Add(offset.Mul(c.Distance))
}

// Target returns the orbit center.
func (c *Camera) Target() mgl64.Vec3 {
	return mgl64.Vec3{0, c.TargetY, 0}
}

// Up is the world up vector.
func (c *Camera) Up() mgl64.Vec3 {
	return mgl64.Vec3{0, 1, 0}
}

// View returns the world-to-camera matrix.
func (c *Camera) View() mgl64.Mat4 {
	return mgl64.LookAtV(c.Eye(), c.Target(), c.Up())
}

// Depth returns the distance of p along the view direction. Larger is farther.
func (c *Camera) Depth(p mgl64.Vec3) float64 {
	return -c.View().Mul4x1(p.Vec4(1)).Z()
}

// Orbit rotates the camera by the given yaw and pitch deltas.
// Yaw wraps to [-pi, pi]; pitch is clamped to stay off the poles.
func (c *Camera) Orbit(dYaw, dPitch float64) {
	c.Yaw = wrapAngle(c.Yaw + dYaw)
	c.Pitch = clamp(c.Pitch+dPitch, c.MinPitch, c.MaxPitch)
}

// SetDistance sets the orbit distance, clamped to min/max.
func (c *Camera) SetDistance(d float64) {
	c.Distance = clamp(d, c.MinDistance, c.MaxDistance)
}

// ZoomBy divides the orbit distance by factor, so factor > 1 moves closer.
func (c *Camera) ZoomBy(factor float64) {
	if factor <= 0 {
		return
	}
	c.SetDistance(c.Distance / factor)
}

// Reset returns the camera to the pose it was created with.
func (c *Camera) Reset() {
	c.Yaw = c.home.Yaw
	c.Pitch = c.home.Pitch
	c.Distance = c.home.Distance
}

// Refit reframes the camera for new vessel dimensions, keeping the view angles.
func (c *Camera) Refit(radius, height float64) {
	yaw, pitch := c.Yaw, c.Pitch
	*c = *New(radius, height)
	c.Yaw, c.Pitch = yaw, pitch
}

// wrapAngle wraps a to [-pi, pi].
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
