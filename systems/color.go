package systems

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Fixed palette
var (
	SteamColor = colorful.Color{R: 0.88, G: 0.92, B: 0.96}
	GlowColor  = colorful.Color{R: 1.0, G: 0.9, B: 0.35}

	// heatStops are evenly spaced over tNorm: blue, cyan, green, yellow, red.
	heatStops = [...]colorful.Color{
		{R: 0, G: 0, B: 1},
		{R: 0, G: 1, B: 1},
		{R: 0, G: 1, B: 0},
		{R: 1, G: 1, B: 0},
		{R: 1, G: 0, B: 0},
	}
)

// Speed-mode color: a fixed hue whose lightness follows speed.
const (
	speedHue       = 205.0
	speedSat       = 0.75
	speedLightBase = 0.18
	speedLightGain = 0.55
	speedScale     = 2.0
	conductingMix  = 0.5
)

// HeatColor maps a normalized temperature onto the four-segment gradient.
// Each segment is renormalized to [0, 1] before blending its two stops.
func HeatColor(tNorm float64) colorful.Color {
	tNorm = clamp01(tNorm)
	segments := len(heatStops) - 1
	seg := min(int(tNorm*float64(segments)), segments-1)
	width := 1 / float64(segments)
	local := (tNorm - float64(seg)*width) / width
	return heatStops[seg].BlendRgb(heatStops[seg+1], local)
}

// SpeedColor maps an instantaneous speed (m/s) to a brightness ramp.
func SpeedColor(speed float64) colorful.Color {
	brightness := math.Min(1, speed*speedScale)
	return colorful.Hsl(speedHue, speedSat, speedLightBase+speedLightGain*brightness)
}

// ColorFor picks a particle's render color from its final tick state.
func ColorFor(sc *TickScalars, temp float64, phase Phase, y, speed float64) colorful.Color {
	if phase == PhaseGas {
		return SteamColor
	}

	conducting := y+sc.HalfHeight < conductingLayer && temp > sc.AmbientTemp+conductingDelta
	if sc.HeatMap {
		if conducting {
			return GlowColor
		}
		span := max(1, sc.SurfaceTemp-sc.AmbientTemp)
		return HeatColor((temp - sc.AmbientTemp) / span)
	}

	c := SpeedColor(speed)
	if conducting {
		c = c.BlendRgb(GlowColor, conductingMix)
	}
	return c
}

// Colorize writes colors for particles [start, end) into the color buffer.
func (e *Ensemble) Colorize(sc TickScalars, start, end int) {
	for i := start; i < end; i++ {
		j := 3 * i
		c := ColorFor(&sc, e.Temperatures[i], e.Phases[i], float64(e.Positions[j+1]), e.Speed(i)).Clamped()
		e.Colors[j] = float32(c.R)
		e.Colors[j+1] = float32(c.G)
		e.Colors[j+2] = float32(c.B)
	}
}
