package systems

import "math"

// Clamp functions for common value ranges

// clamp clamps v between minVal and maxVal.
func clamp(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// clamp01 clamps v to the [0, 1] range. NaN maps to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp(v, 0, 1)
}

// lerpToward moves v toward target by rate (exponential smoothing step).
func lerpToward(v, target, rate float64) float64 {
	return v + rate*(target-v)
}

// isFinite reports whether v is neither NaN nor ±Inf.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// isFinite32 reports whether v is neither NaN nor ±Inf.
func isFinite32(v float32) bool {
	return isFinite(float64(v))
}

// velocityMagnitude returns the magnitude of a 3D velocity vector.
func velocityMagnitude(vx, vy, vz float32) float64 {
	x, y, z := float64(vx), float64(vy), float64(vz)
	return math.Sqrt(x*x + y*y + z*z)
}
