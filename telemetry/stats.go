// Package telemetry aggregates ensemble statistics over time windows and
// writes them out for later analysis.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	Particles int `csv:"particles"`

	// Temperature distribution (sampled at window end)
	TempMean float64 `csv:"temp_mean"`
	TempStd  float64 `csv:"temp_std"`
	TempMin  float64 `csv:"temp_min"`
	TempP10  float64 `csv:"temp_p10"`
	TempP50  float64 `csv:"temp_p50"`
	TempP90  float64 `csv:"temp_p90"`
	TempMax  float64 `csv:"temp_max"`

	// Smoothed state at window end
	AvgSystemTemp float64 `csv:"avg_system_temp"`
	SurfaceTemp   float64 `csv:"surface_temp"`

	// Kinematics, averaged over the window's ticks
	MeanSpeed float64 `csv:"mean_speed"`
	MaxSpeed  float64 `csv:"max_speed"`

	// Phase and contact fractions at window end
	GasFraction        float64 `csv:"gas_fraction"`
	ConductingFraction float64 `csv:"conducting_fraction"`

	// Events during window
	FloorBounces   int `csv:"floor_bounces"`
	CeilingBounces int `csv:"ceiling_bounces"`
	WallHits       int `csv:"wall_hits"`
	Recoveries     int `csv:"recoveries"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// TemperatureStats summarizes a temperature sample.
type TemperatureStats struct {
	Mean, Std     float64
	Min, Max      float64
	P10, P50, P90 float64
}

// ComputeTemperatureStats calculates mean, spread and percentiles.
// Std is the sample standard deviation, zero for fewer than two values.
func ComputeTemperatureStats(values []float64) TemperatureStats {
	n := len(values)
	if n == 0 {
		return TemperatureStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var ts TemperatureStats
	if n < 2 {
		ts.Mean = sorted[0]
	} else {
		ts.Mean, ts.Std = stat.MeanStdDev(sorted, nil)
	}
	ts.Min = floats.Min(sorted)
	ts.Max = floats.Max(sorted)
	ts.P10 = Percentile(sorted, 0.10)
	ts.P50 = Percentile(sorted, 0.50)
	ts.P90 = Percentile(sorted, 0.90)
	return ts
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("particles", s.Particles),
		slog.Float64("temp_mean", s.TempMean),
		slog.Float64("temp_std", s.TempStd),
		slog.Float64("temp_min", s.TempMin),
		slog.Float64("temp_p10", s.TempP10),
		slog.Float64("temp_p50", s.TempP50),
		slog.Float64("temp_p90", s.TempP90),
		slog.Float64("temp_max", s.TempMax),
		slog.Float64("avg_system_temp", s.AvgSystemTemp),
		slog.Float64("surface_temp", s.SurfaceTemp),
		slog.Float64("mean_speed", s.MeanSpeed),
		slog.Float64("max_speed", s.MaxSpeed),
		slog.Float64("gas_fraction", s.GasFraction),
		slog.Float64("conducting_fraction", s.ConductingFraction),
		slog.Int("floor_bounces", s.FloorBounces),
		slog.Int("ceiling_bounces", s.CeilingBounces),
		slog.Int("wall_hits", s.WallHits),
		slog.Int("recoveries", s.Recoveries),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
