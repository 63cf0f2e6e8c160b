package game

import (
	"log/slog"

	"github.com/pthm-cable/convection/stream"
)

// flushTelemetry emits window stats once the collector's window has elapsed.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush() {
		return
	}

	stats := g.collector.Flush(g.tick, g.ensemble, &g.state)
	perfStats := g.perfCollector.Stats()

	if g.statsCallback != nil {
		g.statsCallback(stats)
	}

	// Log stats if enabled (console output)
	if g.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := g.outputManager.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}
	if err := g.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
}

// broadcastFrame sends the ensemble to remote viewers every interval_ticks.
func (g *Game) broadcastFrame() {
	if g.hub == nil || g.hub.Clients() == 0 {
		return
	}
	if g.tick%int32(g.cfg.Stream.IntervalTicks) != 0 {
		return
	}
	g.hub.Broadcast(g.frame())
}

// frame snapshots the ensemble. Buffers are shared, so the frame must be
// encoded before the next tick.
func (g *Game) frame() stream.Frame {
	e := g.ensemble
	return stream.Frame{
		Tick:        g.tick,
		SimTime:     g.collector.SimTime(),
		Particles:   e.Len(),
		Radius:      e.Radius,
		Height:      e.Height,
		AvgTemp:     g.state.AvgTemp,
		SurfaceTemp: g.state.SurfaceTemp,
		Paused:      g.paused,
		HeatMap:     g.heatMap,
		Positions:   e.Positions,
		Colors:      e.Colors,
	}
}

// handleCommands applies queued viewer commands without blocking.
func (g *Game) handleCommands() {
	if g.hub == nil {
		return
	}
	for {
		select {
		case cmd := <-g.hub.Commands():
			g.applyCommand(cmd)
		default:
			return
		}
	}
}

func (g *Game) applyCommand(cmd stream.Command) {
	if cmd.Paused != nil {
		g.paused = *cmd.Paused
	}
	if cmd.HeatMap != nil {
		g.heatMap = *cmd.HeatMap
	}
	if cmd.Reset {
		g.Reset()
	}
	slog.Debug("viewer command applied", "paused", g.paused, "heat_map", g.heatMap, "reset", cmd.Reset)
}
