package main

import (
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/convection/config"
	"github.com/pthm-cable/convection/game"
	"github.com/pthm-cable/convection/telemetry"
)

// Targets are the windowed statistics a calibrated run should reproduce.
type Targets struct {
	MeanSpeed float64 // m/s, averaged over post-warmup windows
	TempRise  float64 // K above initial temperature at the end of the run
}

// Fitness weights and windowing.
const (
	weightSpeed      = 1.0
	weightRise       = 1.0
	weightStability  = 0.1
	weightRecoveries = 0.5

	warmupWindows = 2   // skip first N windows
	windowSec     = 2.0 // stats window, simulated seconds
)

// runResult holds the windows collected from a single simulation run.
type runResult struct {
	windows []telemetry.WindowStats
}

// Score summarizes one evaluation.
type Score struct {
	Fitness   float64
	MeanSpeed float64
	TempRise  float64
}

// FitnessEvaluator runs headless simulations and scores them against Targets.
type FitnessEvaluator struct {
	params     *ParamVector
	ticks      int32
	seeds      []int64
	baseConfig *config.Config
	targets    Targets

	mu   sync.Mutex
	last Score // most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator running each seed for ticks.
func NewFitnessEvaluator(params *ParamVector, ticks int32, seeds []int64, baseCfg *config.Config, targets Targets) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		ticks:      ticks,
		seeds:      seeds,
		baseConfig: baseCfg,
		targets:    targets,
	}
}

// Last returns the score from the most recent evaluation.
func (fe *FitnessEvaluator) Last() Score {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.last
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
// Seeds run concurrently, each in its own game.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.baseConfig.Clone()
	fe.params.ApplyToConfig(cfg, x)
	cfg.Stream.Addr = ""

	scores := make([]Score, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			scores[idx] = fe.score(cfg, fe.runSimulation(cfg, s))
		}(i, seed)
	}
	wg.Wait()

	var avg Score
	for _, s := range scores {
		avg.Fitness += s.Fitness
		avg.MeanSpeed += s.MeanSpeed
		avg.TempRise += s.TempRise
	}
	n := float64(len(scores))
	avg.Fitness /= n
	avg.MeanSpeed /= n
	avg.TempRise /= n

	fe.mu.Lock()
	fe.last = avg
	fe.mu.Unlock()
	return avg.Fitness
}

// runSimulation executes a single headless run, collecting window stats.
func (fe *FitnessEvaluator) runSimulation(cfg *config.Config, seed int64) *runResult {
	result := &runResult{}
	g, err := game.NewGameWithOptions(cfg, game.Options{
		Seed:           seed,
		Headless:       true,
		StatsWindowSec: windowSec,
		StepsPerUpdate: 1,
		StatsCallback: func(stats telemetry.WindowStats) {
			result.windows = append(result.windows, stats)
		},
	})
	if err != nil {
		slog.Error("failed to create simulation", "seed", seed, "error", err)
		return result
	}
	defer g.Unload()

	for g.Tick() < fe.ticks {
		g.UpdateHeadless()
	}
	return result
}

// score turns a run's windows into a Score. Runs with no usable windows
// score +Inf.
func (fe *FitnessEvaluator) score(cfg *config.Config, r *runResult) Score {
	if len(r.windows) <= warmupWindows {
		return Score{Fitness: math.Inf(1)}
	}
	valid := r.windows[warmupWindows:]

	speeds := make([]float64, len(valid))
	unstable := 0
	for i, w := range valid {
		speeds[i] = w.MeanSpeed
		if w.Recoveries > 0 {
			unstable++
		}
	}

	var s Score
	var std float64
	if len(speeds) >= 2 {
		s.MeanSpeed, std = stat.MeanStdDev(speeds, nil)
	} else {
		s.MeanSpeed = speeds[0]
	}
	s.TempRise = valid[len(valid)-1].AvgSystemTemp - cfg.Thermal.InitialTemp

	speedErr := relErr(s.MeanSpeed, fe.targets.MeanSpeed)
	riseErr := relErr(s.TempRise, fe.targets.TempRise)
	cv := 0.0
	if s.MeanSpeed > 0 {
		cv = std / s.MeanSpeed
	}

	s.Fitness = weightSpeed*speedErr*speedErr +
		weightRise*riseErr*riseErr +
		weightStability*cv*cv +
		weightRecoveries*float64(unstable)/float64(len(valid))
	return s
}

// relErr is (got - want) / want, or the absolute error when want is zero.
func relErr(got, want float64) float64 {
	if want == 0 {
		return got
	}
	return (got - want) / want
}
