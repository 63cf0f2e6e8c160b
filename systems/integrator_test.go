package systems

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/convection/config"
)

func testConfig() *config.Config {
	return config.Defaults()
}

func newTestRig(n int, seed int64) (*config.Config, *Ensemble, SimState, *Integrator) {
	cfg := testConfig()
	rng := rand.New(rand.NewSource(seed))
	e := NewEnsemble(n, cfg.Vessel.Radius, cfg.Vessel.Height, cfg.Thermal.InitialTemp, rng)
	return cfg, e, NewSimState(cfg), NewIntegrator(rng)
}

func tick(cfg *config.Config, dt float64, convect bool) TickInput {
	return TickInput{Config: cfg, CanConvect: convect, Elapsed: dt, Running: true, HeatMap: true}
}

// TestStepExampleScenario follows three particles resting just above the heated floor.
func TestStepExampleScenario(t *testing.T) {
	cfg, e, st, it := newTestRig(3, 1)
	for i := 0; i < e.Len(); i++ {
		e.SetPosition(i, 0.02+0.01*float32(i), -0.099, 0)
		e.SetVelocity(i, 0, 0, 0)
		e.Temperatures[i] = 293
	}

	it.Step(e, &st, tick(cfg, 0.016, false))

	for i := 0; i < e.Len(); i++ {
		if e.Temperatures[i] <= 293 {
			t.Errorf("particle %d: temperature %f did not rise", i, e.Temperatures[i])
		}
		_, vy, _ := e.Velocity(i)
		if vy <= 0 {
			t.Errorf("particle %d: vy = %f, want positive", i, vy)
		}
		if e.Phases[i] != PhaseLiquid {
			t.Errorf("particle %d: phase %v, want liquid", i, e.Phases[i])
		}
	}
}

func TestStepKeepsParticlesInBounds(t *testing.T) {
	cfg, e, st, it := newTestRig(400, 7)
	cfg.Thermal.SurfaceTemp = 420 // hot enough to boil near the floor
	rng := rand.New(rand.NewSource(99))
	radius := float32(cfg.Vessel.Radius)
	hh := float32(cfg.Vessel.Height / 2)

	for step := 0; step < 600; step++ {
		it.Step(e, &st, tick(cfg, rng.Float64()*0.08, step%2 == 0))

		for i := 0; i < e.Len(); i++ {
			x, y, z := e.Position(i)
			if r := float32(math.Hypot(float64(x), float64(z))); r > radius*(1+1e-5) {
				t.Fatalf("step %d particle %d: r = %f exceeds radius %f", step, i, r, radius)
			}
			if y < -hh || y > hh {
				t.Fatalf("step %d particle %d: y = %f outside [%f, %f]", step, i, y, -hh, hh)
			}
			vx, vy, vz := e.Velocity(i)
			for _, v := range []float32{vx, vy, vz} {
				if v < -MaxVelocity || v > MaxVelocity {
					t.Fatalf("step %d particle %d: velocity component %f exceeds ceiling", step, i, v)
				}
			}
		}
	}
}

func TestStepZeroDurationIsIdempotent(t *testing.T) {
	cfg, e, st, it := newTestRig(200, 3)
	for i := 0; i < 30; i++ {
		it.Step(e, &st, tick(cfg, 0.016, true))
	}

	positions := append([]float32(nil), e.Positions...)
	velocities := append([]float32(nil), e.Velocities...)
	temps := append([]float64(nil), e.Temperatures...)

	it.Step(e, &st, tick(cfg, 0, true))

	for i := range positions {
		if e.Positions[i] != positions[i] {
			t.Fatalf("position[%d] changed: %f -> %f", i, positions[i], e.Positions[i])
		}
		if e.Velocities[i] != velocities[i] {
			t.Fatalf("velocity[%d] changed: %f -> %f", i, velocities[i], e.Velocities[i])
		}
	}
	for i := range temps {
		if e.Temperatures[i] != temps[i] {
			t.Fatalf("temperature[%d] changed on zero-length tick: %f -> %f", i, temps[i], e.Temperatures[i])
		}
	}
}

func TestStepZeroDurationBounceStillHeats(t *testing.T) {
	cfg, e, st, it := newTestRig(1, 3)
	hh := float32(cfg.Vessel.Height / 2)
	e.SetPosition(0, 0.01, -hh-0.005, 0)
	e.Temperatures[0] = 293

	rep := it.Step(e, &st, tick(cfg, 0, false))

	if rep.FloorBounces != 1 {
		t.Fatalf("expected one floor bounce, got %d", rep.FloorBounces)
	}
	want := 293 + bounceHeatLerp*(cfg.Thermal.SurfaceTemp-293)
	if math.Abs(e.Temperatures[0]-want) > 1e-9 {
		t.Errorf("temperature = %f, want %f", e.Temperatures[0], want)
	}
	if _, y, _ := e.Position(0); math.Abs(float64(y)-(-cfg.Vessel.Height/2+boundaryInset)) > 1e-6 {
		t.Errorf("y = %f, want snapped to %f", y, -cfg.Vessel.Height/2+boundaryInset)
	}
}

func TestStepRecoversNonFinitePosition(t *testing.T) {
	tests := []struct {
		name    string
		x, y, z float32
	}{
		{"nan x", float32(math.NaN()), 0, 0},
		{"nan y", 0.01, float32(math.NaN()), 0},
		{"inf z", 0.01, 0, float32(math.Inf(1))},
		{"neg inf y", 0.01, float32(math.Inf(-1)), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, e, st, it := newTestRig(5, 11)
			e.SetPosition(2, tt.x, tt.y, tt.z)
			e.SetVelocity(2, 1, 1, 1)
			e.Temperatures[2] = 360

			rep := it.Step(e, &st, tick(cfg, 0.016, true))

			if rep.Recoveries != 1 {
				t.Errorf("recoveries = %d, want 1", rep.Recoveries)
			}
			x, y, z := e.Position(2)
			if !isFinite32(x) || !isFinite32(y) || !isFinite32(z) {
				t.Fatalf("position still non-finite: (%f, %f, %f)", x, y, z)
			}
			if r := math.Hypot(float64(x), float64(z)); r > resetRadiusFraction*cfg.Vessel.Radius+1e-6 {
				t.Errorf("respawn radius %f exceeds %f", r, resetRadiusFraction*cfg.Vessel.Radius)
			}
			if math.Abs(float64(y)) > cfg.Vessel.Height/2 {
				t.Errorf("respawn y = %f outside vessel", y)
			}
			if vx, vy, vz := e.Velocity(2); vx != 0 || vy != 0 || vz != 0 {
				t.Errorf("velocity = (%f, %f, %f), want zero", vx, vy, vz)
			}
			if e.Temperatures[2] != st.InitialTemp {
				t.Errorf("temperature = %f, want ambient %f", e.Temperatures[2], st.InitialTemp)
			}
		})
	}
}

func TestStepRecoversNonFiniteTemperature(t *testing.T) {
	for _, dt := range []float64{0.016, 0} {
		cfg, e, st, it := newTestRig(50, 12)
		e.Temperatures[7] = math.Inf(1)

		rep := it.Step(e, &st, tick(cfg, dt, true))

		if rep.Recoveries != 1 {
			t.Errorf("dt=%v: recoveries = %d, want 1", dt, rep.Recoveries)
		}
		if e.Temperatures[7] != st.InitialTemp {
			t.Errorf("dt=%v: temperature = %f, want ambient %f", dt, e.Temperatures[7], st.InitialTemp)
		}
		if !isFinite(st.AvgTemp) {
			t.Fatalf("dt=%v: running average went non-finite: %f", dt, st.AvgTemp)
		}

		// The next tick is clean: no further particle is respawned
		rep = it.Step(e, &st, tick(cfg, dt, true))
		if rep.Recoveries != 0 {
			t.Errorf("dt=%v: follow-up tick recovered %d particles", dt, rep.Recoveries)
		}
	}
}

func TestBeginTickSkipsNonFiniteMean(t *testing.T) {
	cfg := testConfig()
	st := NewSimState(cfg)
	e := NewEnsemble(3, cfg.Vessel.Radius, cfg.Vessel.Height, 293, rand.New(rand.NewSource(1)))
	e.Temperatures[0] = math.Inf(1)
	e.Temperatures[1] = math.Inf(-1)

	before := st.AvgTemp
	sc := BeginTick(e, &st, tick(cfg, 0.016, true))
	if st.AvgTemp != before || sc.AvgTemp != before {
		t.Errorf("avg temp = %f (scalars %f), want unchanged %f", st.AvgTemp, sc.AvgTemp, before)
	}
}

func TestStepPhaseTransition(t *testing.T) {
	cfg, e, st, it := newTestRig(1, 5)
	e.SetPosition(0, 0.01, 0, 0)
	e.Temperatures[0] = cfg.Thermal.BoilingPoint + 10

	it.Step(e, &st, tick(cfg, 0.016, false))
	if e.Phases[0] != PhaseGas {
		t.Fatalf("phase = %v, want gas above boiling point", e.Phases[0])
	}
	if c := e.Colors[0:3]; c[0] != float32(SteamColor.R) || c[1] != float32(SteamColor.G) || c[2] != float32(SteamColor.B) {
		t.Errorf("gas particle color = %v, want steam", c)
	}
	if _, vy, _ := e.Velocity(0); vy <= 0 {
		t.Errorf("gas particle vy = %f, want rising", vy)
	}

	e.Temperatures[0] = cfg.Thermal.BoilingPoint - 30
	it.Step(e, &st, tick(cfg, 0.016, false))
	if e.Phases[0] != PhaseLiquid {
		t.Errorf("phase = %v, want liquid after cooling", e.Phases[0])
	}
}

func TestStepPausedLeavesStateAlone(t *testing.T) {
	cfg, e, st, it := newTestRig(50, 2)
	positions := append([]float32(nil), e.Positions...)
	before := st

	in := tick(cfg, 0.016, true)
	in.Running = false
	rep := it.Step(e, &st, in)

	if rep.Particles != 0 {
		t.Errorf("paused tick reported %d particles", rep.Particles)
	}
	if st != before {
		t.Errorf("paused tick changed state: %+v -> %+v", before, st)
	}
	for i := range positions {
		if positions[i] != e.Positions[i] {
			t.Fatalf("paused tick moved particles")
		}
	}
	var lit bool
	for _, c := range e.Colors {
		if c > 0 {
			lit = true
			break
		}
	}
	if !lit {
		t.Error("paused tick should still write colors")
	}
}

func TestBeginTickFloors(t *testing.T) {
	tests := []struct {
		name          string
		density       float64
		densityEffect float64
		viscosity     float64
		wantInertia   float64
		wantDrag      float64
	}{
		{"water", 998, 1, 0.001002, 0.998, 1 - (0.001002*100/0.998)*0.016},
		{"zero density", 0, 1, 0.001, 0.01, 1 - (0.001*100/0.01)*0.016},
		{"zero effect", 998, 0, 0.001, 0.01, 1 - (0.001*100/0.01)*0.016},
		{"syrup", 1400, 1, 50, 1.4, 0},
		{"inviscid", 998, 1, 0, 0.998, maxDragFactor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Fluid.Density = tt.density
			cfg.Fluid.DensityEffect = tt.densityEffect
			cfg.Fluid.Viscosity = tt.viscosity
			st := NewSimState(cfg)
			e := NewEnsemble(0, cfg.Vessel.Radius, cfg.Vessel.Height, cfg.Thermal.InitialTemp, rand.New(rand.NewSource(1)))

			sc := BeginTick(e, &st, tick(cfg, 0.016, false))
			if math.Abs(sc.InertiaFactor-tt.wantInertia) > 1e-9 {
				t.Errorf("inertia = %f, want %f", sc.InertiaFactor, tt.wantInertia)
			}
			if math.Abs(sc.DragFactor-tt.wantDrag) > 1e-9 {
				t.Errorf("drag = %f, want %f", sc.DragFactor, tt.wantDrag)
			}
		})
	}
}

func TestBeginTickClampsElapsed(t *testing.T) {
	cfg := testConfig()
	st := NewSimState(cfg)
	e := NewEnsemble(4, cfg.Vessel.Radius, cfg.Vessel.Height, cfg.Thermal.InitialTemp, rand.New(rand.NewSource(1)))

	if sc := BeginTick(e, &st, tick(cfg, 1.5, false)); sc.DT != MaxTimeStep {
		t.Errorf("dt = %f, want clamp to %f", sc.DT, MaxTimeStep)
	}
	if sc := BeginTick(e, &st, tick(cfg, -0.2, false)); sc.DT != 0 {
		t.Errorf("dt = %f, want 0 for negative elapsed", sc.DT)
	}
}

func TestBeginTickRunningAverageTrails(t *testing.T) {
	cfg := testConfig()
	st := NewSimState(cfg)
	e := NewEnsemble(2, cfg.Vessel.Radius, cfg.Vessel.Height, 293, rand.New(rand.NewSource(1)))
	e.Temperatures[0] = 303
	e.Temperatures[1] = 313 // mean 308

	sc := BeginTick(e, &st, tick(cfg, 0.016, false))

	want := 293 + AvgTempLerpRate*(308-293)
	if math.Abs(sc.AvgTemp-want) > 1e-9 || math.Abs(st.AvgTemp-want) > 1e-9 {
		t.Errorf("avg temp = %f (state %f), want %f", sc.AvgTemp, st.AvgTemp, want)
	}
}

func TestCirculationPushesHotFluidOutwardAtTop(t *testing.T) {
	cfg, e, st, it := newTestRig(1, 4)
	cfg.Fluid.Diffusivity = 0 // isolate forces from thermal exchange
	st = NewSimState(cfg)
	hh := float32(cfg.Vessel.Height / 2)
	e.SetPosition(0, 0.04, hh*0.8, 0) // yNorm = 0.9
	e.Temperatures[0] = 330

	it.Step(e, &st, tick(cfg, 0.016, true))

	if vx, _, _ := e.Velocity(0); vx <= 0 {
		t.Errorf("vx = %f, want outward push at top", vx)
	}
}

func TestCirculationDrawsColdFluidInwardAtBottom(t *testing.T) {
	cfg, e, st, it := newTestRig(2, 4)
	cfg.Fluid.Diffusivity = 0
	st = NewSimState(cfg)
	hh := float32(cfg.Vessel.Height / 2)
	e.SetPosition(0, 0.04, -hh*0.8, 0) // yNorm = 0.1
	e.Temperatures[0] = 280
	e.SetPosition(1, 0, 0, 0.02)
	e.Temperatures[1] = 320

	it.Step(e, &st, tick(cfg, 0.016, true))

	if vx, _, _ := e.Velocity(0); vx >= 0 {
		t.Errorf("vx = %f, want inward pull at bottom", vx)
	}
}

func TestTickReportMerge(t *testing.T) {
	a := TickReport{Particles: 2, FloorBounces: 1, SpeedSum: 0.4, MaxSpeed: 0.3}
	b := TickReport{Particles: 3, Recoveries: 1, Gas: 2, SpeedSum: 0.6, MaxSpeed: 0.5}
	a.Merge(b)

	if a.Particles != 5 || a.FloorBounces != 1 || a.Recoveries != 1 || a.Gas != 2 {
		t.Errorf("unexpected merged counts: %+v", a)
	}
	if a.MaxSpeed != 0.5 {
		t.Errorf("max speed = %f, want 0.5", a.MaxSpeed)
	}
	if math.Abs(a.MeanSpeed()-0.2) > 1e-12 {
		t.Errorf("mean speed = %f, want 0.2", a.MeanSpeed())
	}
}

type recordingTimer struct{ stages []string }

func (r *recordingTimer) StartPhase(name string) { r.stages = append(r.stages, name) }

// splitRunner runs fixed-size chunks serially, each with its own rng.
type splitRunner struct {
	chunk int
	calls int
}

func (s *splitRunner) Run(n int, fn ChunkFunc) TickReport {
	var total TickReport
	for start := 0; start < n; start += s.chunk {
		s.calls++
		total.Merge(fn(start, min(start+s.chunk, n), rand.New(rand.NewSource(int64(start)))))
	}
	return total
}

func TestStepReportsStagesInOrder(t *testing.T) {
	cfg, e, st, it := newTestRig(10, 11)
	timer := &recordingTimer{}
	it.SetStageTimer(timer)

	it.Step(e, &st, tick(cfg, 0.016, true))
	want := []string{StageSmooth, StageStatistics, StageIntegrate, StageColor}
	if len(timer.stages) != len(want) {
		t.Fatalf("stages = %v, want %v", timer.stages, want)
	}
	for i := range want {
		if timer.stages[i] != want[i] {
			t.Fatalf("stages = %v, want %v", timer.stages, want)
		}
	}

	timer.stages = nil
	in := tick(cfg, 0.016, true)
	in.Running = false
	it.Step(e, &st, in)
	if len(timer.stages) != 1 || timer.stages[0] != StageColor {
		t.Errorf("paused stages = %v, want [color]", timer.stages)
	}
}

func TestStepWithChunkedRunner(t *testing.T) {
	cfg, e, st, it := newTestRig(250, 12)
	runner := &splitRunner{chunk: 64}
	it.SetRunner(runner)

	var rep TickReport
	for i := 0; i < 20; i++ {
		rep = it.Step(e, &st, tick(cfg, 0.016, true))
	}
	if rep.Particles != 250 {
		t.Errorf("report covers %d particles, want 250", rep.Particles)
	}
	// Integrate and colorize each split into four chunks per tick
	if runner.calls != 20*2*4 {
		t.Errorf("runner chunks = %d, want %d", runner.calls, 20*2*4)
	}

	hh := float32(cfg.Vessel.Height / 2)
	for i := 0; i < e.Len(); i++ {
		x, y, z := e.Position(i)
		if y < -hh || y > hh || math.Hypot(float64(x), float64(z)) > cfg.Vessel.Radius {
			t.Fatalf("particle %d out of bounds: (%f, %f, %f)", i, x, y, z)
		}
	}
}
