package experiment

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/integrators"
	"github.com/san-kum/mdsim/internal/kernel"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/potential"
	"github.com/san-kum/mdsim/internal/sim"
	"github.com/san-kum/mdsim/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallLJ() *config.Config {
	cfg := config.DefaultConfig()
	cfg.System.Particles = 256
	cfg.Integrator.Dt = 0.002
	cfg.Run = config.RunConfig{Steps: 20, ReportInterval: 10, MomentumReset: 5}
	return cfg
}

func configField(t *testing.T, err error) string {
	t.Helper()
	var ce *dynamo.ConfigurationError
	require.True(t, errors.As(err, &ce), "want a configuration error, got %v", err)
	return ce.Field
}

func TestPresetsBuild(t *testing.T) {
	for _, name := range config.ListPresets() {
		t.Run(name, func(t *testing.T) {
			e, err := New(config.GetPreset(name))
			require.NoError(t, err)
			assert.Equal(t, e.Config.System.Particles, e.State.N)
			assert.NotEmpty(t, e.Specs)
			assert.NotEmpty(t, e.Metrics)
		})
	}
}

func TestKobAndersenMixture(t *testing.T) {
	e, err := New(config.GetPreset("kob-andersen"))
	require.NoError(t, err)

	counts := make([]int, 2)
	for _, typ := range e.State.Types {
		counts[typ]++
	}
	assert.Equal(t, []int{400, 100}, counts)
	tail := 0
	for _, typ := range e.State.Types[400:] {
		tail += typ
	}
	assert.Less(t, tail, 100, "shuffled types should not end in a block of B particles")
	vv, ok := e.Integrator.(*integrators.VelocityVerlet)
	require.True(t, ok)
	require.IsType(t, &integrators.NoseHoover{}, vv.Thermostat)
	assert.InDelta(t, 0.8, vv.Thermostat.(*integrators.NoseHoover).Target.At(50), 1e-12)
}

func TestDimersExcludeBondedPairs(t *testing.T) {
	e, err := New(config.GetPreset("dimer"))
	require.NoError(t, err)
	require.Len(t, e.Specs, 2)

	pair := e.Specs[0].(*potential.Pair)
	bond := e.Specs[1].(*potential.Bond)
	assert.Len(t, bond.Pairs, 128)
	assert.Equal(t, [2]int{4, 5}, bond.Pairs[2])
	assert.Equal(t, bond.Pairs, pair.Exclude)
	assert.Equal(t, "harmonic", bond.Name())
}

func TestFieldRowsFollowTypes(t *testing.T) {
	st, err := particles.Lattice(particles.SimpleCubic, 2, 16, 0.5)
	require.NoError(t, err)
	require.NoError(t, particles.AssignTypes(st, []int{8, 8}))

	specs, err := BuildSpecs([]config.InteractionConfig{{
		Kind:   "field",
		Energy: "g*y",
		Params: []string{"g"},
		Values: map[string]float64{"g": 0.5},
	}}, st)
	require.NoError(t, err)

	f := specs[0].(*potential.Field)
	assert.Equal(t, 2, f.Dim)
	assert.Equal(t, [][]float64{{0.5}, {0.5}}, f.Coeffs)
	assert.NoError(t, f.Validate(potential.Extent{N: st.N, Dim: st.D, Types: 2}))
}

func TestPairCoeffMatrix(t *testing.T) {
	st, err := particles.Lattice(particles.FaceCenter, 3, 32, 0.8)
	require.NoError(t, err)
	require.NoError(t, particles.AssignTypes(st, []int{16, 16}))

	ic := config.InteractionConfig{
		Kind:    "pair",
		Energy:  "4*eps*(pow(r, -12) - pow(r, -6))",
		Params:  []string{"eps"},
		Coeffs:  [][]float64{{1}, {1.5}, {1.5}, {0.5}},
		Cutoff:  2.5,
		Cutoffs: [][]float64{{2.5, 2.0}, {2.0, 2.2}},
		Shift:   "force",
	}
	specs, err := BuildSpecs([]config.InteractionConfig{ic}, st)
	require.NoError(t, err)

	p := specs[0].(*potential.Pair)
	assert.Equal(t, potential.ShiftForce, p.Shift)
	assert.Equal(t, []float64{1.5}, p.Coeffs[0][1].Values)
	assert.Equal(t, 2.2, p.Coeffs[1][1].Cutoff)
	assert.Equal(t, 2.5, p.MaxCutoff())

	ic.Coeffs = ic.Coeffs[:3]
	_, err = BuildSpecs([]config.InteractionConfig{ic}, st)
	assert.Equal(t, "interactions[0].coeffs", configField(t, err))
}

func TestBuildSpecsErrors(t *testing.T) {
	st, err := particles.Lattice(particles.SimpleCubic, 3, 27, 0.5)
	require.NoError(t, err)

	tests := []struct {
		name  string
		ic    config.InteractionConfig
		field string
	}{
		{"missing value", config.InteractionConfig{Kind: "pair", Energy: "a/r", Params: []string{"a"}}, "interactions[0].values"},
		{"odd dimers", config.InteractionConfig{Kind: "bond", Energy: "k*r", Params: []string{"k"}, Coeffs: [][]float64{{1}}, Dimers: true}, "interactions[0].dimers"},
		{"unknown builtin", config.InteractionConfig{Kind: "pair", Builtin: "morse"}, "interactions[0].builtin"},
		{"bad shift", config.InteractionConfig{Kind: "pair", Builtin: "lj", Shift: "smooth"}, "shift"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildSpecs([]config.InteractionConfig{tt.ic}, st)
			assert.Equal(t, tt.field, configField(t, err))
		})
	}
}

func TestUnusableDensityIsAnError(t *testing.T) {
	cfg := smallLJ()
	cfg.System.Density = math.Inf(1)
	_, err := New(cfg)
	assert.Equal(t, "system.density", configField(t, err))

	sc := smallLJ().System
	sc.Density = 1e-320
	_, err = BuildState(sc)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
}

func TestBuildStateMassesAndPeriodicity(t *testing.T) {
	sc := config.SystemConfig{
		Lattice:     "sc",
		Dim:         3,
		Particles:   27,
		Density:     0.5,
		Periodic:    []bool{true, true, false},
		TypeCounts:  []int{20, 7},
		Masses:      []float64{1, 3},
		Temperature: 1.5,
		Seed:        3,
	}
	st, err := BuildState(sc)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, true, false}, st.Box.PeriodicFlags())
	assert.Equal(t, 3.0, st.Masses[26])
	assert.Equal(t, 1.0, st.Masses[0])
	temp := particles.Temperature(particles.KineticEnergy(st), particles.DegreesOfFreedom(st))
	assert.InDelta(t, 1.5, temp, 1e-9)

	sc.Masses = []float64{1}
	_, err = BuildState(sc)
	assert.Equal(t, "system.masses", configField(t, err))

	sc.Masses = nil
	sc.Periodic = []bool{true}
	_, err = BuildState(sc)
	assert.Equal(t, "system.periodic", configField(t, err))
}

func TestBuildStateFromSnapshot(t *testing.T) {
	e, err := New(smallLJ())
	require.NoError(t, err)
	e.State.Step, e.State.Time = 40, 0.08

	path := filepath.Join(t.TempDir(), "start.json")
	require.NoError(t, storage.WriteSnapshot(path, e.State.Snapshot()))

	cfg := smallLJ()
	cfg.System.Snapshot = path
	cfg.System.Temperature = 5
	restored, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, e.State.Positions, restored.State.Positions)
	assert.Equal(t, e.State.Velocities, restored.State.Velocities)
	assert.Equal(t, 40, restored.State.Step)
}

func TestWithSeed(t *testing.T) {
	cfg := smallLJ()
	a, err := New(WithSeed(cfg, 1))
	require.NoError(t, err)
	b, err := New(WithSeed(cfg, 2))
	require.NoError(t, err)
	again, err := New(WithSeed(cfg, 1))
	require.NoError(t, err)

	assert.NotEqual(t, a.State.Velocities, b.State.Velocities)
	assert.Equal(t, a.State.Velocities, again.State.Velocities)
	assert.Equal(t, uint64(1), cfg.System.Seed, "the original config is left alone")
}

func TestLaunchOverrides(t *testing.T) {
	dev, err := compute.NewDevice("cpu", 2)
	require.NoError(t, err)
	defer dev.Cleanup()

	cfg := smallLJ()
	e, err := New(cfg)
	require.NoError(t, err)
	launch, err := e.Launch(dev)
	require.NoError(t, err)
	assert.Equal(t, compute.LaunchConfig{}, launch)

	cfg.Compute.ThreadsPerParticle = 2
	cfg.Compute.Reduction = "block"
	launch, err = e.Launch(dev)
	require.NoError(t, err)
	assert.Equal(t, 2, launch.ThreadsPerParticle)
	assert.Equal(t, compute.BlockReduce, launch.Reduction)
	assert.Equal(t, compute.DefaultLaunch(e.State.N, dev).ParticlesPerBlock, launch.ParticlesPerBlock)

	cfg.Compute.Reduction = "tree"
	_, err = e.Launch(dev)
	assert.Error(t, err)
}

func TestExperimentRuns(t *testing.T) {
	dev, err := compute.NewDevice("serial", 0)
	require.NoError(t, err)
	defer dev.Cleanup()

	e, err := New(smallLJ())
	require.NoError(t, err)
	opts, err := e.Options(dev, kernel.NewCache())
	require.NoError(t, err)

	var saved []int
	cfg := e.Config
	assert.Nil(t, e.SnapshotAction(sim.SnapshotSinkFunc(func(particles.Snapshot) error { return nil })))
	cfg.Run.SnapshotEvery = 10
	opts.Actions = append(opts.Actions, e.SnapshotAction(sim.SnapshotSinkFunc(func(snap particles.Snapshot) error {
		saved = append(saved, snap.Step)
		return nil
	})))

	s, err := e.Simulator(opts)
	require.NoError(t, err)
	defer s.Close()

	out, err := sim.Collect(s.Run(context.Background(), cfg.Run.Steps, cfg.Run.ReportInterval))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []int{10, 20}, saved)
	for _, m := range particles.Momentum(s.State()) {
		assert.InDelta(t, 0, m, 1e-9)
	}
	for _, m := range e.Metrics {
		if m.Name() == "energy_drift" {
			assert.Less(t, m.Value(), 1e-2)
		}
	}
}

func TestFactoryRunsEnsemble(t *testing.T) {
	cfg := smallLJ()
	cfg.Integrator = config.IntegratorConfig{
		Scheme:      "langevin",
		Dt:          0.002,
		Gamma:       1,
		Temperature: &config.ScheduleConfig{Value: 1},
	}

	runs, err := sim.NewEnsemble(Factory(cfg, nil, kernel.NewCache()), 2, 10).Run(context.Background(), 10, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Len(t, runs[0], 2)
	assert.NotEqual(t, runs[0][1].Kinetic, runs[1][1].Kinetic)
}

func TestSchedule(t *testing.T) {
	s, err := Schedule(&config.ScheduleConfig{Kind: "ramp", Value: 2, To: 1, Start: 0, End: 10})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, s.At(5), 1e-12)

	s, err = Schedule(&config.ScheduleConfig{Value: 0.7})
	require.NoError(t, err)
	assert.Equal(t, 0.7, s.At(100))

	_, err = Schedule(&config.ScheduleConfig{Kind: "ramp", Start: 5, End: 1})
	assert.Equal(t, "schedule.end", configField(t, err))
	_, err = Schedule(&config.ScheduleConfig{Kind: "sine", Value: 1})
	assert.Equal(t, "schedule.period", configField(t, err))
	_, err = Schedule(&config.ScheduleConfig{Kind: "step"})
	assert.Equal(t, "schedule.kind", configField(t, err))
	_, err = Schedule(nil)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"berendsen", "langevin", "nose-hoover", "nve", "nvu"}, r.ListIntegrators())
	assert.Contains(t, r.ListPotentials(), "yukawa")

	v, err := r.GetIntegrator(config.IntegratorConfig{
		Scheme:      "berendsen",
		Tau:         0.5,
		Temperature: &config.ScheduleConfig{Value: 1},
		Barostat:    &config.BarostatConfig{Pressure: config.ScheduleConfig{Value: 2}, Tau: 1, Compressibility: 0.1},
	})
	require.NoError(t, err)
	assert.Equal(t, "velocity-verlet/berendsen/berendsen-barostat", v.Name())

	v, err = r.GetIntegrator(config.IntegratorConfig{Scheme: "NVE"})
	require.NoError(t, err)
	require.IsType(t, &integrators.VelocityVerlet{}, v)
	assert.Nil(t, v.(*integrators.VelocityVerlet).Thermostat)

	u0 := -5.5
	v, err = r.GetIntegrator(config.IntegratorConfig{Scheme: "nvu", U0: &u0})
	require.NoError(t, err)
	require.IsType(t, &integrators.NVU{}, v)
	assert.Equal(t, -5.5, v.(*integrators.NVU).Target())

	_, err = r.GetIntegrator(config.IntegratorConfig{Scheme: "nvu", Barostat: &config.BarostatConfig{}})
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)

	_, err = r.GetIntegrator(config.IntegratorConfig{Scheme: "gear"})
	assert.Error(t, err)
}
