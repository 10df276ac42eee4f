// Package experiment turns a run configuration into the pieces a simulator
// needs: the initial state, the interactions and the integrator.
package experiment

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/integrators"
	"github.com/san-kum/mdsim/internal/kernel"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/potential"
	"github.com/san-kum/mdsim/internal/sim"
	"github.com/san-kum/mdsim/internal/spatial"
	"github.com/san-kum/mdsim/internal/storage"
)

type Experiment struct {
	Config     *config.Config
	State      *particles.State
	Specs      []potential.Spec
	Integrator integrators.Integrator
	Policy     spatial.Policy
	Metrics    []dynamo.Metric
}

// New builds an experiment from cfg. The configuration is validated first.
func New(cfg *config.Config) (*Experiment, error) {
	return NewWithRegistry(cfg, NewRegistry())
}

func NewWithRegistry(cfg *config.Config, reg *Registry) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, err := BuildState(cfg.System)
	if err != nil {
		return nil, err
	}
	specs, err := BuildSpecs(cfg.Interactions, st)
	if err != nil {
		return nil, err
	}
	integ, err := reg.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	policy, err := spatial.ParsePolicy(cfg.Neighbor.Policy)
	if err != nil {
		return nil, err
	}
	return &Experiment{
		Config:     cfg,
		State:      st,
		Specs:      specs,
		Integrator: integ,
		Policy:     policy,
		Metrics:    reg.DefaultMetrics(cfg),
	}, nil
}

// WithSeed returns a copy of cfg whose initial velocities and thermostat
// noise are drawn from seed.
func WithSeed(cfg *config.Config, seed uint64) *config.Config {
	c := *cfg
	c.System.Seed = seed
	c.Integrator.Seed = seed
	return &c
}

// Device opens the compute device named in the configuration. The caller
// owns it.
func (e *Experiment) Device() (compute.Device, error) {
	return compute.NewDevice(e.Config.Compute.Device, e.Config.Compute.Workers)
}

// Launch applies the configured launch overrides on top of the default for
// this system size on dev. A configuration with no overrides returns the
// zero value so the simulator picks the default itself.
func (e *Experiment) Launch(dev compute.Device) (compute.LaunchConfig, error) {
	c := e.Config.Compute
	if c.ParticlesPerBlock == 0 && c.ThreadsPerParticle == 0 && c.Reduction == "" {
		return compute.LaunchConfig{}, nil
	}
	launch := compute.DefaultLaunch(e.State.N, dev)
	if c.ParticlesPerBlock > 0 {
		launch.ParticlesPerBlock = c.ParticlesPerBlock
	}
	if c.ThreadsPerParticle > 0 {
		launch.ThreadsPerParticle = c.ThreadsPerParticle
	}
	if c.Reduction != "" {
		r, err := compute.ParseReduction(c.Reduction)
		if err != nil {
			return compute.LaunchConfig{}, err
		}
		launch.Reduction = r
	}
	return launch, launch.Validate()
}

// Options assembles simulator options on dev. A nil dev lets the simulator
// open and own a default device.
func (e *Experiment) Options(dev compute.Device, cache *kernel.Cache) (sim.Options, error) {
	opts := sim.Options{
		Dt:      e.Config.Integrator.Dt,
		Skin:    e.Config.Neighbor.Skin,
		Policy:  e.Policy,
		Device:  dev,
		Cache:   cache,
		Metrics: e.Metrics,
	}
	if dev != nil {
		launch, err := e.Launch(dev)
		if err != nil {
			return sim.Options{}, err
		}
		opts.Launch = launch
	}
	if every := e.Config.Run.MomentumReset; every > 0 {
		opts.Actions = append(opts.Actions, sim.MomentumReset{Every: every})
	}
	return opts, nil
}

// SnapshotAction saves a snapshot to sink every run.snapshot_every steps, or
// returns nil when snapshots are disabled.
func (e *Experiment) SnapshotAction(sink sim.SnapshotSink) sim.Action {
	if e.Config.Run.SnapshotEvery <= 0 || sink == nil {
		return nil
	}
	return sim.SnapshotSaver{Every: e.Config.Run.SnapshotEvery, Sink: sink}
}

func (e *Experiment) Simulator(opts sim.Options) (*sim.Simulator, error) {
	return sim.New(e.State, e.Specs, e.Integrator, opts)
}

// Factory builds one independent simulator per ensemble replica, all on the
// shared device and kernel cache.
func Factory(cfg *config.Config, dev compute.Device, cache *kernel.Cache) sim.Factory {
	return func(_ int, seed uint64) (*sim.Simulator, error) {
		e, err := New(WithSeed(cfg, seed))
		if err != nil {
			return nil, err
		}
		opts, err := e.Options(dev, cache)
		if err != nil {
			return nil, err
		}
		return e.Simulator(opts)
	}
}

// BuildState creates the initial configuration, either from a saved
// snapshot or on a lattice with Maxwell-Boltzmann velocities.
func BuildState(sc config.SystemConfig) (*particles.State, error) {
	if sc.Snapshot != "" {
		snap, err := storage.ReadSnapshot(sc.Snapshot)
		if err != nil {
			return nil, err
		}
		return particles.FromSnapshot(snap)
	}

	st, err := particles.Lattice(particles.LatticeKind(strings.ToLower(sc.Lattice)), sc.Dim, sc.Particles, sc.Density)
	if err != nil {
		return nil, err
	}
	if len(sc.Periodic) > 0 {
		if len(sc.Periodic) != st.D {
			return nil, dynamo.Configf("system.periodic", "has %d flags for %d dimensions", len(sc.Periodic), st.D)
		}
		box, err := particles.NewBox(st.Box.Lengths(), sc.Periodic)
		if err != nil {
			return nil, err
		}
		st.Box = box
	}

	rng := rand.New(rand.NewPCG(sc.Seed, sc.Seed^0x9e3779b97f4a7c15))
	if len(sc.TypeCounts) > 0 {
		if err := particles.AssignTypes(st, sc.TypeCounts); err != nil {
			return nil, err
		}
		if sc.ShuffleTypes {
			rng.Shuffle(st.N, func(i, j int) { st.Types[i], st.Types[j] = st.Types[j], st.Types[i] })
		}
	}
	if len(sc.Masses) > 0 {
		if nt := st.NumTypes(); len(sc.Masses) < nt {
			return nil, dynamo.Configf("system.masses", "has %d entries for %d particle types", len(sc.Masses), nt)
		}
		for i, t := range st.Types {
			if !(sc.Masses[t] > 0) {
				return nil, dynamo.Configf("system.masses", "mass of type %d must be positive, got %g", t, sc.Masses[t])
			}
			st.Masses[i] = sc.Masses[t]
		}
	}
	if sc.Temperature > 0 {
		particles.RandomizeVelocities(st, sc.Temperature, rng)
	}
	return st, nil
}

// BuildSpecs converts interaction configurations into potential specs for
// the particles in st.
func BuildSpecs(ics []config.InteractionConfig, st *particles.State) ([]potential.Spec, error) {
	types := max(st.NumTypes(), 1)
	specs := make([]potential.Spec, 0, len(ics))
	var bonded [][2]int
	var excluding []*potential.Pair

	for n, ic := range ics {
		field := fmt.Sprintf("interactions[%d]", n)
		switch strings.ToLower(ic.Kind) {
		case "pair":
			p, err := buildPair(field, ic, types)
			if err != nil {
				return nil, err
			}
			if ic.ExcludeBonded {
				excluding = append(excluding, p)
			}
			specs = append(specs, p)
		case "bond":
			b, err := buildBond(field, ic, st.N)
			if err != nil {
				return nil, err
			}
			bonded = append(bonded, b.Pairs...)
			specs = append(specs, b)
		case "field":
			f, err := buildField(field, ic, st.D, types)
			if err != nil {
				return nil, err
			}
			specs = append(specs, f)
		default:
			return nil, dynamo.Configf(field+".kind", "unknown interaction kind %q", ic.Kind)
		}
	}
	for _, p := range excluding {
		p.Exclude = append(p.Exclude, bonded...)
	}
	return specs, nil
}

func buildPair(field string, ic config.InteractionConfig, types int) (*potential.Pair, error) {
	shift, err := potential.ParseShift(ic.Shift)
	if err != nil {
		return nil, err
	}
	cutoff := ic.Cutoff
	if cutoff == 0 {
		cutoff = config.DefaultCutoff
	}

	var p *potential.Pair
	if ic.Builtin != "" {
		p, err = potential.Builtin(strings.ToLower(ic.Builtin), ic.Values, cutoff, shift)
		if err != nil {
			return nil, dynamo.Configf(field+".builtin", "%v", err)
		}
	} else {
		p = &potential.Pair{Label: "pair", Energy: ic.Energy, Params: ic.Params, Shift: shift}
		p.Coeffs, err = pairCoeffs(field, ic, types, cutoff)
		if err != nil {
			return nil, err
		}
	}
	if ic.Name != "" {
		p.Label = ic.Name
	}
	p.Exclude = append(p.Exclude, ic.Exclude...)
	return p, nil
}

// pairCoeffs accepts either one row shared by every type pair or one row
// per type pair in row-major order.
func pairCoeffs(field string, ic config.InteractionConfig, types int, cutoff float64) ([][]potential.Coeffs, error) {
	rows, err := valueRows(field, ic)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 1:
		coeffs := potential.UniformCoeffs(types, rows[0], cutoff)
		if len(ic.Cutoffs) > 0 {
			if err := applyCutoffs(field, coeffs, ic.Cutoffs); err != nil {
				return nil, err
			}
		}
		return coeffs, nil
	case types * types:
		coeffs := make([][]potential.Coeffs, types)
		for a := range coeffs {
			coeffs[a] = make([]potential.Coeffs, types)
			for b := range coeffs[a] {
				coeffs[a][b] = potential.Coeffs{Values: rows[a*types+b], Cutoff: cutoff}
			}
		}
		if len(ic.Cutoffs) > 0 {
			if err := applyCutoffs(field, coeffs, ic.Cutoffs); err != nil {
				return nil, err
			}
		}
		return coeffs, nil
	}
	return nil, dynamo.Configf(field+".coeffs", "need 1 or %d rows for %d types, got %d", types*types, types, len(rows))
}

func applyCutoffs(field string, coeffs [][]potential.Coeffs, cutoffs [][]float64) error {
	if len(cutoffs) != len(coeffs) {
		return dynamo.Configf(field+".cutoffs", "need a %dx%d matrix", len(coeffs), len(coeffs))
	}
	for a, row := range cutoffs {
		if len(row) != len(coeffs) {
			return dynamo.Configf(field+".cutoffs", "need a %dx%d matrix", len(coeffs), len(coeffs))
		}
		for b, rc := range row {
			coeffs[a][b].Cutoff = rc
		}
	}
	return nil
}

// valueRows returns the configured coefficient rows, or a single row read
// from Values in parameter order.
func valueRows(field string, ic config.InteractionConfig) ([][]float64, error) {
	if len(ic.Coeffs) > 0 {
		return ic.Coeffs, nil
	}
	row := make([]float64, len(ic.Params))
	for k, name := range ic.Params {
		v, ok := ic.Values[name]
		if !ok {
			return nil, dynamo.Configf(field+".values", "no value for parameter %q", name)
		}
		row[k] = v
	}
	return [][]float64{row}, nil
}

func buildBond(field string, ic config.InteractionConfig, n int) (*potential.Bond, error) {
	rows, err := valueRows(field, ic)
	if err != nil {
		return nil, err
	}
	pairs := ic.Bonds
	if ic.Dimers {
		if len(pairs) > 0 {
			return nil, dynamo.Configf(field+".dimers", "cannot be combined with explicit bonds")
		}
		if n%2 != 0 {
			return nil, dynamo.Configf(field+".dimers", "need an even particle count, got %d", n)
		}
		pairs = make([][2]int, 0, n/2)
		for i := 0; i+1 < n; i += 2 {
			pairs = append(pairs, [2]int{i, i + 1})
		}
	}
	label := ic.Name
	if label == "" {
		label = "bond"
	}
	return &potential.Bond{
		Label:  label,
		Energy: ic.Energy,
		Params: ic.Params,
		Pairs:  pairs,
		Types:  ic.BondTypes,
		Coeffs: rows,
	}, nil
}

func buildField(field string, ic config.InteractionConfig, dim, types int) (*potential.Field, error) {
	rows, err := valueRows(field, ic)
	if err != nil {
		return nil, err
	}
	if len(rows) == 1 && types > 1 {
		shared := rows[0]
		rows = make([][]float64, types)
		for t := range rows {
			rows[t] = shared
		}
	}
	label := ic.Name
	if label == "" {
		label = "field"
	}
	return &potential.Field{Label: label, Energy: ic.Energy, Params: ic.Params, Dim: dim, Coeffs: rows}, nil
}
