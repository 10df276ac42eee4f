package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/san-kum/mdsim/internal/dynamo"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt             = 0.005
	DefaultSteps          = 10000
	DefaultReportInterval = 100
	DefaultSkin           = 0.3
	DefaultCutoff         = 2.5
	DefaultParticles      = 500
	DefaultDensity        = 0.8442
	DefaultTemperature    = 1.0
)

type Config struct {
	Name         string              `yaml:"name"`
	System       SystemConfig        `yaml:"system"`
	Interactions []InteractionConfig `yaml:"interactions"`
	Neighbor     NeighborConfig      `yaml:"neighbor"`
	Compute      ComputeConfig       `yaml:"compute"`
	Integrator   IntegratorConfig    `yaml:"integrator"`
	Run          RunConfig           `yaml:"run"`
}

// SystemConfig describes the initial configuration: a lattice filled at the
// given density with Maxwell-Boltzmann velocities.
type SystemConfig struct {
	Lattice      string    `yaml:"lattice"`
	Dim          int       `yaml:"dim"`
	Particles    int       `yaml:"particles"`
	Density      float64   `yaml:"density"`
	Periodic     []bool    `yaml:"periodic,omitempty"`
	TypeCounts   []int     `yaml:"type_counts,omitempty"`
	ShuffleTypes bool      `yaml:"shuffle_types,omitempty"`
	Masses       []float64 `yaml:"masses,omitempty"`
	Temperature  float64   `yaml:"temperature"`
	Seed         uint64    `yaml:"seed"`
	// Snapshot, when set, replaces the lattice with a saved configuration.
	Snapshot string `yaml:"snapshot,omitempty"`
}

// InteractionConfig is either a library potential (Builtin) or an energy
// expression with named parameters.
type InteractionConfig struct {
	Kind    string             `yaml:"kind"`
	Name    string             `yaml:"name,omitempty"`
	Builtin string             `yaml:"builtin,omitempty"`
	Energy  string             `yaml:"energy,omitempty"`
	Params  []string           `yaml:"params,omitempty"`
	Values  map[string]float64 `yaml:"values,omitempty"`
	Cutoff  float64            `yaml:"cutoff,omitempty"`
	Shift   string             `yaml:"shift,omitempty"`

	// Coeffs holds per type-pair values for pair interactions and per bond
	// type or particle type rows for bonds and fields.
	Coeffs  [][]float64 `yaml:"coeffs,omitempty"`
	Cutoffs [][]float64 `yaml:"cutoffs,omitempty"`

	Bonds     [][2]int `yaml:"bonds,omitempty"`
	BondTypes []int    `yaml:"bond_types,omitempty"`
	// Dimers bonds particle 2i to 2i+1 for every i.
	Dimers        bool     `yaml:"dimers,omitempty"`
	Exclude       [][2]int `yaml:"exclude,omitempty"`
	ExcludeBonded bool     `yaml:"exclude_bonded,omitempty"`
}

type NeighborConfig struct {
	Skin   float64 `yaml:"skin"`
	Policy string  `yaml:"policy"`
}

type ComputeConfig struct {
	Device             string `yaml:"device"`
	Workers            int    `yaml:"workers"`
	ParticlesPerBlock  int    `yaml:"particles_per_block,omitempty"`
	ThreadsPerParticle int    `yaml:"threads_per_particle,omitempty"`
	Reduction          string `yaml:"reduction,omitempty"`
}

type IntegratorConfig struct {
	Scheme      string          `yaml:"scheme"`
	Dt          float64         `yaml:"dt"`
	Temperature *ScheduleConfig `yaml:"temperature,omitempty"`
	Tau         float64         `yaml:"tau,omitempty"`
	Gamma       float64         `yaml:"gamma,omitempty"`
	Seed        uint64          `yaml:"seed,omitempty"`
	Barostat    *BarostatConfig `yaml:"barostat,omitempty"`
	// U0 is the potential energy per particle held by the nvu scheme; when
	// unset the starting configuration's value is used. For nvu, Dt is the
	// path length of a step.
	U0          *float64        `yaml:"u0,omitempty"`
}

type BarostatConfig struct {
	Pressure        ScheduleConfig `yaml:"pressure"`
	Tau             float64        `yaml:"tau"`
	Compressibility float64        `yaml:"compressibility"`
	Every           int            `yaml:"every"`
}

// ScheduleConfig is a constant (Value), a ramp from Value to To over
// [Start, End], or a sine around Value.
type ScheduleConfig struct {
	Kind      string  `yaml:"kind,omitempty"`
	Value     float64 `yaml:"value"`
	To        float64 `yaml:"to,omitempty"`
	Start     float64 `yaml:"start,omitempty"`
	End       float64 `yaml:"end,omitempty"`
	Amplitude float64 `yaml:"amplitude,omitempty"`
	Period    float64 `yaml:"period,omitempty"`
}

type RunConfig struct {
	Steps          int `yaml:"steps"`
	ReportInterval int `yaml:"report_interval"`
	MomentumReset  int `yaml:"momentum_reset,omitempty"`
	SnapshotEvery  int `yaml:"snapshot_every,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Name: "lj",
		System: SystemConfig{
			Lattice:     "fcc",
			Dim:         3,
			Particles:   DefaultParticles,
			Density:     DefaultDensity,
			Temperature: DefaultTemperature,
			Seed:        1,
		},
		Interactions: []InteractionConfig{
			{Kind: "pair", Builtin: "lj", Cutoff: DefaultCutoff, Shift: "potential"},
		},
		Neighbor:   NeighborConfig{Skin: DefaultSkin, Policy: "half-skin"},
		Compute:    ComputeConfig{Device: "cpu"},
		Integrator: IntegratorConfig{Scheme: "nve", Dt: DefaultDt},
		Run:        RunConfig{Steps: DefaultSteps, ReportInterval: DefaultReportInterval},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var (
	lattices = []string{"sc", "bcc", "fcc"}
	kinds    = []string{"pair", "bond", "field"}
	schemes  = []string{"nve", "berendsen", "nose-hoover", "langevin", "nvu"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

// Validate checks the structure of the configuration. Physical consistency
// (cutoff against box, parameter counts) is checked when the run is built.
func (c *Config) Validate() error {
	s := c.System
	if s.Snapshot == "" {
		if !oneOf(s.Lattice, lattices) {
			return dynamo.Configf("system.lattice", "must be one of %v, got %q", lattices, s.Lattice)
		}
		if s.Dim < 1 || s.Dim > 3 {
			return dynamo.Configf("system.dim", "must be 1, 2 or 3, got %d", s.Dim)
		}
		if s.Particles < 1 {
			return dynamo.Configf("system.particles", "must be at least 1, got %d", s.Particles)
		}
		if !(s.Density > 0) || math.IsInf(s.Density, 0) {
			return dynamo.Configf("system.density", "must be positive and finite, got %g", s.Density)
		}
	}
	if s.Temperature < 0 {
		return dynamo.Configf("system.temperature", "must not be negative, got %g", s.Temperature)
	}

	if len(c.Interactions) == 0 {
		return dynamo.Configf("interactions", "at least one interaction is required")
	}
	for n, ic := range c.Interactions {
		field := fmt.Sprintf("interactions[%d]", n)
		if !oneOf(ic.Kind, kinds) {
			return dynamo.Configf(field+".kind", "must be one of %v, got %q", kinds, ic.Kind)
		}
		if ic.Builtin == "" && ic.Energy == "" {
			return dynamo.Configf(field, "needs either builtin or energy")
		}
		if ic.Builtin != "" && !strings.EqualFold(ic.Kind, "pair") {
			return dynamo.Configf(field+".builtin", "library potentials are pair interactions")
		}
	}

	if c.Neighbor.Skin < 0 {
		return dynamo.Configf("neighbor.skin", "must not be negative, got %g", c.Neighbor.Skin)
	}
	if c.Compute.Workers < 0 {
		return dynamo.Configf("compute.workers", "must not be negative, got %d", c.Compute.Workers)
	}

	in := c.Integrator
	if !oneOf(in.Scheme, schemes) {
		return dynamo.Configf("integrator.scheme", "must be one of %v, got %q", schemes, in.Scheme)
	}
	if !(in.Dt > 0) {
		return dynamo.Configf("integrator.dt", "must be positive, got %g", in.Dt)
	}
	nvu := strings.EqualFold(in.Scheme, "nvu")
	if !nvu && !strings.EqualFold(in.Scheme, "nve") && in.Temperature == nil {
		return dynamo.Configf("integrator.temperature", "scheme %s needs a target temperature", in.Scheme)
	}
	if nvu && in.Barostat != nil {
		return dynamo.Configf("integrator.barostat", "nvu runs at constant volume")
	}
	if in.U0 != nil && (math.IsNaN(*in.U0) || math.IsInf(*in.U0, 0)) {
		return dynamo.Configf("integrator.u0", "must be finite, got %g", *in.U0)
	}

	if c.Run.Steps < 0 {
		return dynamo.Configf("run.steps", "must not be negative, got %d", c.Run.Steps)
	}
	if c.Run.ReportInterval < 1 {
		return dynamo.Configf("run.report_interval", "must be at least 1, got %d", c.Run.ReportInterval)
	}
	return nil
}
