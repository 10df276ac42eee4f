package config

import "slices"

var Presets = map[string]func() *Config{
	"lj": DefaultConfig,

	// 80:20 binary mixture quenched from T=2 to T=0.8.
	"kob-andersen": func() *Config {
		c := DefaultConfig()
		c.Name = "kob-andersen"
		c.System.Particles = 500
		c.System.Density = 1.2
		c.System.Temperature = 2.0
		c.System.TypeCounts = []int{400, 100}
		c.System.ShuffleTypes = true
		c.Interactions = []InteractionConfig{{Kind: "pair", Builtin: "kob-andersen"}}
		c.Integrator = IntegratorConfig{
			Scheme:      "nose-hoover",
			Dt:          0.004,
			Tau:         0.2,
			Temperature: &ScheduleConfig{Kind: "ramp", Value: 2.0, To: 0.8, Start: 0, End: 20},
		}
		c.Run = RunConfig{Steps: 20000, ReportInterval: 200, MomentumReset: 100}
		return c
	},

	"yukawa": func() *Config {
		c := DefaultConfig()
		c.Name = "yukawa"
		c.System.Particles = 2048
		c.System.Density = 0.973
		c.System.Temperature = 0.7
		c.Interactions = []InteractionConfig{{
			Kind:    "pair",
			Builtin: "yukawa",
			Values:  map[string]float64{"A": 1, "kappa": 1},
			Cutoff:  2.5,
			Shift:   "potential",
		}}
		c.Run = RunConfig{Steps: 32768, ReportInterval: 256, MomentumReset: 100}
		return c
	},

	// Harmonic dimers with Lennard-Jones between molecules.
	"dimer": func() *Config {
		c := DefaultConfig()
		c.Name = "dimer"
		c.System.Particles = 256
		c.System.Density = 0.5
		c.Interactions = []InteractionConfig{
			{Kind: "pair", Builtin: "lj", Cutoff: 2.5, Shift: "force", ExcludeBonded: true},
			{
				Kind:   "bond",
				Name:   "harmonic",
				Energy: "0.5*k*pow(r - r0, 2)",
				Params: []string{"k", "r0"},
				Coeffs: [][]float64{{100, 1.0}},
				Dimers: true,
			},
		}
		c.Integrator = IntegratorConfig{Scheme: "langevin", Dt: 0.002, Gamma: 0.5, Seed: 7, Temperature: &ScheduleConfig{Value: 1.0}}
		return c
	},

	// Dilute Lennard-Jones gas settling in a uniform field.
	"gravity": func() *Config {
		c := DefaultConfig()
		c.Name = "gravity"
		c.System.Lattice = "sc"
		c.System.Particles = 216
		c.System.Density = 0.3
		c.Interactions = []InteractionConfig{
			{Kind: "pair", Builtin: "lj", Cutoff: 2.5, Shift: "potential"},
			{Kind: "field", Name: "gravity", Energy: "g*z", Params: []string{"g"}, Coeffs: [][]float64{{0.1}}},
		}
		c.Integrator = IntegratorConfig{Scheme: "berendsen", Dt: 0.005, Tau: 0.5, Temperature: &ScheduleConfig{Value: 1.0}}
		return c
	},
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	build, ok := Presets[name]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
