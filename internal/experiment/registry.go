package experiment

import (
	"fmt"
	"slices"
	"strings"

	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/integrators"
	"github.com/san-kum/mdsim/internal/metrics"
	"github.com/san-kum/mdsim/internal/potential"
)

type IntegratorFactory func(cfg config.IntegratorConfig) (integrators.Thermostat, error)

// SchemeFactory builds an integrator that is not a velocity Verlet variant.
type SchemeFactory func(cfg config.IntegratorConfig) (integrators.Integrator, error)

type Registry struct {
	thermostats map[string]IntegratorFactory
	schemes     map[string]SchemeFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		thermostats: make(map[string]IntegratorFactory),
		schemes:     make(map[string]SchemeFactory),
	}

	r.thermostats["nve"] = func(config.IntegratorConfig) (integrators.Thermostat, error) { return nil, nil }
	r.thermostats["berendsen"] = func(cfg config.IntegratorConfig) (integrators.Thermostat, error) {
		target, err := Schedule(cfg.Temperature)
		if err != nil {
			return nil, err
		}
		return &integrators.Berendsen{Target: target, Tau: cfg.Tau}, nil
	}
	r.thermostats["nose-hoover"] = func(cfg config.IntegratorConfig) (integrators.Thermostat, error) {
		target, err := Schedule(cfg.Temperature)
		if err != nil {
			return nil, err
		}
		return &integrators.NoseHoover{Target: target, Tau: cfg.Tau}, nil
	}
	r.thermostats["langevin"] = func(cfg config.IntegratorConfig) (integrators.Thermostat, error) {
		target, err := Schedule(cfg.Temperature)
		if err != nil {
			return nil, err
		}
		return &integrators.Langevin{Target: target, Gamma: cfg.Gamma, Seed: cfg.Seed}, nil
	}

	r.schemes["nvu"] = func(cfg config.IntegratorConfig) (integrators.Integrator, error) {
		if cfg.Barostat != nil {
			return nil, dynamo.Configf("integrator.barostat", "nvu runs at constant volume")
		}
		var u0 *float64
		if cfg.U0 != nil {
			v := *cfg.U0
			u0 = &v
		}
		return integrators.NewNVU(u0), nil
	}

	return r
}

// GetIntegrator builds the integrator named by cfg.Scheme: a velocity Verlet
// integrator with that thermostat and an optional barostat, or a scheme of
// its own such as nvu.
func (r *Registry) GetIntegrator(cfg config.IntegratorConfig) (integrators.Integrator, error) {
	name := strings.ToLower(cfg.Scheme)
	if fn, ok := r.schemes[name]; ok {
		return fn(cfg)
	}
	fn, ok := r.thermostats[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", cfg.Scheme)
	}
	thermo, err := fn(cfg)
	if err != nil {
		return nil, err
	}
	v := integrators.NewVelocityVerlet()
	v.Thermostat = thermo

	if b := cfg.Barostat; b != nil {
		target, err := Schedule(&b.Pressure)
		if err != nil {
			return nil, err
		}
		v.Barostat = &integrators.BerendsenBarostat{
			Target:          target,
			Tau:             b.Tau,
			Compressibility: b.Compressibility,
			Every:           b.Every,
		}
	}
	return v, nil
}

func (r *Registry) ListIntegrators() []string {
	names := make([]string, 0, len(r.thermostats)+len(r.schemes))
	for name := range r.thermostats {
		names = append(names, name)
	}
	for name := range r.schemes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) ListPotentials() []string { return potential.BuiltinNames() }

// DefaultMetrics are attached to every run built from a configuration.
func (r *Registry) DefaultMetrics(cfg *config.Config) []dynamo.Metric {
	out := []dynamo.Metric{metrics.NewRebuildRate()}
	if strings.EqualFold(cfg.Integrator.Scheme, "nve") && cfg.Integrator.Barostat == nil {
		out = append(out, metrics.NewEnergyDrift())
	}
	for _, q := range []string{"temperature", "pressure", "potential"} {
		s, _ := metrics.NewSeries(q)
		out = append(out, s)
	}
	return out
}

// Schedule turns a schedule configuration into a time dependent target.
func Schedule(sc *config.ScheduleConfig) (integrators.Schedule, error) {
	if sc == nil {
		return nil, dynamo.Configf("schedule", "missing")
	}
	switch strings.ToLower(sc.Kind) {
	case "", "constant":
		return integrators.Constant(sc.Value), nil
	case "ramp":
		if sc.End < sc.Start {
			return nil, dynamo.Configf("schedule.end", "ramp ends at %g before it starts at %g", sc.End, sc.Start)
		}
		return integrators.Ramp{From: sc.Value, To: sc.To, Start: sc.Start, End: sc.End}, nil
	case "sine":
		if !(sc.Period > 0) {
			return nil, dynamo.Configf("schedule.period", "must be positive, got %g", sc.Period)
		}
		return integrators.Sine{Mean: sc.Value, Amplitude: sc.Amplitude, Period: sc.Period}, nil
	}
	return nil, dynamo.Configf("schedule.kind", "unknown schedule %q", sc.Kind)
}
