package automation

import (
	"context"
	"fmt"
	"os"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/experiment"
	"github.com/san-kum/mdsim/internal/kernel"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/sim"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of stages run on one system, such as a thermostatted
// equilibration followed by constant energy production. Each stage starts
// from the positions and velocities the previous stage ended with.
type Scenario struct {
	Name string `yaml:"name"`
	// Preset names the base configuration when Config is not given.
	Preset string         `yaml:"preset,omitempty"`
	Config *config.Config `yaml:"config,omitempty"`
	Stages []Stage        `yaml:"stages"`
}

// Stage overrides the run length and, optionally, the integrator of the
// base configuration.
type Stage struct {
	Name           string                   `yaml:"name"`
	Steps          int                      `yaml:"steps"`
	ReportInterval int                      `yaml:"report_interval,omitempty"`
	Integrator     *config.IntegratorConfig `yaml:"integrator,omitempty"`
}

type StageResult struct {
	Name       string
	Integrator string
	Summaries  []dynamo.Summary
	Final      particles.Snapshot
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// Base resolves the configuration the stages start from.
func (sc *Scenario) Base() (*config.Config, error) {
	switch {
	case sc.Config != nil:
		return sc.Config, nil
	case sc.Preset != "":
		cfg := config.GetPreset(sc.Preset)
		if cfg == nil {
			return nil, dynamo.Configf("preset", "unknown preset %q", sc.Preset)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// stageConfig copies base with the stage's overrides applied.
func stageConfig(base *config.Config, st Stage) *config.Config {
	c := cloneConfig(base)
	c.Run.Steps = st.Steps
	if st.ReportInterval > 0 {
		c.Run.ReportInterval = st.ReportInterval
	}
	if st.Integrator != nil {
		in := *st.Integrator
		if in.Dt == 0 {
			in.Dt = base.Integrator.Dt
		}
		c.Integrator = in
	}
	return c
}

func cloneConfig(cfg *config.Config) *config.Config {
	c := *cfg
	if t := cfg.Integrator.Temperature; t != nil {
		tc := *t
		c.Integrator.Temperature = &tc
	}
	if b := cfg.Integrator.Barostat; b != nil {
		bc := *b
		c.Integrator.Barostat = &bc
	}
	if u := cfg.Integrator.U0; u != nil {
		uc := *u
		c.Integrator.U0 = &uc
	}
	return &c
}

// RunScenario executes the stages in order on dev and cache, both of which
// may be nil. observe, when set, sees every report with its stage index.
func RunScenario(ctx context.Context, scenario *Scenario, dev compute.Device, cache *kernel.Cache, observe func(stage int, s dynamo.Summary)) ([]StageResult, error) {
	if len(scenario.Stages) == 0 {
		return nil, dynamo.Configf("stages", "a scenario needs at least one stage")
	}
	base, err := scenario.Base()
	if err != nil {
		return nil, err
	}
	first, err := experiment.New(base)
	if err != nil {
		return nil, err
	}

	reg := experiment.NewRegistry()
	state := first.State
	results := make([]StageResult, 0, len(scenario.Stages))

	for i, step := range scenario.Stages {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("stage-%d", i+1)
		}
		logrus.Infof("Running stage %d/%d: %s (%d steps)", i+1, len(scenario.Stages), name, step.Steps)

		cfg := stageConfig(base, step)
		if err := cfg.Validate(); err != nil {
			return results, fmt.Errorf("stage %s: %w", name, err)
		}
		integ, err := reg.GetIntegrator(cfg.Integrator)
		if err != nil {
			return results, fmt.Errorf("stage %s: %w", name, err)
		}

		exp := &experiment.Experiment{
			Config:     cfg,
			State:      state,
			Specs:      first.Specs,
			Integrator: integ,
			Policy:     first.Policy,
			Metrics:    reg.DefaultMetrics(cfg),
		}
		opts, err := exp.Options(dev, cache)
		if err != nil {
			return results, fmt.Errorf("stage %s: %w", name, err)
		}
		s, err := exp.Simulator(opts)
		if err != nil {
			return results, fmt.Errorf("stage %s setup: %w", name, err)
		}

		summaries, err := runStage(ctx, s, cfg.Run, func(sum dynamo.Summary) {
			if observe != nil {
				observe(i, sum)
			}
		})
		state = s.State().Clone()
		s.Close()
		if err != nil {
			return results, fmt.Errorf("stage %s run: %w", name, err)
		}

		results = append(results, StageResult{
			Name:       name,
			Integrator: integ.Name(),
			Summaries:  summaries,
			Final:      state.Snapshot(),
		})
	}
	return results, nil
}

func runStage(ctx context.Context, s *sim.Simulator, run config.RunConfig, observe func(dynamo.Summary)) ([]dynamo.Summary, error) {
	var summaries []dynamo.Summary
	for sum, err := range s.Run(ctx, run.Steps, run.ReportInterval) {
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, sum)
		observe(sum)
	}
	return summaries, nil
}

// ParameterSweep runs one simulation per value of a state parameter and
// averages the reports of each.
type ParameterSweep struct {
	// Param is temperature, density, dt or pressure.
	Param  string
	Values []float64
	// Skip discards the first reports of every run as equilibration.
	Skip int
}

// SweepResult holds the averages of one sweep point.
type SweepResult struct {
	ParamValue  float64
	Temperature float64
	Potential   float64
	Pressure    float64
	MaxEnergy   float64
	MinEnergy   float64
	Reports     int
}

// SweepParams lists the parameters a sweep can vary.
var SweepParams = []string{"density", "dt", "pressure", "temperature"}

func applyParam(cfg *config.Config, name string, v float64) error {
	switch name {
	case "temperature":
		cfg.System.Temperature = v
		if t := cfg.Integrator.Temperature; t != nil {
			*t = config.ScheduleConfig{Value: v}
		}
	case "density":
		cfg.System.Density = v
	case "dt":
		cfg.Integrator.Dt = v
	case "pressure":
		if cfg.Integrator.Barostat == nil {
			return dynamo.Configf("sweep.param", "pressure sweeps need a barostat")
		}
		cfg.Integrator.Barostat.Pressure = config.ScheduleConfig{Value: v}
	default:
		return dynamo.Configf("sweep.param", "must be one of %v, got %q", SweepParams, name)
	}
	return nil
}

// RunSweep executes a parameter sweep over base, one value at a time.
func RunSweep(ctx context.Context, sweep *ParameterSweep, base *config.Config, dev compute.Device, cache *kernel.Cache) ([]SweepResult, error) {
	if len(sweep.Values) == 0 {
		return nil, dynamo.Configf("sweep.values", "at least one value is required")
	}
	results := make([]SweepResult, 0, len(sweep.Values))

	for i, v := range sweep.Values {
		cfg := cloneConfig(base)
		if err := applyParam(cfg, sweep.Param, v); err != nil {
			return nil, err
		}
		exp, err := experiment.New(cfg)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}
		opts, err := exp.Options(dev, cache)
		if err != nil {
			return results, err
		}
		s, err := exp.Simulator(opts)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}
		summaries, err := sim.Collect(s.Run(ctx, cfg.Run.Steps, cfg.Run.ReportInterval))
		s.Close()
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}
		if sweep.Skip < len(summaries) {
			summaries = summaries[sweep.Skip:]
		} else {
			summaries = nil
		}

		results = append(results, summarize(v, summaries))
		logrus.Infof("Sweep %d/%d: %s=%.4f", i+1, len(sweep.Values), sweep.Param, v)
	}
	return results, nil
}

func summarize(v float64, summaries []dynamo.Summary) SweepResult {
	r := SweepResult{ParamValue: v, Reports: len(summaries)}
	if len(summaries) == 0 {
		return r
	}
	temp := make([]float64, len(summaries))
	pot := make([]float64, len(summaries))
	press := make([]float64, len(summaries))
	r.MinEnergy, r.MaxEnergy = summaries[0].Total(), summaries[0].Total()
	for k, s := range summaries {
		temp[k], pot[k], press[k] = s.Temperature, s.Potential, s.Pressure
		r.MinEnergy = min(r.MinEnergy, s.Total())
		r.MaxEnergy = max(r.MaxEnergy, s.Total())
	}
	r.Temperature = stat.Mean(temp, nil)
	r.Potential = stat.Mean(pot, nil)
	r.Pressure = stat.Mean(press, nil)
	return r
}
