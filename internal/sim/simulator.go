// Package sim drives a particle state through time and reports
// thermodynamic summaries.
package sim

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/force"
	"github.com/san-kum/mdsim/internal/integrators"
	"github.com/san-kum/mdsim/internal/kernel"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/potential"
	"github.com/san-kum/mdsim/internal/spatial"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"
)

var tracer = otel.Tracer("github.com/san-kum/mdsim/internal/sim")

type Simulator struct {
	state *particles.State
	specs []potential.Spec
	integ integrators.Integrator
	dt    float64

	dev       compute.Device
	ownDevice bool
	cache     *kernel.Cache
	eval      *force.Evaluator
	list      *spatial.List
	sys       *integrators.System

	// backup is the state after the last step that passed the finiteness
	// check; lastGood is its force result and bath holds the integrator
	// variables of that step.
	backup   *particles.State
	lastGood force.Result
	bath     any

	actions   []Action
	observers []dynamo.Observer
	metrics   []dynamo.Metric
}

// New validates the setup, compiles every interaction, builds the neighbor
// index and evaluates the initial forces. Any error here is fatal for the
// configuration: nothing has been integrated yet.
func New(st *particles.State, specs []potential.Spec, integ integrators.Integrator, opts Options) (*Simulator, error) {
	if err := validate(st, specs, integ, opts); err != nil {
		return nil, err
	}

	s := &Simulator{
		state:     st,
		specs:     specs,
		integ:     integ,
		dt:        opts.Dt,
		dev:       opts.Device,
		cache:     opts.Cache,
		actions:   opts.Actions,
		observers: opts.Observers,
		metrics:   opts.Metrics,
	}
	if s.dev == nil {
		dev, err := compute.NewDevice("cpu", 0)
		if err != nil {
			return nil, err
		}
		s.dev, s.ownDevice = dev, true
	}
	if s.cache == nil {
		s.cache = kernel.NewCache()
	}
	launch := opts.Launch
	if launch == (compute.LaunchConfig{}) {
		launch = compute.DefaultLaunch(st.N, s.dev)
	}
	if err := launch.Validate(); err != nil {
		s.Close()
		return nil, err
	}

	s.eval = force.NewEvaluator(s.dev, s.cache, launch)
	if err := s.eval.Prepare(specs); err != nil {
		s.Close()
		return nil, err
	}

	tracker := spatial.NewTracker(st.N, st.D)
	if cutoff := maxCutoff(specs); cutoff > 0 {
		s.list = spatial.NewList(s.dev, cutoff, opts.Skin, opts.Policy)
		tracker = s.list.Tracker()
	}
	s.sys = &integrators.System{State: st, Device: s.dev, Forces: integrators.ForceFunc(s.Compute), Tracker: tracker}

	res, err := s.Compute(context.Background(), st)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.sys.Last = res
	s.lastGood = res
	s.backup = st.Clone()
	s.saveBath()

	for _, m := range s.metrics {
		m.Reset()
	}
	logrus.Debugf("sim: %d particles in %dD, %d interactions, %s, launch %s", st.N, st.D, len(specs), integ.Name(), launch)
	return s, nil
}

func validate(st *particles.State, specs []potential.Spec, integ integrators.Integrator, opts Options) error {
	if st == nil {
		return dynamo.Configf("state", "missing")
	}
	if err := st.Validate(); err != nil {
		return err
	}
	if integ == nil {
		return dynamo.Configf("integrator", "missing")
	}
	if v, ok := integ.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if !(opts.Dt > 0) || math.IsInf(opts.Dt, 0) {
		return dynamo.Configf("dt", "must be positive, got %g", opts.Dt)
	}
	if opts.Skin < 0 {
		return dynamo.Configf("skin", "must not be negative, got %g", opts.Skin)
	}

	ext := potential.Extent{N: st.N, Dim: st.D, Types: max(st.NumTypes(), 1)}
	for _, sp := range specs {
		if sp == nil {
			return dynamo.Configf("interactions", "nil interaction")
		}
		if err := sp.Validate(ext); err != nil {
			return err
		}
	}
	if cutoff := maxCutoff(specs); cutoff > 0 {
		return spatial.CheckGeometry(st.Box, cutoff, opts.Skin)
	}
	return nil
}

func maxCutoff(specs []potential.Spec) float64 {
	rc := 0.0
	for _, sp := range specs {
		if p, ok := sp.(*potential.Pair); ok {
			rc = math.Max(rc, p.MaxCutoff())
		}
	}
	return rc
}

// Compute rebuilds the neighbor index when required and evaluates the
// forces for st. It is the force field handed to the integrator.
func (s *Simulator) Compute(ctx context.Context, st *particles.State) (force.Result, error) {
	if i, q, bad := st.FirstNonFinite(); bad {
		return force.Result{}, &dynamo.NumericDivergenceError{Step: st.Step, Time: st.Time, Particle: i, Quantity: q}
	}
	var ix *spatial.Index
	if s.list != nil {
		if _, err := s.list.RebuildIfNeeded(ctx, st); err != nil {
			return force.Result{}, err
		}
		ix = s.list.Index()
	}
	return s.eval.Evaluate(ctx, st, ix, s.specs)
}

func (s *Simulator) State() *particles.State            { return s.state }
func (s *Simulator) Integrator() integrators.Integrator { return s.integ }
func (s *Simulator) Cache() *kernel.Cache               { return s.cache }
func (s *Simulator) Launch() compute.LaunchConfig       { return s.eval.Launch() }
func (s *Simulator) Dt() float64                        { return s.dt }

// Rebuilds is the number of neighbor index builds so far.
func (s *Simulator) Rebuilds() int {
	if s.list == nil {
		return 0
	}
	return s.list.Builds()
}

// LastValid returns a copy of the state after the most recent step that
// passed the finiteness check.
func (s *Simulator) LastValid() *particles.State {
	return s.backup.Clone()
}

func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }
func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }

// Close releases the device when the simulator created it.
func (s *Simulator) Close() {
	if s.ownDevice && s.dev != nil {
		s.dev.Cleanup()
		s.dev = nil
	}
}

// Summary reports the thermodynamic state after the latest step.
func (s *Simulator) Summary() dynamo.Summary {
	st := s.state
	res := s.sys.Last
	kinetic := particles.KineticEnergy(st)
	p := particles.Momentum(st)
	var axes [3]float64
	copy(axes[:], p)
	return dynamo.Summary{
		Step:            st.Step,
		Time:            st.Time,
		Kinetic:         kinetic,
		Potential:       res.Potential,
		Temperature:     particles.Temperature(kinetic, particles.DegreesOfFreedom(st)),
		ConfTemperature: res.ConfTemperature(),
		Pressure:        force.Pressure(kinetic, res, st),
		Volume:          st.Box.Volume(),
		Virial:          res.Virial,
		Laplacian:       res.Laplacian,
		ForceSq:         res.ForceSq,
		Momentum:        floats.Norm(p, 2),
		MomentumX:       axes[0],
		MomentumY:       axes[1],
		MomentumZ:       axes[2],
		StressXY:        force.StressXY(res, st),
		Rebuilds:        s.Rebuilds(),
	}
}

// Run returns a lazy stream that advances the system numSteps times and
// yields a summary every reportInterval steps.
//
// The stream ends early with a single error: a NumericDivergenceError when
// the state becomes non-finite (the simulator is rolled back to LastValid),
// or ErrContextCanceled when ctx is done between two steps.
func (s *Simulator) Run(ctx context.Context, numSteps, reportInterval int) iter.Seq2[dynamo.Summary, error] {
	return func(yield func(dynamo.Summary, error) bool) {
		if numSteps < 0 {
			yield(dynamo.Summary{}, dynamo.Configf("steps", "must not be negative, got %d", numSteps))
			return
		}
		if reportInterval < 1 {
			yield(dynamo.Summary{}, dynamo.Configf("report_interval", "must be at least 1, got %d", reportInterval))
			return
		}

		ctx, span := tracer.Start(ctx, "sim.run", trace.WithAttributes(
			attribute.Int("steps", numSteps),
			attribute.Int("report_interval", reportInterval),
			attribute.Int("particles", s.state.N),
			attribute.String("integrator", s.integ.Name()),
		))
		defer span.End()

		start := s.state.Step
		logrus.Infof("sim: running %d steps from step %d (dt=%g)", numSteps, start, s.dt)
		for n := 1; n <= numSteps; n++ {
			if err := ctx.Err(); err != nil {
				span.SetStatus(codes.Error, "canceled")
				yield(dynamo.Summary{}, fmt.Errorf("%w at step %d: %v", dynamo.ErrContextCanceled, s.state.Step, err))
				return
			}

			summary, err := s.step(ctx, n%reportInterval == 0)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield(dynamo.Summary{}, err)
				return
			}
			if n%reportInterval != 0 {
				continue
			}
			for _, m := range s.metrics {
				m.Observe(summary)
			}
			for _, o := range s.observers {
				o.OnSummary(summary)
			}
			if !yield(summary, nil) {
				return
			}
		}
		span.SetAttributes(attribute.Int("rebuilds", s.Rebuilds()))
		logrus.Infof("sim: reached step %d after %d rebuilds", s.state.Step, s.Rebuilds())
	}
}

// step advances one time step, checks finiteness and runs the actions.
func (s *Simulator) step(ctx context.Context, report bool) (dynamo.Summary, error) {
	st := s.state
	err := s.integ.Step(ctx, s.sys, s.dt)

	var div *dynamo.NumericDivergenceError
	switch {
	case errors.As(err, &div):
	case err != nil:
		return dynamo.Summary{}, err
	default:
		if i, q, bad := st.FirstNonFinite(); bad {
			div = &dynamo.NumericDivergenceError{Particle: i, Quantity: q}
		}
	}

	var summary dynamo.Summary
	if div == nil {
		for _, a := range s.actions {
			if err := a.AfterStep(ctx, s); err != nil {
				return dynamo.Summary{}, fmt.Errorf("%s: %w", a.Name(), err)
			}
		}
		if report {
			summary = s.Summary()
			if !summary.IsValid() {
				div = &dynamo.NumericDivergenceError{Particle: -1, Quantity: "summary"}
			}
		}
	}
	if div != nil {
		div.Step = s.backup.Step + 1
		div.Time = s.backup.Time + s.dt
		return dynamo.Summary{}, s.rollback(ctx, div)
	}

	s.backup.CopyFrom(st)
	s.lastGood = s.sys.Last
	s.saveBath()
	return summary, nil
}

func (s *Simulator) saveBath() {
	if b, ok := s.integ.(integrators.Stateful); ok {
		s.bath = b.SaveState()
	}
}

// rollback restores the particles, the force result and the integrator
// variables of the last valid step so the simulator can be inspected or
// resumed with different settings.
func (s *Simulator) rollback(ctx context.Context, div *dynamo.NumericDivergenceError) error {
	logrus.Warnf("sim: %v; restoring step %d", div, s.backup.Step)
	s.state.CopyFrom(s.backup)
	s.sys.Last = s.lastGood
	if b, ok := s.integ.(integrators.Stateful); ok && s.bath != nil {
		b.RestoreState(s.bath)
	}
	if s.list != nil {
		if err := s.list.Build(ctx, s.state); err != nil {
			return errors.Join(div, err)
		}
	}
	return div
}

// Collect drains a summary stream into a slice, stopping at the first error.
func Collect(seq iter.Seq2[dynamo.Summary, error]) ([]dynamo.Summary, error) {
	var out []dynamo.Summary
	for s, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}
