// Package force evaluates the total force, energy and virial of a state
// from a set of interactions.
package force

import (
	"context"
	"fmt"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/kernel"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/potential"
	"github.com/san-kum/mdsim/internal/spatial"
	"gonum.org/v1/gonum/floats"
)

// Result holds the scalars of one evaluation. Virial is (1/D) sum r.F over
// all interacting pairs; Laplacian is the Laplacian of U summed over all
// particle coordinates.
type Result struct {
	Potential float64
	Virial    float64
	Laplacian float64
	ForceSq   float64
	// VirialXY is the sum of x_ij F_ij,y over pairs and bonds.
	VirialXY  float64
}

type Evaluator struct {
	dev    compute.Device
	cache  *kernel.Cache
	launch compute.LaunchConfig
	sink   compute.Reducer
	host   []float64
}

func NewEvaluator(dev compute.Device, cache *kernel.Cache, launch compute.LaunchConfig) *Evaluator {
	return &Evaluator{dev: dev, cache: cache, launch: launch}
}

func (e *Evaluator) Launch() compute.LaunchConfig { return e.launch }
func (e *Evaluator) Cache() *kernel.Cache         { return e.cache }

// Prepare compiles every interaction so that compilation errors surface
// before the first step.
func (e *Evaluator) Prepare(specs []potential.Spec) error {
	for _, s := range specs {
		if _, err := e.cache.GetOrCompile(s, e.launch); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate overwrites st.Forces with the total force of all interactions
// and returns the accumulated scalars.
//
// ix must cover the current positions; an index that should have been
// rebuilt is reported as a NeighborListInvariantViolation.
func (e *Evaluator) Evaluate(ctx context.Context, st *particles.State, ix *spatial.Index, specs []potential.Spec) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, err)
	}

	kernels := make([]kernel.Kernel, len(specs))
	for n, s := range specs {
		if p, ok := s.(*potential.Pair); ok {
			if ix == nil {
				return Result{}, &dynamo.NeighborListInvariantViolation{Reason: "pair interaction without a neighbor index", Particle: -1}
			}
			if rc := p.MaxCutoff(); rc > ix.Cutoff() {
				return Result{}, dynamo.Configf("pair "+p.Label, "cutoff %g exceeds the neighbor list cutoff %g", rc, ix.Cutoff())
			}
		}
		k, err := e.cache.GetOrCompile(s, e.launch)
		if err != nil {
			return Result{}, err
		}
		kernels[n] = k
	}
	if ix != nil {
		if err := ix.Verify(st); err != nil {
			return Result{}, err
		}
	}

	size := kernel.BufferLen(st)
	if e.sink == nil || e.sink.Len() != size {
		e.sink = e.launch.NewReducer(e.dev, size)
		e.host = make([]float64, size)
	}
	if err := e.sink.Zero(e.dev); err != nil {
		return Result{}, err
	}

	target := &kernel.Target{Device: e.dev, State: st, Index: ix, Sink: e.sink}
	for n, k := range kernels {
		if err := k.Run(target, specs[n]); err != nil {
			return Result{}, err
		}
	}

	if err := e.sink.Download(e.dev, e.host); err != nil {
		return Result{}, err
	}
	nd := st.N * st.D
	copy(st.Forces, e.host[:nd])
	scalars := e.host[nd:]

	return Result{
		Potential: scalars[kernel.SlotEnergy],
		Virial:    scalars[kernel.SlotVirial] / float64(st.D),
		Laplacian: scalars[kernel.SlotLaplacian],
		ForceSq:   floats.Dot(st.Forces, st.Forces),
		VirialXY:  scalars[kernel.SlotVirialXY],
	}, nil
}

// ConfTemperature is Fsq / lapU, zero when the Laplacian vanishes.
func (r Result) ConfTemperature() float64 {
	if r.Laplacian == 0 {
		return 0
	}
	return r.ForceSq / r.Laplacian
}

// Pressure is (2K/D + W) / V.
func Pressure(kinetic float64, r Result, st *particles.State) float64 {
	return (2*kinetic/float64(st.D) + r.Virial) / st.Box.Volume()
}

// StressXY is the xy component of the stress tensor, -(sum m vx vy + Wxy) / V.
// It is zero below two dimensions.
func StressXY(r Result, st *particles.State) float64 {
	if st.D < 2 {
		return 0
	}
	var kxy float64
	for i := 0; i < st.N; i++ {
		v := st.Vel(i)
		kxy += st.Masses[i] * v[0] * v[1]
	}
	return -(kxy + r.VirialXY) / st.Box.Volume()
}
