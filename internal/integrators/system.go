package integrators

import (
	"context"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/force"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/spatial"
)

// ForceField recomputes st.Forces for the current positions, rebuilding
// whatever acceleration structure it needs first.
type ForceField interface {
	Compute(ctx context.Context, st *particles.State) (force.Result, error)
}

type ForceFunc func(ctx context.Context, st *particles.State) (force.Result, error)

func (f ForceFunc) Compute(ctx context.Context, st *particles.State) (force.Result, error) {
	return f(ctx, st)
}

// System is the mutable context an integrator advances. The driver owns it
// and hands it to the integrator once per step.
type System struct {
	State   *particles.State
	Device  compute.Device
	Forces  ForceField
	Tracker *spatial.Tracker
	// Last is the force evaluation for the current positions.
	Last force.Result
}

type Integrator interface {
	Name() string
	Step(ctx context.Context, sys *System, dt float64) error
}

const lanesPerBlock = 256

// kick advances velocities by h using the current forces.
func kick(sys *System, h float64) error {
	st := sys.State
	d := st.D
	return compute.ForEach(sys.Device, st.N, lanesPerBlock, func(i int) error {
		a := h / st.Masses[i]
		for k := 0; k < d; k++ {
			st.Velocities[i*d+k] += a * st.Forces[i*d+k]
		}
		return nil
	})
}

// drift advances positions by dt, feeds the unwrapped displacement to the
// tracker and folds positions back into the box.
func drift(sys *System, dt float64) error {
	st := sys.State
	d := st.D
	return compute.ForEach(sys.Device, st.N, lanesPerBlock, func(i int) error {
		for k := 0; k < d; k++ {
			dx := st.Velocities[i*d+k] * dt
			if sys.Tracker != nil {
				sys.Tracker.AccumulateAxis(i, k, dx)
			}
			st.Positions[i*d+k] += dx
		}
		st.Box.Wrap(st.Pos(i), st.Image(i))
		return nil
	})
}

func scaleVelocities(sys *System, f float64) error {
	st := sys.State
	return compute.ForEach(sys.Device, len(st.Velocities), lanesPerBlock, func(i int) error {
		st.Velocities[i] *= f
		return nil
	})
}
