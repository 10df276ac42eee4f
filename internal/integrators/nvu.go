package integrators

import (
	"context"
	"math"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/dynamo"
)

// NVU follows a geodesic of the hypersurface of constant potential energy.
// Each step covers a path of length dt in mass weighted coordinates and
// mirrors the previous step in the plane normal to the force. Since the
// points before and after a mirrored step sit at the same potential energy
// to second order, the shift along the force is sized by how far the
// previous configuration was from U0.
//
// The speed along the path keeps its initial value, so the kinetic energy
// stays that of the state the run starts from and the reported time is the
// accumulated path length.
type NVU struct {
	// U0 is the potential energy per particle to hold. Nil takes the value
	// of the configuration the first step starts from.
	U0 *float64

	target float64
	// prev is the potential energy of the configuration before the last step.
	prev   float64
	set    bool
}

type nvuState struct {
	target, prev float64
	set          bool
}

func (n *NVU) SaveState() any { return nvuState{n.target, n.prev, n.set} }

func (n *NVU) RestoreState(saved any) {
	if s, ok := saved.(nvuState); ok {
		n.target, n.prev, n.set = s.target, s.prev, s.set
	}
}

func NewNVU(u0 *float64) *NVU { return &NVU{U0: u0} }

func (n *NVU) Name() string { return "nvu" }

func (n *NVU) Validate() error {
	if n.U0 != nil && (math.IsNaN(*n.U0) || math.IsInf(*n.U0, 0)) {
		return dynamo.Configf("integrator.u0", "must be finite, got %g", *n.U0)
	}
	return nil
}

// Target is the potential energy per particle the integrator holds, valid
// once the first step has run or when U0 is set.
func (n *NVU) Target() float64 {
	if n.U0 != nil {
		return *n.U0
	}
	return n.target
}

func (n *NVU) Step(ctx context.Context, sys *System, dt float64) error {
	st := sys.State
	d := st.D
	u := sys.Last.Potential
	if !n.set {
		n.target = u / float64(st.N)
		n.prev = u
		n.set = true
	}

	// In mass weighted coordinates x = sqrt(m) r the force is F/sqrt(m) and
	// the velocity sqrt(m) v, so F.v is their dot product.
	var fv, ff, speed2 float64
	for i := 0; i < st.N; i++ {
		m := st.Masses[i]
		f, v := st.Force(i), st.Vel(i)
		for k := 0; k < d; k++ {
			fv += f[k] * v[k]
			ff += f[k] * f[k] / m
			speed2 += m * v[k] * v[k]
		}
	}
	if speed2 == 0 {
		return dynamo.Configf("integrator", "nvu needs a non-zero velocity to set the direction of motion")
	}
	speed := math.Sqrt(speed2)

	// w = v + a F/m: the mirrored step plus the shift along the force.
	var a float64
	if ff > 0 {
		u0 := n.Target() * float64(st.N)
		a = -2*fv/ff + (n.prev-u0)/ff*speed/dt
	}
	var norm2 float64
	for i := 0; i < st.N; i++ {
		m := st.Masses[i]
		f, v := st.Force(i), st.Vel(i)
		for k := 0; k < d; k++ {
			w := v[k] + a*f[k]/m
			norm2 += m * w * w
		}
	}
	if !(norm2 > 0) || math.IsInf(norm2, 0) {
		return &dynamo.NumericDivergenceError{Particle: -1, Quantity: "nvu direction"}
	}
	c := speed / math.Sqrt(norm2)
	err := compute.ForEach(sys.Device, st.N, lanesPerBlock, func(i int) error {
		s := a / st.Masses[i]
		for k := 0; k < d; k++ {
			j := i*d + k
			st.Velocities[j] = c * (st.Velocities[j] + s*st.Forces[j])
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := drift(sys, dt/speed); err != nil {
		return err
	}
	res, err := sys.Forces.Compute(ctx, st)
	if err != nil {
		return err
	}
	sys.Last = res
	n.prev = u

	st.Step++
	st.Time += dt
	return nil
}
