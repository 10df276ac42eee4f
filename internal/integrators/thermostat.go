package integrators

import (
	"math"
	"math/rand/v2"

	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/particles"
)

// Thermostat couples the velocities to a heat bath. Begin runs before the
// first half kick, End after the second one.
type Thermostat interface {
	Name() string
	Begin(sys *System, dt float64) error
	End(sys *System, dt float64) error
}

// Stateful is implemented by integrators and couplings that carry variables
// across steps besides the particle state. RestoreState accepts only values
// returned by SaveState on the same receiver.
type Stateful interface {
	SaveState() any
	RestoreState(saved any)
}

func temperature(st *particles.State) (kinetic, t float64, dof int) {
	kinetic = particles.KineticEnergy(st)
	dof = particles.DegreesOfFreedom(st)
	return kinetic, particles.Temperature(kinetic, dof), dof
}

// Berendsen rescales velocities toward the target with relaxation time Tau.
type Berendsen struct {
	Target Schedule
	Tau    float64
}

func (b *Berendsen) Name() string { return "berendsen" }

func (b *Berendsen) Validate() error {
	if b.Target == nil {
		return dynamo.Configf("thermostat.target", "berendsen needs a target temperature")
	}
	if !(b.Tau > 0) {
		return dynamo.Configf("thermostat.tau", "must be positive, got %g", b.Tau)
	}
	return nil
}

func (b *Berendsen) Begin(*System, float64) error { return nil }

func (b *Berendsen) End(sys *System, dt float64) error {
	_, t, _ := temperature(sys.State)
	if t <= 0 {
		return nil
	}
	target := b.Target.At(sys.State.Time)
	lambda2 := 1 + dt/b.Tau*(target/t-1)
	return scaleVelocities(sys, math.Sqrt(math.Max(lambda2, 0)))
}

// NoseHoover is a single friction variable thermostat integrated with
// Trotter half steps on either side of the velocity Verlet step. The mass of
// the friction variable is g T tau^2.
type NoseHoover struct {
	Target Schedule
	Tau    float64

	xi  float64
	eta float64
	// q is the heat bath mass used by the latest half step.
	q float64
	// bath is g T of the latest half step.
	bath float64
}

func (n *NoseHoover) Name() string { return "nose-hoover" }

func (n *NoseHoover) Validate() error {
	if n.Target == nil {
		return dynamo.Configf("thermostat.target", "nose-hoover needs a target temperature")
	}
	if !(n.Tau > 0) {
		return dynamo.Configf("thermostat.tau", "must be positive, got %g", n.Tau)
	}
	return nil
}

type noseHooverState struct{ xi, eta, q, bath float64 }

func (n *NoseHoover) SaveState() any {
	return noseHooverState{n.xi, n.eta, n.q, n.bath}
}

func (n *NoseHoover) RestoreState(saved any) {
	if s, ok := saved.(noseHooverState); ok {
		n.xi, n.eta, n.q, n.bath = s.xi, s.eta, s.q, s.bath
	}
}

// Friction is the current value of the friction variable.
func (n *NoseHoover) Friction() float64 { return n.xi }

func (n *NoseHoover) Begin(sys *System, dt float64) error { return n.half(sys, dt) }
func (n *NoseHoover) End(sys *System, dt float64) error   { return n.half(sys, dt) }

func (n *NoseHoover) half(sys *System, dt float64) error {
	st := sys.State
	kinetic, _, dof := temperature(st)
	target := n.Target.At(st.Time)
	n.bath = float64(dof) * target
	n.q = n.bath * n.Tau * n.Tau
	if n.q <= 0 {
		return nil
	}

	n.xi += 0.25 * dt * (2*kinetic - n.bath) / n.q
	f := math.Exp(-0.5 * dt * n.xi)
	if err := scaleVelocities(sys, f); err != nil {
		return err
	}
	n.eta += 0.5 * dt * n.xi
	n.xi += 0.25 * dt * (2*f*f*kinetic - n.bath) / n.q
	return nil
}

// Conserved is the extended energy K + U + Q xi^2/2 + g T eta, constant
// along an exact trajectory with a fixed target.
func (n *NoseHoover) Conserved(sys *System) float64 {
	kinetic := particles.KineticEnergy(sys.State)
	return kinetic + sys.Last.Potential + 0.5*n.q*n.xi*n.xi + n.bath*n.eta
}

// Langevin applies the stochastic O step of the OBABO splitting: each half
// step damps velocities by exp(-Gamma dt/2) and adds matching noise.
type Langevin struct {
	Target Schedule
	Gamma  float64
	Seed   uint64

	src *rand.PCG
	rng *rand.Rand
}

func (l *Langevin) Name() string { return "langevin" }

func (l *Langevin) Validate() error {
	if l.Target == nil {
		return dynamo.Configf("thermostat.target", "langevin needs a target temperature")
	}
	if !(l.Gamma > 0) {
		return dynamo.Configf("thermostat.gamma", "must be positive, got %g", l.Gamma)
	}
	return nil
}

func (l *Langevin) stream() *rand.Rand {
	if l.rng == nil {
		l.src = rand.NewPCG(l.Seed, l.Seed^0x9e3779b97f4a7c15)
		l.rng = rand.New(l.src)
	}
	return l.rng
}

// SaveState captures the position of the random stream.
func (l *Langevin) SaveState() any {
	l.stream()
	return *l.src
}

func (l *Langevin) RestoreState(saved any) {
	if s, ok := saved.(rand.PCG); ok {
		l.stream()
		*l.src = s
	}
}

func (l *Langevin) Begin(sys *System, dt float64) error { return l.ostep(sys, dt) }
func (l *Langevin) End(sys *System, dt float64) error   { return l.ostep(sys, dt) }

// ostep draws from a single stream in particle order so runs with the same
// seed are identical regardless of the worker count.
func (l *Langevin) ostep(sys *System, dt float64) error {
	rng := l.stream()
	st := sys.State
	t := math.Max(l.Target.At(st.Time), 0)
	c1 := math.Exp(-0.5 * l.Gamma * dt)
	c2 := math.Sqrt(1 - c1*c1)
	for i := 0; i < st.N; i++ {
		sigma := c2 * math.Sqrt(t/st.Masses[i])
		v := st.Vel(i)
		for k := range v {
			v[k] = c1*v[k] + sigma*rng.NormFloat64()
		}
	}
	return nil
}
