package integrators

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/force"
	"github.com/san-kum/mdsim/internal/particles"
)

// Barostat adjusts the box after a completed step.
type Barostat interface {
	Name() string
	Apply(ctx context.Context, sys *System, dt float64) error
}

const (
	minScale = 0.9
	maxScale = 1.1
)

// BerendsenBarostat rescales the box and positions toward the target
// pressure every Every steps using the step's kinetic energy and virial.
type BerendsenBarostat struct {
	Target          Schedule
	Tau             float64
	Compressibility float64
	Every           int
}

func (b *BerendsenBarostat) Name() string { return "berendsen-barostat" }

func (b *BerendsenBarostat) Validate() error {
	if b.Target == nil {
		return dynamo.Configf("barostat.target", "needs a target pressure")
	}
	if !(b.Tau > 0) {
		return dynamo.Configf("barostat.tau", "must be positive, got %g", b.Tau)
	}
	if !(b.Compressibility > 0) {
		return dynamo.Configf("barostat.compressibility", "must be positive, got %g", b.Compressibility)
	}
	if b.Every < 0 {
		return dynamo.Configf("barostat.every", "must not be negative, got %d", b.Every)
	}
	return nil
}

func (b *BerendsenBarostat) every() int {
	if b.Every <= 0 {
		return 1
	}
	return b.Every
}

// Scale returns the length scaling factor for the measured pressure p at
// time t, clamped to [0.9, 1.1].
func (b *BerendsenBarostat) Scale(p, t, dt float64, dim int) float64 {
	target := b.Target.At(t)
	base := 1 - b.Compressibility*float64(b.every())*dt/b.Tau*(target-p)
	if base <= 0 {
		return minScale
	}
	mu := math.Pow(base, 1/float64(dim))
	return math.Min(math.Max(mu, minScale), maxScale)
}

func (b *BerendsenBarostat) Apply(ctx context.Context, sys *System, dt float64) error {
	st := sys.State
	if st.Step%b.every() != 0 || st.Box.Volume() == 0 {
		return nil
	}
	kinetic := particles.KineticEnergy(st)
	p := force.Pressure(kinetic, sys.Last, st)
	mu := b.Scale(p, st.Time, dt, st.D)
	if mu == 1 {
		return nil
	}

	d := st.D
	periodic := st.Box.PeriodicFlags()
	err := compute.ForEach(sys.Device, st.N, lanesPerBlock, func(i int) error {
		for k := 0; k < d; k++ {
			if periodic[k] {
				st.Positions[i*d+k] *= mu
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	st.Box.Scale(mu)

	res, err := sys.Forces.Compute(ctx, st)
	if err != nil {
		return fmt.Errorf("barostat: recompute forces: %w", err)
	}
	sys.Last = res
	return nil
}
