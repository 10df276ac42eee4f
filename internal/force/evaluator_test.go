package force

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/kernel"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/potential"
	"github.com/san-kum/mdsim/internal/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var launches = map[string]compute.LaunchConfig{
	"atomic":         {ParticlesPerBlock: 32, ThreadsPerParticle: 1, Reduction: compute.Atomic},
	"atomic/threads": {ParticlesPerBlock: 8, ThreadsPerParticle: 4, Reduction: compute.Atomic},
	"block":          {ParticlesPerBlock: 16, ThreadsPerParticle: 1, Reduction: compute.BlockReduce},
	"block/threads":  {ParticlesPerBlock: 16, ThreadsPerParticle: 2, Reduction: compute.BlockReduce},
}

func jitteredLattice(t *testing.T, n int, rho, jitter float64) *particles.State {
	t.Helper()
	st, err := particles.Lattice(particles.FaceCenter, 3, n, rho)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(42, 43))
	for i := range st.Positions {
		st.Positions[i] += jitter * (2*rng.Float64() - 1)
	}
	st.WrapAll()
	return st
}

func evaluate(t *testing.T, dev compute.Device, launch compute.LaunchConfig, st *particles.State, skin float64, specs ...potential.Spec) Result {
	t.Helper()
	cutoff := 0.0
	for _, s := range specs {
		if p, ok := s.(*potential.Pair); ok {
			cutoff = math.Max(cutoff, p.MaxCutoff())
		}
	}
	var ix *spatial.Index
	if cutoff > 0 {
		var err error
		ix, err = spatial.Build(dev, st, cutoff, skin, spatial.HalfSkin)
		require.NoError(t, err)
	}
	ev := NewEvaluator(dev, kernel.NewCache(), launch)
	res, err := ev.Evaluate(context.Background(), st, ix, specs)
	require.NoError(t, err)
	return res
}

// referenceLJ is a direct double loop over all pairs.
func referenceLJ(st *particles.State, rc float64) ([]float64, float64, float64) {
	f := make([]float64, len(st.Forces))
	dr := make([]float64, st.D)
	u, w := 0.0, 0.0
	for i := 0; i < st.N; i++ {
		for j := i + 1; j < st.N; j++ {
			r2 := st.Box.Displacement(st.Pos(i), st.Pos(j), dr)
			if r2 >= rc*rc {
				continue
			}
			inv6 := 1 / (r2 * r2 * r2)
			u += 4 * (inv6*inv6 - inv6)
			s := 24 * (2*inv6*inv6 - inv6) / r2
			w += s * r2
			for k := range dr {
				f[i*st.D+k] += s * dr[k]
				f[j*st.D+k] -= s * dr[k]
			}
		}
	}
	return f, u, w / float64(st.D)
}

func TestNewtonThirdLaw(t *testing.T) {
	for name, launch := range launches {
		t.Run(name, func(t *testing.T) {
			st := jitteredLattice(t, 256, 0.8, 0.08)
			evaluate(t, compute.NewCPU(4), launch, st, 0.3, potential.LennardJones(1, 1, 2.5, potential.ShiftPotential))

			net := make([]float64, 3)
			mag := 0.0
			for i := 0; i < st.N; i++ {
				f := st.Force(i)
				for k := range f {
					net[k] += f[k]
					mag += math.Abs(f[k])
				}
			}
			require.Greater(t, mag, 0.0)
			for k := range net {
				assert.LessOrEqual(t, math.Abs(net[k]), 1e-9*mag, "axis %d", k)
			}
		})
	}
}

func TestMatchesDirectSum(t *testing.T) {
	st := jitteredLattice(t, 256, 0.8, 0.05)
	ref, uRef, wRef := referenceLJ(st, 2.5)

	for name, launch := range launches {
		t.Run(name, func(t *testing.T) {
			res := evaluate(t, compute.NewCPU(3), launch, st, 0.4, potential.LennardJones(1, 1, 2.5, potential.NoShift))

			assert.InDelta(t, uRef, res.Potential, 1e-9*math.Abs(uRef))
			assert.InDelta(t, wRef, res.Virial, 1e-9*math.Abs(wRef))
			for i := range ref {
				assert.InDelta(t, ref[i], st.Forces[i], 1e-9*(1+math.Abs(ref[i])))
			}
		})
	}
}

func TestBlockReduceIsReproducible(t *testing.T) {
	st := jitteredLattice(t, 256, 0.8, 0.08)
	launch := launches["block"]
	dev := compute.NewCPU(4)

	first := evaluate(t, dev, launch, st, 0.3, potential.KobAndersen())
	forces := append([]float64(nil), st.Forces...)
	for trial := 0; trial < 3; trial++ {
		again := evaluate(t, dev, launch, st, 0.3, potential.KobAndersen())
		assert.Equal(t, first, again)
		assert.Equal(t, forces, st.Forces)
	}
}

func TestTwoParticleScalars(t *testing.T) {
	st := particles.New(2, particles.Cubic(3, 10))
	copy(st.Pos(0), []float64{1, 1, 1})
	copy(st.Pos(1), []float64{2.2, 1, 1})

	res := evaluate(t, compute.NewCPU(1), launches["atomic"], st, 0.3, potential.LennardJones(1, 1, 2.5, potential.NoShift))

	r := 1.2
	u := 4 * (math.Pow(r, -12) - math.Pow(r, -6))
	du := 4 * (-12*math.Pow(r, -13) + 6*math.Pow(r, -7))
	d2u := 4 * (156*math.Pow(r, -14) - 42*math.Pow(r, -8))
	s := -du / r

	assert.InDelta(t, u, res.Potential, 1e-12)
	assert.InDelta(t, -s*r, st.Force(0)[0], 1e-12)
	assert.InDelta(t, s*r, st.Force(1)[0], 1e-12)
	assert.InDelta(t, s*r*r/3, res.Virial, 1e-12)
	assert.InDelta(t, 2*(d2u-2*s), res.Laplacian, 1e-9)
	assert.InDelta(t, 2*s*s*r*r, res.ForceSq, 1e-12)
}

func TestShearVirialAndStress(t *testing.T) {
	st := particles.New(2, particles.Cubic(3, 10))
	copy(st.Pos(0), []float64{1, 1, 1})
	copy(st.Pos(1), []float64{2, 2, 1})
	copy(st.Vel(0), []float64{0.5, 0.2, 0})

	res := evaluate(t, compute.NewCPU(1), launches["block"], st, 0.3, potential.LennardJones(1, 1, 2.5, potential.NoShift))

	r := math.Sqrt2
	du := 4 * (-12*math.Pow(r, -13) + 6*math.Pow(r, -7))
	s := -du / r
	assert.InDelta(t, s, res.VirialXY, 1e-12)
	assert.InDelta(t, 2*s/3, res.Virial, 1e-12)
	assert.InDelta(t, -(0.5*0.2+s)/1000, StressXY(res, st), 1e-12)

	flat := particles.New(2, particles.Cubic(1, 10))
	assert.Zero(t, StressXY(Result{VirialXY: 3}, flat))
}

func TestPairAtCutoffInteracts(t *testing.T) {
	st := particles.New(2, particles.Cubic(3, 10))
	copy(st.Pos(0), []float64{1, 1, 1})
	copy(st.Pos(1), []float64{3.5, 1, 1})

	res := evaluate(t, compute.NewCPU(1), launches["atomic"], st, 0.3, potential.LennardJones(1, 1, 2.5, potential.NoShift))

	rc := 2.5
	u := 4 * (math.Pow(rc, -12) - math.Pow(rc, -6))
	du := 4 * (-12*math.Pow(rc, -13) + 6*math.Pow(rc, -7))
	assert.InDelta(t, u, res.Potential, 1e-15)
	assert.NotZero(t, res.Potential, "r == rc is inside the cutoff")
	assert.InDelta(t, du, st.Force(0)[0], 1e-15)
}

func TestForceBufferIsOverwritten(t *testing.T) {
	st := jitteredLattice(t, 32, 0.5, 0.05)
	evaluate(t, compute.NewCPU(2), launches["atomic"], st, 0.3, potential.SoftRepulsion(1.2, 1))
	clean := append([]float64(nil), st.Forces...)

	for i := range st.Forces {
		st.Forces[i] = 1e6
	}
	evaluate(t, compute.NewCPU(2), launches["atomic"], st, 0.3, potential.SoftRepulsion(1.2, 1))

	for i := range clean {
		assert.InDelta(t, clean[i], st.Forces[i], 1e-12)
	}
}

func TestInteractionsSum(t *testing.T) {
	box, err := particles.NewBox([]float64{10, 10}, []bool{true, false})
	require.NoError(t, err)
	st := particles.New(4, box)
	copy(st.Positions, []float64{1, 1, 2, 1, 5, 5, 5, 6.5})

	lj := potential.LennardJones(1, 1, 2.5, potential.ShiftForce)
	lj.Exclude = [][2]int{{0, 1}}
	bond := potential.HarmonicBond(10, 1, [][2]int{{0, 1}})
	grav := potential.Gravity(2, []float64{0.5})

	res := evaluate(t, compute.NewCPU(2), launches["block"], st, 0.3, lj, bond, grav)

	// particles 0 and 1: bond at rest length, pair excluded, only gravity
	assert.InDelta(t, 0, st.Force(0)[0], 1e-12)
	assert.InDelta(t, -0.5, st.Force(0)[1], 1e-12)
	assert.InDelta(t, -st.Force(2)[1]-1.0, st.Force(3)[1], 1e-12)

	uGrav := 0.5 * (1 + 1 + 5 + 6.5)
	shifted := func(r float64) float64 {
		u := func(x float64) float64 { return 4 * (math.Pow(x, -12) - math.Pow(x, -6)) }
		du := func(x float64) float64 { return 4 * (-12*math.Pow(x, -13) + 6*math.Pow(x, -7)) }
		return u(r) - u(2.5) - (r-2.5)*du(2.5)
	}
	assert.InDelta(t, uGrav+shifted(1.5), res.Potential, 1e-9)
}

func TestStaleIndexIsRejected(t *testing.T) {
	st := jitteredLattice(t, 108, 0.5, 0.0)
	dev := compute.NewCPU(2)
	ix, err := spatial.Build(dev, st, 2.5, 0.3, spatial.HalfSkin)
	require.NoError(t, err)

	st.Pos(5)[0] += 0.25
	st.WrapAll()

	ev := NewEvaluator(dev, kernel.NewCache(), launches["atomic"])
	_, err = ev.Evaluate(context.Background(), st, ix, []potential.Spec{potential.LennardJones(1, 1, 2.5, potential.NoShift)})
	assert.ErrorIs(t, err, dynamo.ErrNeighborListInvariant)
}

func TestCutoffBeyondIndex(t *testing.T) {
	st := jitteredLattice(t, 108, 0.5, 0.0)
	dev := compute.NewCPU(2)
	ix, err := spatial.Build(dev, st, 2.0, 0.3, spatial.HalfSkin)
	require.NoError(t, err)

	ev := NewEvaluator(dev, kernel.NewCache(), launches["atomic"])
	_, err = ev.Evaluate(context.Background(), st, ix, []potential.Spec{potential.LennardJones(1, 1, 2.5, potential.NoShift)})
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
}

func TestCompilationFailureSurfaces(t *testing.T) {
	dev := compute.NewCPU(2)
	bad := potential.LennardJones(1, 1, 2.5, potential.NoShift)
	bad.Energy = "epsilon * (r % sigma)"

	cache := kernel.NewCache()
	ev := NewEvaluator(dev, cache, launches["atomic"])
	err := ev.Prepare([]potential.Spec{bad})

	assert.ErrorIs(t, err, dynamo.ErrKernelCompilation)
	assert.Equal(t, 0, cache.Len())
}

func TestConfTemperatureAndPressure(t *testing.T) {
	r := Result{Virial: 3, Laplacian: 4, ForceSq: 2}
	assert.InDelta(t, 0.5, r.ConfTemperature(), 1e-12)
	assert.Zero(t, Result{}.ConfTemperature())

	st := particles.New(10, particles.Cubic(3, 2))
	assert.InDelta(t, (2*6.0/3+3)/8, Pressure(6, r, st), 1e-12)
}

func BenchmarkEvaluate(b *testing.B) {
	st, err := particles.Lattice(particles.FaceCenter, 3, 4000, 0.8)
	if err != nil {
		b.Fatal(err)
	}
	dev := compute.NewCPU(4)
	ix, err := spatial.Build(dev, st, 2.5, 0.3, spatial.HalfSkin)
	if err != nil {
		b.Fatal(err)
	}
	specs := []potential.Spec{potential.LennardJones(1, 1, 2.5, potential.ShiftPotential)}
	for name, launch := range launches {
		b.Run(name, func(b *testing.B) {
			ev := NewEvaluator(dev, kernel.NewCache(), launch)
			for i := 0; i < b.N; i++ {
				if _, err := ev.Evaluate(context.Background(), st, ix, specs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
