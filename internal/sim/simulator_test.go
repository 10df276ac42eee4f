package sim

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/integrators"
	"github.com/san-kum/mdsim/internal/kernel"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/potential"
	"gonum.org/v1/gonum/floats"
)

type countingMetric struct {
	n     int
	reset int
}

func (m *countingMetric) Name() string           { return "count" }
func (m *countingMetric) Observe(dynamo.Summary) { m.n++ }
func (m *countingMetric) Value() float64         { return float64(m.n) }

func (m *countingMetric) Reset() {
	m.n = 0
	m.reset++
}

func ljLiquid(n int, rho, temp float64, seed uint64) *particles.State {
	st, err := particles.Lattice(particles.FaceCenter, 3, n, rho)
	Expect(err).NotTo(HaveOccurred())
	particles.RandomizeVelocities(st, temp, rand.New(rand.NewPCG(seed, seed+1)))
	return st
}

func ljSpecs() []potential.Spec {
	return []potential.Spec{potential.LennardJones(1, 1, 2.5, potential.ShiftForce)}
}

var _ = Describe("Simulator", func() {
	var dev compute.Device

	BeforeEach(func() {
		var err error
		dev, err = compute.NewDevice("cpu", 4)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(dev.Cleanup)
	})

	opts := func() Options {
		return Options{Dt: 0.002, Skin: 0.3, Device: dev}
	}

	Describe("setup", func() {
		It("rejects a non-positive time step", func() {
			o := opts()
			o.Dt = 0
			_, err := New(ljLiquid(256, 0.8, 1, 1), ljSpecs(), integrators.NewVelocityVerlet(), o)
			Expect(errors.Is(err, dynamo.ErrConfiguration)).To(BeTrue())
		})

		It("rejects a negative skin", func() {
			o := opts()
			o.Skin = -0.1
			_, err := New(ljLiquid(256, 0.8, 1, 1), ljSpecs(), integrators.NewVelocityVerlet(), o)
			var cfg *dynamo.ConfigurationError
			Expect(errors.As(err, &cfg)).To(BeTrue())
			Expect(cfg.Field).To(Equal("skin"))
		})

		It("reports a cutoff beyond half the box as a neighbor list violation", func() {
			st := ljLiquid(32, 0.8, 1, 1)
			_, err := New(st, ljSpecs(), integrators.NewVelocityVerlet(), opts())
			Expect(errors.Is(err, dynamo.ErrNeighborListInvariant)).To(BeTrue())
		})

		It("rejects invalid thermostat parameters", func() {
			integ := &integrators.VelocityVerlet{Thermostat: &integrators.Berendsen{Target: integrators.Constant(1)}}
			_, err := New(ljLiquid(256, 0.8, 1, 1), ljSpecs(), integ, opts())
			Expect(errors.Is(err, dynamo.ErrConfiguration)).To(BeTrue())
		})

		It("fails before any step on an unsupported expression and caches nothing", func() {
			bad := &potential.Pair{
				Label:  "mod",
				Energy: "epsilon * (r % sigma)",
				Params: []string{"sigma", "epsilon"},
				Coeffs: potential.UniformCoeffs(1, []float64{1, 1}, 2.5),
			}
			o := opts()
			o.Cache = kernel.NewCache()
			st := ljLiquid(256, 0.8, 1, 1)
			_, err := New(st, []potential.Spec{bad}, integrators.NewVelocityVerlet(), o)

			var kerr *dynamo.KernelCompilationError
			Expect(errors.As(err, &kerr)).To(BeTrue())
			Expect(o.Cache.Len()).To(Equal(0))
			Expect(st.Step).To(Equal(0))
		})

		It("evaluates the initial forces", func() {
			st := ljLiquid(256, 0.8, 1, 1)
			s, err := New(st, ljSpecs(), integrators.NewVelocityVerlet(), opts())
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Summary().Potential).To(BeNumerically("<", 0))
			Expect(floats.Norm(st.Forces, 2)).To(BeNumerically(">", 0))
			Expect(s.Rebuilds()).To(Equal(1))
		})
	})

	Describe("Run", func() {
		It("yields one summary per report interval", func() {
			s, err := New(ljLiquid(256, 0.8, 1, 2), ljSpecs(), integrators.NewVelocityVerlet(), opts())
			Expect(err).NotTo(HaveOccurred())

			summaries, err := Collect(s.Run(context.Background(), 50, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(summaries).To(HaveLen(5))
			for n, sum := range summaries {
				Expect(sum.Step).To(Equal(10 * (n + 1)))
				Expect(sum.Time).To(BeNumerically("~", 0.002*float64(sum.Step), 1e-12))
				Expect(sum.Volume).To(BeNumerically("~", 256/0.8, 1e-9))
			}
		})

		It("is lazy and stops stepping when the consumer stops", func() {
			st := ljLiquid(256, 0.8, 1, 2)
			s, err := New(st, ljSpecs(), integrators.NewVelocityVerlet(), opts())
			Expect(err).NotTo(HaveOccurred())

			seq := s.Run(context.Background(), 100, 5)
			Expect(st.Step).To(Equal(0))
			for sum, err := range seq {
				Expect(err).NotTo(HaveOccurred())
				if sum.Step == 15 {
					break
				}
			}
			Expect(st.Step).To(Equal(15))
		})

		It("conserves energy without a thermostat", func() {
			s, err := New(ljLiquid(256, 0.8, 1, 3), ljSpecs(), integrators.NewVelocityVerlet(), opts())
			Expect(err).NotTo(HaveOccurred())
			e0 := s.Summary().Total()

			summaries, err := Collect(s.Run(context.Background(), 300, 10))
			Expect(err).NotTo(HaveOccurred())
			for _, sum := range summaries {
				Expect(math.Abs(sum.Total()-e0) / math.Abs(e0)).To(BeNumerically("<", 1e-3))
			}
			Expect(s.Rebuilds()).To(BeNumerically(">", 1))
		})

		It("rolls back and stops on numeric divergence", func() {
			st := particles.New(2, particles.Cubic(3, 10))
			copy(st.Pos(0), []float64{4, 5, 5})
			copy(st.Pos(1), []float64{6, 5, 5})
			collapse := &potential.Pair{
				Label:  "collapse",
				Energy: "k*sqrt(r - 1)",
				Params: []string{"k"},
				Coeffs: potential.UniformCoeffs(1, []float64{5}, 3),
			}
			o := opts()
			o.Dt = 0.01
			s, err := New(st, []potential.Spec{collapse}, integrators.NewVelocityVerlet(), o)
			Expect(err).NotTo(HaveOccurred())

			var last dynamo.Summary
			var runErr error
			for sum, err := range s.Run(context.Background(), 10000, 1) {
				if err != nil {
					runErr = err
					break
				}
				last = sum
			}

			var div *dynamo.NumericDivergenceError
			Expect(errors.As(runErr, &div)).To(BeTrue())
			Expect(div.Step).To(Equal(last.Step + 1))
			Expect(div.Particle).To(BeNumerically(">=", 0))

			_, _, bad := st.FirstNonFinite()
			Expect(bad).To(BeFalse())
			Expect(st.Step).To(Equal(last.Step))
			valid := s.LastValid()
			Expect(valid.Positions).To(Equal(st.Positions))
		})

		It("restores the thermostat variables on rollback", func() {
			st := particles.New(2, particles.Cubic(3, 10))
			copy(st.Pos(0), []float64{4, 5, 5})
			copy(st.Pos(1), []float64{6, 5, 5})
			collapse := &potential.Pair{
				Label:  "collapse",
				Energy: "k*sqrt(r - 1)",
				Params: []string{"k"},
				Coeffs: potential.UniformCoeffs(1, []float64{5}, 3),
			}
			nh := &integrators.NoseHoover{Target: integrators.Constant(1), Tau: 0.5}
			o := opts()
			o.Dt = 0.01
			s, err := New(st, []potential.Spec{collapse}, &integrators.VelocityVerlet{Thermostat: nh}, o)
			Expect(err).NotTo(HaveOccurred())

			var friction float64
			var runErr error
			for _, err := range s.Run(context.Background(), 10000, 1) {
				if err != nil {
					runErr = err
					break
				}
				friction = nh.Friction()
			}

			Expect(errors.Is(runErr, dynamo.ErrNumericDivergence)).To(BeTrue())
			Expect(friction).NotTo(BeZero())
			Expect(nh.Friction()).To(Equal(friction))
		})

		It("reports momentum components and shear stress", func() {
			st := ljLiquid(256, 0.8, 1, 2)
			for i := 0; i < st.N; i++ {
				copy(st.Vel(i), []float64{0.5, -0.25, 0})
			}
			s, err := New(st, ljSpecs(), integrators.NewVelocityVerlet(), opts())
			Expect(err).NotTo(HaveOccurred())

			sum := s.Summary()
			Expect(sum.MomentumX).To(BeNumerically("~", 128, 1e-9))
			Expect(sum.MomentumY).To(BeNumerically("~", -64, 1e-9))
			Expect(sum.MomentumZ).To(BeZero())
			Expect(sum.Momentum).To(BeNumerically("~", math.Hypot(128, 64), 1e-9))
			// the lattice carries no shear virial, only the flow does
			Expect(sum.StressXY).To(BeNumerically("~", 32/st.Box.Volume(), 1e-9))
		})

		It("honours cancellation between steps", func() {
			st := ljLiquid(256, 0.8, 1, 4)
			s, err := New(st, ljSpecs(), integrators.NewVelocityVerlet(), opts())
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			var runErr error
			for sum, err := range s.Run(ctx, 100, 1) {
				if err != nil {
					runErr = err
					break
				}
				if sum.Step == 3 {
					cancel()
				}
			}
			Expect(errors.Is(runErr, dynamo.ErrContextCanceled)).To(BeTrue())
			Expect(st.Step).To(Equal(3))
		})

		It("rejects a zero report interval", func() {
			s, err := New(ljLiquid(256, 0.8, 1, 4), ljSpecs(), integrators.NewVelocityVerlet(), opts())
			Expect(err).NotTo(HaveOccurred())
			_, err = Collect(s.Run(context.Background(), 10, 0))
			Expect(errors.Is(err, dynamo.ErrConfiguration)).To(BeTrue())
		})

		It("keeps the index valid while the barostat resizes the box", func() {
			st := ljLiquid(256, 0.8, 1.5, 5)
			v0 := st.Box.Volume()
			integ := &integrators.VelocityVerlet{
				Thermostat: &integrators.Berendsen{Target: integrators.Constant(1.5), Tau: 0.1},
				Barostat:   &integrators.BerendsenBarostat{Target: integrators.Constant(0.5), Tau: 0.5, Compressibility: 0.5, Every: 5},
			}
			s, err := New(st, ljSpecs(), integ, opts())
			Expect(err).NotTo(HaveOccurred())

			summaries, err := Collect(s.Run(context.Background(), 200, 20))
			Expect(err).NotTo(HaveOccurred())
			Expect(summaries).To(HaveLen(10))
			Expect(st.Box.Volume()).NotTo(BeNumerically("~", v0, 1e-9))
			Expect(summaries[len(summaries)-1].Volume).To(BeNumerically("~", st.Box.Volume(), 1e-9))
		})
	})

	Describe("actions and observers", func() {
		It("resets momentum and saves snapshots on schedule", func() {
			st := ljLiquid(256, 0.8, 1, 6)
			for i := 0; i < st.N; i++ {
				st.Vel(i)[0] += 0.5
			}
			var saved []int
			o := opts()
			o.Actions = []Action{
				MomentumReset{Every: 10},
				SnapshotSaver{Every: 25, Sink: SnapshotSinkFunc(func(snap particles.Snapshot) error {
					saved = append(saved, snap.Step)
					Expect(snap.Particles).To(HaveLen(256))
					return nil
				})},
			}
			s, err := New(st, ljSpecs(), integrators.NewVelocityVerlet(), o)
			Expect(err).NotTo(HaveOccurred())

			summaries, err := Collect(s.Run(context.Background(), 50, 10))
			Expect(err).NotTo(HaveOccurred())
			for _, sum := range summaries {
				Expect(sum.Momentum).To(BeNumerically("<", 1e-9))
			}
			Expect(saved).To(Equal([]int{25, 50}))
		})

		It("reports a failing action", func() {
			o := opts()
			o.Actions = []Action{SnapshotSaver{Every: 1, Sink: SnapshotSinkFunc(func(particles.Snapshot) error {
				return errors.New("disk full")
			})}}
			s, err := New(ljLiquid(256, 0.8, 1, 6), ljSpecs(), integrators.NewVelocityVerlet(), o)
			Expect(err).NotTo(HaveOccurred())
			_, err = Collect(s.Run(context.Background(), 5, 1))
			Expect(err).To(MatchError(ContainSubstring("disk full")))
		})

		It("feeds observers and metrics every report", func() {
			m := &countingMetric{}
			var steps []int
			o := opts()
			o.Metrics = []dynamo.Metric{m}
			o.Observers = []dynamo.Observer{dynamo.ObserverFunc(func(s dynamo.Summary) { steps = append(steps, s.Step) })}
			s, err := New(ljLiquid(256, 0.8, 1, 7), ljSpecs(), integrators.NewVelocityVerlet(), o)
			Expect(err).NotTo(HaveOccurred())

			_, err = Collect(s.Run(context.Background(), 12, 4))
			Expect(err).NotTo(HaveOccurred())
			Expect(steps).To(Equal([]int{4, 8, 12}))
			Expect(m.Value()).To(Equal(3.0))
			Expect(m.reset).To(Equal(1))
		})
	})

	Describe("Ensemble", func() {
		It("runs independent replicas with derived seeds", func() {
			factory := func(replica int, seed uint64) (*Simulator, error) {
				st := ljLiquid(256, 0.8, 1, 8)
				integ := &integrators.VelocityVerlet{Thermostat: &integrators.Langevin{Target: integrators.Constant(1), Gamma: 1, Seed: seed}}
				return New(st, ljSpecs(), integ, opts())
			}
			e := NewEnsemble(factory, 3, 100)
			e.SetLimit(2)

			results, err := e.Run(context.Background(), 20, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			for _, r := range results {
				Expect(r).To(HaveLen(2))
			}
			Expect(results[0][1].Kinetic).NotTo(Equal(results[1][1].Kinetic))
		})

		It("returns the first replica failure", func() {
			factory := func(replica int, seed uint64) (*Simulator, error) {
				if replica == 1 {
					return nil, dynamo.Configf("replica", "broken")
				}
				return New(ljLiquid(256, 0.8, 1, seed), ljSpecs(), integrators.NewVelocityVerlet(), opts())
			}
			_, err := NewEnsemble(factory, 3, 0).Run(context.Background(), 5, 5)
			Expect(errors.Is(err, dynamo.ErrConfiguration)).To(BeTrue())
		})
	})
})
