package particles

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxDisplacementMinimumImage(t *testing.T) {
	box := Cubic(3, 10)
	out := make([]float64, 3)

	r2 := box.Displacement([]float64{0.5, 9.5, 5}, []float64{9.5, 0.5, 5}, out)

	assert.InDelta(t, 1.0, out[0], 1e-12)
	assert.InDelta(t, -1.0, out[1], 1e-12)
	assert.InDelta(t, 0.0, out[2], 1e-12)
	assert.InDelta(t, 2.0, r2, 1e-12)
}

func TestBoxDisplacementOpenAxis(t *testing.T) {
	box, err := NewBox([]float64{10, 10}, []bool{true, false})
	require.NoError(t, err)
	out := make([]float64, 2)

	box.Displacement([]float64{0.5, 9.5}, []float64{9.5, 0.5}, out)

	assert.InDelta(t, 1.0, out[0], 1e-12)
	assert.InDelta(t, 9.0, out[1], 1e-12)
}

func TestBoxWrapCountsImages(t *testing.T) {
	box := Cubic(2, 4)
	x := []float64{9.0, -0.5}
	img := []int32{0, 0}

	box.Wrap(x, img)

	assert.InDelta(t, 1.0, x[0], 1e-12)
	assert.InDelta(t, 3.5, x[1], 1e-12)
	assert.Equal(t, []int32{2, -1}, img)
}

func TestBoxScaleBumpsVersion(t *testing.T) {
	box := Cubic(3, 5)
	v := box.Version()

	box.Scale(1.1)

	assert.Greater(t, box.Version(), v)
	assert.InDelta(t, 5.5, box.Length(0), 1e-12)
	assert.InDelta(t, 5.5*5.5*5.5, box.Volume(), 1e-9)
}

func TestNewBoxRejectsBadLengths(t *testing.T) {
	tests := []struct {
		name    string
		lengths []float64
	}{
		{"empty", nil},
		{"four dimensions", []float64{1, 1, 1, 1}},
		{"zero", []float64{1, 0}},
		{"negative", []float64{-2}},
		{"nan", []float64{math.NaN(), 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBox(tt.lengths, nil)
			assert.True(t, errors.Is(err, dynamo.ErrConfiguration), "got %v", err)
		})
	}
}

func TestUnwrappedRecoversTrajectory(t *testing.T) {
	s := New(1, Cubic(1, 2))
	s.Positions[0] = 1.5
	s.Positions[0] += 3.0
	s.WrapAll()

	out := make([]float64, 1)
	s.Unwrapped(0, out)

	assert.InDelta(t, 0.5, s.Positions[0], 1e-12)
	assert.InDelta(t, 4.5, out[0], 1e-12)
}

func TestLatticeDensity(t *testing.T) {
	for _, kind := range []LatticeKind{SimpleCubic, BodyCenter, FaceCenter} {
		t.Run(string(kind), func(t *testing.T) {
			s, err := Lattice(kind, 3, 256, 0.8)
			require.NoError(t, err)

			assert.Equal(t, 256, s.N)
			assert.InDelta(t, 0.8, float64(s.N)/s.Box.Volume(), 1e-9)

			// no two sites coincide
			out := make([]float64, 3)
			minR2 := math.Inf(1)
			for i := 0; i < s.N; i++ {
				for j := i + 1; j < s.N; j++ {
					minR2 = math.Min(minR2, s.Box.Displacement(s.Pos(i), s.Pos(j), out))
				}
			}
			assert.Greater(t, minR2, 0.1)
		})
	}
}

func TestLatticeErrors(t *testing.T) {
	_, err := Lattice(FaceCenter, 1, 10, 1)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)

	_, err = Lattice(SimpleCubic, 3, 0, 1)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)

	_, err = Lattice(SimpleCubic, 3, 8, -1)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)

	_, err = Lattice(SimpleCubic, 3, 8, math.Inf(1))
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)

	// n/rho overflows to an infinite box side.
	_, err = Lattice(SimpleCubic, 1, 8, 1e-320)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
}

func TestRandomizeVelocities(t *testing.T) {
	s, err := Lattice(FaceCenter, 3, 500, 0.9)
	require.NoError(t, err)

	RandomizeVelocities(s, 1.5, rand.New(rand.NewPCG(1, 2)))

	temp := Temperature(KineticEnergy(s), DegreesOfFreedom(s))
	assert.InDelta(t, 1.5, temp, 1e-9)
	for _, p := range Momentum(s) {
		assert.InDelta(t, 0, p, 1e-9)
	}
}

func TestResetMomentumWithMixedMasses(t *testing.T) {
	s := New(3, Cubic(2, 10))
	s.Masses[1] = 3
	copy(s.Velocities, []float64{1, 0, 2, 1, -1, 4})

	ResetMomentum(s)

	for _, p := range Momentum(s) {
		assert.InDelta(t, 0, p, 1e-12)
	}
}

func TestFirstNonFinite(t *testing.T) {
	s := New(4, Cubic(3, 10))
	_, _, found := s.FirstNonFinite()
	assert.False(t, found)

	s.Velocities[2*3+1] = math.Inf(1)
	i, q, found := s.FirstNonFinite()
	assert.True(t, found)
	assert.Equal(t, 2, i)
	assert.Equal(t, "velocity", q)
	assert.ErrorIs(t, s.Validate(), dynamo.ErrConfiguration)
}

func TestCopyFromReusesBox(t *testing.T) {
	s, err := Lattice(SimpleCubic, 3, 27, 1)
	require.NoError(t, err)
	backup := s.Clone()

	box := s.Box
	s.Box.Scale(1.2)
	s.Positions[0] = 0.7
	v := box.Version()

	s.CopyFrom(backup)

	assert.Same(t, box, s.Box)
	assert.Greater(t, s.Box.Version(), v)
	assert.InDelta(t, backup.Box.Length(0), s.Box.Length(0), 1e-12)
	assert.Equal(t, backup.Positions, s.Positions)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, err := Lattice(BodyCenter, 2, 18, 0.5)
	require.NoError(t, err)
	RandomizeVelocities(s, 1, rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, AssignTypes(s, []int{10, 8}))
	s.Images[5] = -2
	s.Step = 40

	back, err := FromSnapshot(s.Snapshot())
	require.NoError(t, err)

	assert.Equal(t, s.Positions, back.Positions)
	assert.Equal(t, s.Velocities, back.Velocities)
	assert.Equal(t, s.Types, back.Types)
	assert.Equal(t, s.Images, back.Images)
	assert.Equal(t, 40, back.Step)
	assert.Equal(t, 2, back.NumTypes())
}

func TestRestoreKeepsBox(t *testing.T) {
	s, err := Lattice(SimpleCubic, 3, 27, 0.5)
	require.NoError(t, err)
	snap := s.Snapshot()

	box := s.Box
	box.Scale(1.05)
	v := box.Version()
	s.Positions[0] = 0.123

	require.NoError(t, s.Restore(snap))
	assert.Same(t, box, s.Box)
	assert.Greater(t, s.Box.Version(), v)
	assert.Equal(t, snap.Box.Lengths, s.Box.Lengths())
	assert.Equal(t, snap.Particles[0].Position[0], s.Positions[0])
}
