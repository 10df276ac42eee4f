package optim

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/potential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liquid(t *testing.T) (*particles.State, []potential.Spec) {
	t.Helper()
	st, err := particles.Lattice(particles.FaceCenter, 3, 256, 0.8442)
	require.NoError(t, err)
	particles.RandomizeVelocities(st, 1, rand.New(rand.NewPCG(1, 2)))
	return st, []potential.Spec{potential.LennardJones(1, 1, 2.5, potential.ShiftPotential)}
}

func TestSearchFindsFastestConsistentLaunch(t *testing.T) {
	st, specs := liquid(t)
	dev := compute.NewCPU(2)

	g := NewGridSearch([]int{16, 64}, []int{1, 4}, []compute.Reduction{compute.Atomic, compute.BlockReduce})
	g.Repeats = 2
	res, err := g.Search(context.Background(), dev, st, specs, 0.3)
	require.NoError(t, err)

	require.Len(t, res.Trials, 8)
	best, ok := res.BestTrial()
	require.True(t, ok)
	for _, trial := range res.Trials {
		require.NoError(t, trial.Err)
		assert.GreaterOrEqual(t, trial.Elapsed, best.Elapsed)
	}
	assert.Less(t, res.Spread, 1e-9)
	assert.Equal(t, make([]float64, len(st.Forces)), st.Forces, "the input state is not written to")
}

func TestSearchRecordsInvalidLaunches(t *testing.T) {
	st, specs := liquid(t)

	g := NewGridSearch([]int{0, 32}, []int{1}, []compute.Reduction{compute.Atomic})
	res, err := g.Search(context.Background(), compute.NewCPU(1), st, specs, 0.3)
	require.NoError(t, err)

	require.Len(t, res.Trials, 2)
	assert.Error(t, res.Trials[0].Err)
	assert.Equal(t, 1, res.Best)
}

func TestSearchFailsWithoutValidLaunch(t *testing.T) {
	st, specs := liquid(t)

	g := NewGridSearch([]int{0}, []int{1}, []compute.Reduction{compute.Atomic})
	res, err := g.Search(context.Background(), compute.NewCPU(1), st, specs, 0.3)
	assert.Error(t, err)
	_, ok := res.BestTrial()
	assert.False(t, ok)
}

func TestSearchStopsOnCancel(t *testing.T) {
	st, specs := liquid(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DefaultGrid().Search(ctx, compute.NewCPU(1), st, specs, 0.3)
	assert.ErrorIs(t, err, context.Canceled)
}
