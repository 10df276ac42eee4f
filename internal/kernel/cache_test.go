package kernel

import (
	"errors"
	"sync"
	"testing"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/potential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var launch = compute.LaunchConfig{ParticlesPerBlock: 32, ThreadsPerParticle: 1, Reduction: compute.Atomic}

func TestGetOrCompileIsIdempotent(t *testing.T) {
	cache := NewCache()
	lj := potential.LennardJones(1, 1, 2.5, potential.ShiftPotential)

	k1, err := cache.GetOrCompile(lj, launch)
	require.NoError(t, err)
	k2, err := cache.GetOrCompile(lj, launch)
	require.NoError(t, err)

	assert.Same(t, k1, k2)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Compiles: 1}, cache.Stats())
}

func TestParameterChangeReusesKernel(t *testing.T) {
	cache := NewCache()
	lj := potential.LennardJones(1, 1, 2.5, potential.NoShift)

	k1, err := cache.GetOrCompile(lj, launch)
	require.NoError(t, err)

	lj.Coeffs[0][0].Values[1] = 2.0
	lj.Coeffs[0][0].Cutoff = 3.0
	k2, err := cache.GetOrCompile(lj, launch)
	require.NoError(t, err)

	assert.Same(t, k1, k2)
	assert.EqualValues(t, 1, cache.Stats().Compiles)
}

func TestStructuralChangeRecompiles(t *testing.T) {
	cache := NewCache()
	lj := potential.LennardJones(1, 1, 2.5, potential.NoShift)
	_, err := cache.GetOrCompile(lj, launch)
	require.NoError(t, err)

	shifted := potential.LennardJones(1, 1, 2.5, potential.ShiftForce)
	_, err = cache.GetOrCompile(shifted, launch)
	require.NoError(t, err)

	other := launch
	other.Reduction = compute.BlockReduce
	_, err = cache.GetOrCompile(lj, other)
	require.NoError(t, err)

	assert.Equal(t, 3, cache.Len())
}

func TestUnsupportedOperationLeavesCacheEmpty(t *testing.T) {
	tests := []struct {
		name   string
		energy string
	}{
		{"modulo", "epsilon * (r % sigma)"},
		{"unknown function", "epsilon * besselj(r)"},
		{"unknown symbol", "epsilon * q / r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewCache()
			p := potential.LennardJones(1, 1, 2.5, potential.NoShift)
			p.Energy = tt.energy

			k, err := cache.GetOrCompile(p, launch)

			assert.Nil(t, k)
			require.Error(t, err)
			assert.True(t, errors.Is(err, dynamo.ErrKernelCompilation))
			var kce *dynamo.KernelCompilationError
			require.ErrorAs(t, err, &kce)
			assert.Equal(t, "lj", kce.Spec)
			assert.Equal(t, 0, cache.Len())
			assert.True(t, IsCompilationError(err))

			// a second attempt fails again rather than hitting a cached failure
			_, err = cache.GetOrCompile(p, launch)
			assert.ErrorIs(t, err, dynamo.ErrKernelCompilation)
			assert.Equal(t, 0, cache.Len())
		})
	}
}

func TestInvalidLaunchConfig(t *testing.T) {
	cache := NewCache()
	_, err := cache.GetOrCompile(potential.LennardJones(1, 1, 2.5, potential.NoShift), compute.LaunchConfig{})
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
	assert.Equal(t, 0, cache.Len())
}

func TestConcurrentRequestsCompileOnce(t *testing.T) {
	cache := NewCache()
	yk := potential.Yukawa(1, 0.5, 3)

	var wg sync.WaitGroup
	kernels := make([]Kernel, 32)
	for i := range kernels {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			k, err := cache.GetOrCompile(yk, launch)
			if err == nil {
				kernels[idx] = k
			}
		}(i)
	}
	wg.Wait()

	for _, k := range kernels {
		require.NotNil(t, k)
		assert.Same(t, kernels[0], k)
	}
	assert.EqualValues(t, 1, cache.Stats().Compiles)
	assert.Equal(t, 1, cache.Len())
}

func TestPurge(t *testing.T) {
	cache := NewCache()
	_, err := cache.GetOrCompile(potential.SoftRepulsion(1, 1), launch)
	require.NoError(t, err)
	cache.Purge()
	assert.Equal(t, 0, cache.Len())
}
