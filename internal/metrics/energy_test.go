package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnergyDrift(t *testing.T) {
	m := NewEnergyDrift()
	m.Observe(dynamo.Summary{Kinetic: 1, Potential: -3})
	m.Observe(dynamo.Summary{Kinetic: 1.2, Potential: -3})
	m.Observe(dynamo.Summary{Kinetic: 1.05, Potential: -3})

	assert.InDelta(t, 0.1, m.Value(), 1e-12)
	assert.InDelta(t, 0.025, m.Final(), 1e-12)

	m.Reset()
	assert.Zero(t, m.Value())
	m.Observe(dynamo.Summary{Kinetic: 2})
	assert.Zero(t, m.Value())
}

func TestRebuildRate(t *testing.T) {
	m := NewRebuildRate()
	assert.Zero(t, m.Value())
	m.Observe(dynamo.Summary{Step: 100, Rebuilds: 4})
	m.Observe(dynamo.Summary{Step: 200, Rebuilds: 9})
	m.Observe(dynamo.Summary{Step: 300, Rebuilds: 14})
	assert.InDelta(t, 0.05, m.Value(), 1e-12)
}

func TestSeries(t *testing.T) {
	s, err := NewSeries("temperature")
	require.NoError(t, err)
	for _, v := range []float64{1, 2, 3, 4} {
		s.Observe(dynamo.Summary{Temperature: v})
	}
	assert.Equal(t, "mean_temperature", s.Name())
	assert.InDelta(t, 2.5, s.Value(), 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3), s.StdDev(), 1e-12)

	s.Reset()
	assert.Zero(t, s.Value())
	assert.Empty(t, s.Values())
}

func TestLookup(t *testing.T) {
	q, err := Lookup("Total")
	require.NoError(t, err)
	assert.Equal(t, -1.0, q(dynamo.Summary{Kinetic: 1, Potential: -2}))

	_, err = Lookup("entropy")
	assert.ErrorContains(t, err, "unknown quantity")
	assert.Contains(t, QuantityNames(), "conf_temperature")
}
