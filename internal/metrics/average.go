package metrics

import (
	"fmt"
	"slices"
	"strings"

	"github.com/san-kum/mdsim/internal/dynamo"
	"gonum.org/v1/gonum/stat"
)

// Quantity extracts one scalar from a summary.
type Quantity func(s dynamo.Summary) float64

var quantities = map[string]Quantity{
	"kinetic":          func(s dynamo.Summary) float64 { return s.Kinetic },
	"potential":        func(s dynamo.Summary) float64 { return s.Potential },
	"total":            dynamo.Summary.Total,
	"temperature":      func(s dynamo.Summary) float64 { return s.Temperature },
	"conf_temperature": func(s dynamo.Summary) float64 { return s.ConfTemperature },
	"pressure":         func(s dynamo.Summary) float64 { return s.Pressure },
	"volume":           func(s dynamo.Summary) float64 { return s.Volume },
	"virial":           func(s dynamo.Summary) float64 { return s.Virial },
	"laplacian":        func(s dynamo.Summary) float64 { return s.Laplacian },
	"force_sq":         func(s dynamo.Summary) float64 { return s.ForceSq },
	"momentum":         func(s dynamo.Summary) float64 { return s.Momentum },
	"momentum_x":       func(s dynamo.Summary) float64 { return s.MomentumX },
	"momentum_y":       func(s dynamo.Summary) float64 { return s.MomentumY },
	"momentum_z":       func(s dynamo.Summary) float64 { return s.MomentumZ },
	"stress_xy":        func(s dynamo.Summary) float64 { return s.StressXY },
}

// Lookup resolves a quantity by its summary field name.
func Lookup(name string) (Quantity, error) {
	q, ok := quantities[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("metrics: unknown quantity %q (have %s)", name, strings.Join(QuantityNames(), ", "))
	}
	return q, nil
}

func QuantityNames() []string {
	names := make([]string, 0, len(quantities))
	for name := range quantities {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Series records one quantity and reports its mean; StdDev and Values give
// access to the rest of the sample.
type Series struct {
	name   string
	of     Quantity
	values []float64
}

func NewSeries(name string) (*Series, error) {
	q, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return &Series{name: name, of: q}, nil
}

func (s *Series) Name() string               { return "mean_" + s.name }
func (s *Series) Observe(sum dynamo.Summary) { s.values = append(s.values, s.of(sum)) }
func (s *Series) Values() []float64          { return s.values }
func (s *Series) Reset()                     { s.values = s.values[:0] }

func (s *Series) Value() float64 {
	if len(s.values) == 0 {
		return 0
	}
	return stat.Mean(s.values, nil)
}

func (s *Series) StdDev() float64 {
	if len(s.values) < 2 {
		return 0
	}
	return stat.StdDev(s.values, nil)
}
