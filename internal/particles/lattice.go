package particles

import (
	"math"

	"github.com/san-kum/mdsim/internal/dynamo"
)

type LatticeKind string

const (
	SimpleCubic LatticeKind = "sc"
	BodyCenter  LatticeKind = "bcc"
	FaceCenter  LatticeKind = "fcc"
)

func basis(kind LatticeKind, d int) ([][]float64, error) {
	switch kind {
	case SimpleCubic:
		return [][]float64{make([]float64, d)}, nil
	case BodyCenter:
		centre := make([]float64, d)
		for k := range centre {
			centre[k] = 0.5
		}
		return [][]float64{make([]float64, d), centre}, nil
	case FaceCenter:
		switch d {
		case 2:
			return [][]float64{{0, 0}, {0.5, 0.5}}, nil
		case 3:
			return [][]float64{{0, 0, 0}, {0.5, 0.5, 0}, {0.5, 0, 0.5}, {0, 0.5, 0.5}}, nil
		}
	}
	return nil, dynamo.Configf("lattice", "unsupported lattice %q in %d dimensions", kind, d)
}

// Lattice places n particles on a periodic lattice at number density rho.
// The box is cubic and holds the smallest number of unit cells that fits n
// sites; surplus sites stay empty.
func Lattice(kind LatticeKind, d, n int, rho float64) (*State, error) {
	if n <= 0 {
		return nil, dynamo.Configf("particles", "lattice needs at least one particle, got %d", n)
	}
	if !(rho > 0) || math.IsInf(rho, 0) {
		return nil, dynamo.Configf("density", "must be positive and finite, got %g", rho)
	}
	b, err := basis(kind, d)
	if err != nil {
		return nil, err
	}

	cells := int(math.Ceil(math.Pow(float64(n)/float64(len(b)), 1/float64(d)) - 1e-9))
	if cells < 1 {
		cells = 1
	}
	side := math.Pow(float64(n)/rho, 1/float64(d))
	a := side / float64(cells)

	lengths := make([]float64, d)
	for k := range lengths {
		lengths[k] = side
	}
	box, err := NewBox(lengths, nil)
	if err != nil {
		return nil, dynamo.Configf("density", "%d particles at density %g give an unusable box: %v", n, rho, err)
	}
	s := New(n, box)
	idx := make([]int, d)
	placed := 0
	for placed < n {
		for _, site := range b {
			if placed == n {
				break
			}
			p := s.Pos(placed)
			for k := 0; k < d; k++ {
				p[k] = (float64(idx[k]) + site[k]) * a
			}
			placed++
		}
		for k := 0; k < d; k++ {
			idx[k]++
			if idx[k] < cells {
				break
			}
			idx[k] = 0
		}
	}
	s.WrapAll()
	return s, nil
}

// AssignTypes labels particles in order: counts[t] particles get type t.
func AssignTypes(s *State, counts []int) error {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != s.N {
		return dynamo.Configf("types", "type counts sum to %d, state has %d particles", total, s.N)
	}
	i := 0
	for t, c := range counts {
		for j := 0; j < c; j++ {
			s.Types[i] = t
			i++
		}
	}
	return nil
}
