package particles

import (
	"math"
	"slices"

	"github.com/san-kum/mdsim/internal/dynamo"
)

// State is the host copy of every per-particle array.
//
// Arrays are flat with stride D: the k-th coordinate of particle i lives at
// index i*D+k. Positions are kept wrapped into the box on periodic axes;
// Images counts the box crossings so unwrapped trajectories can be recovered.
type State struct {
	N          int
	D          int
	Positions  []float64
	Velocities []float64
	Forces     []float64
	Masses     []float64
	Types      []int
	Images     []int32
	Box        *Box
	Step       int
	Time       float64
}

// New allocates a state of n unit-mass particles of type 0.
func New(n int, box *Box) *State {
	d := box.Dim()
	s := &State{
		N:          n,
		D:          d,
		Positions:  make([]float64, n*d),
		Velocities: make([]float64, n*d),
		Forces:     make([]float64, n*d),
		Masses:     make([]float64, n),
		Types:      make([]int, n),
		Images:     make([]int32, n*d),
		Box:        box,
	}
	for i := range s.Masses {
		s.Masses[i] = 1
	}
	return s
}

func (s *State) Pos(i int) []float64   { return s.Positions[i*s.D : (i+1)*s.D] }
func (s *State) Vel(i int) []float64   { return s.Velocities[i*s.D : (i+1)*s.D] }
func (s *State) Force(i int) []float64 { return s.Forces[i*s.D : (i+1)*s.D] }
func (s *State) Image(i int) []int32   { return s.Images[i*s.D : (i+1)*s.D] }

// Unwrapped writes the position of particle i without periodic folding.
func (s *State) Unwrapped(i int, out []float64) {
	for k := 0; k < s.D; k++ {
		out[k] = s.Positions[i*s.D+k] + float64(s.Images[i*s.D+k])*s.Box.Length(k)
	}
}

// NumTypes is one more than the largest particle type.
func (s *State) NumTypes() int {
	nt := 0
	for _, t := range s.Types {
		if t+1 > nt {
			nt = t + 1
		}
	}
	return nt
}

// WrapAll folds every position into the box.
func (s *State) WrapAll() {
	for i := 0; i < s.N; i++ {
		s.Box.Wrap(s.Pos(i), s.Image(i))
	}
}

func (s *State) Validate() error {
	if s.N < 0 {
		return dynamo.Configf("particles", "negative particle count %d", s.N)
	}
	if s.Box == nil {
		return dynamo.Configf("box", "missing")
	}
	if s.D != s.Box.Dim() {
		return dynamo.Configf("particles", "dimension %d does not match box dimension %d", s.D, s.Box.Dim())
	}
	nd := s.N * s.D
	if len(s.Positions) != nd || len(s.Velocities) != nd || len(s.Forces) != nd || len(s.Images) != nd {
		return dynamo.Configf("particles", "per-coordinate arrays must have length N*D = %d", nd)
	}
	if len(s.Masses) != s.N || len(s.Types) != s.N {
		return dynamo.Configf("particles", "per-particle arrays must have length N = %d", s.N)
	}
	for i, m := range s.Masses {
		if !(m > 0) || math.IsInf(m, 0) {
			return dynamo.Configf("masses", "particle %d has non-positive mass %g", i, m)
		}
	}
	for i, t := range s.Types {
		if t < 0 {
			return dynamo.Configf("types", "particle %d has negative type %d", i, t)
		}
	}
	if i, q, ok := s.FirstNonFinite(); ok {
		return dynamo.Configf("particles", "particle %d has non-finite %s", i, q)
	}
	return nil
}

// FirstNonFinite finds the first particle with a NaN or Inf position,
// velocity or force.
func (s *State) FirstNonFinite() (particle int, quantity string, found bool) {
	for i := 0; i < s.N; i++ {
		for k := 0; k < s.D; k++ {
			idx := i*s.D + k
			switch {
			case !finite(s.Positions[idx]):
				return i, "position", true
			case !finite(s.Velocities[idx]):
				return i, "velocity", true
			case !finite(s.Forces[idx]):
				return i, "force", true
			}
		}
	}
	return -1, "", false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (s *State) Clone() *State {
	c := &State{}
	c.CopyFrom(s)
	return c
}

// CopyFrom overwrites s with src, reusing the existing arrays when their
// sizes match.
func (s *State) CopyFrom(src *State) {
	s.N, s.D = src.N, src.D
	s.Positions = copyInto(s.Positions, src.Positions)
	s.Velocities = copyInto(s.Velocities, src.Velocities)
	s.Forces = copyInto(s.Forces, src.Forces)
	s.Masses = copyInto(s.Masses, src.Masses)
	s.Types = copyInto(s.Types, src.Types)
	s.Images = copyInto(s.Images, src.Images)
	if s.Box == nil || s.Box == src.Box {
		s.Box = src.Box.Clone()
	} else if !slices.Equal(s.Box.lengths, src.Box.lengths) || !slices.Equal(s.Box.periodic, src.Box.periodic) {
		s.Box.lengths = copyInto(s.Box.lengths, src.Box.lengths)
		s.Box.periodic = copyInto(s.Box.periodic, src.Box.periodic)
		s.Box.version = max(s.Box.version, src.Box.version) + 1
	}
	s.Step = src.Step
	s.Time = src.Time
}

func copyInto[T any](dst, src []T) []T {
	if cap(dst) < len(src) {
		dst = make([]T, len(src))
	}
	dst = dst[:len(src)]
	copy(dst, src)
	return dst
}
