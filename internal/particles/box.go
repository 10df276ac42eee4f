package particles

import (
	"math"

	"github.com/san-kum/mdsim/internal/dynamo"
)

// Box is an orthorhombic simulation cell anchored at the origin.
//
// Every change of geometry bumps Version so caches derived from the box
// (cell grids, neighbor lists) can detect that they are stale.
type Box struct {
	lengths  []float64
	periodic []bool
	version  uint64
}

// NewBox creates a box with the given edge lengths. Axes are periodic
// unless periodic says otherwise.
func NewBox(lengths []float64, periodic []bool) (*Box, error) {
	if len(lengths) < 1 || len(lengths) > 3 {
		return nil, dynamo.Configf("box", "dimension must be 1, 2 or 3, got %d", len(lengths))
	}
	if periodic != nil && len(periodic) != len(lengths) {
		return nil, dynamo.Configf("box", "periodic flags (%d) do not match dimension (%d)", len(periodic), len(lengths))
	}
	b := &Box{
		lengths:  append([]float64(nil), lengths...),
		periodic: make([]bool, len(lengths)),
		version:  1,
	}
	for k, l := range lengths {
		if !(l > 0) || math.IsInf(l, 0) {
			return nil, dynamo.Configf("box", "length along axis %d must be positive and finite, got %g", k, l)
		}
		b.periodic[k] = periodic == nil || periodic[k]
	}
	return b, nil
}

// Cubic returns a fully periodic box of side l in d dimensions.
func Cubic(d int, l float64) *Box {
	lengths := make([]float64, d)
	for k := range lengths {
		lengths[k] = l
	}
	b, err := NewBox(lengths, nil)
	if err != nil {
		panic(err)
	}
	return b
}

func (b *Box) Dim() int                 { return len(b.lengths) }
func (b *Box) Length(k int) float64     { return b.lengths[k] }
func (b *Box) Lengths() []float64       { return append([]float64(nil), b.lengths...) }
func (b *Box) Periodic(k int) bool      { return b.periodic[k] }
func (b *Box) PeriodicFlags() []bool    { return append([]bool(nil), b.periodic...) }
func (b *Box) Version() uint64          { return b.version }
func (b *Box) HalfLength(k int) float64 { return 0.5 * b.lengths[k] }

func (b *Box) Volume() float64 {
	v := 1.0
	for _, l := range b.lengths {
		v *= l
	}
	return v
}

// MinPeriodicLength is the shortest periodic edge, or +Inf when no axis is periodic.
func (b *Box) MinPeriodicLength() float64 {
	m := math.Inf(1)
	for k, l := range b.lengths {
		if b.periodic[k] && l < m {
			m = l
		}
	}
	return m
}

// Scale multiplies every periodic edge by mu.
func (b *Box) Scale(mu float64) {
	for k := range b.lengths {
		if b.periodic[k] {
			b.lengths[k] *= mu
		}
	}
	b.version++
}

func (b *Box) Resize(lengths []float64) error {
	if len(lengths) != len(b.lengths) {
		return dynamo.Configf("box", "resize to %d axes, box has %d", len(lengths), len(b.lengths))
	}
	for k, l := range lengths {
		if !(l > 0) {
			return dynamo.Configf("box", "length along axis %d must be positive, got %g", k, l)
		}
	}
	copy(b.lengths, lengths)
	b.version++
	return nil
}

// Displacement writes the minimum-image vector ri - rj into out and
// returns its squared length.
func (b *Box) Displacement(ri, rj, out []float64) float64 {
	r2 := 0.0
	for k, l := range b.lengths {
		d := ri[k] - rj[k]
		if b.periodic[k] {
			d -= l * math.Round(d/l)
		}
		out[k] = d
		r2 += d * d
	}
	return r2
}

// Wrap folds x back into [0, L) on periodic axes and records the number
// of crossed images in image.
func (b *Box) Wrap(x []float64, image []int32) {
	for k, l := range b.lengths {
		if !b.periodic[k] {
			continue
		}
		if x[k] >= 0 && x[k] < l {
			continue
		}
		n := math.Floor(x[k] / l)
		x[k] -= n * l
		if x[k] >= l {
			x[k] -= l
			n++
		}
		if x[k] < 0 {
			x[k] = 0
		}
		image[k] += int32(n)
	}
}

func (b *Box) Clone() *Box {
	return &Box{
		lengths:  append([]float64(nil), b.lengths...),
		periodic: append([]bool(nil), b.periodic...),
		version:  b.version,
	}
}
