package spatial

import (
	"math"

	"github.com/san-kum/mdsim/internal/particles"
)

type cellGrid struct {
	dims     []int
	width    []float64
	periodic []bool
	strides  []int
	total    int
	offsets  [][]int
}

// newCellGrid returns nil when the box is too small for cells to help:
// a periodic axis with fewer than three cells would visit the same
// neighbor cell twice.
func newCellGrid(box *particles.Box, radius float64) *cellGrid {
	d := box.Dim()
	g := &cellGrid{
		dims:     make([]int, d),
		width:    make([]float64, d),
		periodic: box.PeriodicFlags(),
		strides:  make([]int, d),
		total:    1,
	}
	for k := 0; k < d; k++ {
		nc := int(math.Floor(box.Length(k) / radius))
		if nc < 1 {
			nc = 1
		}
		if g.periodic[k] && nc < 3 {
			return nil
		}
		g.dims[k] = nc
		g.width[k] = box.Length(k) / float64(nc)
		g.strides[k] = g.total
		g.total *= nc
	}

	offs := [][]int{{}}
	for k := 0; k < d; k++ {
		next := make([][]int, 0, len(offs)*3)
		for _, o := range offs {
			for _, step := range []int{-1, 0, 1} {
				next = append(next, append(append([]int(nil), o...), step))
			}
		}
		offs = next
	}
	g.offsets = offs
	return g
}

func (g *cellGrid) coords(x []float64, out []int) {
	for k := range g.dims {
		c := int(math.Floor(x[k] / g.width[k]))
		if c < 0 {
			c = 0
		}
		if c >= g.dims[k] {
			c = g.dims[k] - 1
		}
		out[k] = c
	}
}

func (g *cellGrid) linear(c []int) int {
	idx := 0
	for k, v := range c {
		idx += v * g.strides[k]
	}
	return idx
}

// neighbor returns the linear index of the cell at c+off, or -1 when it
// falls outside an open axis.
func (g *cellGrid) neighbor(c, off []int) int {
	idx := 0
	for k, v := range c {
		n := v + off[k]
		if n < 0 || n >= g.dims[k] {
			if !g.periodic[k] {
				return -1
			}
			n = (n%g.dims[k] + g.dims[k]) % g.dims[k]
		}
		idx += n * g.strides[k]
	}
	return idx
}
