package spatial

import (
	"math"
	"slices"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/particles"
)

const rowsPerBlock = 64

// Index is an immutable neighbor table. Row i lists every j != i whose
// minimum-image distance to i was at most cutoff+skin when the index was
// built, in ascending order.
type Index struct {
	n          int
	start      []int32
	half       []int32
	nbr        []int32
	cutoff     float64
	skin       float64
	policy     Policy
	boxVersion uint64
	brute      bool
	cells      []int
	ref        []float64
}

// CheckGeometry validates cutoff and skin against the box.
func CheckGeometry(box *particles.Box, cutoff, skin float64) error {
	if !(cutoff > 0) || math.IsInf(cutoff, 0) {
		return dynamo.Configf("cutoff", "must be positive and finite, got %g", cutoff)
	}
	if !(skin >= 0) || math.IsInf(skin, 0) {
		return dynamo.Configf("skin", "must be non-negative and finite, got %g", skin)
	}
	for k := 0; k < box.Dim(); k++ {
		if !box.Periodic(k) {
			continue
		}
		half := box.HalfLength(k)
		if cutoff >= half {
			return &dynamo.NeighborListInvariantViolation{
				Reason:   "cutoff must be smaller than half the box length along every periodic axis",
				Particle: -1,
			}
		}
		if cutoff+skin > half {
			return dynamo.Configf("skin", "cutoff+skin = %g exceeds half the box length %g along axis %d", cutoff+skin, half, k)
		}
	}
	return nil
}

// Build constructs an index from the current positions in three launches:
// binning, counting and filling.
func Build(dev compute.Device, st *particles.State, cutoff, skin float64, policy Policy) (*Index, error) {
	if err := CheckGeometry(st.Box, cutoff, skin); err != nil {
		return nil, err
	}

	n, d := st.N, st.D
	ix := &Index{
		n:          n,
		start:      make([]int32, n+1),
		half:       make([]int32, n),
		cutoff:     cutoff,
		skin:       skin,
		policy:     policy,
		boxVersion: st.Box.Version(),
		ref:        append([]float64(nil), st.Positions...),
	}
	if n == 0 {
		return ix, nil
	}

	radius := cutoff + skin
	r2max := radius * radius
	grid := newCellGrid(st.Box, radius)
	ix.brute = grid == nil

	var cellOf, cellStart, cellMembers []int32
	if !ix.brute {
		ix.cells = append([]int(nil), grid.dims...)
		cellOf = make([]int32, n)
		err := compute.ForEach(dev, n, rowsPerBlock, func(i int) error {
			c := make([]int, d)
			grid.coords(st.Pos(i), c)
			cellOf[i] = int32(grid.linear(c))
			return nil
		})
		if err != nil {
			return nil, err
		}
		cellStart, cellMembers = countingSort(cellOf, grid.total)
	}

	// visit calls fn for every candidate j of i within radius, in cell order.
	visit := func(i int, dr []float64, c []int, fn func(j int32)) {
		pi := st.Pos(i)
		if ix.brute {
			for j := 0; j < n; j++ {
				if j != i && st.Box.Displacement(pi, st.Pos(j), dr) <= r2max {
					fn(int32(j))
				}
			}
			return
		}
		grid.coords(pi, c)
		for _, off := range grid.offsets {
			cell := grid.neighbor(c, off)
			if cell < 0 {
				continue
			}
			for _, j := range cellMembers[cellStart[cell]:cellStart[cell+1]] {
				if int(j) != i && st.Box.Displacement(pi, st.Pos(int(j)), dr) <= r2max {
					fn(j)
				}
			}
		}
	}

	counts := make([]int32, n)
	err := compute.ForEach(dev, n, rowsPerBlock, func(i int) error {
		dr, c := make([]float64, d), make([]int, d)
		visit(i, dr, c, func(int32) { counts[i]++ })
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, c := range counts {
		ix.start[i+1] = ix.start[i] + c
	}
	ix.nbr = make([]int32, ix.start[n])

	err = compute.ForEach(dev, n, rowsPerBlock, func(i int) error {
		dr, c := make([]float64, d), make([]int, d)
		row := ix.nbr[ix.start[i]:ix.start[i]:ix.start[i+1]]
		visit(i, dr, c, func(j int32) { row = append(row, j) })
		if len(row) != int(counts[i]) {
			return &dynamo.NeighborListInvariantViolation{Reason: "fill pass disagrees with count pass", Particle: i}
		}
		slices.Sort(row)
		h, _ := slices.BinarySearch(row, int32(i))
		ix.half[i] = ix.start[i] + int32(h)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ix, nil
}

func countingSort(cellOf []int32, cells int) (start, members []int32) {
	start = make([]int32, cells+1)
	for _, c := range cellOf {
		start[c+1]++
	}
	for c := 0; c < cells; c++ {
		start[c+1] += start[c]
	}
	fill := append([]int32(nil), start[:cells]...)
	members = make([]int32, len(cellOf))
	for i, c := range cellOf {
		members[fill[c]] = int32(i)
		fill[c]++
	}
	return start, members
}

func (ix *Index) N() int                    { return ix.n }
func (ix *Index) Cutoff() float64           { return ix.cutoff }
func (ix *Index) Skin() float64             { return ix.skin }
func (ix *Index) Radius() float64           { return ix.cutoff + ix.skin }
func (ix *Index) BoxVersion() uint64        { return ix.boxVersion }
func (ix *Index) BruteForce() bool          { return ix.brute }
func (ix *Index) Cells() []int              { return ix.cells }
func (ix *Index) Entries() int              { return len(ix.nbr) }
func (ix *Index) NeighborsOf(i int) []int32 { return ix.nbr[ix.start[i]:ix.start[i+1]] }

// Half returns the neighbors j > i of particle i. Iterating Half over all
// particles visits every unordered pair exactly once.
func (ix *Index) Half(i int) []int32 { return ix.nbr[ix.half[i]:ix.start[i+1]] }

func (ix *Index) Pairs() int { return len(ix.nbr) / 2 }

// Verify checks that st is still covered by the index: same particle count,
// same box geometry, and displacements since the build within the policy
// bound.
func (ix *Index) Verify(st *particles.State) error {
	if st.N != ix.n {
		return &dynamo.NeighborListInvariantViolation{Reason: "particle count changed since build", Particle: -1}
	}
	if st.Box.Version() != ix.boxVersion {
		return &dynamo.NeighborListInvariantViolation{Reason: "box changed since build", Particle: -1}
	}
	if ix.skin == 0 || ix.n == 0 {
		return nil
	}

	dr := make([]float64, st.D)
	first, second, worst := 0.0, 0.0, -1
	for i := 0; i < ix.n; i++ {
		dist := math.Sqrt(st.Box.Displacement(st.Pos(i), ix.ref[i*st.D:(i+1)*st.D], dr))
		switch {
		case dist > first:
			first, second, worst = dist, first, i
		case dist > second:
			second = dist
		}
	}
	// rounding in the integrator may differ from the folded difference here
	const slack = 1e-9
	if ix.policy.Exceeded(first-slack*ix.skin, second, ix.skin) {
		return &dynamo.NeighborListInvariantViolation{Reason: "displacement since last build exceeds the skin bound", Particle: worst}
	}
	return nil
}
