package kernel

import (
	"fmt"
	"math"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/potential"
	"github.com/san-kum/mdsim/internal/spatial"
)

// Scalar slots follow the N*D force slots in the reduction buffer.
const (
	SlotEnergy = iota
	SlotVirial
	SlotLaplacian
	// SlotVirialXY is the xy component of the pair virial, zero below two
	// dimensions.
	SlotVirialXY
	NumScalars
)

// Target is everything a launch reads and writes.
type Target struct {
	Device compute.Device
	State  *particles.State
	Index  *spatial.Index
	Sink   compute.Reducer
}

// BufferLen is the reducer size needed for st.
func BufferLen(st *particles.State) int { return st.N*st.D + NumScalars }

type Kernel interface {
	Kind() potential.Kind
	Identity() string
	Launch() compute.LaunchConfig
	// Run adds the contribution of spec to t.Sink. spec must have the
	// identity the kernel was compiled for.
	Run(t *Target, spec potential.Spec) error
}

type compiled struct {
	kind     potential.Kind
	identity string
	launch   compute.LaunchConfig
	energy   potential.Func
	first    []potential.Func
	second   []potential.Func
	scratch  *pools
}

func (c *compiled) Kind() potential.Kind         { return c.kind }
func (c *compiled) Identity() string             { return c.identity }
func (c *compiled) Launch() compute.LaunchConfig { return c.launch }

func compile(lw *potential.Lowered, launch compute.LaunchConfig) (*compiled, error) {
	c := &compiled{
		kind:     lw.Kind,
		identity: lw.Canonical,
		launch:   launch,
		scratch:  &pools{slots: lw.NumSlots},
	}
	var err error
	if c.energy, err = potential.Compile(lw.Energy, lw.Slots); err != nil {
		return nil, err
	}
	for k := range lw.First {
		f1, err := potential.Compile(lw.First[k], lw.Slots)
		if err != nil {
			return nil, err
		}
		f2, err := potential.Compile(lw.Second[k], lw.Slots)
		if err != nil {
			return nil, err
		}
		c.first = append(c.first, f1)
		c.second = append(c.second, f2)
	}
	return c, nil
}

func (c *compiled) Run(t *Target, spec potential.Spec) error {
	if spec.Kind() != c.kind {
		return fmt.Errorf("kernel: %s kernel launched with %s interaction %q", c.kind, spec.Kind(), spec.Name())
	}
	switch s := spec.(type) {
	case *potential.Pair:
		return c.runPair(t, s)
	case *potential.Bond:
		return c.runBond(t, s)
	case *potential.Field:
		return c.runField(t, s)
	}
	return fmt.Errorf("kernel: unknown interaction type %T", spec)
}

// runPair launches one lane group per particle over its half neighbor list.
// Each lane keeps the force on i in registers, scatters the reaction onto j
// and flushes once at the end.
func (c *compiled) runPair(t *Target, p *potential.Pair) error {
	st, ix := t.State, t.Index
	if ix == nil {
		return fmt.Errorf("kernel: pair interaction %q launched without a neighbor index", p.Label)
	}
	d := st.D
	base := st.N * d
	nt := len(p.Coeffs)
	stride := len(p.Params) + 1

	table := make([]float64, nt*nt*stride)
	cut2 := make([]float64, nt*nt)
	for a := 0; a < nt; a++ {
		for b := 0; b < nt; b++ {
			cf := p.Coeffs[a][b]
			row := table[(a*nt+b)*stride : (a*nt+b+1)*stride]
			copy(row, cf.Values)
			row[stride-1] = cf.Cutoff
			cut2[a*nt+b] = cf.Cutoff * cf.Cutoff
		}
	}
	excl := potential.NewExclusionSet(p.Exclude)
	pool := c.scratch.forDim(d)
	tp := c.launch.ThreadsPerParticle
	du, d2u := c.first[0], c.second[0]
	dm1 := float64(d - 1)

	return c.launch.Each(t.Device, st.N, func(block, i, sub int) error {
		sc := pool.Get()
		defer pool.Put(sc)

		pi := st.Pos(i)
		ti := st.Types[i]
		row := ix.Half(i)
		var u, w, lap, wxy float64
		for n := sub; n < len(row); n += tp {
			j := row[n]
			pr := ti*nt + st.Types[j]
			r2 := st.Box.Displacement(pi, st.Pos(int(j)), sc.dr)
			if r2 > cut2[pr] || excl.Has(int32(i), j) {
				continue
			}
			r := math.Sqrt(r2)
			sc.slots[0] = r
			copy(sc.slots[1:], table[pr*stride:(pr+1)*stride])

			s := -du(sc.slots) / r
			for k, x := range sc.dr {
				f := s * x
				sc.acc[k] += f
				t.Sink.Add(block, int(j)*d+k, -f)
			}
			u += c.energy(sc.slots)
			w += s * r2
			lap += 2 * (d2u(sc.slots) - dm1*s)
			if d > 1 {
				wxy += s * sc.dr[0] * sc.dr[1]
			}
		}
		for k, f := range sc.acc {
			t.Sink.Add(block, i*d+k, f)
		}
		t.Sink.Add(block, base+SlotEnergy, u)
		t.Sink.Add(block, base+SlotVirial, w)
		t.Sink.Add(block, base+SlotLaplacian, lap)
		t.Sink.Add(block, base+SlotVirialXY, wxy)
		return nil
	})
}

func (c *compiled) runBond(t *Target, b *potential.Bond) error {
	st := t.State
	d := st.D
	base := st.N * d
	pool := c.scratch.forDim(d)
	launch := c.launch
	launch.ThreadsPerParticle = 1
	du, d2u := c.first[0], c.second[0]
	dm1 := float64(d - 1)

	return launch.Each(t.Device, len(b.Pairs), func(block, item, _ int) error {
		sc := pool.Get()
		defer pool.Put(sc)

		i, j := b.Pairs[item][0], b.Pairs[item][1]
		typ := 0
		if b.Types != nil {
			typ = b.Types[item]
		}
		r2 := st.Box.Displacement(st.Pos(i), st.Pos(j), sc.dr)
		r := math.Sqrt(r2)
		sc.slots[0] = r
		copy(sc.slots[1:], b.Coeffs[typ])

		s := -du(sc.slots) / r
		for k, x := range sc.dr {
			f := s * x
			t.Sink.Add(block, i*d+k, f)
			t.Sink.Add(block, j*d+k, -f)
		}
		t.Sink.Add(block, base+SlotEnergy, c.energy(sc.slots))
		t.Sink.Add(block, base+SlotVirial, s*r2)
		t.Sink.Add(block, base+SlotLaplacian, 2*(d2u(sc.slots)-dm1*s))
		if d > 1 {
			t.Sink.Add(block, base+SlotVirialXY, s*sc.dr[0]*sc.dr[1])
		}
		return nil
	})
}

func (c *compiled) runField(t *Target, f *potential.Field) error {
	st := t.State
	d := st.D
	if len(c.first) != d {
		return fmt.Errorf("kernel: field %q compiled for %d dimensions, state has %d", f.Label, len(c.first), d)
	}
	base := st.N * d
	pool := c.scratch.forDim(d)
	launch := c.launch
	launch.ThreadsPerParticle = 1

	return launch.Each(t.Device, st.N, func(block, i, _ int) error {
		sc := pool.Get()
		defer pool.Put(sc)

		copy(sc.slots, st.Pos(i))
		copy(sc.slots[d:], f.Coeffs[st.Types[i]])

		lap := 0.0
		for k := 0; k < d; k++ {
			t.Sink.Add(block, i*d+k, -c.first[k](sc.slots))
			lap += c.second[k](sc.slots)
		}
		t.Sink.Add(block, base+SlotEnergy, c.energy(sc.slots))
		t.Sink.Add(block, base+SlotLaplacian, lap)
		return nil
	})
}
