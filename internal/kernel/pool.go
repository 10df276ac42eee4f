package kernel

import "sync"

// scratch is the per-lane working memory of a kernel.
type scratch struct {
	slots []float64
	dr    []float64
	acc   []float64
}

type scratchPool struct {
	pool  sync.Pool
	slots int
	dim   int
}

func newScratchPool(slots, dim int) *scratchPool {
	p := &scratchPool{slots: slots, dim: dim}
	p.pool.New = func() any {
		return &scratch{
			slots: make([]float64, slots),
			dr:    make([]float64, dim),
			acc:   make([]float64, dim),
		}
	}
	return p
}

func (p *scratchPool) Get() *scratch {
	s := p.pool.Get().(*scratch)
	clear(s.acc)
	return s
}

func (p *scratchPool) Put(s *scratch) { p.pool.Put(s) }

// pools keeps one scratch pool per dimension; kernels are dimension-agnostic.
type pools struct {
	mu    sync.Mutex
	slots int
	byDim map[int]*scratchPool
}

func (p *pools) forDim(d int) *scratchPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byDim == nil {
		p.byDim = make(map[int]*scratchPool)
	}
	sp, ok := p.byDim[d]
	if !ok {
		sp = newScratchPool(p.slots, d)
		p.byDim[d] = sp
	}
	return sp
}
