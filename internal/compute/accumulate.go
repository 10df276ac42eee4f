package compute

import (
	"math"
	"sync/atomic"
)

// Reducer is a device buffer that many lanes add into concurrently.
type Reducer interface {
	Len() int
	Zero(dev Device) error
	// Add adds v to slot i on behalf of a lane running in block.
	Add(block, i int, v float64)
	// Download writes the reduced values into dst.
	Download(dev Device, dst []float64) error
}

// Accumulator is a float64 buffer with lock-free atomic addition.
type Accumulator struct {
	bits []atomic.Uint64
}

func NewAccumulator(n int) *Accumulator {
	return &Accumulator{bits: make([]atomic.Uint64, n)}
}

func (a *Accumulator) Len() int { return len(a.bits) }

func (a *Accumulator) Zero(dev Device) error {
	return ForEach(dev, len(a.bits), 1024, func(i int) error {
		a.bits[i].Store(0)
		return nil
	})
}

func (a *Accumulator) Add(_ int, i int, v float64) {
	if v == 0 {
		return
	}
	for {
		old := a.bits[i].Load()
		next := math.Float64bits(math.Float64frombits(old) + v)
		if a.bits[i].CompareAndSwap(old, next) {
			return
		}
	}
}

func (a *Accumulator) Load(i int) float64 {
	return math.Float64frombits(a.bits[i].Load())
}

func (a *Accumulator) Download(dev Device, dst []float64) error {
	return ForEach(dev, len(a.bits), 1024, func(i int) error {
		dst[i] = math.Float64frombits(a.bits[i].Load())
		return nil
	})
}

// BlockBuffer keeps one partial buffer per block. Lanes of a block must run
// sequentially, which every Device guarantees.
type BlockBuffer struct {
	parts [][]float64
	n     int
}

func NewBlockBuffer(parts, n int) *BlockBuffer {
	if parts < 1 {
		parts = 1
	}
	b := &BlockBuffer{parts: make([][]float64, parts), n: n}
	for p := range b.parts {
		b.parts[p] = make([]float64, n)
	}
	return b
}

func (b *BlockBuffer) Len() int   { return b.n }
func (b *BlockBuffer) Parts() int { return len(b.parts) }

func (b *BlockBuffer) Zero(dev Device) error {
	return dev.Launch(Grid{Blocks: len(b.parts), Threads: 1}, func(block, _ int) error {
		clear(b.parts[block])
		return nil
	})
}

func (b *BlockBuffer) Add(block, i int, v float64) {
	b.parts[block][i] += v
}

// Download is the reduction pass: each slot sums its partials in block order.
func (b *BlockBuffer) Download(dev Device, dst []float64) error {
	return ForEach(dev, b.n, 1024, func(i int) error {
		sum := 0.0
		for _, part := range b.parts {
			sum += part[i]
		}
		dst[i] = sum
		return nil
	})
}
