package compute

import (
	"fmt"
	"strings"

	"github.com/san-kum/mdsim/internal/dynamo"
)

type Reduction int

const (
	Atomic Reduction = iota
	BlockReduce
)

func (r Reduction) String() string {
	switch r {
	case Atomic:
		return "atomic"
	case BlockReduce:
		return "block"
	}
	return fmt.Sprintf("reduction(%d)", int(r))
}

func ParseReduction(s string) (Reduction, error) {
	switch strings.ToLower(s) {
	case "", "atomic":
		return Atomic, nil
	case "block", "block-reduce", "blockreduce":
		return BlockReduce, nil
	}
	return 0, dynamo.Configf("reduction", "unknown strategy %q", s)
}

// LaunchConfig is the execution configuration a kernel is compiled for.
type LaunchConfig struct {
	ParticlesPerBlock  int
	ThreadsPerParticle int
	Reduction          Reduction
}

// DefaultLaunch picks a configuration for n particles on dev: small systems
// get several threads per particle so that every worker has work.
func DefaultLaunch(n int, dev Device) LaunchConfig {
	cfg := LaunchConfig{ParticlesPerBlock: 64, ThreadsPerParticle: 1, Reduction: Atomic}
	workers := dev.Workers()
	for cfg.ParticlesPerBlock > 8 && n/cfg.ParticlesPerBlock < 4*workers {
		cfg.ParticlesPerBlock /= 2
	}
	if n < 8*workers {
		cfg.ThreadsPerParticle = 4
	}
	return cfg
}

func (c LaunchConfig) Validate() error {
	if c.ParticlesPerBlock < 1 {
		return dynamo.Configf("launch.particles_per_block", "must be at least 1, got %d", c.ParticlesPerBlock)
	}
	if c.ThreadsPerParticle < 1 || c.ThreadsPerParticle > 64 {
		return dynamo.Configf("launch.threads_per_particle", "must be in [1, 64], got %d", c.ThreadsPerParticle)
	}
	if c.Reduction != Atomic && c.Reduction != BlockReduce {
		return dynamo.Configf("launch.reduction", "unknown strategy %v", c.Reduction)
	}
	return nil
}

func (c LaunchConfig) String() string {
	return fmt.Sprintf("pb=%d/tp=%d/%s", c.ParticlesPerBlock, c.ThreadsPerParticle, c.Reduction)
}

// NewReducer allocates the buffer matching the reduction strategy.
func (c LaunchConfig) NewReducer(dev Device, size int) Reducer {
	if c.Reduction == BlockReduce {
		return NewBlockBuffer(dev.Workers(), size)
	}
	return NewAccumulator(size)
}

// Each maps the lanes of a launch onto n work items. fn receives the block
// to use with Reducer.Add, the item, and the sub-lane index in
// [0, ThreadsPerParticle) that selects a stride of the item's work.
//
// With BlockReduce the grid has one block per device worker; each block walks
// its share of item chunks in a fixed order so partial sums are reproducible.
func (c LaunchConfig) Each(dev Device, n int, fn func(block, item, sub int) error) error {
	if n == 0 {
		return nil
	}
	pb, tp := c.ParticlesPerBlock, c.ThreadsPerParticle

	if c.Reduction == BlockReduce {
		parts := dev.Workers()
		chunks := (n + pb - 1) / pb
		return dev.Launch(Grid{Blocks: parts, Threads: 1}, func(block, _ int) error {
			for ch := block; ch < chunks; ch += parts {
				end := min((ch+1)*pb, n)
				for item := ch * pb; item < end; item++ {
					for sub := 0; sub < tp; sub++ {
						if err := fn(block, item, sub); err != nil {
							return err
						}
					}
				}
			}
			return nil
		})
	}

	grid := Grid{Blocks: (n + pb - 1) / pb, Threads: pb * tp}
	return dev.Launch(grid, func(block, thread int) error {
		item := block*pb + thread/tp
		if item >= n {
			return nil
		}
		return fn(block, item, thread%tp)
	})
}
