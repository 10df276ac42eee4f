package compute

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// CPU emulates the device with goroutines. Blocks are scheduled onto at most
// Workers goroutines; the threads of one block run sequentially on the
// goroutine that owns the block.
type CPU struct {
	workers int
}

func NewCPU(workers int) *CPU {
	if workers < 1 {
		workers = 1
	}
	return &CPU{workers: workers}
}

func (c *CPU) Name() string { return fmt.Sprintf("cpu(%d)", c.workers) }
func (c *CPU) Workers() int { return c.workers }
func (c *CPU) Cleanup()     {}

func (c *CPU) Launch(grid Grid, fn Kernel) error {
	if grid.Blocks <= 0 || grid.Threads <= 0 {
		return nil
	}

	if c.workers == 1 || grid.Blocks == 1 {
		for b := 0; b < grid.Blocks; b++ {
			if err := runBlock(b, grid.Threads, fn); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(c.workers)

	// blocks are handed out in contiguous chunks to keep goroutine count low
	chunk := (grid.Blocks + c.workers - 1) / c.workers
	for start := 0; start < grid.Blocks; start += chunk {
		end := min(start+chunk, grid.Blocks)
		g.Go(func() error {
			for b := start; b < end; b++ {
				if err := runBlock(b, grid.Threads, fn); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

func runBlock(block, threads int, fn Kernel) error {
	for t := 0; t < threads; t++ {
		if err := fn(block, t); err != nil {
			return err
		}
	}
	return nil
}
