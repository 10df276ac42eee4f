package compute

import (
	"fmt"
	"runtime"
	"strings"
)

// Grid is the shape of a launch.
type Grid struct {
	Blocks  int
	Threads int
}

func (g Grid) Lanes() int { return g.Blocks * g.Threads }

// GridFor covers n items with blocks of perBlock lanes.
func GridFor(n, perBlock int) Grid {
	if perBlock < 1 {
		perBlock = 1
	}
	return Grid{Blocks: (n + perBlock - 1) / perBlock, Threads: perBlock}
}

// Kernel is the body executed by one lane.
type Kernel func(block, thread int) error

type Device interface {
	Name() string
	// Workers is the number of blocks that can make progress at once.
	Workers() int
	// Launch runs fn for every lane of grid and waits for all of them.
	// The first error returned by a lane is reported.
	Launch(grid Grid, fn Kernel) error
	Cleanup()
}

// ForEach launches fn once per item in [0, n) using blocks of perBlock items.
func ForEach(dev Device, n, perBlock int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	g := GridFor(n, perBlock)
	return dev.Launch(g, func(block, thread int) error {
		i := block*g.Threads + thread
		if i >= n {
			return nil
		}
		return fn(i)
	})
}

// NewDevice selects a device by name. An empty name or "auto" picks the
// best available device.
func NewDevice(name string, workers int) (Device, error) {
	switch strings.ToLower(name) {
	case "", "auto", "cpu":
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		return NewCPU(workers), nil
	case "serial":
		return NewCPU(1), nil
	}
	return nil, fmt.Errorf("compute: unknown device %q", name)
}
