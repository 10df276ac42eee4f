// Package optim searches launch configurations for the fastest force
// evaluation on a given device and system.
package optim

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/force"
	"github.com/san-kum/mdsim/internal/kernel"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/potential"
	"github.com/san-kum/mdsim/internal/spatial"
	"github.com/sirupsen/logrus"
)

// Trial is the timing of one launch configuration.
type Trial struct {
	Launch    compute.LaunchConfig
	Elapsed   time.Duration
	Potential float64
	Err       error
}

type GridSearch struct {
	ParticlesPerBlock  []int
	ThreadsPerParticle []int
	Reductions         []compute.Reduction
	// Repeats is the number of timed evaluations per configuration; the
	// median is kept.
	Repeats int
}

func NewGridSearch(perBlock, threads []int, reductions []compute.Reduction) *GridSearch {
	return &GridSearch{
		ParticlesPerBlock:  perBlock,
		ThreadsPerParticle: threads,
		Reductions:         reductions,
		Repeats:            5,
	}
}

// DefaultGrid covers powers of two around the default launch for n
// particles.
func DefaultGrid() *GridSearch {
	return NewGridSearch(
		[]int{8, 16, 32, 64, 128},
		[]int{1, 2, 4, 8},
		[]compute.Reduction{compute.Atomic, compute.BlockReduce},
	)
}

// Result holds every trial and the index of the fastest successful one.
type Result struct {
	Trials []Trial
	Best   int
	// Spread is the largest relative difference in potential energy between
	// successful trials.
	Spread float64
}

func (r *Result) BestTrial() (Trial, bool) {
	if r.Best < 0 {
		return Trial{}, false
	}
	return r.Trials[r.Best], true
}

// Search times the force evaluation of specs on st for every configuration
// in the grid. All trials share the same neighbor index and kernel cache.
func (g *GridSearch) Search(ctx context.Context, dev compute.Device, st *particles.State, specs []potential.Spec, skin float64) (*Result, error) {
	var ix *spatial.Index
	if cutoff := maxCutoff(specs); cutoff > 0 {
		var err error
		ix, err = spatial.Build(dev, st, cutoff, skin, spatial.HalfSkin)
		if err != nil {
			return nil, err
		}
	}

	res := &Result{Best: -1}
	cache := kernel.NewCache()
	work := st.Clone()
	var current compute.LaunchConfig
	if err := g.searchRecursive(ctx, 0, current, func(launch compute.LaunchConfig) error {
		trial := g.time(ctx, dev, cache, work, ix, specs, launch)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.Trials = append(res.Trials, trial)
		logrus.Debugf("optim: %s took %v", launch, trial.Elapsed)
		return nil
	}); err != nil {
		return nil, err
	}

	best := time.Duration(math.MaxInt64)
	ref := math.NaN()
	for k, t := range res.Trials {
		if t.Err != nil {
			continue
		}
		if t.Elapsed < best {
			best = t.Elapsed
			res.Best = k
		}
		if math.IsNaN(ref) {
			ref = t.Potential
			continue
		}
		res.Spread = math.Max(res.Spread, math.Abs(t.Potential-ref)/math.Max(math.Abs(ref), 1))
	}
	if res.Best < 0 {
		return res, fmt.Errorf("optim: no launch configuration succeeded")
	}
	return res, nil
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current compute.LaunchConfig, visit func(compute.LaunchConfig) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch depth {
	case 0:
		for _, v := range g.ParticlesPerBlock {
			current.ParticlesPerBlock = v
			if err := g.searchRecursive(ctx, depth+1, current, visit); err != nil {
				return err
			}
		}
	case 1:
		for _, v := range g.ThreadsPerParticle {
			current.ThreadsPerParticle = v
			if err := g.searchRecursive(ctx, depth+1, current, visit); err != nil {
				return err
			}
		}
	case 2:
		for _, v := range g.Reductions {
			current.Reduction = v
			if err := g.searchRecursive(ctx, depth+1, current, visit); err != nil {
				return err
			}
		}
	default:
		return visit(current)
	}
	return nil
}

func (g *GridSearch) time(ctx context.Context, dev compute.Device, cache *kernel.Cache, st *particles.State, ix *spatial.Index, specs []potential.Spec, launch compute.LaunchConfig) Trial {
	trial := Trial{Launch: launch}
	if err := launch.Validate(); err != nil {
		trial.Err = err
		return trial
	}
	eval := force.NewEvaluator(dev, cache, launch)
	if err := eval.Prepare(specs); err != nil {
		trial.Err = err
		return trial
	}

	repeats := max(g.Repeats, 1)
	samples := make([]time.Duration, 0, repeats)
	for range repeats {
		start := time.Now()
		out, err := eval.Evaluate(ctx, st, ix, specs)
		if err != nil {
			trial.Err = err
			return trial
		}
		samples = append(samples, time.Since(start))
		trial.Potential = out.Potential
	}
	slices.Sort(samples)
	trial.Elapsed = samples[len(samples)/2]
	return trial
}

func maxCutoff(specs []potential.Spec) float64 {
	m := 0.0
	for _, s := range specs {
		if p, ok := s.(*potential.Pair); ok {
			m = math.Max(m, p.MaxCutoff())
		}
	}
	return m
}
