package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/mdsim/internal/dynamo"
	"golang.org/x/sync/errgroup"
)

// Factory builds one independent replica from its seed.
type Factory func(replica int, seed uint64) (*Simulator, error)

// Ensemble runs independent replicas concurrently. Replica i uses seed
// SeedStart+i.
type Ensemble struct {
	factory   Factory
	numRuns   int
	seedStart uint64
	limit     int
}

func NewEnsemble(factory Factory, numRuns int, seedStart uint64) *Ensemble {
	return &Ensemble{factory: factory, numRuns: numRuns, seedStart: seedStart}
}

// SetLimit bounds the number of replicas running at once.
func (e *Ensemble) SetLimit(n int) { e.limit = n }

// Run advances every replica numSteps steps and returns their reported
// summaries in replica order. The first failing replica cancels the rest.
func (e *Ensemble) Run(ctx context.Context, numSteps, reportInterval int) ([][]dynamo.Summary, error) {
	if e.numRuns < 1 {
		return nil, dynamo.Configf("ensemble.runs", "must be at least 1, got %d", e.numRuns)
	}
	results := make([][]dynamo.Summary, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	for i := 0; i < e.numRuns; i++ {
		g.Go(func() error {
			s, err := e.factory(i, e.seedStart+uint64(i))
			if err != nil {
				return fmt.Errorf("replica %d: %w", i, err)
			}
			defer s.Close()

			results[i], err = Collect(s.Run(ctx, numSteps, reportInterval))
			if err != nil {
				return fmt.Errorf("replica %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
