package sim

import (
	"context"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/kernel"
	"github.com/san-kum/mdsim/internal/spatial"
)

// Options configure a Simulator. Zero values select defaults: a CPU device
// with one worker per core, the default launch configuration for the
// particle count, a private kernel cache and the HalfSkin rebuild rule.
type Options struct {
	Dt     float64
	Skin   float64
	Policy spatial.Policy
	Launch compute.LaunchConfig
	Device compute.Device
	Cache  *kernel.Cache

	Actions   []Action
	Observers []dynamo.Observer
	Metrics   []dynamo.Metric
}

// Action runs on the host after every completed step; it decides from the
// step counter whether it has anything to do.
type Action interface {
	Name() string
	AfterStep(ctx context.Context, s *Simulator) error
}
