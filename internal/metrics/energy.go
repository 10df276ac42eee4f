package metrics

import (
	"math"

	"github.com/san-kum/mdsim/internal/dynamo"
)

// EnergyDrift tracks the largest relative deviation of the total energy
// from the first observed summary.
type EnergyDrift struct {
	name          string
	initialEnergy float64
	currentEnergy float64
	maxDrift      float64
	samples       int
}

func NewEnergyDrift() *EnergyDrift {
	return &EnergyDrift{name: "energy_drift"}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(s dynamo.Summary) {
	energy := s.Total()
	if e.samples == 0 {
		e.initialEnergy = energy
	}
	e.currentEnergy = energy
	e.samples++

	if e.initialEnergy != 0 {
		drift := math.Abs(energy-e.initialEnergy) / math.Abs(e.initialEnergy)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 { return e.maxDrift }

// Final is the relative drift of the most recent observation.
func (e *EnergyDrift) Final() float64 {
	if e.initialEnergy == 0 {
		return 0
	}
	return math.Abs(e.currentEnergy-e.initialEnergy) / math.Abs(e.initialEnergy)
}

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.currentEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}

// RebuildRate is the number of neighbor index builds per integrated step
// over the observed window.
type RebuildRate struct {
	firstStep, lastStep         int
	firstRebuilds, lastRebuilds int
	samples                     int
}

func NewRebuildRate() *RebuildRate { return &RebuildRate{} }

func (r *RebuildRate) Name() string { return "rebuild_rate" }

func (r *RebuildRate) Observe(s dynamo.Summary) {
	if r.samples == 0 {
		r.firstStep, r.firstRebuilds = s.Step, s.Rebuilds
	}
	r.lastStep, r.lastRebuilds = s.Step, s.Rebuilds
	r.samples++
}

func (r *RebuildRate) Value() float64 {
	steps := r.lastStep - r.firstStep
	if steps <= 0 {
		return 0
	}
	return float64(r.lastRebuilds-r.firstRebuilds) / float64(steps)
}

func (r *RebuildRate) Reset() { *r = RebuildRate{} }
