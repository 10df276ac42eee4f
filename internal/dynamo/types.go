package dynamo

import "math"

// Summary is the thermodynamic snapshot reported by the driver.
//
// All values are instantaneous at the end of Step. Pressure follows
// P = (2K/D + W) / V where W is the virial already divided by D.
type Summary struct {
	Step            int     `json:"step"`
	Time            float64 `json:"time"`
	Kinetic         float64 `json:"kinetic"`
	Potential       float64 `json:"potential"`
	Temperature     float64 `json:"temperature"`
	ConfTemperature float64 `json:"conf_temperature"`
	Pressure        float64 `json:"pressure"`
	Volume          float64 `json:"volume"`
	Virial          float64 `json:"virial"`
	Laplacian       float64 `json:"laplacian"`
	ForceSq         float64 `json:"force_sq"`
	Momentum        float64 `json:"momentum"`
	// MomentumX, MomentumY and MomentumZ are the components of the total
	// momentum; axes beyond the dimension are zero.
	MomentumX       float64 `json:"momentum_x"`
	MomentumY       float64 `json:"momentum_y"`
	MomentumZ       float64 `json:"momentum_z"`
	// StressXY is the off-diagonal stress component used for shear
	// viscosity.
	StressXY        float64 `json:"stress_xy"`
	Rebuilds        int     `json:"rebuilds"`
}

func (s Summary) Total() float64 { return s.Kinetic + s.Potential }

func (s Summary) IsValid() bool {
	for _, v := range []float64{s.Kinetic, s.Potential, s.Virial, s.Pressure} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Observer receives every reported summary.
type Observer interface {
	OnSummary(s Summary)
}

type ObserverFunc func(s Summary)

func (f ObserverFunc) OnSummary(s Summary) { f(s) }

// Metric folds a stream of summaries into one value.
type Metric interface {
	Name() string
	Observe(s Summary)
	Value() float64
	Reset()
}
