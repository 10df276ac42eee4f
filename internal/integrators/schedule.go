package integrators

import "math"

// Schedule gives a control target (temperature, pressure) as a function of
// simulation time.
type Schedule interface {
	At(t float64) float64
}

type Constant float64

func (c Constant) At(float64) float64 { return float64(c) }

// Ramp moves linearly from From at time Start to To at time End and holds
// the end values outside that window.
type Ramp struct {
	From, To   float64
	Start, End float64
}

func (r Ramp) At(t float64) float64 {
	if r.End <= r.Start || t >= r.End {
		return r.To
	}
	if t <= r.Start {
		return r.From
	}
	frac := (t - r.Start) / (r.End - r.Start)
	return r.From + frac*(r.To-r.From)
}

// Sine oscillates around Mean with the given amplitude and period.
type Sine struct {
	Mean, Amplitude, Period float64
}

func (s Sine) At(t float64) float64 {
	if s.Period <= 0 {
		return s.Mean
	}
	return s.Mean + s.Amplitude*math.Sin(2*math.Pi*t/s.Period)
}
