package particles

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

func KineticEnergy(s *State) float64 {
	k := 0.0
	for i := 0; i < s.N; i++ {
		v := s.Vel(i)
		k += 0.5 * s.Masses[i] * floats.Dot(v, v)
	}
	return k
}

// DegreesOfFreedom is D(N-1): total momentum is conserved.
func DegreesOfFreedom(s *State) int {
	if s.N < 2 {
		return s.D * s.N
	}
	return s.D * (s.N - 1)
}

func Temperature(kinetic float64, dof int) float64 {
	if dof <= 0 {
		return 0
	}
	return 2 * kinetic / float64(dof)
}

func Momentum(s *State) []float64 {
	p := make([]float64, s.D)
	for i := 0; i < s.N; i++ {
		floats.AddScaled(p, s.Masses[i], s.Vel(i))
	}
	return p
}

// ResetMomentum removes the centre-of-mass velocity.
func ResetMomentum(s *State) {
	if s.N == 0 {
		return
	}
	p := Momentum(s)
	floats.Scale(1/floats.Sum(s.Masses), p)
	for i := 0; i < s.N; i++ {
		floats.Sub(s.Vel(i), p)
	}
}

// RandomizeVelocities draws Maxwell-Boltzmann velocities at temperature
// t, removes the net momentum and rescales to hit t exactly.
func RandomizeVelocities(s *State, t float64, rng *rand.Rand) {
	for i := 0; i < s.N; i++ {
		sigma := math.Sqrt(t / s.Masses[i])
		v := s.Vel(i)
		for k := range v {
			v[k] = sigma * rng.NormFloat64()
		}
	}
	ResetMomentum(s)
	current := Temperature(KineticEnergy(s), DegreesOfFreedom(s))
	if current > 0 {
		floats.Scale(math.Sqrt(t/current), s.Velocities)
	}
}
