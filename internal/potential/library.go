package potential

import (
	"fmt"
	"sort"
)

const ljEnergy = "4*epsilon*(pow(sigma/r, 12) - pow(sigma/r, 6))"

// LennardJones is the 12-6 potential for a single particle type.
func LennardJones(sigma, epsilon, cutoff float64, shift Shift) *Pair {
	return &Pair{
		Label:  "lj",
		Energy: ljEnergy,
		Params: []string{"sigma", "epsilon"},
		Coeffs: UniformCoeffs(1, []float64{sigma, epsilon}, cutoff),
		Shift:  shift,
	}
}

// LennardJonesMixture builds a 12-6 potential from per type-pair sigma and
// epsilon matrices with cutoffs of cutoff*sigma.
func LennardJonesMixture(label string, sigma, epsilon [][]float64, cutoff float64, shift Shift) *Pair {
	nt := len(sigma)
	coeffs := make([][]Coeffs, nt)
	for i := range coeffs {
		coeffs[i] = make([]Coeffs, nt)
		for j := range coeffs[i] {
			coeffs[i][j] = Coeffs{
				Values: []float64{sigma[i][j], epsilon[i][j]},
				Cutoff: cutoff * sigma[i][j],
			}
		}
	}
	return &Pair{Label: label, Energy: ljEnergy, Params: []string{"sigma", "epsilon"}, Coeffs: coeffs, Shift: shift}
}

// KobAndersen is the 80:20 binary Lennard-Jones glass former.
func KobAndersen() *Pair {
	sigma := [][]float64{{1.0, 0.8}, {0.8, 0.88}}
	epsilon := [][]float64{{1.0, 1.5}, {1.5, 0.5}}
	return LennardJonesMixture("kob-andersen", sigma, epsilon, 2.5, ShiftForce)
}

// Yukawa is the screened Coulomb potential A exp(-kappa r)/r.
func Yukawa(a, kappa, cutoff float64) *Pair {
	return &Pair{
		Label:  "yukawa",
		Energy: "A*exp(-kappa*r)/r",
		Params: []string{"A", "kappa"},
		Coeffs: UniformCoeffs(1, []float64{a, kappa}, cutoff),
		Shift:  ShiftPotential,
	}
}

// InversePower is epsilon (sigma/r)^n. The exponent is structural: changing
// it yields a different kernel.
func InversePower(n int, sigma, epsilon, cutoff float64) *Pair {
	return &Pair{
		Label:  fmt.Sprintf("ipl%d", n),
		Energy: fmt.Sprintf("epsilon*pow(sigma/r, %d)", n),
		Params: []string{"sigma", "epsilon"},
		Coeffs: UniformCoeffs(1, []float64{sigma, epsilon}, cutoff),
		Shift:  ShiftPotential,
	}
}

// SoftRepulsion is the harmonic repulsion epsilon (1 - r/sigma)^2 acting
// only for r < sigma.
func SoftRepulsion(sigma, epsilon float64) *Pair {
	return &Pair{
		Label:  "soft",
		Energy: "epsilon*pow(1 - r/sigma, 2)",
		Params: []string{"sigma", "epsilon"},
		Coeffs: UniformCoeffs(1, []float64{sigma, epsilon}, sigma),
	}
}

// HarmonicBond is k/2 (r - r0)^2 on the listed pairs.
func HarmonicBond(k, r0 float64, pairs [][2]int) *Bond {
	return &Bond{
		Label:  "harmonic",
		Energy: "0.5*k*pow(r - r0, 2)",
		Params: []string{"k", "r0"},
		Pairs:  pairs,
		Coeffs: [][]float64{{k, r0}},
	}
}

// Gravity is a uniform field along the last axis. strengths[t] is m*g for
// particles of type t.
func Gravity(dim int, strengths []float64) *Field {
	coeffs := make([][]float64, len(strengths))
	for t, s := range strengths {
		coeffs[t] = []float64{s}
	}
	return &Field{
		Label:  "gravity",
		Energy: "g*" + axes[dim-1],
		Params: []string{"g"},
		Dim:    dim,
		Coeffs: coeffs,
	}
}

// Builtin looks up a library pair potential by name with a uniform cutoff.
func Builtin(name string, values map[string]float64, cutoff float64, shift Shift) (*Pair, error) {
	get := func(k string, def float64) float64 {
		if v, ok := values[k]; ok {
			return v
		}
		return def
	}
	switch name {
	case "lj", "lennard-jones":
		return LennardJones(get("sigma", 1), get("epsilon", 1), cutoff, shift), nil
	case "kob-andersen", "ka":
		return KobAndersen(), nil
	case "yukawa":
		p := Yukawa(get("A", 1), get("kappa", 1), cutoff)
		p.Shift = shift
		return p, nil
	case "ipl":
		p := InversePower(int(get("n", 12)), get("sigma", 1), get("epsilon", 1), cutoff)
		p.Shift = shift
		return p, nil
	case "soft":
		return SoftRepulsion(get("sigma", 1), get("epsilon", 1)), nil
	}
	return nil, fmt.Errorf("potential: unknown pair potential %q (have %v)", name, BuiltinNames())
}

func BuiltinNames() []string {
	names := []string{"lj", "kob-andersen", "yukawa", "ipl", "soft"}
	sort.Strings(names)
	return names
}
