package potential

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/san-kum/mdsim/internal/dynamo"
)

type Kind int

const (
	PairKind Kind = iota
	BondKind
	FieldKind
)

func (k Kind) String() string {
	switch k {
	case PairKind:
		return "pair"
	case BondKind:
		return "bond"
	case FieldKind:
		return "field"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Shift selects how a pair potential is truncated at its cutoff.
type Shift int

const (
	// NoShift truncates: energy and force jump at the cutoff.
	NoShift Shift = iota
	// ShiftPotential subtracts u(rc) so the energy is continuous.
	ShiftPotential
	// ShiftForce also subtracts (r-rc)u'(rc) so the force is continuous.
	ShiftForce
)

func (s Shift) String() string {
	switch s {
	case NoShift:
		return "none"
	case ShiftPotential:
		return "potential"
	case ShiftForce:
		return "force"
	}
	return fmt.Sprintf("shift(%d)", int(s))
}

func ParseShift(s string) (Shift, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return NoShift, nil
	case "potential", "shifted-potential", "sp":
		return ShiftPotential, nil
	case "force", "shifted-force", "sf":
		return ShiftForce, nil
	}
	return 0, dynamo.Configf("shift", "unknown cutoff shift %q", s)
}

// Extent describes the system an interaction is validated against.
type Extent struct {
	N     int
	Dim   int
	Types int
}

// Spec is one of *Pair, *Bond or *Field.
type Spec interface {
	Name() string
	Kind() Kind
	Expression() string
	Parameters() []string
	Validate(ext Extent) error
	variables() []string
}

// Coeffs are the parameter values and cutoff for one pair of particle types.
type Coeffs struct {
	Values []float64 `yaml:"values" json:"values"`
	Cutoff float64   `yaml:"cutoff" json:"cutoff"`
}

// Pair is a short-ranged interaction u(r) between every pair of particles
// closer than the cutoff of their type pair.
type Pair struct {
	Label   string
	Energy  string
	Params  []string
	Coeffs  [][]Coeffs
	Shift   Shift
	Exclude [][2]int
}

// Bond is an interaction u(r) between explicitly listed particle pairs.
type Bond struct {
	Label  string
	Energy string
	Params []string
	Pairs  [][2]int
	Types  []int
	Coeffs [][]float64
}

// Field is an external one-body potential u(x, y, z) with parameters
// chosen by particle type.
type Field struct {
	Label  string
	Energy string
	Params []string
	Dim    int
	Coeffs [][]float64
}

var axes = []string{"x", "y", "z"}

func (p *Pair) Name() string          { return p.Label }
func (p *Pair) Kind() Kind            { return PairKind }
func (p *Pair) Expression() string    { return p.Energy }
func (p *Pair) Parameters() []string  { return p.Params }
func (p *Pair) variables() []string   { return []string{"r", "rc"} }
func (b *Bond) Name() string          { return b.Label }
func (b *Bond) Kind() Kind            { return BondKind }
func (b *Bond) Expression() string    { return b.Energy }
func (b *Bond) Parameters() []string  { return b.Params }
func (b *Bond) variables() []string   { return []string{"r"} }
func (f *Field) Name() string         { return f.Label }
func (f *Field) Kind() Kind           { return FieldKind }
func (f *Field) Expression() string   { return f.Energy }
func (f *Field) Parameters() []string { return f.Params }
func (f *Field) variables() []string  { return axes[:min(max(f.Dim, 0), 3)] }

// MaxCutoff is the largest cutoff over all type pairs.
func (p *Pair) MaxCutoff() float64 {
	m := 0.0
	for _, row := range p.Coeffs {
		for _, c := range row {
			m = math.Max(m, c.Cutoff)
		}
	}
	return m
}

// UniformCoeffs uses the same values and cutoff for every type pair.
func UniformCoeffs(types int, values []float64, cutoff float64) [][]Coeffs {
	out := make([][]Coeffs, types)
	for i := range out {
		out[i] = make([]Coeffs, types)
		for j := range out[i] {
			out[i][j] = Coeffs{Values: append([]float64(nil), values...), Cutoff: cutoff}
		}
	}
	return out
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkParams(field string, params, reserved []string) error {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		switch {
		case !identRe.MatchString(p):
			return dynamo.Configf(field, "parameter %q is not an identifier", p)
		case slices.Contains(reserved, p) || p == "pow" || unary[p] != nil || constants[p] != 0:
			return dynamo.Configf(field, "parameter %q shadows a reserved name", p)
		case seen[p]:
			return dynamo.Configf(field, "parameter %q declared twice", p)
		}
		seen[p] = true
	}
	return nil
}

func checkValues(field string, values []float64, want int) error {
	if len(values) != want {
		return dynamo.Configf(field, "expected %d parameter values, got %d", want, len(values))
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return dynamo.Configf(field, "parameter values must be finite")
		}
	}
	return nil
}

func (p *Pair) Validate(ext Extent) error {
	field := "pair " + p.Label
	if strings.TrimSpace(p.Energy) == "" {
		return dynamo.Configf(field, "empty energy expression")
	}
	if err := checkParams(field, p.Params, p.variables()); err != nil {
		return err
	}
	if p.Shift < NoShift || p.Shift > ShiftForce {
		return dynamo.Configf(field, "unknown shift %v", p.Shift)
	}
	nt := len(p.Coeffs)
	if nt < max(ext.Types, 1) {
		return dynamo.Configf(field, "coefficient matrix covers %d types, system has %d", nt, ext.Types)
	}
	for i, row := range p.Coeffs {
		if len(row) != nt {
			return dynamo.Configf(field, "coefficient matrix must be square, row %d has %d entries", i, len(row))
		}
		for j, c := range row {
			where := fmt.Sprintf("%s[%d][%d]", field, i, j)
			if err := checkValues(where, c.Values, len(p.Params)); err != nil {
				return err
			}
			if !(c.Cutoff > 0) || math.IsInf(c.Cutoff, 0) {
				return dynamo.Configf(where, "cutoff must be positive and finite, got %g", c.Cutoff)
			}
			if j < i {
				mirror := p.Coeffs[j][i]
				if !slices.Equal(c.Values, mirror.Values) || c.Cutoff != mirror.Cutoff {
					return dynamo.Configf(where, "coefficient matrix must be symmetric")
				}
			}
		}
	}
	for _, e := range p.Exclude {
		if e[0] == e[1] || e[0] < 0 || e[1] < 0 || e[0] >= ext.N || e[1] >= ext.N {
			return dynamo.Configf(field, "invalid exclusion %v for %d particles", e, ext.N)
		}
	}
	return nil
}

func (b *Bond) Validate(ext Extent) error {
	field := "bond " + b.Label
	if strings.TrimSpace(b.Energy) == "" {
		return dynamo.Configf(field, "empty energy expression")
	}
	if err := checkParams(field, b.Params, b.variables()); err != nil {
		return err
	}
	if b.Types != nil && len(b.Types) != len(b.Pairs) {
		return dynamo.Configf(field, "%d bond types for %d bonds", len(b.Types), len(b.Pairs))
	}
	for k, c := range b.Coeffs {
		if err := checkValues(fmt.Sprintf("%s type %d", field, k), c, len(b.Params)); err != nil {
			return err
		}
	}
	for k, pr := range b.Pairs {
		if pr[0] == pr[1] || pr[0] < 0 || pr[1] < 0 || pr[0] >= ext.N || pr[1] >= ext.N {
			return dynamo.Configf(field, "bond %d joins invalid particles %v", k, pr)
		}
		if t := b.bondType(k); t < 0 || t >= len(b.Coeffs) {
			return dynamo.Configf(field, "bond %d has type %d, only %d types defined", k, t, len(b.Coeffs))
		}
	}
	return nil
}

func (b *Bond) bondType(k int) int {
	if b.Types == nil {
		return 0
	}
	return b.Types[k]
}

func (f *Field) Validate(ext Extent) error {
	field := "field " + f.Label
	if strings.TrimSpace(f.Energy) == "" {
		return dynamo.Configf(field, "empty energy expression")
	}
	if f.Dim != ext.Dim {
		return dynamo.Configf(field, "declared for %d dimensions, system has %d", f.Dim, ext.Dim)
	}
	if err := checkParams(field, f.Params, axes); err != nil {
		return err
	}
	if len(f.Coeffs) < max(ext.Types, 1) {
		return dynamo.Configf(field, "coefficients cover %d types, system has %d", len(f.Coeffs), ext.Types)
	}
	for t, c := range f.Coeffs {
		if err := checkValues(fmt.Sprintf("%s type %d", field, t), c, len(f.Params)); err != nil {
			return err
		}
	}
	return nil
}

// ExclusionSet answers whether a pair is excluded from a pair interaction.
type ExclusionSet map[[2]int32]struct{}

func NewExclusionSet(pairs [][2]int) ExclusionSet {
	if len(pairs) == 0 {
		return nil
	}
	set := make(ExclusionSet, len(pairs))
	for _, p := range pairs {
		i, j := int32(p[0]), int32(p[1])
		if i > j {
			i, j = j, i
		}
		set[[2]int32{i, j}] = struct{}{}
	}
	return set
}

// Has expects i < j.
func (s ExclusionSet) Has(i, j int32) bool {
	if s == nil {
		return false
	}
	_, ok := s[[2]int32{i, j}]
	return ok
}
