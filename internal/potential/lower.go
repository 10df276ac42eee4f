package potential

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Lowered is an interaction after shifting, differentiation and slot
// renaming. Variables come first in the slot vector, followed by the
// parameters in declaration order and, for pair interactions, the cutoff.
//
// For pair and bond interactions First and Second hold du/dr and d2u/dr2.
// For fields they hold du/dx_k and d2u/dx_k^2 for every axis k.
type Lowered struct {
	Kind      Kind
	Canonical string
	Slots     map[string]int
	NumSlots  int
	Energy    Expr
	First     []Expr
	Second    []Expr
}

func slotName(k int) string { return "#" + strconv.Itoa(k) }

// form parses the energy of spec, applies the cutoff shift and renames
// parameters to slots.
func form(spec Spec) (Expr, map[string]int, error) {
	u, err := Parse(spec.Expression())
	if err != nil {
		return nil, nil, err
	}

	vars := spec.variables()
	params := spec.Parameters()
	slots := make(map[string]int, len(vars)+len(params))
	names := make(map[string]string, len(params))
	next := 0
	for _, v := range vars {
		if v == "rc" {
			continue
		}
		slots[v] = next
		next++
	}
	for k, p := range params {
		names[p] = slotName(k)
		slots[slotName(k)] = next
		next++
	}
	if spec.Kind() == PairKind {
		slots["rc"] = next
	}

	for _, v := range Vars(u) {
		if _, ok := slots[v]; ok && !strings.HasPrefix(v, "#") {
			continue
		}
		if _, ok := names[v]; ok {
			continue
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, v)
	}
	u = Rename(u, names)

	if p, ok := spec.(*Pair); ok && p.Shift != NoShift {
		u, err = shifted(u, p.Shift)
		if err != nil {
			return nil, nil, err
		}
	}
	return Simplify(u), slots, nil
}

func shifted(u Expr, mode Shift) (Expr, error) {
	atCut := map[string]Expr{"r": Var("rc")}
	out := Expr(Bin{'-', u, Substitute(u, atCut)})
	if mode == ShiftForce {
		du, err := derive(u, "r")
		if err != nil {
			return nil, err
		}
		out = Bin{'-', out, Bin{'*', Bin{'-', Var("r"), Var("rc")}, Substitute(du, atCut)}}
	}
	return out, nil
}

func canonical(kind Kind, vars []string, params int, u Expr) string {
	return fmt.Sprintf("%s[%s]/%d:%s", kind, strings.Join(vars, ","), params, u)
}

// Lower produces the differentiated, slot-renamed form of spec.
func Lower(spec Spec) (*Lowered, error) {
	u, slots, err := form(spec)
	if err != nil {
		return nil, err
	}

	lw := &Lowered{
		Kind:      spec.Kind(),
		Canonical: canonical(spec.Kind(), spec.variables(), len(spec.Parameters()), u),
		Slots:     slots,
		NumSlots:  len(slots),
		Energy:    u,
	}

	wrt := []string{"r"}
	if spec.Kind() == FieldKind {
		wrt = spec.variables()
	}
	for _, v := range wrt {
		d1, err := Derive(u, v)
		if err != nil {
			return nil, err
		}
		d2, err := Derive(d1, v)
		if err != nil {
			return nil, err
		}
		lw.First = append(lw.First, d1)
		lw.Second = append(lw.Second, d2)
	}
	return lw, nil
}

var identities sync.Map

// Identity returns the structural identity of spec. Results are memoised on
// everything that can change the identity, so repeated calls for an
// unchanged interaction do not reparse it.
func Identity(spec Spec) (string, error) {
	key := identityKey(spec)
	if id, ok := identities.Load(key); ok {
		return id.(string), nil
	}
	u, _, err := form(spec)
	if err != nil {
		return "", err
	}
	id := canonical(spec.Kind(), spec.variables(), len(spec.Parameters()), u)
	identities.Store(key, id)
	return id, nil
}

func identityKey(spec Spec) string {
	var b strings.Builder
	b.WriteString(spec.Kind().String())
	b.WriteByte('|')
	b.WriteString(strings.Join(spec.variables(), ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(spec.Parameters(), ","))
	if p, ok := spec.(*Pair); ok {
		b.WriteString("|" + p.Shift.String())
	}
	b.WriteByte('|')
	b.WriteString(spec.Expression())
	return b.String()
}
