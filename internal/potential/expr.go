package potential

import (
	"strconv"
)

// Expr is a node of an energy expression.
type Expr interface {
	String() string
}

type Num float64

type Var string

type Neg struct{ X Expr }

// Bin is a binary arithmetic node; Op is one of + - * /.
type Bin struct {
	Op   byte
	L, R Expr
}

type Pow struct{ Base, Exp Expr }

type Call struct {
	Fn  string
	Arg Expr
}

func (n Num) String() string  { return strconv.FormatFloat(float64(n), 'g', -1, 64) }
func (v Var) String() string  { return string(v) }
func (n Neg) String() string  { return "(-" + n.X.String() + ")" }
func (b Bin) String() string  { return "(" + b.L.String() + " " + string(b.Op) + " " + b.R.String() + ")" }
func (p Pow) String() string  { return "pow(" + p.Base.String() + ", " + p.Exp.String() + ")" }
func (c Call) String() string { return c.Fn + "(" + c.Arg.String() + ")" }

// Depends reports whether e references the variable v.
func Depends(e Expr, v string) bool {
	switch e := e.(type) {
	case Var:
		return string(e) == v
	case Neg:
		return Depends(e.X, v)
	case Bin:
		return Depends(e.L, v) || Depends(e.R, v)
	case Pow:
		return Depends(e.Base, v) || Depends(e.Exp, v)
	case Call:
		return Depends(e.Arg, v)
	}
	return false
}

// Vars lists the distinct variable names of e in first-seen order.
func Vars(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case Var:
			if !seen[string(e)] {
				seen[string(e)] = true
				out = append(out, string(e))
			}
		case Neg:
			walk(e.X)
		case Bin:
			walk(e.L)
			walk(e.R)
		case Pow:
			walk(e.Base)
			walk(e.Exp)
		case Call:
			walk(e.Arg)
		}
	}
	walk(e)
	return out
}

// Rename substitutes variables simultaneously.
func Rename(e Expr, names map[string]string) Expr {
	repl := make(map[string]Expr, len(names))
	for from, to := range names {
		repl[from] = Var(to)
	}
	return Substitute(e, repl)
}

// Substitute replaces every variable found in repl.
func Substitute(e Expr, repl map[string]Expr) Expr {
	switch e := e.(type) {
	case Var:
		if r, ok := repl[string(e)]; ok {
			return r
		}
		return e
	case Neg:
		return Neg{Substitute(e.X, repl)}
	case Bin:
		return Bin{e.Op, Substitute(e.L, repl), Substitute(e.R, repl)}
	case Pow:
		return Pow{Substitute(e.Base, repl), Substitute(e.Exp, repl)}
	case Call:
		return Call{e.Fn, Substitute(e.Arg, repl)}
	}
	return e
}
