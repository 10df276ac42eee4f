package potential

import (
	"fmt"
	"math"
)

// Derive returns de/dv, simplified.
func Derive(e Expr, v string) (Expr, error) {
	d, err := derive(e, v)
	if err != nil {
		return nil, err
	}
	return Simplify(d), nil
}

func derive(e Expr, v string) (Expr, error) {
	if !Depends(e, v) {
		return Num(0), nil
	}
	switch e := e.(type) {
	case Var:
		return Num(1), nil

	case Neg:
		dx, err := derive(e.X, v)
		if err != nil {
			return nil, err
		}
		return Neg{dx}, nil

	case Bin:
		dl, err := derive(e.L, v)
		if err != nil {
			return nil, err
		}
		dr, err := derive(e.R, v)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case '+', '-':
			return Bin{e.Op, dl, dr}, nil
		case '*':
			return Bin{'+', Bin{'*', dl, e.R}, Bin{'*', e.L, dr}}, nil
		case '/':
			num := Bin{'-', Bin{'*', dl, e.R}, Bin{'*', e.L, dr}}
			return Bin{'/', num, Pow{e.R, Num(2)}}, nil
		}
		return nil, fmt.Errorf("%w: operator %c", ErrUnsupported, e.Op)

	case Pow:
		db, err := derive(e.Base, v)
		if err != nil {
			return nil, err
		}
		if !Depends(e.Exp, v) {
			// d b^n = n b^(n-1) db
			return Bin{'*', Bin{'*', e.Exp, Pow{e.Base, Bin{'-', e.Exp, Num(1)}}}, db}, nil
		}
		de, err := derive(e.Exp, v)
		if err != nil {
			return nil, err
		}
		inner := Bin{'+', Bin{'*', de, Call{"log", e.Base}}, Bin{'/', Bin{'*', e.Exp, db}, e.Base}}
		return Bin{'*', e, inner}, nil

	case Call:
		outer, ok := unary[e.Fn]
		if !ok {
			return nil, fmt.Errorf("%w: function %s", ErrUnsupported, e.Fn)
		}
		da, err := derive(e.Arg, v)
		if err != nil {
			return nil, err
		}
		return Bin{'*', outer(e.Arg), da}, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupported, e)
}

// Simplify folds constants and removes additive and multiplicative identities.
func Simplify(e Expr) Expr {
	switch e := e.(type) {
	case Neg:
		x := Simplify(e.X)
		switch x := x.(type) {
		case Num:
			return -x
		case Neg:
			return x.X
		}
		return Neg{x}

	case Bin:
		return simplifyBin(e.Op, Simplify(e.L), Simplify(e.R))

	case Pow:
		b, x := Simplify(e.Base), Simplify(e.Exp)
		if n, ok := x.(Num); ok {
			switch n {
			case 0:
				return Num(1)
			case 1:
				return b
			}
			if bn, ok := b.(Num); ok {
				return Num(math.Pow(float64(bn), float64(n)))
			}
		}
		return Pow{b, x}

	case Call:
		a := Simplify(e.Arg)
		if n, ok := a.(Num); ok {
			if f, ok := mathFuncs[e.Fn]; ok {
				return Num(f(float64(n)))
			}
		}
		return Call{e.Fn, a}
	}
	return e
}

func simplifyBin(op byte, l, r Expr) Expr {
	ln, lok := l.(Num)
	rn, rok := r.(Num)
	if lok && rok {
		switch op {
		case '+':
			return ln + rn
		case '-':
			return ln - rn
		case '*':
			return ln * rn
		case '/':
			if rn != 0 {
				return ln / rn
			}
		}
	}

	switch op {
	case '+':
		if lok && ln == 0 {
			return r
		}
		if rok && rn == 0 {
			return l
		}
		if rneg, ok := r.(Neg); ok {
			return simplifyBin('-', l, rneg.X)
		}
	case '-':
		if rok && rn == 0 {
			return l
		}
		if lok && ln == 0 {
			return Simplify(Neg{r})
		}
		if l.String() == r.String() {
			return Num(0)
		}
	case '*':
		if (lok && ln == 0) || (rok && rn == 0) {
			return Num(0)
		}
		if lok && ln == 1 {
			return r
		}
		if rok && rn == 1 {
			return l
		}
		if lok && ln == -1 {
			return Simplify(Neg{r})
		}
		if rok && rn == -1 {
			return Simplify(Neg{l})
		}
		// keep constants on the left so equal products print alike
		if rok && !lok {
			return simplifyBin('*', r, l)
		}
	case '/':
		if lok && ln == 0 {
			return Num(0)
		}
		if rok && rn == 1 {
			return l
		}
	}
	return Bin{op, l, r}
}
