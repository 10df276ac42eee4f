package potential

import (
	"fmt"
	"math"
)

// Func evaluates a compiled expression against a slot vector.
type Func func(slots []float64) float64

var mathFuncs = map[string]func(float64) float64{
	"exp":  math.Exp,
	"log":  math.Log,
	"sqrt": math.Sqrt,
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
	"sinh": math.Sinh,
	"cosh": math.Cosh,
	"tanh": math.Tanh,
	"abs":  math.Abs,
	"erf":  math.Erf,
	"erfc": math.Erfc,
}

// maxIntPow bounds the exponents lowered to repeated multiplication.
const maxIntPow = 32

// Compile lowers e into a closure tree. Every variable must have a slot.
func Compile(e Expr, slots map[string]int) (Func, error) {
	switch e := e.(type) {
	case Num:
		c := float64(e)
		return func([]float64) float64 { return c }, nil

	case Var:
		idx, ok := slots[string(e)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, string(e))
		}
		return func(s []float64) float64 { return s[idx] }, nil

	case Neg:
		x, err := Compile(e.X, slots)
		if err != nil {
			return nil, err
		}
		return func(s []float64) float64 { return -x(s) }, nil

	case Bin:
		l, err := Compile(e.L, slots)
		if err != nil {
			return nil, err
		}
		r, err := Compile(e.R, slots)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case '+':
			return func(s []float64) float64 { return l(s) + r(s) }, nil
		case '-':
			return func(s []float64) float64 { return l(s) - r(s) }, nil
		case '*':
			return func(s []float64) float64 { return l(s) * r(s) }, nil
		case '/':
			return func(s []float64) float64 { return l(s) / r(s) }, nil
		}
		return nil, fmt.Errorf("%w: operator %c", ErrUnsupported, e.Op)

	case Pow:
		b, err := Compile(e.Base, slots)
		if err != nil {
			return nil, err
		}
		if n, ok := e.Exp.(Num); ok {
			if k := float64(n); k == math.Trunc(k) && math.Abs(k) <= maxIntPow {
				ik := int(k)
				return func(s []float64) float64 { return ipow(b(s), ik) }, nil
			}
			if n == 0.5 {
				return func(s []float64) float64 { return math.Sqrt(b(s)) }, nil
			}
		}
		x, err := Compile(e.Exp, slots)
		if err != nil {
			return nil, err
		}
		return func(s []float64) float64 { return math.Pow(b(s), x(s)) }, nil

	case Call:
		f, ok := mathFuncs[e.Fn]
		if !ok {
			return nil, fmt.Errorf("%w: function %s", ErrUnsupported, e.Fn)
		}
		a, err := Compile(e.Arg, slots)
		if err != nil {
			return nil, err
		}
		return func(s []float64) float64 { return f(a(s)) }, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupported, e)
}

// ipow computes x^n by binary exponentiation.
func ipow(x float64, n int) float64 {
	if n < 0 {
		return 1 / ipow(x, -n)
	}
	result := 1.0
	for n > 0 {
		if n&1 == 1 {
			result *= x
		}
		x *= x
		n >>= 1
	}
	return result
}
