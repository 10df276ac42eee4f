package potential

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
)

var (
	// ErrUnsupported marks an operation outside the expression language.
	ErrUnsupported = errors.New("potential: unsupported operation")

	// ErrUnknownSymbol marks a name that is neither a variable nor a parameter.
	ErrUnknownSymbol = errors.New("potential: unknown symbol")
)

// functions of one argument and their derivative with respect to it
var unary = map[string]func(a Expr) Expr{
	"exp":  func(a Expr) Expr { return Call{"exp", a} },
	"log":  func(a Expr) Expr { return Bin{'/', Num(1), a} },
	"sqrt": func(a Expr) Expr { return Bin{'/', Num(1), Bin{'*', Num(2), Call{"sqrt", a}}} },
	"sin":  func(a Expr) Expr { return Call{"cos", a} },
	"cos":  func(a Expr) Expr { return Neg{Call{"sin", a}} },
	"tan":  func(a Expr) Expr { return Bin{'+', Num(1), Pow{Call{"tan", a}, Num(2)}} },
	"sinh": func(a Expr) Expr { return Call{"cosh", a} },
	"cosh": func(a Expr) Expr { return Call{"sinh", a} },
	"tanh": func(a Expr) Expr { return Bin{'-', Num(1), Pow{Call{"tanh", a}, Num(2)}} },
	"abs":  func(a Expr) Expr { return Bin{'/', a, Call{"abs", a}} },
	"erf":  func(a Expr) Expr { return Bin{'*', Num(2 / math.SqrtPi), Call{"exp", Neg{Pow{a, Num(2)}}}} },
	"erfc": func(a Expr) Expr { return Bin{'*', Num(-2 / math.SqrtPi), Call{"exp", Neg{Pow{a, Num(2)}}}} },
}

var constants = map[string]float64{
	"pi": math.Pi,
}

// Parse reads an expression written with Go arithmetic syntax.
func Parse(src string) (Expr, error) {
	node, err := parser.ParseExpr(src)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot parse %q: %v", ErrUnsupported, src, err)
	}
	return convert(node)
}

func convert(n ast.Expr) (Expr, error) {
	switch n := n.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return nil, fmt.Errorf("%w: literal %s", ErrUnsupported, n.Value)
		}
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: literal %s: %v", ErrUnsupported, n.Value, err)
		}
		return Num(v), nil

	case *ast.Ident:
		if c, ok := constants[n.Name]; ok {
			return Num(c), nil
		}
		return Var(n.Name), nil

	case *ast.ParenExpr:
		return convert(n.X)

	case *ast.UnaryExpr:
		x, err := convert(n.X)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.SUB:
			return Neg{x}, nil
		case token.ADD:
			return x, nil
		}
		return nil, fmt.Errorf("%w: unary operator %s", ErrUnsupported, n.Op)

	case *ast.BinaryExpr:
		var op byte
		switch n.Op {
		case token.ADD:
			op = '+'
		case token.SUB:
			op = '-'
		case token.MUL:
			op = '*'
		case token.QUO:
			op = '/'
		default:
			return nil, fmt.Errorf("%w: operator %s", ErrUnsupported, n.Op)
		}
		l, err := convert(n.X)
		if err != nil {
			return nil, err
		}
		r, err := convert(n.Y)
		if err != nil {
			return nil, err
		}
		return Bin{op, l, r}, nil

	case *ast.CallExpr:
		fn, ok := n.Fun.(*ast.Ident)
		if !ok || n.Ellipsis.IsValid() {
			return nil, fmt.Errorf("%w: call form", ErrUnsupported)
		}
		args := make([]Expr, len(n.Args))
		for i, a := range n.Args {
			e, err := convert(a)
			if err != nil {
				return nil, err
			}
			args[i] = e
		}
		if fn.Name == "pow" {
			if len(args) != 2 {
				return nil, fmt.Errorf("%w: pow takes 2 arguments, got %d", ErrUnsupported, len(args))
			}
			return Pow{args[0], args[1]}, nil
		}
		if _, ok := unary[fn.Name]; !ok {
			return nil, fmt.Errorf("%w: function %s", ErrUnsupported, fn.Name)
		}
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s takes 1 argument, got %d", ErrUnsupported, fn.Name, len(args))
		}
		return Call{fn.Name, args[0]}, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupported, n)
}
