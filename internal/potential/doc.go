// Package potential describes interactions and the expression language they
// are written in.
//
// Energies are algebraic expressions over the pair distance r (pair and bond
// interactions) or the coordinates x, y, z (external fields) plus named
// parameters:
//
//	4*eps*(pow(sigma/r, 12) - pow(sigma/r, 6))
//
// Supported operations are + - * /, unary minus, pow(a, b) and the functions
// exp, log, sqrt, sin, cos, tan, sinh, cosh, tanh, abs, erf and erfc. Anything
// else is rejected with [ErrUnsupported].
//
// [Lower] parses an interaction, applies its cutoff shift, differentiates it
// symbolically and renames parameters to positional slots. The slot-renamed
// form is the interaction's structural identity: two interactions that differ
// only in parameter values lower to the same [Lowered.Canonical] string.
package potential
