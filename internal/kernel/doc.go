// Package kernel compiles interactions into device kernels and caches them.
//
// A kernel is bound to the structural identity of an interaction and to one
// launch configuration. Parameter values are read from the interaction on
// every launch, so changing them never triggers a recompilation; changing the
// expression, the parameter list, the cutoff shift or the launch
// configuration does.
package kernel
