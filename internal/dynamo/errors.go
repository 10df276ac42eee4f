package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrConfiguration indicates inputs that can never produce a valid run.
	ErrConfiguration = errors.New("dynamo: invalid configuration")

	// ErrKernelCompilation indicates an interaction that cannot be compiled.
	ErrKernelCompilation = errors.New("dynamo: kernel compilation failed")

	// ErrNumericDivergence indicates a NaN or Inf in the particle state.
	ErrNumericDivergence = errors.New("dynamo: numeric divergence (NaN or Inf detected)")

	// ErrNeighborListInvariant indicates a neighbor list that no longer covers all interacting pairs.
	ErrNeighborListInvariant = errors.New("dynamo: neighbor list invariant violated")

	// ErrContextCanceled indicates the simulation was interrupted between steps.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")
)

type ConfigurationError struct {
	Field  string
	Reason string
}

// Configf builds a ConfigurationError for field with a formatted reason.
func Configf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

type KernelCompilationError struct {
	Spec string
	Expr string
	Err  error
}

func (e *KernelCompilationError) Error() string {
	msg := fmt.Sprintf("%v: %s", ErrKernelCompilation, e.Spec)
	if e.Expr != "" {
		msg += fmt.Sprintf(" (%q)", e.Expr)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KernelCompilationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrKernelCompilation}
	}
	return []error{ErrKernelCompilation, e.Err}
}

// NumericDivergenceError reports the first non-finite quantity found after
// a step. Step is the index of the step that produced it.
type NumericDivergenceError struct {
	Step     int
	Time     float64
	Particle int
	Quantity string
}

func (e *NumericDivergenceError) Error() string {
	if e.Particle < 0 {
		return fmt.Sprintf("%v: step %d (t=%.4f): %s", ErrNumericDivergence, e.Step, e.Time, e.Quantity)
	}
	return fmt.Sprintf("%v: step %d (t=%.4f): %s of particle %d", ErrNumericDivergence, e.Step, e.Time, e.Quantity, e.Particle)
}

func (e *NumericDivergenceError) Unwrap() error { return ErrNumericDivergence }

type NeighborListInvariantViolation struct {
	Reason   string
	Particle int
}

func (e *NeighborListInvariantViolation) Error() string {
	if e.Particle < 0 {
		return fmt.Sprintf("%v: %s", ErrNeighborListInvariant, e.Reason)
	}
	return fmt.Sprintf("%v: particle %d: %s", ErrNeighborListInvariant, e.Particle, e.Reason)
}

func (e *NeighborListInvariantViolation) Unwrap() error { return ErrNeighborListInvariant }
