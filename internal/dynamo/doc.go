// Package dynamo holds the vocabulary shared by every stage of the engine.
//
// It defines the error taxonomy used across packages and the per-report
// record produced by the driver:
//
//   - [ConfigurationError]: invalid inputs detected before or during setup
//   - [KernelCompilationError]: an interaction could not be lowered to a kernel
//   - [NumericDivergenceError]: a non-finite value appeared during a step
//   - [NeighborListInvariantViolation]: the spatial index cannot be trusted
//   - [Summary]: thermodynamic scalars emitted every report interval
//
// Each error type matches its sentinel through [errors.Is] and can be
// recovered with [errors.As]:
//
//	var div *dynamo.NumericDivergenceError
//	if errors.As(err, &div) {
//		log.Printf("diverged at step %d", div.Step)
//	}
package dynamo
