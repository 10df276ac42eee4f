// Package compute models the massively parallel device the engine runs on.
//
// Work is expressed as launches over a [Grid] of blocks, each block holding a
// fixed number of threads (lanes). A launch returns only after every lane has
// finished, so launches issued one after another never overlap.
//
// Two reduction strategies are available for scattering contributions into a
// shared buffer:
//
//   - [Atomic]: every lane adds directly into an [Accumulator] with
//     compare-and-swap float addition
//   - [BlockReduce]: each block writes into its own partial buffer and a
//     second launch sums the partials in a fixed order ([BlockBuffer])
//
// The block strategy is deterministic; the atomic one is not, because the
// order of floating point additions depends on scheduling.
package compute
