// Package spatial builds and maintains the neighbor index.
//
// [Build] bins particles into a regular cell grid whose cells are at least
// cutoff+skin wide and records, for every particle, all other particles within
// cutoff+skin under the minimum-image convention. The result is an immutable
// [Index] in compressed row form.
//
// A [List] owns the current index, a [Tracker] of displacements accumulated
// since the last build, and the [Policy] that decides when the index must be
// rebuilt. An index stays valid as long as no pair can have moved from beyond
// cutoff+skin to within cutoff, which is what both policies guarantee.
package spatial
