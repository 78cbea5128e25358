// Package ncagg implements the plan-and-evaluate engine at the core of
// ncagg: it merges many small, time-indexed NetCDF granules into a single
// output file while preserving schema and honoring per-dimension indexing
// rules.
//
// The package is organized leaves-first:
//
//	Config              - product configuration: dimensions, variables, global attributes
//	Descriptor          - one-shot inspection of a single input granule
//	Node (InputSlice,    - the two node kinds that make up a Plan
//	     FillSegment)
//	Plan, BuildPlan     - the planner: sort, dedup, fill, bound-chop per UDim
//	Evaluate            - the evaluator: walks a Plan and streams into a writer
//	Strategy            - global attribute reduction strategies
//
// The engine never imports a concrete NetCDF library; it consumes the
// GranuleReader and GranuleWriter interfaces and leaves the physical file
// format to a caller-supplied adapter (see the sibling netcdfio package for
// a reference implementation on top of github.com/ctessum/cdf).
package ncagg

// Version is the engine version string threaded into the attribute
// strategy context by the ncagg_version strategy. It is passed at Config
// construction rather than read from package state.
const Version = "1.0.0"
