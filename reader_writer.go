package ncagg

import "context"

// GranuleReader is the read side of the external interface boundary:
// whatever concrete format a granule lives in, the engine only ever
// talks to it through this. netcdfio.Reader is the production implementation
// atop github.com/ctessum/cdf; tests supply in-memory fakes.
type GranuleReader interface {
	// Schema reports the granule's dimensions, variables and global
	// attributes as laid out on disk.
	Schema(ctx context.Context) (*Schema, error)

	// ReadVar reads variable name's full extent along rng.Dim, restricted
	// to the half-open window [rng.Start, rng.Stop). Other dimensions of
	// the variable are read in full.
	ReadVar(ctx context.Context, name string, rng DimRange) (VarData, error)

	// Close releases any resources (open file handles) held by the reader.
	Close() error
}

// GranuleWriter is the write side. The evaluator calls
// DefineSchema exactly once, then WriteVar any number of times with
// strictly non-decreasing, non-overlapping windows per (variable, dim).
type GranuleWriter interface {
	// DefineSchema declares the output's dimensions, variables and
	// initial global attribute values. Must be called before any WriteVar.
	DefineSchema(ctx context.Context, schema *Schema) error

	// WriteVar writes data at the half-open window [rng.Start, rng.Stop)
	// along rng.Dim for variable name.
	WriteVar(ctx context.Context, name string, rng DimRange, data VarData) error

	// SetGlobalAttr sets (or overwrites) global attribute name to value.
	// Called by the evaluator once per configured attribute, after all
	// variables have been written, as the final step of evaluation.
	SetGlobalAttr(ctx context.Context, name string, value interface{}) error

	// Close finalizes and closes the output. The writer never renames its
	// file; Aggregate renames the temp file into place after Close succeeds.
	Close() error
}

// ReaderOpener opens the granule at path for reading. BuildDescriptors and
// Aggregate both take one of these rather than constructing readers
// directly, so tests can substitute an in-memory fake.
type ReaderOpener func(path string) (GranuleReader, error)
