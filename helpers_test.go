package ncagg

import (
	"context"
	"fmt"
)

// fakeGranule is an in-memory GranuleReader over a schema plus a fixed set
// of 1-D variable arrays, sufficient to exercise the planner and evaluator
// without any real file I/O.
type fakeGranule struct {
	path   string
	schema *Schema
	data   map[string][]float64
	closed bool
}

func newFakeGranule(path string, schema *Schema, data map[string][]float64) *fakeGranule {
	return &fakeGranule{path: path, schema: schema, data: data}
}

func (g *fakeGranule) Schema(ctx context.Context) (*Schema, error) { return g.schema, nil }

func (g *fakeGranule) ReadVar(ctx context.Context, name string, rng DimRange) (VarData, error) {
	full, ok := g.data[name]
	if !ok {
		return VarData{}, fmt.Errorf("fakeGranule: no data for %s", name)
	}
	if rng.Stop > len(full) {
		return VarData{}, fmt.Errorf("fakeGranule: out of range read of %s [%d:%d), len %d", name, rng.Start, rng.Stop, len(full))
	}
	slice := append([]float64(nil), full[rng.Start:rng.Stop]...)
	return VarData{Shape: []int{len(slice)}, Values: slice}, nil
}

func (g *fakeGranule) Close() error { g.closed = true; return nil }

func fakeOpener(granules map[string]*fakeGranule) ReaderOpener {
	return func(path string) (GranuleReader, error) {
		g, ok := granules[path]
		if !ok {
			return nil, fmt.Errorf("fakeOpener: no granule registered for %s", path)
		}
		return g, nil
	}
}

// fakeWriter is an in-memory GranuleWriter recording every write, in order,
// keyed by variable name.
type fakeWriter struct {
	schema  *Schema
	writes  map[string][]float64
	attrs   map[string]interface{}
	defined bool
	closed  bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{writes: map[string][]float64{}, attrs: map[string]interface{}{}}
}

func (w *fakeWriter) DefineSchema(ctx context.Context, schema *Schema) error {
	w.schema = schema
	w.defined = true
	for name, val := range schema.GlobalAttrs {
		w.attrs[name] = val
	}
	return nil
}

func (w *fakeWriter) WriteVar(ctx context.Context, name string, rng DimRange, data VarData) error {
	vals, ok := data.Values.([]float64)
	if !ok {
		return fmt.Errorf("fakeWriter: only []float64 supported in tests, got %T", data.Values)
	}
	cur := w.writes[name]
	for len(cur) < rng.Stop {
		cur = append(cur, 0)
	}
	copy(cur[rng.Start:rng.Stop], vals)
	w.writes[name] = cur
	return nil
}

func (w *fakeWriter) SetGlobalAttr(ctx context.Context, name string, value interface{}) error {
	w.attrs[name] = value
	return nil
}

func (w *fakeWriter) Close() error { w.closed = true; return nil }
