package ncagg

import (
	"context"
	"fmt"
)

// WriteWindow names a half-open [Start, Start+Len) window along Dim in the
// output's coordinate space, as handed to Node.DataFor by the evaluator.
type WriteWindow struct {
	Dim   string
	Start int
	Len   int
}

// Stop returns the window's exclusive upper bound.
func (w WriteWindow) Stop() int { return w.Start + w.Len }

// Node is one step of a Plan: a contiguous span along one UDim that the
// evaluator consumes in order, advancing its write cursor by SizeAlong(dim)
// records each time. Per the design, there are exactly two kinds: InputSlice
// (real data, read from a granule or from a recursively nested mini-plan)
// and FillSegment (synthetic fill values for a data gap). Polymorphism is
// expressed through this interface rather than a type switch, but no third
// kind is ever introduced.
type Node interface {
	// SizeAlong returns how many records along dim this node contributes.
	// dim is always the UDim the owning Plan entry is keyed by.
	SizeAlong(dim string) int

	// DataFor returns variable's data for this node, restricted to window
	// (which is always exactly this node's own extent along window.Dim).
	DataFor(ctx context.Context, variable *Variable, window WriteWindow) (VarData, error)
}

// InputSlice is a contiguous run of records taken from one granule (or, when
// mini is non-nil, from a nested mini-plan of further InputSlice/FillSegment
// nodes internal to that one granule — the two-level structure used when a
// single file itself contains an internal gap or overlap along its own
// unlimited dimension).
type InputSlice struct {
	Granule *Descriptor
	Dim     string
	// Range is this slice's extent in the *source granule's* own index
	// space along Dim. Ignored when mini != nil.
	Range DimRange

	// mini, when non-nil, is this slice's internal mini-plan: further
	// Nodes (always InputSlices with mini == nil, plus FillSegments)
	// whose combined SizeAlong sums to len(mini-spanned window). A leaf
	// InputSlice (mini == nil) is the thing that actually performs I/O.
	mini []Node

	open ReaderOpener
}

// NewInputSlice builds a leaf InputSlice reading [rng] of dim from granule.
func NewInputSlice(granule *Descriptor, dim string, rng DimRange, open ReaderOpener) *InputSlice {
	return &InputSlice{Granule: granule, Dim: dim, Range: rng, open: open}
}

// NewMiniPlanSlice builds an InputSlice whose extent along dim is the sum of
// mini's nodes, each of which is itself resolved recursively.
func NewMiniPlanSlice(granule *Descriptor, dim string, mini []Node) *InputSlice {
	return &InputSlice{Granule: granule, Dim: dim, mini: mini}
}

func (s *InputSlice) SizeAlong(dim string) int {
	if s.mini != nil {
		total := 0
		for _, n := range s.mini {
			total += n.SizeAlong(dim)
		}
		return total
	}
	if dim != s.Dim {
		return 0
	}
	return s.Range.Len()
}

func (s *InputSlice) DataFor(ctx context.Context, variable *Variable, window WriteWindow) (VarData, error) {
	if s.mini != nil {
		return s.dataForMini(ctx, variable, window)
	}
	return s.dataForLeaf(ctx, variable, window)
}

func (s *InputSlice) dataForLeaf(ctx context.Context, variable *Variable, window WriteWindow) (VarData, error) {
	if window.Len != s.Range.Len() {
		return VarData{}, fmt.Errorf("ncagg: internal error: window length %d != slice length %d for %s",
			window.Len, s.Range.Len(), s.Granule.Path)
	}
	if containsString(s.Granule.MissingVars, variable.Name) {
		shape := make([]int, len(variable.Dimensions))
		total := 1
		for i, d := range variable.Dimensions {
			shape[i] = s.Granule.DimSizes[d]
			if d == window.Dim {
				shape[i] = window.Len
			}
			total *= shape[i]
		}
		return VarData{Shape: shape, Values: repeatFill(variable, total)}, nil
	}
	r, err := s.open(s.Granule.Path)
	if err != nil {
		return VarData{}, IOError{Op: fmt.Sprintf("reopening %s", s.Granule.Path), Err: err}
	}
	defer r.Close()

	data, err := r.ReadVar(ctx, variable.Name, DimRange{Dim: window.Dim, Start: s.Range.Start, Stop: s.Range.Stop})
	if err != nil {
		return VarData{}, IOError{Op: fmt.Sprintf("reading %s from %s", variable.Name, s.Granule.Path), Err: err}
	}
	return data, nil
}

// dataForMini walks the nested mini-plan, carving window into sub-windows
// matching each child node's own extent and concatenating their results
// along window.Dim.
func (s *InputSlice) dataForMini(ctx context.Context, variable *Variable, window WriteWindow) (VarData, error) {
	var chunks []VarData
	cursor := window.Start
	for _, n := range s.mini {
		n := n
		length := n.SizeAlong(window.Dim)
		if length == 0 {
			continue
		}
		sub := WriteWindow{Dim: window.Dim, Start: cursor, Len: length}
		chunk, err := n.DataFor(ctx, variable, sub)
		if err != nil {
			return VarData{}, err
		}
		chunks = append(chunks, chunk)
		cursor += length
	}
	return concatAlongFirstDim(chunks)
}

// FillSegment synthesizes SizeAlong(Dim) records of filler data for a
// variable with no real input, either the variable's _FillValue repeated
// (every other variable) or a cadence lattice of synthetic index_by values
// (the UDim's index_by variable only, so downstream consumers still see
// monotonically increasing coordinates across the gap).
type FillSegment struct {
	Dim      string
	Len      int
	Cadence  float64 // expected cadence along Dim, Hz; 0 if unknown
	StartVal float64 // index_by projected value immediately before the gap

	// IndexByVar is the name of Dim's own index_by variable, the only
	// variable for which this segment synthesizes a cadence lattice rather
	// than repeating _FillValue. Any other single-dimensional variable
	// along Dim (a data variable, not the coordinate) still gets fill.
	IndexByVar string

	// DimSizes gives the declared size of every non-unlimited dimension in
	// the product Config, so a fill segment for a multi-dimensional
	// variable (e.g. time x level) can synthesize the right number of
	// elements rather than just Len.
	DimSizes map[string]int

	// InnerCadence gives the expected cadence, in Hz, of any other
	// dimension the index_by variable is also declared over (e.g. a
	// within-record sample axis), keyed by dimension name. Only consulted
	// when synthesizing the index lattice for a multidimensional index_by
	// variable; a dimension with no entry contributes a zero phase offset.
	InnerCadence map[string]float64
}

func (f *FillSegment) SizeAlong(dim string) int {
	if dim != f.Dim {
		return 0
	}
	return f.Len
}

func (f *FillSegment) DataFor(ctx context.Context, variable *Variable, window WriteWindow) (VarData, error) {
	if window.Len != f.Len {
		return VarData{}, fmt.Errorf("ncagg: internal error: fill window length %d != segment length %d", window.Len, f.Len)
	}

	shape := make([]int, len(variable.Dimensions))
	total := 1
	for i, d := range variable.Dimensions {
		if d == f.Dim {
			shape[i] = f.Len
		} else {
			shape[i] = f.DimSizes[d]
			if shape[i] == 0 {
				shape[i] = 1
			}
		}
		total *= shape[i]
	}

	if isIndexLattice(variable, f.IndexByVar) {
		return f.indexLatticeData(variable, shape)
	}

	return VarData{Shape: shape, Values: repeatFill(variable, total)}, nil
}

// indexLatticeData synthesizes the index_by coordinate lattice for variable,
// which may carry other dimensions besides f.Dim (e.g. a within-record
// sample axis). Each axis contributes an independent offset — f.Dim's axis
// advances by one cadence step per outer record from f.StartVal, any other
// axis advances by its own InnerCadence step starting at zero — and the
// value at each lattice point is their sum, mirroring the source tool's
// per-dimension linspace-and-sum construction so a gap spanning a
// multidimensional index still produces a monotonically increasing
// coordinate along f.Dim at every fixed position of the other axes.
func (f *FillSegment) indexLatticeData(variable *Variable, shape []int) (VarData, error) {
	axisVals := make([][]float64, len(variable.Dimensions))
	for axis, name := range variable.Dimensions {
		n := shape[axis]
		vals := make([]float64, n)
		if name == f.Dim {
			step := cadenceStep(f.Cadence)
			for i := range vals {
				vals[i] = f.StartVal + step*float64(i+1)
			}
		} else {
			step := cadenceStep(f.InnerCadence[name])
			for i := range vals {
				vals[i] = step * float64(i)
			}
		}
		axisVals[axis] = vals
	}

	total := 1
	for _, s := range shape {
		total *= s
	}
	strides := rowMajorStrides(shape)
	out := make([]float64, total)
	idx := make([]int, len(shape))
	for flat := range out {
		rem := flat
		for d := range shape {
			idx[d] = rem / strides[d]
			rem %= strides[d]
		}
		sum := 0.0
		for d := range shape {
			sum += axisVals[d][idx[d]]
		}
		out[flat] = sum
	}
	return VarData{Shape: shape, Values: out}, nil
}

// isIndexLattice reports whether variable is indexByVar, the one case where
// fill values must be synthesized on a cadence lattice rather than repeated
// as _FillValue, so the output coordinate stays monotonic across a gap.
func isIndexLattice(variable *Variable, indexByVar string) bool {
	return indexByVar != "" && variable.Name == indexByVar
}

func repeatFill(variable *Variable, n int) interface{} {
	fv := variable.FillValue()
	switch variable.Datatype {
	case Int8:
		v, _ := fv.(int8)
		return repeat(v, n)
	case UInt8, Char:
		v, _ := fv.(uint8)
		return repeat(v, n)
	case Int16:
		v, _ := fv.(int16)
		return repeat(v, n)
	case Int32:
		v, _ := fv.(int32)
		return repeat(v, n)
	case Int64:
		v, _ := fv.(int64)
		return repeat(v, n)
	case Float32:
		v, _ := fv.(float32)
		return repeat(v, n)
	case Float64:
		v, _ := fv.(float64)
		return repeat(v, n)
	case String:
		v, _ := fv.(string)
		return repeat(v, n)
	default:
		return nil
	}
}

func repeat[T any](v T, n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// concatAlongFirstDim concatenates chunks along their shared leading
// dimension. All chunks must share the same Go element type and the same
// trailing shape.
func concatAlongFirstDim(chunks []VarData) (VarData, error) {
	if len(chunks) == 0 {
		return VarData{}, nil
	}
	if len(chunks) == 1 {
		return chunks[0], nil
	}
	total := 0
	for _, c := range chunks {
		total += c.Shape[0]
	}
	shape := append([]int{total}, chunks[0].Shape[1:]...)

	switch chunks[0].Values.(type) {
	case []int8:
		return VarData{Shape: shape, Values: concatTyped[int8](chunks)}, nil
	case []uint8:
		return VarData{Shape: shape, Values: concatTyped[uint8](chunks)}, nil
	case []int16:
		return VarData{Shape: shape, Values: concatTyped[int16](chunks)}, nil
	case []int32:
		return VarData{Shape: shape, Values: concatTyped[int32](chunks)}, nil
	case []int64:
		return VarData{Shape: shape, Values: concatTyped[int64](chunks)}, nil
	case []float32:
		return VarData{Shape: shape, Values: concatTyped[float32](chunks)}, nil
	case []float64:
		return VarData{Shape: shape, Values: concatTyped[float64](chunks)}, nil
	case []string:
		return VarData{Shape: shape, Values: concatTyped[string](chunks)}, nil
	default:
		return VarData{}, fmt.Errorf("ncagg: internal error: unsupported value type %T in mini-plan concat", chunks[0].Values)
	}
}

// padFlattenAxes pads every axis of data naming a flatten-configured
// dimension other than primaryDim up to that dimension's planned size
// (flattenSizes), so a granule that contributed fewer records along a
// flattened axis than some other granule still lines up against the
// output's full declared extent for that axis.
func padFlattenAxes(data VarData, variable *Variable, primaryDim string, flattenSizes map[string]int) (VarData, error) {
	for axis, name := range variable.Dimensions {
		if name == primaryDim {
			continue
		}
		target, ok := flattenSizes[name]
		if !ok {
			continue
		}
		padded, err := padVarDataAxis(data, axis, target, variable.FillValue())
		if err != nil {
			return VarData{}, err
		}
		data = padded
	}
	return data, nil
}

// padVarDataAxis pads data's axis out to target length with fillValue,
// leaving data unchanged if it already meets or exceeds target.
func padVarDataAxis(data VarData, axis, target int, fillValue interface{}) (VarData, error) {
	if axis >= len(data.Shape) || data.Shape[axis] >= target {
		return data, nil
	}
	switch vals := data.Values.(type) {
	case []int8:
		fv, _ := fillValue.(int8)
		out, shape := padAxis(vals, data.Shape, axis, target, fv)
		return VarData{Shape: shape, Values: out}, nil
	case []uint8:
		fv, _ := fillValue.(uint8)
		out, shape := padAxis(vals, data.Shape, axis, target, fv)
		return VarData{Shape: shape, Values: out}, nil
	case []int16:
		fv, _ := fillValue.(int16)
		out, shape := padAxis(vals, data.Shape, axis, target, fv)
		return VarData{Shape: shape, Values: out}, nil
	case []int32:
		fv, _ := fillValue.(int32)
		out, shape := padAxis(vals, data.Shape, axis, target, fv)
		return VarData{Shape: shape, Values: out}, nil
	case []int64:
		fv, _ := fillValue.(int64)
		out, shape := padAxis(vals, data.Shape, axis, target, fv)
		return VarData{Shape: shape, Values: out}, nil
	case []float32:
		fv, _ := fillValue.(float32)
		out, shape := padAxis(vals, data.Shape, axis, target, fv)
		return VarData{Shape: shape, Values: out}, nil
	case []float64:
		fv, _ := fillValue.(float64)
		out, shape := padAxis(vals, data.Shape, axis, target, fv)
		return VarData{Shape: shape, Values: out}, nil
	case []string:
		fv, _ := fillValue.(string)
		out, shape := padAxis(vals, data.Shape, axis, target, fv)
		return VarData{Shape: shape, Values: out}, nil
	default:
		return VarData{}, fmt.Errorf("ncagg: internal error: unsupported value type %T for flatten padding", data.Values)
	}
}

// padAxis re-lays data (shaped shape, row-major) out into a new array whose
// axis dimension is target instead of shape[axis], copying every existing
// element to its corresponding position and filling the rest with fill.
func padAxis[T any](data []T, shape []int, axis, target int, fill T) ([]T, []int) {
	newShape := append([]int(nil), shape...)
	newShape[axis] = target

	oldStrides := rowMajorStrides(shape)
	newStrides := rowMajorStrides(newShape)

	total := 1
	for _, s := range newShape {
		total *= s
	}
	out := make([]T, total)
	for i := range out {
		out[i] = fill
	}

	idx := make([]int, len(shape))
	for flat := range data {
		rem := flat
		for d := range shape {
			idx[d] = rem / oldStrides[d]
			rem %= oldStrides[d]
		}
		newFlat := 0
		for d := range newShape {
			newFlat += idx[d] * newStrides[d]
		}
		out[newFlat] = data[flat]
	}
	return out, newShape
}

// rowMajorStrides returns, for each axis of shape, the flat-index stride of
// a one-element step along that axis in row-major layout.
func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func concatTyped[T any](chunks []VarData) []T {
	total := 0
	for _, c := range chunks {
		total += len(c.Values.([]T))
	}
	out := make([]T, 0, total)
	for _, c := range chunks {
		out = append(out, c.Values.([]T)...)
	}
	return out
}
