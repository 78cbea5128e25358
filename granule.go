package ncagg

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/ctessum/sparse"
	"golang.org/x/sync/errgroup"
)

// Descriptor summarizes one input granule's relevant metadata, gathered
// once up front so the planner never needs to reopen a file to make a
// sorting or bound decision.
type Descriptor struct {
	Path string

	// DimSizes is the granule's size along every dimension named in the
	// Config, unlimited dims included (as found on disk).
	DimSizes map[string]int

	// IndexValues holds, per UDim name, the index_by variable's values
	// projected to float64, in on-disk order. Populated only for UDims
	// that carry an IndexBy in their UDC; nil otherwise (flatten or
	// filename-ordered concatenation).
	IndexValues map[string]*sparse.DenseArray

	// Attrs is the granule's global attribute map, used by the attribute
	// reduction strategies during evaluation.
	Attrs map[string]interface{}

	// MissingVars lists variables named in the Config that this granule's
	// schema does not define. A leaf InputSlice over this granule returns
	// the variable's _FillValue for these instead of reading them, and the
	// one-shot copy of a non-unlimited variable skips this granule.
	MissingVars []string
}

// indexRange reports the [min, max] of the descriptor's projected index_by
// values for udim. ok is false when the descriptor holds no index values
// for udim (no IndexBy configured, or zero records).
func (d *Descriptor) indexRange(udim string) (min, max float64, ok bool) {
	arr := d.IndexValues[udim]
	if arr == nil || len(arr.Elements) == 0 {
		return 0, 0, false
	}
	min, max = arr.Elements[0], arr.Elements[0]
	for _, v := range arr.Elements {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, true
}

// BuildDescriptors opens each of paths via open, gathers its Descriptor, and
// closes it again, gathering up to workers files concurrently (0 means
// runtime.GOMAXPROCS(0)). Results preserve the input path order regardless
// of completion order, since file order is itself meaningful for UDims
// concatenated without an index_by.
func BuildDescriptors(ctx context.Context, cfg *Config, paths []string, open ReaderOpener, workers int) ([]*Descriptor, error) {
	if len(paths) == 0 {
		return nil, NoInputs{}
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	descs := make([]*Descriptor, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			d, err := describeOne(gctx, cfg, p, open)
			if err != nil {
				return err
			}
			descs[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return descs, nil
}

func describeOne(ctx context.Context, cfg *Config, path string, open ReaderOpener) (*Descriptor, error) {
	r, err := open(path)
	if err != nil {
		return nil, IOError{Op: fmt.Sprintf("opening %s", path), Err: err}
	}
	defer r.Close()

	schema, err := r.Schema(ctx)
	if err != nil {
		return nil, IOError{Op: fmt.Sprintf("reading schema of %s", path), Err: err}
	}

	d := &Descriptor{
		Path:        path,
		DimSizes:    map[string]int{},
		IndexValues: map[string]*sparse.DenseArray{},
		Attrs:       schema.GlobalAttrs,
	}
	for _, dim := range schema.Dimensions {
		d.DimSizes[dim.Name] = dim.Size
	}

	for _, dim := range cfg.Dimensions {
		if schema.dimByName(dim.Name) == nil {
			continue
		}
		if dim.Unlimited && dim.UDC != nil && dim.UDC.IndexBy != "" {
			indexVar := schema.varByName(dim.UDC.IndexBy)
			if indexVar == nil {
				return nil, SchemaMismatch{Granule: path, Reason: fmt.Sprintf("index_by variable %q not found", dim.UDC.IndexBy)}
			}
			vals, err := readIndexValues(ctx, r, indexVar, dim.Name, dim.UDC.OtherDimIndices, d.DimSizes[dim.Name])
			if err != nil {
				return nil, err
			}
			d.IndexValues[dim.Name] = vals
		}
	}

	for _, v := range cfg.Variables {
		if schema.varByName(v.Name) == nil {
			d.MissingVars = append(d.MissingVars, v.Name)
		}
	}
	sort.Strings(d.MissingVars)

	return d, nil
}

// readIndexValues reads indexVar and projects it down to a 1-D sequence of
// length n along dimName, the UDim indexVar is declared over. When indexVar
// carries other dimensions (e.g. a per-sample time variable also indexed by
// a within-record sample axis), every other axis is fixed at the index given
// in otherDimIndices, defaulting to 0 for an axis not named there.
func readIndexValues(ctx context.Context, r GranuleReader, indexVar *Variable, dimName string, otherDimIndices map[string]int, n int) (*sparse.DenseArray, error) {
	data, err := r.ReadVar(ctx, indexVar.Name, DimRange{Dim: dimName, Start: 0, Stop: n})
	if err != nil {
		return nil, IOError{Op: fmt.Sprintf("reading index_by variable %s", indexVar.Name), Err: err}
	}
	out := sparse.ZerosDense(n)
	if err := projectIndexValues(out.Elements, data, indexVar.Dimensions, dimName, otherDimIndices); err != nil {
		return nil, IndexVarNonNumeric{Variable: indexVar.Name}
	}
	return out, nil
}

// projectIndexValues reduces data (read with dimName's full extent and every
// other of indexVar's dimensions read in full, per GranuleReader.ReadVar's
// contract) to the 1-D sequence of values along dimName, fixing every other
// axis at otherDimIndices[axis] (0 if absent). dims is indexVar's declared
// dimension order, which together with data.Shape gives the row-major
// strides needed to locate each element.
func projectIndexValues(dst []float64, data VarData, dims []string, dimName string, otherDimIndices map[string]int) error {
	axis := -1
	for i, name := range dims {
		if name == dimName {
			axis = i
			break
		}
	}
	if axis < 0 {
		return fmt.Errorf("ncagg: index_by variable does not have dimension %q", dimName)
	}

	strides := make([]int, len(data.Shape))
	stride := 1
	for i := len(data.Shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= data.Shape[i]
	}

	fixed := make([]int, len(dims))
	for i, name := range dims {
		if i != axis {
			fixed[i] = otherDimIndices[name]
		}
	}

	for i := range dst {
		offset := 0
		for a := range dims {
			idx := fixed[a]
			if a == axis {
				idx = i
			}
			offset += idx * strides[a]
		}
		v, ok := numericAt(data.Values, offset)
		if !ok {
			return fmt.Errorf("ncagg: non-numeric index values of type %T", data.Values)
		}
		dst[i] = v
	}
	return nil
}

// numericAt returns src[idx] converted to float64, for any of the numeric
// slice types ReadVar may return.
func numericAt(src interface{}, idx int) (float64, bool) {
	switch s := src.(type) {
	case []int8:
		return float64(s[idx]), true
	case []uint8:
		return float64(s[idx]), true
	case []int16:
		return float64(s[idx]), true
	case []int32:
		return float64(s[idx]), true
	case []int64:
		return float64(s[idx]), true
	case []float32:
		return float64(s[idx]), true
	case []float64:
		return s[idx], true
	default:
		return 0, false
	}
}

