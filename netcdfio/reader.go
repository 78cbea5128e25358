package netcdfio

import (
	"context"
	"fmt"
	"os"

	"github.com/5tefan/ncagg"
	"github.com/ctessum/cdf"
)

// Reader is a ncagg.GranuleReader backed by an on-disk NetCDF classic file.
type Reader struct {
	f    *os.File
	file *cdf.File
}

// Open opens path for reading. The returned Reader must be Closed.
func Open(path string) (ncagg.GranuleReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("netcdfio: opening %s: %w", path, err)
	}
	file, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("netcdfio: reading header of %s: %w", path, err)
	}
	return &Reader{f: f, file: file}, nil
}

func (r *Reader) Close() error { return r.f.Close() }

func (r *Reader) Schema(ctx context.Context) (*ncagg.Schema, error) {
	h := r.file.Header
	names := h.Dimensions("")
	lengths := h.Lengths("")

	fsize, err := r.fileSize()
	if err != nil {
		return nil, err
	}
	numRecs := h.NumRecs(fsize)

	schema := &ncagg.Schema{GlobalAttrs: map[string]interface{}{}}
	for i, name := range names {
		dim := ncagg.Dimension{Name: name, Size: lengths[i]}
		if lengths[i] == 0 {
			dim.Unlimited = true
			dim.Size = int(numRecs)
		}
		schema.Dimensions = append(schema.Dimensions, dim)
	}

	for _, vname := range h.Variables() {
		dt, err := dataTypeOf(h.ZeroValue(vname, 1))
		if err != nil {
			return nil, fmt.Errorf("netcdfio: variable %s: %w", vname, err)
		}
		attrs := map[string]interface{}{}
		for _, a := range h.Attributes(vname) {
			attrs[a] = h.GetAttribute(vname, a)
		}
		schema.Variables = append(schema.Variables, &ncagg.Variable{
			Name:       vname,
			Dimensions: h.Dimensions(vname),
			Datatype:   dt,
			Attributes: attrs,
		})
	}

	for _, a := range h.Attributes("") {
		schema.GlobalAttrs[a] = h.GetAttribute("", a)
	}

	return schema, nil
}

func (r *Reader) fileSize() (int64, error) {
	fi, err := r.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("netcdfio: stat: %w", err)
	}
	return fi.Size(), nil
}

func (r *Reader) ReadVar(ctx context.Context, name string, rng ncagg.DimRange) (ncagg.VarData, error) {
	h := r.file.Header
	dims := h.Dimensions(name)
	lengths := h.Lengths(name)
	if dims == nil {
		return ncagg.VarData{}, fmt.Errorf("netcdfio: no such variable %q", name)
	}

	begin := make([]int, len(dims))
	end := make([]int, len(dims))
	shape := make([]int, len(dims))
	for i, d := range dims {
		if d == rng.Dim {
			begin[i], end[i] = rng.Start, rng.Stop
		} else {
			begin[i], end[i] = 0, lengths[i]
		}
		shape[i] = end[i] - begin[i]
	}

	reader := r.file.Reader(name, begin, end)
	if reader == nil {
		return ncagg.VarData{}, fmt.Errorf("netcdfio: no such variable %q", name)
	}
	n := 1
	for _, s := range shape {
		n *= s
	}
	buf := reader.Zero(n)
	if _, err := reader.Read(buf); err != nil {
		return ncagg.VarData{}, fmt.Errorf("netcdfio: reading %s: %w", name, err)
	}

	values, err := toEngineValues(buf)
	if err != nil {
		return ncagg.VarData{}, err
	}
	return ncagg.VarData{Shape: shape, Values: values}, nil
}

// dataTypeOf maps a zero-value slice/string returned by cdf's Header.ZeroValue
// to the engine's DataType enum.
func dataTypeOf(zero interface{}) (ncagg.DataType, error) {
	switch zero.(type) {
	case []uint8:
		return ncagg.UInt8, nil
	case string:
		return ncagg.Char, nil
	case []int16:
		return ncagg.Int16, nil
	case []int32:
		return ncagg.Int32, nil
	case []float32:
		return ncagg.Float32, nil
	case []float64:
		return ncagg.Float64, nil
	default:
		return 0, fmt.Errorf("unrecognized cdf zero value type %T", zero)
	}
}

// toEngineValues passes cdf's read buffer through unchanged: cdf's own
// type set ([]uint8, []int16, []int32, []float32, []float64, string) is a
// subset of the engine's DataType slice types, so no conversion is needed
// beyond the CHAR special case, where cdf returns a Go string for a read of
// length 1 character's worth of cells in some code paths; Int8/Int64/String
// (engine-only types with no classic-format counterpart) are never
// produced by this reader.
func toEngineValues(buf interface{}) (interface{}, error) {
	switch v := buf.(type) {
	case []uint8:
		return v, nil
	case []int16:
		return v, nil
	case []int32:
		return v, nil
	case []float32:
		return v, nil
	case []float64:
		return v, nil
	case string:
		return []uint8(v), nil
	default:
		return nil, fmt.Errorf("netcdfio: unsupported value type %T from cdf reader", buf)
	}
}
