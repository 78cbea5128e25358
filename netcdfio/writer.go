package netcdfio

import (
	"context"
	"fmt"
	"os"

	"github.com/5tefan/ncagg"
	"github.com/ctessum/cdf"
)

// Writer is a ncagg.GranuleWriter that builds a NetCDF classic file atop
// github.com/ctessum/cdf. DefineSchema must be called exactly once,
// before any WriteVar, mirroring cdf's mutable-Header-until-Define split.
type Writer struct {
	path string
	f    *os.File
	file *cdf.File
	// attrOrder is not set by any method of Writer. DefineSchema adds the
	// global attributes in the map iteration order of Schema.GlobalAttrs,
	// so their order in the written file is not defined.
	attrOrder []string
}

// Create opens path for writing, truncating any existing file. DefineSchema
// must be called before any other method.
func Create(path string) (ncagg.GranuleWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("netcdfio: creating %s: %w", path, err)
	}
	return &Writer{path: path, f: f}, nil
}

func (w *Writer) DefineSchema(ctx context.Context, schema *ncagg.Schema) error {
	names := make([]string, len(schema.Dimensions))
	lengths := make([]int, len(schema.Dimensions))
	for i, d := range schema.Dimensions {
		names[i] = d.Name
		if d.Unlimited {
			lengths[i] = 0 // cdf's record-dimension marker
		} else {
			lengths[i] = d.Size
		}
	}
	h := cdf.NewHeader(names, lengths)

	for _, v := range schema.Variables {
		zero, err := cdfZeroValue(v.Datatype)
		if err != nil {
			return fmt.Errorf("netcdfio: variable %s: %w", v.Name, err)
		}
		h.AddVariable(v.Name, v.Dimensions, zero)
		for name, val := range v.Attributes {
			if name == "_FillValue" && v.Datatype == ncagg.Char {
				continue // CHAR variables carry no binary fill value in classic format
			}
			cv, err := toCDFAttrValue(val)
			if err != nil {
				continue
			}
			h.AddAttribute(v.Name, name, cv)
		}
	}
	for name, val := range schema.GlobalAttrs {
		cv, err := toCDFAttrValue(val)
		if err != nil {
			continue
		}
		h.AddAttribute("", name, cv)
	}
	h.Define()

	file, err := cdf.Create(w.f, h)
	if err != nil {
		return fmt.Errorf("netcdfio: writing header: %w", err)
	}
	w.file = file
	return nil
}

func (w *Writer) WriteVar(ctx context.Context, name string, rng ncagg.DimRange, data ncagg.VarData) error {
	h := w.file.Header
	dims := h.Dimensions(name)
	if dims == nil {
		return fmt.Errorf("netcdfio: no such variable %q", name)
	}
	lengths := h.Lengths(name)

	begin := make([]int, len(dims))
	end := make([]int, len(dims))
	for i, d := range dims {
		if d == rng.Dim {
			begin[i], end[i] = rng.Start, rng.Stop
		} else {
			begin[i], end[i] = 0, lengths[i]
			if lengths[i] == 0 {
				begin[i], end[i] = 0, data.Shape[i]
			}
		}
	}

	writer := w.file.Writer(name, begin, end)
	if writer == nil {
		return fmt.Errorf("netcdfio: no such variable %q", name)
	}
	cv, err := toCDFWriteValues(data.Values)
	if err != nil {
		return fmt.Errorf("netcdfio: writing %s: %w", name, err)
	}
	if _, err := writer.Write(cv); err != nil {
		return fmt.Errorf("netcdfio: writing %s: %w", name, err)
	}
	return nil
}

func (w *Writer) SetGlobalAttr(ctx context.Context, name string, value interface{}) error {
	// cdf's Header is immutable after Define. ncagg.Evaluate folds every
	// reduced global attribute into the Schema passed to DefineSchema
	// before it is ever called, so by the time SetGlobalAttr runs the
	// value is already on disk; this is a no-op for this writer.
	return nil
}

func (w *Writer) Close() error {
	if w.file != nil {
		if err := cdf.UpdateNumRecs(w.f); err != nil {
			w.f.Close()
			return fmt.Errorf("netcdfio: updating numrecs: %w", err)
		}
	}
	return w.f.Close()
}

func cdfZeroValue(dt ncagg.DataType) (interface{}, error) {
	switch dt {
	case ncagg.Int8, ncagg.UInt8, ncagg.Char:
		return []uint8{}, nil
	case ncagg.Int16:
		return []int16{}, nil
	case ncagg.Int32:
		return []int32{}, nil
	case ncagg.Float32:
		return []float32{}, nil
	case ncagg.Float64:
		return []float64{}, nil
	default:
		return nil, fmt.Errorf("datatype %s has no NetCDF classic representation", dt)
	}
}

// toCDFAttrValue coerces a JSON-decoded or string-reduced attribute value
// into one of the concrete types cdf.Header.AddAttribute accepts.
func toCDFAttrValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return []float64{val}, nil
	case float32:
		return []float32{val}, nil
	case int:
		return []int32{int32(val)}, nil
	case int32:
		return []int32{val}, nil
	case int64:
		return []int32{int32(val)}, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value type %T", v)
	}
}

// toCDFWriteValues converts an engine VarData.Values slice (possibly of a
// type the engine supports but classic NetCDF does not, like []int8) into
// the concrete type cdf's Writer.Write accepts.
func toCDFWriteValues(v interface{}) (interface{}, error) {
	switch vv := v.(type) {
	case []int8:
		out := make([]uint8, len(vv))
		for i, x := range vv {
			out[i] = uint8(x)
		}
		return out, nil
	case []uint8:
		return vv, nil
	case []int16:
		return vv, nil
	case []int32:
		return vv, nil
	case []float32:
		return vv, nil
	case []float64:
		return vv, nil
	case []string:
		if len(vv) == 1 {
			return vv[0], nil
		}
		return nil, fmt.Errorf("cannot write %d-element string slice as a single CHAR variable", len(vv))
	default:
		return nil, fmt.Errorf("unsupported value type %T for NetCDF classic write", v)
	}
}
