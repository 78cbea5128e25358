package ncagg

import "fmt"

// DataType enumerates the NetCDF datatypes the engine understands: the
// small, closed set github.com/ctessum/cdf supports plus Int8, Int64 and
// String, which have no NetCDF classic counterpart (NetCDF classic has no
// enum type either).
type DataType int

const (
	Int8 DataType = iota
	UInt8
	Int16
	Int32
	Int64
	Float32
	Float64
	Char
	String
)

func (d DataType) String() string {
	switch d {
	case Int8:
		return "int8"
	case UInt8:
		return "uint8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Char:
		return "char"
	case String:
		return "string"
	default:
		return fmt.Sprintf("datatype(%d)", int(d))
	}
}

// ParseDataType maps a config "datatype" string to a DataType. Accepted
// spellings follow numpy/netCDF4-python conventions since those are what
// sample files and hand-written configs are likely to carry.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "int8", "byte", "b":
		return Int8, nil
	case "uint8", "u1":
		return UInt8, nil
	case "int16", "short", "i2":
		return Int16, nil
	case "int32", "int", "i4", "i":
		return Int32, nil
	case "int64", "i8", "long":
		return Int64, nil
	case "float32", "float", "f4", "f":
		return Float32, nil
	case "float64", "double", "f8", "d":
		return Float64, nil
	case "char", "S1":
		return Char, nil
	case "string", "str", "vlen_str":
		return String, nil
	default:
		return 0, fmt.Errorf("ncagg: unrecognized datatype %q", s)
	}
}

// DefaultFillValue returns the netCDF-classic default fill value for d, used
// when a variable's config doesn't carry an explicit _FillValue attribute.
func (d DataType) DefaultFillValue() interface{} {
	switch d {
	case Int8:
		return int8(-127)
	case UInt8:
		return uint8(255)
	case Int16:
		return int16(-32767)
	case Int32:
		return int32(-2147483647)
	case Int64:
		return int64(-9223372036854775806)
	case Float32:
		return float32(9.9692099683868690e+36)
	case Float64:
		return float64(9.9692099683868690e+36)
	case Char:
		return uint8(0)
	case String:
		return ""
	default:
		return nil
	}
}

// ZeroSlice allocates a slice of n zero values of the Go type backing d.
func (d DataType) ZeroSlice(n int) interface{} {
	switch d {
	case Int8:
		return make([]int8, n)
	case UInt8, Char:
		return make([]uint8, n)
	case Int16:
		return make([]int16, n)
	case Int32:
		return make([]int32, n)
	case Int64:
		return make([]int64, n)
	case Float32:
		return make([]float32, n)
	case Float64:
		return make([]float64, n)
	case String:
		return make([]string, n)
	default:
		return nil
	}
}

// DimRange is a half-open [Start, Stop) window along one dimension, used to
// describe both reads from a GranuleReader and writes to a GranuleWriter.
type DimRange struct {
	Dim   string
	Start int
	Stop  int
}

// Len returns the number of records spanned by the range.
func (r DimRange) Len() int { return r.Stop - r.Start }

// VarData is a generic, row-major, flattened representation of a variable's
// values for some window, used as the currency between GranuleReader,
// GranuleWriter and Node.DataFor. Values is one of the slice types returned
// by DataType.ZeroSlice for the variable's declared Datatype.
type VarData struct {
	Shape  []int
	Values interface{}
}

// NumElements returns the product of Shape.
func (d VarData) NumElements() int {
	n := 1
	for _, s := range d.Shape {
		n *= s
	}
	return n
}

// Schema is what a GranuleReader reports about a granule's layout, per the
// §6.1 reader contract.
type Schema struct {
	Dimensions  []Dimension
	Variables   []*Variable
	GlobalAttrs map[string]interface{}
}

func (s *Schema) dimByName(name string) *Dimension {
	for i := range s.Dimensions {
		if s.Dimensions[i].Name == name {
			return &s.Dimensions[i]
		}
	}
	return nil
}

func (s *Schema) varByName(name string) *Variable {
	for _, v := range s.Variables {
		if v.Name == name {
			return v
		}
	}
	return nil
}
