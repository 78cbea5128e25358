package ncagg

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"gonum.org/v1/gonum/floats"
)

// Strategy reduces a global attribute across the retained input granules
// into one output value. observe is called once per retained granule, in
// plan order;
// finalize is called once at the end to produce the value written to the
// output. This mirrors the Strat/observe/finalize split of the source
// tool's attribute reducers, generalized to a closed interface instead of a
// class hierarchy.
type Strategy interface {
	observe(d *Descriptor, position int, total int) error
	finalize() (interface{}, error)
}

// NewStrategy constructs the Strategy named by spec's strategy name. cfg is
// threaded through to strategies (time_coverage_start/end) that report
// against the product's configuration rather than reducing over granules.
func NewStrategy(name string, spec *GlobalAttrSpec, cfg *Config) (Strategy, error) {
	switch name {
	case "static":
		return &staticStrategy{value: spec.Value}, nil
	case "first":
		return &firstStrategy{name: spec.Name}, nil
	case "last":
		return &lastStrategy{name: spec.Name}, nil
	case "unique_list":
		return &uniqueListStrategy{name: spec.Name, seen: map[string]bool{}}, nil
	case "int_sum":
		return &intSumStrategy{name: spec.Name}, nil
	case "float_sum":
		return &floatSumStrategy{name: spec.Name}, nil
	case "constant":
		return &constantStrategy{name: spec.Name}, nil
	case "date_created":
		return &dateCreatedStrategy{}, nil
	case "time_coverage_start":
		return &timeCoverageStrategy{name: spec.Name, newest: false, cfg: cfg}, nil
	case "time_coverage_end":
		return &timeCoverageStrategy{name: spec.Name, newest: true, cfg: cfg}, nil
	case "filename":
		return &filenameStrategy{}, nil
	case "first_input_filename":
		return &inputFilenameStrategy{wantFirst: true}, nil
	case "last_input_filename":
		return &inputFilenameStrategy{wantFirst: false}, nil
	case "input_count":
		return &inputCountStrategy{}, nil
	case "ncagg_version":
		return &versionStrategy{}, nil
	case "remove":
		return &removeStrategy{}, nil
	default:
		return nil, ConfigInvalid{Reason: fmt.Sprintf("unknown global attribute strategy %q", name)}
	}
}

// staticStrategy always reports a fixed value from the config, ignoring
// every granule.
type staticStrategy struct{ value interface{} }

func (s *staticStrategy) observe(*Descriptor, int, int) error   { return nil }
func (s *staticStrategy) finalize() (interface{}, error)        { return s.value, nil }

// firstStrategy reports the first granule's value for this attribute.
type firstStrategy struct {
	name string
	set  bool
	val  interface{}
}

func (s *firstStrategy) observe(d *Descriptor, pos, total int) error {
	if s.set {
		return nil
	}
	s.val, s.set = d.Attrs[s.name], true
	return nil
}
func (s *firstStrategy) finalize() (interface{}, error) { return s.val, nil }

// lastStrategy reports the last granule's value.
type lastStrategy struct {
	name string
	val  interface{}
}

func (s *lastStrategy) observe(d *Descriptor, pos, total int) error {
	if v, ok := d.Attrs[s.name]; ok {
		s.val = v
	}
	return nil
}
func (s *lastStrategy) finalize() (interface{}, error) { return s.val, nil }

// uniqueListStrategy accumulates the distinct stringified values seen,
// joined with ", " in first-seen order.
type uniqueListStrategy struct {
	name   string
	seen   map[string]bool
	values []string
}

func (s *uniqueListStrategy) observe(d *Descriptor, pos, total int) error {
	v, ok := d.Attrs[s.name]
	if !ok {
		return nil
	}
	str := cast.ToString(v)
	if !s.seen[str] {
		s.seen[str] = true
		s.values = append(s.values, str)
	}
	return nil
}
func (s *uniqueListStrategy) finalize() (interface{}, error) {
	out := ""
	for i, v := range s.values {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out, nil
}

// intSumStrategy sums the attribute as an integer across all granules.
type intSumStrategy struct {
	name string
	sum  int64
}

func (s *intSumStrategy) observe(d *Descriptor, pos, total int) error {
	v, ok := d.Attrs[s.name]
	if !ok {
		return nil
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return nil
	}
	s.sum += n
	return nil
}
func (s *intSumStrategy) finalize() (interface{}, error) { return s.sum, nil }

// floatSumStrategy sums the attribute as a float with gonum's floats.Sum.
type floatSumStrategy struct {
	name string
	vals []float64
}

func (s *floatSumStrategy) observe(d *Descriptor, pos, total int) error {
	v, ok := d.Attrs[s.name]
	if !ok {
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil
	}
	s.vals = append(s.vals, f)
	return nil
}
func (s *floatSumStrategy) finalize() (interface{}, error) { return floats.Sum(s.vals), nil }

// constantStrategy requires every granule to report the same value,
// returning AttrNotConstant if not.
type constantStrategy struct {
	name string
	val  interface{}
	set  bool
}

func (s *constantStrategy) observe(d *Descriptor, pos, total int) error {
	v, ok := d.Attrs[s.name]
	if !ok {
		return nil
	}
	if !s.set {
		s.val, s.set = v, true
		return nil
	}
	if cast.ToString(v) != cast.ToString(s.val) {
		return AttrNotConstant{Name: s.name, First: cast.ToString(s.val), Got: cast.ToString(v)}
	}
	return nil
}
func (s *constantStrategy) finalize() (interface{}, error) { return s.val, nil }

// dateCreatedStrategy stamps the output's creation time. Not derived from
// any granule; the time is captured once at finalize, via an injected
// clock so tests stay deterministic.
type dateCreatedStrategy struct {
	now func() time.Time
}

func (s *dateCreatedStrategy) observe(*Descriptor, int, int) error { return nil }
func (s *dateCreatedStrategy) finalize() (interface{}, error) {
	now := s.now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339), nil
}

// timeCoverageStrategy reports the product's configured lower (newest=false)
// or upper (newest=true) bound on its primary index_by dimension, converted
// to the product's date format. It does not reduce over granules' own
// time_coverage_start/end attributes — those describe the granule, not the
// aggregate. When the bound is unbounded, it falls back to the first/last
// observed index_by value across the inputs, converted the same way.
type timeCoverageStrategy struct {
	name   string
	newest bool
	cfg    *Config

	observed float64
	haveObs  bool
}

func (s *timeCoverageStrategy) observe(d *Descriptor, pos, total int) error {
	dim := s.cfg.PrimaryIndexDim()
	if dim == nil {
		return nil
	}
	min, max, ok := d.indexRange(dim.Name)
	if !ok {
		return nil
	}
	v := min
	if s.newest {
		v = max
	}
	if !s.haveObs || (s.newest && v > s.observed) || (!s.newest && v < s.observed) {
		s.observed, s.haveObs = v, true
	}
	return nil
}

func (s *timeCoverageStrategy) finalize() (interface{}, error) {
	dim := s.cfg.PrimaryIndexDim()
	if dim == nil {
		return "", nil
	}
	udc := dim.UDC

	var raw interface{}
	var bound *float64
	if s.newest {
		raw, bound = udc.MaxRaw, udc.Max
	} else {
		raw, bound = udc.MinRaw, udc.Min
	}

	if dateStr, ok := raw.(string); ok {
		db, err := parseDateBound(dateStr)
		if err == nil {
			return db.t.UTC().Format(time.RFC3339), nil
		}
	}

	if bound == nil {
		if !s.haveObs {
			return "", nil
		}
		bound = &s.observed
	}

	indexVar := s.cfg.VarByName(udc.IndexBy)
	if indexVar == nil {
		return nil, fmt.Errorf("ncagg: %s: index_by variable %q not found", s.name, udc.IndexBy)
	}
	units, err := parseCFUnits(indexVar.Units())
	if err != nil {
		return nil, fmt.Errorf("ncagg: %s: %w", s.name, err)
	}
	return units.toTime(*bound).UTC().Format(time.RFC3339), nil
}

// filenameStrategy reports the output file's own name. The evaluator sets
// it after construction since the output path isn't known at Strategy
// build time.
type filenameStrategy struct{ name string }

func (s *filenameStrategy) observe(*Descriptor, int, int) error { return nil }
func (s *filenameStrategy) finalize() (interface{}, error)      { return s.name, nil }

// inputFilenameStrategy reports the basename of the first or last input
// granule, by position in the (already sorted) descriptor walk order.
type inputFilenameStrategy struct {
	wantFirst bool
	val       string
	set       bool
}

func (s *inputFilenameStrategy) observe(d *Descriptor, pos, total int) error {
	if s.wantFirst {
		if pos == 0 {
			s.val = filepath.Base(d.Path)
		}
		return nil
	}
	if pos == total-1 {
		s.val = filepath.Base(d.Path)
	}
	return nil
}
func (s *inputFilenameStrategy) finalize() (interface{}, error) { return s.val, nil }

// inputCountStrategy reports the number of input granules aggregated.
type inputCountStrategy struct{ total int }

func (s *inputCountStrategy) observe(d *Descriptor, pos, total int) error {
	s.total = total
	return nil
}
func (s *inputCountStrategy) finalize() (interface{}, error) { return s.total, nil }

// versionStrategy reports the engine version that produced the output.
type versionStrategy struct{ version string }

func (s *versionStrategy) observe(*Descriptor, int, int) error { return nil }
func (s *versionStrategy) finalize() (interface{}, error)      { return s.version, nil }

// removeStrategy always resolves to omission: the evaluator skips writing
// any attribute whose strategy is removeStrategy.
type removeStrategy struct{}

func (s *removeStrategy) observe(*Descriptor, int, int) error  { return nil }
func (s *removeStrategy) finalize() (interface{}, error)       { return nil, errRemoveAttr }

var errRemoveAttr = fmt.Errorf("ncagg: attribute marked for removal")
