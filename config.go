package ncagg

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cast"
)

// UnlimitedDimConfig is the Unlimited Dimension Configuration (UDC)
// attached to an unlimited Dimension.
type UnlimitedDimConfig struct {
	IndexBy         string
	OtherDimIndices map[string]int
	ExpectedCadence map[string]float64
	Flatten         bool

	// MinRaw/MaxRaw hold whatever the config supplied: a float64, a date
	// expression string, or nil if unset. Kept for attribute strategies
	// (time_coverage_start/end) that need to report the bound back in the
	// product's date format.
	MinRaw interface{}
	MaxRaw interface{}

	// Min/Max are the resolved numeric bounds in index_by's projected
	// units, filled in by Config.Validate. Nil if no bound configured.
	Min, Max *float64
}

// Cadence returns the expected cadence, in Hz, of the UDim itself (i.e. the
// entry in ExpectedCadence keyed by the UDim's own name), or 0 if unset.
func (u *UnlimitedDimConfig) Cadence(udimName string) float64 {
	if u == nil || u.ExpectedCadence == nil {
		return 0
	}
	return u.ExpectedCadence[udimName]
}

// Dimension is a NetCDF dimension: a name and either a fixed positive size
// or an unlimited marker, optionally carrying UDC.
type Dimension struct {
	Name      string
	Size      int
	Unlimited bool
	UDC       *UnlimitedDimConfig
}

// Variable describes one NetCDF variable.
type Variable struct {
	Name       string
	Dimensions []string
	Datatype   DataType
	Attributes map[string]interface{}
	ChunkSizes []int
}

// FillValue returns the variable's configured _FillValue attribute, or the
// datatype's default fill value if none is set.
func (v *Variable) FillValue() interface{} {
	if v.Attributes != nil {
		if fv, ok := v.Attributes["_FillValue"]; ok {
			return fv
		}
	}
	return v.Datatype.DefaultFillValue()
}

// Units returns the variable's "units" attribute, or "" if unset.
func (v *Variable) Units() string {
	if v.Attributes == nil {
		return ""
	}
	s, _ := v.Attributes["units"].(string)
	return s
}

// UnlimitedBacked reports whether v depends on at least one unlimited
// dimension, given cfg's dimension table.
func (v *Variable) UnlimitedBacked(cfg *Config) bool {
	for _, d := range v.Dimensions {
		if dim := cfg.DimByName(d); dim != nil && dim.Unlimited {
			return true
		}
	}
	return false
}

// GlobalAttrSpec names a global attribute, the strategy used to compute its
// output value, and an optional strategy-specific static value.
type GlobalAttrSpec struct {
	Name     string
	Strategy string
	Value    interface{}
}

// Config is the product configuration: an ordered list of dimensions,
// variables and global attribute specs plus the engine parameters threaded
// in at construction rather than read from ambient state.
type Config struct {
	Dimensions  []*Dimension
	Variables   []*Variable
	GlobalAttrs []*GlobalAttrSpec

	// EngineVersion is reported by the ncagg_version attribute strategy.
	EngineVersion string
	// Workers bounds descriptor-gather concurrency; 0 means GOMAXPROCS.
	Workers int
}

// DimByName returns the Dimension named name, or nil.
func (c *Config) DimByName(name string) *Dimension {
	for _, d := range c.Dimensions {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// VarByName returns the Variable named name, or nil.
func (c *Config) VarByName(name string) *Variable {
	for _, v := range c.Variables {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// UnlimitedDims returns the configured unlimited dimensions, in config order.
func (c *Config) UnlimitedDims() []*Dimension {
	var out []*Dimension
	for _, d := range c.Dimensions {
		if d.Unlimited {
			out = append(out, d)
		}
	}
	return out
}

// PrimaryIndexDim returns the first unlimited dimension configured with an
// index_by variable, or nil if none is. Used by attribute strategies (such
// as time_coverage_start/end) that report against the product's primary
// time axis rather than reducing over per-granule attribute values.
func (c *Config) PrimaryIndexDim() *Dimension {
	for _, d := range c.Dimensions {
		if d.Unlimited && d.UDC != nil && d.UDC.IndexBy != "" {
			return d
		}
	}
	return nil
}

// --- JSON loading ---

type rawDimension struct {
	Name            string             `json:"name"`
	Size            *int               `json:"size"`
	IndexBy         *string            `json:"index_by,omitempty"`
	OtherDimIndices map[string]int     `json:"other_dim_indices,omitempty"`
	ExpectedCadence map[string]float64 `json:"expected_cadence,omitempty"`
	Min             interface{}        `json:"min,omitempty"`
	Max             interface{}        `json:"max,omitempty"`
	Flatten         bool               `json:"flatten,omitempty"`
}

type rawVariable struct {
	Name       string                 `json:"name"`
	Dimensions []string               `json:"dimensions"`
	Datatype   string                 `json:"datatype"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	ChunkSizes []int                  `json:"chunksizes,omitempty"`
}

type rawGlobalAttr struct {
	Name     string      `json:"name"`
	Strategy string      `json:"strategy"`
	Value    interface{} `json:"value,omitempty"`
}

type rawConfig struct {
	Dimensions      []rawDimension  `json:"dimensions"`
	Variables       []rawVariable   `json:"variables"`
	GlobalAttrs     []rawGlobalAttr `json:"global attributes"`
}

// LoadConfig decodes the JSON configuration format from r.
// Array order is preserved (it is semantically significant); unknown
// top-level or nested fields cause a ConfigInvalid error.
func LoadConfig(r io.Reader) (*Config, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var raw rawConfig
	if err := dec.Decode(&raw); err != nil {
		return nil, ConfigInvalid{Reason: fmt.Sprintf("parsing json: %v", err)}
	}

	cfg := &Config{EngineVersion: Version}
	for _, rd := range raw.Dimensions {
		d := &Dimension{Name: rd.Name}
		if rd.Size == nil {
			d.Unlimited = true
		} else {
			d.Size = *rd.Size
		}
		if rd.IndexBy != nil || len(rd.OtherDimIndices) > 0 || len(rd.ExpectedCadence) > 0 ||
			rd.Min != nil || rd.Max != nil || rd.Flatten {
			udc := &UnlimitedDimConfig{
				OtherDimIndices: rd.OtherDimIndices,
				ExpectedCadence: rd.ExpectedCadence,
				Flatten:         rd.Flatten,
				MinRaw:          rd.Min,
				MaxRaw:          rd.Max,
			}
			if rd.IndexBy != nil {
				udc.IndexBy = *rd.IndexBy
			}
			d.UDC = udc
		}
		cfg.Dimensions = append(cfg.Dimensions, d)
	}
	for _, rv := range raw.Variables {
		dt, err := ParseDataType(rv.Datatype)
		if err != nil {
			return nil, ConfigInvalid{Reason: err.Error()}
		}
		cfg.Variables = append(cfg.Variables, &Variable{
			Name:       rv.Name,
			Dimensions: rv.Dimensions,
			Datatype:   dt,
			Attributes: rv.Attributes,
			ChunkSizes: rv.ChunkSizes,
		})
	}
	for _, ra := range raw.GlobalAttrs {
		cfg.GlobalAttrs = append(cfg.GlobalAttrs, &GlobalAttrSpec{
			Name:     ra.Name,
			Strategy: ra.Strategy,
			Value:    ra.Value,
		})
	}
	return cfg, nil
}

// SaveConfig writes cfg back out in the same JSON format, preserving
// array order. Used by the "init-config" CLI subcommand to let a user dump
// a FromSample-derived default before hand-editing it.
func SaveConfig(w io.Writer, cfg *Config) error {
	raw := rawConfig{}
	for _, d := range cfg.Dimensions {
		rd := rawDimension{Name: d.Name}
		if !d.Unlimited {
			size := d.Size
			rd.Size = &size
		}
		if d.UDC != nil {
			if d.UDC.IndexBy != "" {
				ib := d.UDC.IndexBy
				rd.IndexBy = &ib
			}
			rd.OtherDimIndices = d.UDC.OtherDimIndices
			rd.ExpectedCadence = d.UDC.ExpectedCadence
			rd.Flatten = d.UDC.Flatten
			rd.Min = d.UDC.MinRaw
			rd.Max = d.UDC.MaxRaw
		}
		raw.Dimensions = append(raw.Dimensions, rd)
	}
	for _, v := range cfg.Variables {
		raw.Variables = append(raw.Variables, rawVariable{
			Name:       v.Name,
			Dimensions: v.Dimensions,
			Datatype:   v.Datatype.String(),
			Attributes: v.Attributes,
			ChunkSizes: v.ChunkSizes,
		})
	}
	for _, a := range cfg.GlobalAttrs {
		raw.GlobalAttrs = append(raw.GlobalAttrs, rawGlobalAttr{Name: a.Name, Strategy: a.Strategy, Value: a.Value})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(raw)
}

// wellKnownAttrStrategies maps global attribute names to the strategy
// FromSample assigns them by default.
var wellKnownAttrStrategies = map[string]string{
	"date_created":        "date_created",
	"time_coverage_start": "time_coverage_start",
	"time_coverage_end":   "time_coverage_end",
}

// FromSample derives a default Config from a single granule's schema:
// all dims, all vars, attribute strategy "first" unless the name
// matches the well-known list.
func FromSample(schema *Schema) *Config {
	cfg := &Config{EngineVersion: Version}
	for _, d := range schema.Dimensions {
		dd := d
		cfg.Dimensions = append(cfg.Dimensions, &dd)
	}
	for _, v := range schema.Variables {
		cfg.Variables = append(cfg.Variables, v)
	}
	for name := range schema.GlobalAttrs {
		strategy := "first"
		if s, ok := wellKnownAttrStrategies[name]; ok {
			strategy = s
		}
		cfg.GlobalAttrs = append(cfg.GlobalAttrs, &GlobalAttrSpec{Name: name, Strategy: strategy})
	}
	return cfg
}

// validAttrStrategies is the closed set of recognized strategy names.
var validAttrStrategies = map[string]bool{
	"static": true, "first": true, "last": true, "unique_list": true,
	"int_sum": true, "float_sum": true, "constant": true, "date_created": true,
	"time_coverage_start": true, "time_coverage_end": true, "filename": true,
	"first_input_filename": true, "last_input_filename": true, "input_count": true,
	"ncagg_version": true, "remove": true,
}

// Validate checks the Config for internal consistency (unique dimension names,
// dimensions/variables/strategies all referring to things that exist),
// resolving UDC bounds (date expressions or numbers) to numeric values as
// a side effect.
func (c *Config) Validate() error {
	dimNames := map[string]bool{}
	for _, d := range c.Dimensions {
		if dimNames[d.Name] {
			return ConfigInvalid{Reason: fmt.Sprintf("duplicate dimension name %q", d.Name)}
		}
		dimNames[d.Name] = true
	}

	// (i) every variable's dimensions exist; (ii) chunksize length matches.
	for _, v := range c.Variables {
		for _, d := range v.Dimensions {
			if !dimNames[d] {
				return ConfigInvalid{Reason: fmt.Sprintf("variable %q references unknown dimension %q", v.Name, d)}
			}
		}
		if v.ChunkSizes != nil && len(v.ChunkSizes) != len(v.Dimensions) {
			return ConfigInvalid{Reason: fmt.Sprintf("variable %q: chunksizes length %d != dimensions length %d",
				v.Name, len(v.ChunkSizes), len(v.Dimensions))}
		}
	}

	// (iii), (iv), (v): UDC consistency and bound resolution.
	for _, d := range c.Dimensions {
		if d.UDC == nil {
			continue
		}
		if !d.Unlimited {
			return ConfigInvalid{Reason: fmt.Sprintf("dimension %q has UDC but is not unlimited", d.Name)}
		}
		if d.UDC.IndexBy == "" {
			continue // concatenated in filename order; no further UDC validation needed
		}
		indexVar := c.VarByName(d.UDC.IndexBy)
		if indexVar == nil {
			return ConfigInvalid{Reason: fmt.Sprintf("dimension %q: index_by variable %q not found", d.Name, d.UDC.IndexBy)}
		}
		if len(indexVar.Dimensions) == 0 || indexVar.Dimensions[0] != d.Name {
			found := false
			for _, dn := range indexVar.Dimensions {
				if dn == d.Name {
					found = true
				}
			}
			if !found {
				return ConfigInvalid{Reason: fmt.Sprintf("dimension %q: index_by variable %q does not have %q as a dimension", d.Name, d.UDC.IndexBy, d.Name)}
			}
		}
		for od := range d.UDC.OtherDimIndices {
			if !dimNames[od] {
				return ConfigInvalid{Reason: fmt.Sprintf("dimension %q: other_dim_indices references unknown dimension %q", d.Name, od)}
			}
		}
		for cd := range d.UDC.ExpectedCadence {
			if !dimNames[cd] {
				return ConfigInvalid{Reason: fmt.Sprintf("dimension %q: expected_cadence references unknown dimension %q", d.Name, cd)}
			}
		}

		if err := c.resolveBounds(d, indexVar); err != nil {
			return err
		}
	}

	for _, a := range c.GlobalAttrs {
		if !validAttrStrategies[a.Strategy] {
			return ConfigInvalid{Reason: fmt.Sprintf("global attribute %q: unknown strategy %q", a.Name, a.Strategy)}
		}
	}
	return nil
}

// resolveBounds turns a UDC's MinRaw/MaxRaw (numbers or TYYYY... date
// expressions) into numeric Min/Max in indexVar's projected units,
// inferring one from the other when only one is supplied and it is a date
// expression. A lone numeric bound leaves the other bound unset.
func (c *Config) resolveBounds(d *Dimension, indexVar *Variable) error {
	udc := d.UDC
	toNumeric := func(raw interface{}) (*float64, *dateBound, error) {
		if raw == nil {
			return nil, nil, nil
		}
		if s, ok := raw.(string); ok {
			db, err := parseDateBound(s)
			if err != nil {
				return nil, nil, ConfigInvalid{Reason: err.Error()}
			}
			return nil, &db, nil
		}
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, nil, ConfigInvalid{Reason: fmt.Sprintf("dimension %q: bound %v is neither a number nor a date expression", d.Name, raw)}
		}
		return &f, nil, nil
	}

	minVal, minDate, err := toNumeric(udc.MinRaw)
	if err != nil {
		return err
	}
	maxVal, maxDate, err := toNumeric(udc.MaxRaw)
	if err != nil {
		return err
	}

	projectDate := func(db dateBound) (float64, error) {
		units, err := parseCFUnits(indexVar.Units())
		if err != nil {
			return 0, ConfigInvalid{Reason: fmt.Sprintf("dimension %q: %v", d.Name, err)}
		}
		return units.fromTime(db.t), nil
	}

	// minDate and maxDate are independent: a config may supply both as date
	// expressions, and each must be projected on its own. A switch here
	// would only ever project whichever came first, silently discarding
	// the other bound.
	if minDate != nil {
		v, err := projectDate(*minDate)
		if err != nil {
			return err
		}
		minVal = &v
	}
	if maxDate != nil {
		v, err := projectDate(*maxDate)
		if err != nil {
			return err
		}
		maxVal = &v
	}

	// Infer the missing bound from whichever date expression was given.
	if minVal != nil && maxVal == nil && minDate != nil {
		units, err := parseCFUnits(indexVar.Units())
		if err != nil {
			return ConfigInvalid{Reason: fmt.Sprintf("dimension %q: %v", d.Name, err)}
		}
		v := units.fromTime(minDate.increment())
		maxVal = &v
	}
	if maxVal != nil && minVal == nil && maxDate != nil {
		units, err := parseCFUnits(indexVar.Units())
		if err != nil {
			return ConfigInvalid{Reason: fmt.Sprintf("dimension %q: %v", d.Name, err)}
		}
		// maxVal already holds maxDate's own instant (the upper edge); the
		// implied period is the one unit immediately preceding it, so the
		// inferred min comes from decrement, not increment (which would
		// land past maxVal and invert the interval).
		v := units.fromTime(maxDate.decrement())
		minVal = &v
	}

	udc.Min, udc.Max = minVal, maxVal
	return nil
}
