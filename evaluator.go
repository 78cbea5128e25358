package ncagg

import (
	"context"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Evaluate walks plan in order for each configured unlimited dimension,
// streaming each variable's data to writer with a single monotonically
// advancing write cursor per dimension: no node is read twice,
// no write window overlaps another. Variables backed by no unlimited
// dimension are copied once, from the first descriptor that defines them,
// using open to reopen that one granule.
//
// Global attributes are reduced over the plan's retained granules, in plan
// (sorted, deduped, bound-chopped) order rather than descs' raw input
// order, before DefineSchema is called, since NetCDF classic fixes its
// header — global attributes included — at creation time; there is no way
// to add or alter one afterward. GranuleWriter.SetGlobalAttr is still
// invoked once per attribute after every variable is written, for writers
// (and test fakes) whose format does support a later mutation.
func Evaluate(ctx context.Context, cfg *Config, plan Plan, descs []*Descriptor, open ReaderOpener, writer GranuleWriter, outputPath string, log *logrus.Logger) error {
	if log == nil {
		log = logrus.New()
	}

	attrs, err := reduceAttrs(cfg, retainedDescriptors(cfg, plan, descs), outputPath)
	if err != nil {
		return err
	}

	schema := outputSchema(cfg, plan)
	for name, val := range attrs {
		schema.GlobalAttrs[name] = val
	}
	if err := writer.DefineSchema(ctx, schema); err != nil {
		return IOError{Op: "defining output schema", Err: err}
	}

	flattenSizes := map[string]int{}
	for _, d := range cfg.Dimensions {
		if d.Unlimited && d.UDC != nil && d.UDC.Flatten {
			flattenSizes[d.Name] = plan.PlanSize(d.Name)
		}
	}

	for _, v := range cfg.Variables {
		if err := ctx.Err(); err != nil {
			return Cancelled{}
		}
		udim := primaryUDim(cfg, v)
		if udim == "" {
			if err := writeOneShot(ctx, v, descs, open, writer); err != nil {
				log.WithField("variable", v.Name).WithError(err).Warn("one-shot variable copy failed, continuing")
			}
			continue
		}
		if err := writeStreamed(ctx, v, udim, plan, writer, flattenSizes); err != nil {
			return err
		}
	}

	for name, val := range attrs {
		if err := writer.SetGlobalAttr(ctx, name, val); err != nil {
			return IOError{Op: "setting global attribute " + name, Err: err}
		}
	}
	return nil
}

// primaryUDim returns the name of the first unlimited dimension variable v
// depends on, or "" if v is not unlimited-backed.
func primaryUDim(cfg *Config, v *Variable) string {
	for _, dn := range v.Dimensions {
		if d := cfg.DimByName(dn); d != nil && d.Unlimited {
			return dn
		}
	}
	return ""
}

func writeStreamed(ctx context.Context, v *Variable, udim string, plan Plan, writer GranuleWriter, flattenSizes map[string]int) error {
	cursor := 0
	for _, node := range plan[udim] {
		n := node.SizeAlong(udim)
		if n == 0 {
			continue
		}
		window := WriteWindow{Dim: udim, Start: cursor, Len: n}
		data, err := node.DataFor(ctx, v, window)
		if err != nil {
			return err
		}
		data, err = padFlattenAxes(data, v, udim, flattenSizes)
		if err != nil {
			return err
		}
		if err := writer.WriteVar(ctx, v.Name, DimRange{Dim: udim, Start: window.Start, Stop: window.Stop()}, data); err != nil {
			return IOError{Op: "writing " + v.Name, Err: err}
		}
		cursor += n
	}
	return nil
}

// writeOneShot copies a variable with no unlimited dimension from the first
// descriptor whose schema defines it. A read failure here is logged by the
// caller and recovered, since such a variable has no bearing
// on the record dimension's correctness.
func writeOneShot(ctx context.Context, v *Variable, descs []*Descriptor, open ReaderOpener, writer GranuleWriter) error {
	for _, d := range descs {
		if containsString(d.MissingVars, v.Name) {
			continue
		}
		r, err := open(d.Path)
		if err != nil {
			return IOError{Op: "reopening " + d.Path, Err: err}
		}
		defer r.Close()

		rng := DimRange{}
		if len(v.Dimensions) > 0 {
			rng = DimRange{Dim: v.Dimensions[0], Start: 0, Stop: d.DimSizes[v.Dimensions[0]]}
		}
		data, err := r.ReadVar(ctx, v.Name, rng)
		if err != nil {
			return IOError{Op: "reading one-shot variable " + v.Name, Err: err}
		}
		return writer.WriteVar(ctx, v.Name, rng, data)
	}
	return nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// retainedDescriptors walks the Plan's governing unlimited dimension (its
// PrimaryIndexDim if one is configured, else the first unlimited dimension
// with any planned nodes) in plan order and returns the distinct granules
// its InputSlice nodes draw from, each listed once, at the position of its
// first (sorted, retained) record. A granule fully bound-chopped or
// deduped out of the plan contributes no node and so is absent here, even
// though it's still present in descs. Global attribute strategies observe
// this order, not descs' raw input order, so that first/last/*_filename
// and input_count reflect the aggregate's actual retained record sequence
// rather than input discovery order. Falls back to descs unchanged when
// there is no unlimited dimension to order by (e.g. config has none, or
// every dimension planned empty).
func retainedDescriptors(cfg *Config, plan Plan, descs []*Descriptor) []*Descriptor {
	dim := cfg.PrimaryIndexDim()
	if dim == nil {
		for _, d := range cfg.UnlimitedDims() {
			if len(plan[d.Name]) > 0 {
				dim = d
				break
			}
		}
	}
	if dim == nil {
		return descs
	}

	var out []*Descriptor
	seen := map[*Descriptor]bool{}
	var collect func(nodes []Node)
	collect = func(nodes []Node) {
		for _, n := range nodes {
			slice, ok := n.(*InputSlice)
			if !ok {
				continue
			}
			if slice.mini != nil {
				collect(slice.mini)
				continue
			}
			if slice.Granule != nil && !seen[slice.Granule] {
				seen[slice.Granule] = true
				out = append(out, slice.Granule)
			}
		}
	}
	collect(plan[dim.Name])
	if len(out) == 0 {
		return descs
	}
	return out
}

// reduceAttrs runs every configured global attribute strategy over descs
// (in the order given by the caller) and returns the finalized name->value
// map, omitting any attribute whose strategy is "remove".
func reduceAttrs(cfg *Config, descs []*Descriptor, outputPath string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	for _, spec := range cfg.GlobalAttrs {
		strat, err := NewStrategy(spec.Strategy, spec, cfg)
		if err != nil {
			return nil, err
		}
		if fs, ok := strat.(*filenameStrategy); ok {
			fs.name = filepath.Base(outputPath)
		}
		if vs, ok := strat.(*versionStrategy); ok {
			vs.version = cfg.EngineVersion
		}
		for i, d := range descs {
			if err := strat.observe(d, i, len(descs)); err != nil {
				return nil, err
			}
		}
		val, err := strat.finalize()
		if err != nil {
			if err == errRemoveAttr {
				continue
			}
			return nil, err
		}
		out[spec.Name] = val
	}
	return out, nil
}

// outputSchema derives the output's Schema from cfg and the planned sizes,
// resolving each unlimited dimension's size to the Plan's total record
// count (the fixed size NetCDF classic requires at variable-definition
// time even though it is conceptually unlimited).
func outputSchema(cfg *Config, plan Plan) *Schema {
	schema := &Schema{GlobalAttrs: map[string]interface{}{}}
	for _, d := range cfg.Dimensions {
		dim := Dimension{Name: d.Name, Size: d.Size, Unlimited: d.Unlimited}
		if d.Unlimited {
			dim.Size = plan.PlanSize(d.Name)
		}
		schema.Dimensions = append(schema.Dimensions, dim)
	}
	schema.Variables = append(schema.Variables, cfg.Variables...)
	return schema
}
