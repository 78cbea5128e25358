package ncagg

import (
	"fmt"
	"sort"
)

// Plan is the planner's output: for each unlimited dimension name, the
// ordered sequence of Nodes the evaluator walks to produce that dimension's
// output extent. Dimensions are planned independently of one another, so
// a product with two record dimensions gets two independent Plan entries.
type Plan map[string][]Node

// granuleSpan is one granule's sorted, deduped, bound-chopped contribution
// along one UDim, built during step 1. indices holds the kept on-disk
// record positions in output (ascending-value) order; it need not be
// contiguous or increasing in disk order, since the granule's own records
// need not arrive on disk already sorted.
type granuleSpan struct {
	desc       *Descriptor
	dim        string
	indices    []int
	firstVal   float64
	lastVal    float64
	hasIndexBy bool
}

// BuildPlan runs the per-dimension planning algorithm: gather, sort,
// bound-chop, dedup/trim, gap-fill, per unlimited dimension.
func BuildPlan(cfg *Config, descs []*Descriptor, open ReaderOpener) (Plan, error) {
	if len(descs) == 0 {
		return nil, NoInputs{}
	}
	plan := Plan{}
	for _, dim := range cfg.UnlimitedDims() {
		nodes, err := planDim(cfg, dim, descs, open)
		if err != nil {
			return nil, err
		}
		plan[dim.Name] = nodes
	}
	return plan, nil
}

func planDim(cfg *Config, dim *Dimension, descs []*Descriptor, open ReaderOpener) ([]Node, error) {
	if dim.UDC != nil && dim.UDC.Flatten {
		dimSizes := map[string]int{}
		for _, d := range cfg.Dimensions {
			if !d.Unlimited {
				dimSizes[d.Name] = d.Size
			}
		}
		return planFlatten(dim, descs, dimSizes), nil
	}
	if dim.UDC == nil || dim.UDC.IndexBy == "" {
		return planConcatenated(dim, descs, open), nil
	}
	return planIndexed(cfg, dim, descs, open)
}

// planFlatten handles a flatten-configured UDim: the dimension's resolved
// size is the largest size any one granule contributes along it, not the
// sum. Every granule's records along a
// flattened dimension occupy the same span of it, differentiated along some
// other dimension of the variable, rather than being walked one after
// another — so unlike planConcatenated's nodes, this dimension's own plan is
// never read directly by the evaluator. Variables carrying a flattened
// dimension are written against their other (real) unlimited dimension, with
// narrower granules padded out to this size; see padFlattenAxes.
func planFlatten(dim *Dimension, descs []*Descriptor, dimSizes map[string]int) []Node {
	max := 0
	for _, d := range descs {
		if n := d.DimSizes[dim.Name]; n > max {
			max = n
		}
	}
	if max == 0 {
		return nil
	}
	return []Node{&FillSegment{Dim: dim.Name, Len: max, DimSizes: dimSizes}}
}

// planConcatenated handles the no-index_by case: granules are
// kept in the input list's own order, each contributing its full extent
// along dim with no gap detection.
func planConcatenated(dim *Dimension, descs []*Descriptor, open ReaderOpener) []Node {
	var nodes []Node
	for _, d := range descs {
		n, ok := d.DimSizes[dim.Name]
		if !ok || n == 0 {
			continue
		}
		nodes = append(nodes, NewInputSlice(d, dim.Name, DimRange{Dim: dim.Name, Start: 0, Stop: n}, open))
	}
	return nodes
}

// planIndexed handles the cadence-aware, index_by-sorted case: per-granule
// sort, bound chop and internal dedup, then cross-granule sort, overlap trim
// and gap fill.
func planIndexed(cfg *Config, dim *Dimension, descs []*Descriptor, open ReaderOpener) ([]Node, error) {
	udc := dim.UDC
	cadence := udc.Cadence(dim.Name)
	dimSizes := map[string]int{}
	for _, d := range cfg.Dimensions {
		if !d.Unlimited {
			dimSizes[d.Name] = d.Size
		}
	}

	var spans []granuleSpan
	for _, d := range descs {
		n := d.DimSizes[dim.Name]
		arr := d.IndexValues[dim.Name]
		if arr == nil || n == 0 {
			continue
		}
		sp, ok := sortedGranuleSpan(d, dim.Name, arr.Elements, cadence, udc)
		if ok {
			spans = append(spans, sp)
		}
	}
	if len(spans) == 0 {
		return nil, nil
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].firstVal < spans[j].firstVal })

	var nodes []Node
	var lastVal float64
	haveLast := false
	for i, sp := range spans {
		if i > 0 {
			prev := spans[i-1]
			gapNode, trimmed := reconcileAdjacent(prev, sp, cadence, dimSizes, udc)
			if gapNode != nil {
				nodes = append(nodes, gapNode)
			}
			sp = trimmed
			if len(sp.indices) == 0 {
				continue
			}
		}
		nodes = append(nodes, spanToNode(sp, open))
		lastVal = sp.lastVal
		haveLast = true
	}

	if lead := leadingFillSegment(udc, dim.Name, spans[0].firstVal, cadence, dimSizes); lead != nil {
		nodes = append([]Node{lead}, nodes...)
	}
	if haveLast {
		if trail := trailingFillSegment(udc, dim.Name, lastVal, cadence, dimSizes); trail != nil {
			nodes = append(nodes, trail)
		}
	}

	return nodes, nil
}

// leadingFillSegment synthesizes a FillSegment covering the stretch between
// a configured lower bound and the first retained record: triggered when
// the first record lands more than half a cadence step past min, sized so
// the synthesized records land exactly on the cadence lattice leading up
// to that first record.
func leadingFillSegment(udc *UnlimitedDimConfig, dim string, firstVal, cadence float64, dimSizes map[string]int) *FillSegment {
	if udc.Min == nil || cadence == 0 {
		return nil
	}
	min := *udc.Min
	if firstVal <= min+0.5/cadence {
		return nil
	}
	count := int(roundHalfAwayFromZero((firstVal - min) * cadence))
	if count <= 0 {
		return nil
	}
	anchor := firstVal - float64(count+1)/cadence
	return &FillSegment{Dim: dim, Len: count, Cadence: cadence, StartVal: anchor, DimSizes: dimSizes, IndexByVar: udc.IndexBy, InnerCadence: udc.ExpectedCadence}
}

// trailingFillSegment synthesizes a FillSegment covering the stretch between
// the last retained record and a configured upper bound, symmetric to
// leadingFillSegment.
func trailingFillSegment(udc *UnlimitedDimConfig, dim string, lastVal, cadence float64, dimSizes map[string]int) *FillSegment {
	if udc.Max == nil || cadence == 0 {
		return nil
	}
	max := *udc.Max
	if lastVal >= max-0.5/cadence {
		return nil
	}
	count := int(roundHalfAwayFromZero((max - lastVal) * cadence))
	if count <= 0 {
		return nil
	}
	return &FillSegment{Dim: dim, Len: count, Cadence: cadence, StartVal: lastVal, DimSizes: dimSizes, IndexByVar: udc.IndexBy, InnerCadence: udc.ExpectedCadence}
}

// sortedGranuleSpan realizes one granule's own sorted, deduped,
// bound-chopped view along dim: it argsorts the granule's projected index
// values, drops any value outside the configured [min, max] bound
// (admissibleLower/Upper), then, for a granule whose values do not already
// strictly increase on disk, walks the sorted survivors keeping each one
// only if it isn't a duplicate of the last kept value (isDuplicate), so
// that a granule whose records arrive on disk out of order, or containing
// an internal clock regression, still contributes one correctly ordered
// span instead of silently losing records to split-and-trim against its
// own other spans. A granule already strictly increasing is only
// bound-chopped. ok is false if every record was bound-chopped away.
func sortedGranuleSpan(d *Descriptor, dim string, vals []float64, cadence float64, udc *UnlimitedDimConfig) (granuleSpan, bool) {
	order := make([]int, len(vals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return vals[order[i]] < vals[order[j]] })

	increasing := true
	for i := 1; i < len(vals); i++ {
		if vals[i] <= vals[i-1] {
			increasing = false
			break
		}
	}

	var indices []int
	var firstVal, lastVal float64
	haveKept := false
	for _, idx := range order {
		v := vals[idx]
		if udc.Min != nil && !admissibleLower(v, *udc.Min, cadence) {
			continue
		}
		if udc.Max != nil && !admissibleUpper(v, *udc.Max, cadence) {
			continue
		}
		if !increasing && haveKept && isDuplicate(lastVal, v, cadence) {
			continue
		}
		if !haveKept {
			firstVal = v
		}
		lastVal = v
		haveKept = true
		indices = append(indices, idx)
	}
	if !haveKept {
		return granuleSpan{}, false
	}
	return granuleSpan{desc: d, dim: dim, indices: indices, firstVal: firstVal, lastVal: lastVal, hasIndexBy: true}, true
}

// diskRun is a maximal stretch of a granule's kept record indices that also
// happen to be contiguous and ascending on disk, letting spanToNode read it
// with a single windowed ReadVar instead of one read per record.
type diskRun struct {
	start, stop int // half-open, on-disk record space
}

// contiguousRuns groups indices (already in output order) into the fewest
// diskRuns that reproduce that order: consecutive entries fold into one run
// only while the on-disk index also advances by exactly one, so the
// resulting sequence of runs, read and concatenated in order, reproduces
// indices exactly even when the granule's own records are out of order or
// scattered on disk.
func contiguousRuns(indices []int) []diskRun {
	var runs []diskRun
	i := 0
	for i < len(indices) {
		j := i + 1
		for j < len(indices) && indices[j] == indices[j-1]+1 {
			j++
		}
		runs = append(runs, diskRun{start: indices[i], stop: indices[j-1] + 1})
		i = j
	}
	return runs
}

// reconcileAdjacent compares two spans that are adjacent in sorted order.
// If the gap between them exceeds maxGap, it returns a FillSegment to
// insert between them. If next overlaps prev (within minGap), next is
// trimmed to start just past prev's last value. Otherwise next is returned
// unchanged.
func reconcileAdjacent(prev, next granuleSpan, cadence float64, dimSizes map[string]int, udc *UnlimitedDimConfig) (*FillSegment, granuleSpan) {
	if !prev.hasIndexBy || !next.hasIndexBy || cadence == 0 {
		return nil, next
	}
	gap := next.firstVal - prev.lastVal
	switch {
	case gap < minGap(cadence):
		// Overlap: trim next forward past prev.lastVal.
		trimmed := trimSpanFrom(next, prev.lastVal, cadence)
		return nil, trimmed
	case gap > maxGap(cadence):
		n := recordsBetween(prev.lastVal, next.firstVal, cadence)
		if n <= 0 {
			return nil, next
		}
		return &FillSegment{Dim: prev.dim, Len: n, Cadence: cadence, StartVal: prev.lastVal, DimSizes: dimSizes, IndexByVar: udc.IndexBy, InnerCadence: udc.ExpectedCadence}, next
	default:
		return nil, next
	}
}

// trimSpanFrom drops leading records of sp (in its own ascending-value
// order) whose projected value is not strictly past cutoff (by at least
// half a cadence step), enforcing the minimum spacing between adjacent
// retained records.
func trimSpanFrom(sp granuleSpan, cutoff, cadence float64) granuleSpan {
	arr := sp.desc.IndexValues[sp.dim]
	i := 0
	for i < len(sp.indices) && isDuplicate(cutoff, arr.Elements[sp.indices[i]], cadence) {
		i++
	}
	if i == 0 {
		return sp
	}
	if i >= len(sp.indices) {
		return granuleSpan{desc: sp.desc, dim: sp.dim, hasIndexBy: true}
	}
	kept := sp.indices[i:]
	return granuleSpan{
		desc: sp.desc, dim: sp.dim, indices: kept,
		firstVal: arr.Elements[kept[0]], lastVal: sp.lastVal, hasIndexBy: true,
	}
}

// spanToNode turns a granule's kept, ordered indices into a Node: a single
// InputSlice when they form one contiguous on-disk run, or a mini-plan
// InputSlice stitching one InputSlice per disk-contiguous run together in
// output order when the granule's own records weren't already sorted on
// disk.
func spanToNode(sp granuleSpan, open ReaderOpener) Node {
	runs := contiguousRuns(sp.indices)
	if len(runs) == 1 {
		r := runs[0]
		return NewInputSlice(sp.desc, sp.dim, DimRange{Dim: sp.dim, Start: r.start, Stop: r.stop}, open)
	}
	children := make([]Node, len(runs))
	for i, r := range runs {
		children[i] = NewInputSlice(sp.desc, sp.dim, DimRange{Dim: sp.dim, Start: r.start, Stop: r.stop}, open)
	}
	return NewMiniPlanSlice(sp.desc, sp.dim, children)
}

// PlanSize returns the total number of records a plan's nodes for dim sum
// to, used by the evaluator to size the output dimension before writing.
func (p Plan) PlanSize(dim string) int {
	total := 0
	for _, n := range p[dim] {
		total += n.SizeAlong(dim)
	}
	return total
}

func (p Plan) String() string {
	return fmt.Sprintf("Plan(%d dims)", len(p))
}
