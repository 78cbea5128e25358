package ncagg

import (
	"context"
	"reflect"
	"testing"
)

func TestInputSliceDataFor(t *testing.T) {
	schema := &Schema{Dimensions: []Dimension{{Name: "time", Unlimited: true}}}
	g := newFakeGranule("a.nc", schema, map[string][]float64{
		"temp": {1, 2, 3, 4, 5},
	})
	open := fakeOpener(map[string]*fakeGranule{"a.nc": g})
	desc := &Descriptor{Path: "a.nc", DimSizes: map[string]int{"time": 5}}

	slice := NewInputSlice(desc, "time", DimRange{Dim: "time", Start: 1, Stop: 4}, open)
	if got := slice.SizeAlong("time"); got != 3 {
		t.Fatalf("SizeAlong = %d, want 3", got)
	}

	v := &Variable{Name: "temp", Dimensions: []string{"time"}, Datatype: Float64}
	data, err := slice.DataFor(context.Background(), v, WriteWindow{Dim: "time", Start: 0, Len: 3})
	if err != nil {
		t.Fatalf("DataFor: %v", err)
	}
	want := []float64{2, 3, 4}
	if got := data.Values.([]float64); !reflect.DeepEqual(got, want) {
		t.Errorf("DataFor values = %v, want %v", got, want)
	}
}

func TestMiniPlanSliceSumsChildren(t *testing.T) {
	schema := &Schema{Dimensions: []Dimension{{Name: "time", Unlimited: true}}}
	g := newFakeGranule("a.nc", schema, map[string][]float64{"temp": {1, 2, 3, 4, 5, 6}})
	open := fakeOpener(map[string]*fakeGranule{"a.nc": g})
	desc := &Descriptor{Path: "a.nc", DimSizes: map[string]int{"time": 6}}

	leaf1 := NewInputSlice(desc, "time", DimRange{Dim: "time", Start: 0, Stop: 2}, open)
	leaf2 := NewInputSlice(desc, "time", DimRange{Dim: "time", Start: 3, Stop: 6}, open)
	mini := NewMiniPlanSlice(desc, "time", []Node{leaf1, leaf2})

	if got := mini.SizeAlong("time"); got != 5 {
		t.Fatalf("mini SizeAlong = %d, want 5", got)
	}

	v := &Variable{Name: "temp", Dimensions: []string{"time"}, Datatype: Float64}
	data, err := mini.DataFor(context.Background(), v, WriteWindow{Dim: "time", Start: 0, Len: 5})
	if err != nil {
		t.Fatalf("DataFor: %v", err)
	}
	want := []float64{1, 2, 4, 5, 6}
	if got := data.Values.([]float64); !reflect.DeepEqual(got, want) {
		t.Errorf("mini DataFor values = %v, want %v", got, want)
	}
}

func TestFillSegmentIndexLattice(t *testing.T) {
	f := &FillSegment{Dim: "time", Len: 3, Cadence: 1.0, StartVal: 10, DimSizes: map[string]int{}, IndexByVar: "time"}
	v := &Variable{Name: "time", Dimensions: []string{"time"}, Datatype: Float64}
	data, err := f.DataFor(context.Background(), v, WriteWindow{Dim: "time", Start: 0, Len: 3})
	if err != nil {
		t.Fatalf("DataFor: %v", err)
	}
	want := []float64{11, 12, 13}
	if got := data.Values.([]float64); !reflect.DeepEqual(got, want) {
		t.Errorf("fill lattice = %v, want %v", got, want)
	}
}

func TestFillSegmentIndexLatticeMultiDim(t *testing.T) {
	// A missing outer record (report_number) in a variable also carrying a
	// within-record sample axis (samples_per_record) must synthesize a full
	// inner cadence of values, not just one value per missing outer record.
	f := &FillSegment{
		Dim: "report_number", Len: 1, Cadence: 1.0, StartVal: 1.0,
		IndexByVar:   "OB_time",
		DimSizes:     map[string]int{"samples_per_record": 10},
		InnerCadence: map[string]float64{"samples_per_record": 10.0},
	}
	v := &Variable{Name: "OB_time", Dimensions: []string{"report_number", "samples_per_record"}, Datatype: Float64}
	data, err := f.DataFor(context.Background(), v, WriteWindow{Dim: "report_number", Start: 0, Len: 1})
	if err != nil {
		t.Fatalf("DataFor: %v", err)
	}
	if got := data.Shape; !reflect.DeepEqual(got, []int{1, 10}) {
		t.Fatalf("shape = %v, want [1 10]", got)
	}
	values, ok := data.Values.([]float64)
	if !ok || len(values) != 10 {
		t.Fatalf("expected 10 synthesized values, got %v", data.Values)
	}
	want := []float64{2.0, 2.1, 2.2, 2.3, 2.4, 2.5, 2.6, 2.7, 2.8, 2.9}
	for i := range want {
		if diff := values[i] - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("values[%d] = %v, want %v", i, values[i], want[i])
		}
	}
}

func TestPadFlattenAxesPadsNarrowerGranule(t *testing.T) {
	// One time row with a single feature_number value, padded out to the
	// flattened dimension's planned size of 2.
	v := &Variable{Name: "flux", Dimensions: []string{"time", "feature_number"}, Datatype: Float64}
	data := VarData{Shape: []int{1, 1}, Values: []float64{3.2e-6}}
	padded, err := padFlattenAxes(data, v, "time", map[string]int{"feature_number": 2})
	if err != nil {
		t.Fatalf("padFlattenAxes: %v", err)
	}
	if got := padded.Shape; !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("shape = %v, want [1 2]", got)
	}
	fv := v.Datatype.DefaultFillValue().(float64)
	want := []float64{3.2e-6, fv}
	if got := padded.Values.([]float64); !reflect.DeepEqual(got, want) {
		t.Errorf("values = %v, want %v", got, want)
	}

	// A row already at (or past) the planned size is left untouched.
	full := VarData{Shape: []int{1, 2}, Values: []float64{3.3e-6, 5.4e-7}}
	unchanged, err := padFlattenAxes(full, v, "time", map[string]int{"feature_number": 2})
	if err != nil {
		t.Fatalf("padFlattenAxes: %v", err)
	}
	if got := unchanged.Values.([]float64); !reflect.DeepEqual(got, full.Values.([]float64)) {
		t.Errorf("values = %v, want unchanged %v", got, full.Values)
	}
}

func TestFillSegmentPlainFill(t *testing.T) {
	f := &FillSegment{Dim: "time", Len: 2, DimSizes: map[string]int{"level": 3}}
	v := &Variable{Name: "temperature", Dimensions: []string{"time", "level"}, Datatype: Float32}
	data, err := f.DataFor(context.Background(), v, WriteWindow{Dim: "time", Start: 0, Len: 2})
	if err != nil {
		t.Fatalf("DataFor: %v", err)
	}
	values, ok := data.Values.([]float32)
	if !ok || len(values) != 6 {
		t.Fatalf("expected 6 fill values (2 time x 3 level), got %v", data.Values)
	}
	fv := v.Datatype.DefaultFillValue().(float32)
	for _, got := range values {
		if got != fv {
			t.Errorf("fill value = %v, want %v", got, fv)
		}
	}
}
