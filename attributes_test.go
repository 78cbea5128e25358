package ncagg

import (
	"errors"
	"testing"
)

func TestFirstAndLastStrategy(t *testing.T) {
	descs := []*Descriptor{
		{Path: "a.nc", Attrs: map[string]interface{}{"source": "alpha"}},
		{Path: "b.nc", Attrs: map[string]interface{}{"source": "beta"}},
	}
	first, _ := NewStrategy("first", &GlobalAttrSpec{Name: "source"}, nil)
	last, _ := NewStrategy("last", &GlobalAttrSpec{Name: "source"}, nil)
	for i, d := range descs {
		if err := first.observe(d, i, len(descs)); err != nil {
			t.Fatalf("first.observe: %v", err)
		}
		if err := last.observe(d, i, len(descs)); err != nil {
			t.Fatalf("last.observe: %v", err)
		}
	}
	fv, _ := first.finalize()
	if fv != "alpha" {
		t.Errorf("first = %v, want alpha", fv)
	}
	lv, _ := last.finalize()
	if lv != "beta" {
		t.Errorf("last = %v, want beta", lv)
	}
}

func TestUniqueListStrategyDedupsInOrder(t *testing.T) {
	s, _ := NewStrategy("unique_list", &GlobalAttrSpec{Name: "history"}, nil)
	descs := []*Descriptor{
		{Attrs: map[string]interface{}{"history": "created"}},
		{Attrs: map[string]interface{}{"history": "regridded"}},
		{Attrs: map[string]interface{}{"history": "created"}},
	}
	for i, d := range descs {
		if err := s.observe(d, i, len(descs)); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	v, err := s.finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if v != "created, regridded" {
		t.Errorf("unique_list = %q, want %q", v, "created, regridded")
	}
}

func TestConstantStrategyRejectsDivergence(t *testing.T) {
	s, _ := NewStrategy("constant", &GlobalAttrSpec{Name: "platform"}, nil)
	a := &Descriptor{Attrs: map[string]interface{}{"platform": "satellite-1"}}
	b := &Descriptor{Attrs: map[string]interface{}{"platform": "satellite-2"}}
	if err := s.observe(a, 0, 2); err != nil {
		t.Fatalf("observe a: %v", err)
	}
	err := s.observe(b, 1, 2)
	var notConstant AttrNotConstant
	if !errors.As(err, &notConstant) {
		t.Fatalf("observe b: expected AttrNotConstant, got %v", err)
	}
}

func TestIntAndFloatSumStrategy(t *testing.T) {
	intS, _ := NewStrategy("int_sum", &GlobalAttrSpec{Name: "record_count"}, nil)
	floatS, _ := NewStrategy("float_sum", &GlobalAttrSpec{Name: "total_seconds"}, nil)
	descs := []*Descriptor{
		{Attrs: map[string]interface{}{"record_count": 10, "total_seconds": 1.5}},
		{Attrs: map[string]interface{}{"record_count": 5, "total_seconds": 2.5}},
	}
	for i, d := range descs {
		intS.observe(d, i, len(descs))
		floatS.observe(d, i, len(descs))
	}
	iv, _ := intS.finalize()
	if iv != int64(15) {
		t.Errorf("int_sum = %v, want 15", iv)
	}
	fv, _ := floatS.finalize()
	if fv != 4.0 {
		t.Errorf("float_sum = %v, want 4.0", fv)
	}
}

func TestInputFilenameAndCountStrategies(t *testing.T) {
	descs := []*Descriptor{{Path: "/data/a.nc"}, {Path: "/data/b.nc"}, {Path: "/data/c.nc"}}
	firstName, _ := NewStrategy("first_input_filename", &GlobalAttrSpec{}, nil)
	lastName, _ := NewStrategy("last_input_filename", &GlobalAttrSpec{}, nil)
	count, _ := NewStrategy("input_count", &GlobalAttrSpec{}, nil)
	for i, d := range descs {
		firstName.observe(d, i, len(descs))
		lastName.observe(d, i, len(descs))
		count.observe(d, i, len(descs))
	}
	if v, _ := firstName.finalize(); v != "a.nc" {
		t.Errorf("first_input_filename = %v, want a.nc", v)
	}
	if v, _ := lastName.finalize(); v != "c.nc" {
		t.Errorf("last_input_filename = %v, want c.nc", v)
	}
	if v, _ := count.finalize(); v != 3 {
		t.Errorf("input_count = %v, want 3", v)
	}
}

func TestRemoveStrategyFinalizeErrors(t *testing.T) {
	s, _ := NewStrategy("remove", &GlobalAttrSpec{Name: "scratch"}, nil)
	if _, err := s.finalize(); !errors.Is(err, errRemoveAttr) {
		t.Errorf("expected errRemoveAttr, got %v", err)
	}
}

func TestTimeCoverageStrategyReportsConfiguredBound(t *testing.T) {
	min, max := 0.0, 7200.0
	cfg := &Config{
		Dimensions: []*Dimension{
			{Name: "time", Unlimited: true, UDC: &UnlimitedDimConfig{
				IndexBy: "time",
				Min:     &min,
				Max:     &max,
			}},
		},
		Variables: []*Variable{
			{Name: "time", Dimensions: []string{"time"}, Datatype: Float64,
				Attributes: map[string]interface{}{"units": "seconds since 2020-01-01T00:00:00Z"}},
		},
	}
	// Granules' own time_coverage attributes must not influence the result:
	// the strategy reports the configured bound, not a reduction over them.
	descs := []*Descriptor{
		{Attrs: map[string]interface{}{"time_coverage_start": "2099-01-01T00:00:00Z"}},
	}

	start, _ := NewStrategy("time_coverage_start", &GlobalAttrSpec{Name: "time_coverage_start"}, cfg)
	end, _ := NewStrategy("time_coverage_end", &GlobalAttrSpec{Name: "time_coverage_end"}, cfg)
	for i, d := range descs {
		if err := start.observe(d, i, len(descs)); err != nil {
			t.Fatalf("start.observe: %v", err)
		}
		if err := end.observe(d, i, len(descs)); err != nil {
			t.Fatalf("end.observe: %v", err)
		}
	}

	gotStart, err := start.finalize()
	if err != nil {
		t.Fatalf("start.finalize: %v", err)
	}
	if gotStart != "2020-01-01T00:00:00Z" {
		t.Errorf("time_coverage_start = %v, want 2020-01-01T00:00:00Z", gotStart)
	}

	gotEnd, err := end.finalize()
	if err != nil {
		t.Fatalf("end.finalize: %v", err)
	}
	if gotEnd != "2020-01-01T02:00:00Z" {
		t.Errorf("time_coverage_end = %v, want 2020-01-01T02:00:00Z", gotEnd)
	}
}

func TestNewStrategyRejectsUnknownName(t *testing.T) {
	if _, err := NewStrategy("not_a_real_strategy", &GlobalAttrSpec{Name: "x"}, nil); err == nil {
		t.Error("expected ConfigInvalid for an unknown strategy name")
	}
}
