package ncagg

import (
	"strings"
	"testing"
)

const sampleConfigJSON = `{
  "dimensions": [
    {"name": "time", "index_by": "time", "expected_cadence": {"time": 1.0}},
    {"name": "level", "size": 4}
  ],
  "variables": [
    {"name": "time", "dimensions": ["time"], "datatype": "float64", "attributes": {"units": "seconds since 1980-01-06T00:00:00Z"}},
    {"name": "temperature", "dimensions": ["time", "level"], "datatype": "float32"}
  ],
  "global attributes": [
    {"name": "source", "strategy": "first"},
    {"name": "history", "strategy": "unique_list"}
  ]
}`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(sampleConfigJSON))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Dimensions) != 2 {
		t.Fatalf("expected 2 dimensions, got %d", len(cfg.Dimensions))
	}
	timeDim := cfg.DimByName("time")
	if timeDim == nil || !timeDim.Unlimited {
		t.Fatalf("expected time to be unlimited, got %+v", timeDim)
	}
	if timeDim.UDC == nil || timeDim.UDC.IndexBy != "time" {
		t.Fatalf("expected UDC.IndexBy = time, got %+v", timeDim.UDC)
	}
	if len(cfg.GlobalAttrs) != 2 || cfg.GlobalAttrs[0].Name != "source" {
		t.Fatalf("expected ordered global attrs, got %+v", cfg.GlobalAttrs)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	bad := strings.Replace(sampleConfigJSON, `"strategy": "first"`, `"strategy": "first", "bogus": 1`, 1)
	if _, err := LoadConfig(strings.NewReader(bad)); err == nil {
		t.Error("expected an error for an unknown field")
	}
}

func TestValidateRejectsUnknownDimension(t *testing.T) {
	cfg := &Config{
		Dimensions: []*Dimension{{Name: "time", Unlimited: true}},
		Variables:  []*Variable{{Name: "x", Dimensions: []string{"nope"}, Datatype: Float64}},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected ConfigInvalid for a variable referencing an unknown dimension")
	}
}

func TestValidateRejectsUnknownAttrStrategy(t *testing.T) {
	cfg := &Config{
		Dimensions:  []*Dimension{{Name: "time", Unlimited: true}},
		GlobalAttrs: []*GlobalAttrSpec{{Name: "x", Strategy: "not_a_strategy"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected ConfigInvalid for an unknown attribute strategy")
	}
}

func TestValidateInfersMinFromMaxOnlyDateBound(t *testing.T) {
	cfg := &Config{
		Dimensions: []*Dimension{
			{Name: "time", Unlimited: true, UDC: &UnlimitedDimConfig{
				IndexBy: "time",
				MaxRaw:  "T202003",
			}},
		},
		Variables: []*Variable{
			{Name: "time", Dimensions: []string{"time"}, Datatype: Float64,
				Attributes: map[string]interface{}{"units": "seconds since 2020-01-01T00:00:00Z"}},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	udc := cfg.DimByName("time").UDC
	if udc.Min == nil || udc.Max == nil {
		t.Fatalf("expected both bounds resolved, got min=%v max=%v", udc.Min, udc.Max)
	}
	if *udc.Min >= *udc.Max {
		t.Errorf("inferred min (%v) must be before max (%v), not inverted", *udc.Min, *udc.Max)
	}
}

func TestFromSampleDefaultsWellKnownAttrs(t *testing.T) {
	schema := &Schema{
		Dimensions: []Dimension{{Name: "time", Unlimited: true}},
		Variables:  []*Variable{{Name: "time", Dimensions: []string{"time"}, Datatype: Float64}},
		GlobalAttrs: map[string]interface{}{
			"date_created": "2020-01-01",
			"source":       "instrument X",
		},
	}
	cfg := FromSample(schema)
	var dateCreated, source *GlobalAttrSpec
	for _, a := range cfg.GlobalAttrs {
		switch a.Name {
		case "date_created":
			dateCreated = a
		case "source":
			source = a
		}
	}
	if dateCreated == nil || dateCreated.Strategy != "date_created" {
		t.Errorf("expected date_created strategy for date_created attr, got %+v", dateCreated)
	}
	if source == nil || source.Strategy != "first" {
		t.Errorf("expected first strategy as default, got %+v", source)
	}
}
