package ncagg

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// fileBackedFakeWriter wraps fakeWriter but also touches path on disk, so
// Aggregate's atomic publish-by-rename has a real tmp file to rename.
type fileBackedFakeWriter struct {
	*fakeWriter
	path string
}

func newFileBackedFakeWriter(path string) (GranuleWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	f.Close()
	return &fileBackedFakeWriter{fakeWriter: newFakeWriter(), path: path}, nil
}

func TestAggregateEndToEnd(t *testing.T) {
	schema := &Schema{
		Dimensions: []Dimension{{Name: "time", Unlimited: true, Size: 3}},
		Variables: []*Variable{
			{Name: "time", Dimensions: []string{"time"}, Datatype: Float64},
			{Name: "temp", Dimensions: []string{"time"}, Datatype: Float64},
		},
	}
	ga := newFakeGranule("a.nc", schema, map[string][]float64{
		"time": {0, 1, 2},
		"temp": {10, 11, 12},
	})
	gb := newFakeGranule("b.nc", schema, map[string][]float64{
		"time": {3, 4, 5},
		"temp": {13, 14, 15},
	})
	open := fakeOpener(map[string]*fakeGranule{"a.nc": ga, "b.nc": gb})

	cfg := &Config{
		Dimensions: []*Dimension{
			{Name: "time", Unlimited: true, UDC: &UnlimitedDimConfig{
				IndexBy:         "time",
				ExpectedCadence: map[string]float64{"time": 1.0},
			}},
		},
		Variables: []*Variable{
			{Name: "time", Dimensions: []string{"time"}, Datatype: Float64},
			{Name: "temp", Dimensions: []string{"time"}, Datatype: Float64},
		},
		EngineVersion: "test",
	}

	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.nc")

	var created *fileBackedFakeWriter
	createWriter := func(path string) (GranuleWriter, error) {
		w, err := newFileBackedFakeWriter(path)
		if err != nil {
			return nil, err
		}
		created = w.(*fileBackedFakeWriter)
		return w, nil
	}

	err := Aggregate(context.Background(), AggregateOptions{
		Config:       cfg,
		InputPaths:   []string{"a.nc", "b.nc"},
		OutputPath:   outputPath,
		Open:         open,
		CreateWriter: createWriter,
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	if !created.closed {
		t.Error("expected writer to be closed")
	}
	if _, err := os.Stat(outputPath); err != nil {
		t.Errorf("expected output file at %s: %v", outputPath, err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 1 {
		t.Errorf("expected the temp file to be renamed away, found %d entries in %s", len(entries), dir)
	}

	wantTime := []float64{0, 1, 2, 3, 4, 5}
	if got := created.writes["time"]; !floatSliceEqual(got, wantTime) {
		t.Errorf("time = %v, want %v", got, wantTime)
	}
}

func TestAggregateRejectsEmptyInputs(t *testing.T) {
	err := Aggregate(context.Background(), AggregateOptions{
		Config:     &Config{},
		InputPaths: nil,
	})
	if err == nil {
		t.Error("expected NoInputs error")
	}
}
