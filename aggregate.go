package ncagg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WriterOpener creates the GranuleWriter Aggregate writes the final product
// to, given a temp path. Production code points this at netcdfio.Create;
// tests substitute an in-memory fake.
type WriterOpener func(path string) (GranuleWriter, error)

// AggregateOptions configures a single Aggregate call.
type AggregateOptions struct {
	Config       *Config
	InputPaths   []string
	OutputPath   string
	Open         ReaderOpener
	CreateWriter WriterOpener
	Workers      int
	Log          *logrus.Logger
}

// Aggregate runs the full planner+evaluator pipeline over opts.InputPaths
// and atomically publishes the result at opts.OutputPath: it writes to a
// temp file alongside the destination and renames it into place only after
// every variable and attribute has been written successfully, so a failed
// or cancelled run never leaves a partial file at the destination path.
func Aggregate(ctx context.Context, opts AggregateOptions) error {
	log := opts.Log
	if log == nil {
		log = logrus.New()
	}
	if len(opts.InputPaths) == 0 {
		return NoInputs{}
	}
	if err := opts.Config.Validate(); err != nil {
		return err
	}

	workers := opts.Workers
	if workers == 0 {
		workers = opts.Config.Workers
	}
	log.WithFields(logrus.Fields{"inputs": len(opts.InputPaths), "workers": workers}).Info("gathering descriptors")
	descs, err := BuildDescriptors(ctx, opts.Config, opts.InputPaths, opts.Open, workers)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return Cancelled{}
	}

	log.Debug("building plan")
	plan, err := BuildPlan(opts.Config, descs, opts.Open)
	if err != nil {
		return err
	}

	tmpPath := tempOutputPath(opts.OutputPath)
	writer, err := opts.CreateWriter(tmpPath)
	if err != nil {
		return IOError{Op: "creating output " + tmpPath, Err: err}
	}

	if err := Evaluate(ctx, opts.Config, plan, descs, opts.Open, writer, opts.OutputPath, log); err != nil {
		writer.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := writer.Close(); err != nil {
		os.Remove(tmpPath)
		return IOError{Op: "closing output " + tmpPath, Err: err}
	}

	if err := os.Rename(tmpPath, opts.OutputPath); err != nil {
		os.Remove(tmpPath)
		return IOError{Op: fmt.Sprintf("renaming %s to %s", tmpPath, opts.OutputPath), Err: err}
	}
	log.WithField("output", opts.OutputPath).Info("aggregation complete")
	return nil
}

// tempOutputPath derives a sibling temp path for path, in the same
// directory so the final os.Rename stays within one filesystem.
func tempOutputPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.New().String()))
}
