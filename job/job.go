// Package job sequences Load -> Code -> Consolidate -> Evaluate for one
// (dataset, model) pair and fans independent jobs out across a bounded
// worker pool. Jobs share no mutable state, so one job's failure never
// touches another.
package job

import (
	"context"
	"os"
	"path/filepath"

	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/consolidate"
	"github.com/quiltlab/quilt/errors"
	"github.com/quiltlab/quilt/evaluate"
	"github.com/quiltlab/quilt/export"
	"github.com/quiltlab/quilt/loader"
	"github.com/quiltlab/quilt/reference"
)

// Coder is the external per-chunk coding collaborator: it turns a raw
// dataset into many small codebooks, one per chunk.
type Coder interface {
	Code(ctx context.Context, dataset *loader.Dataset, run codebook.RunContext) ([]*codebook.Codebook, error)
}

// Job is one independent unit of work: a dataset coded under one model,
// consolidated, and optionally evaluated against a reference.
type Job struct {
	// Name labels the job in logs and output files.
	Name string
	// DatasetPath is the raw text input.
	DatasetPath string
	// Coder produces per-chunk codebooks from the dataset.
	Coder Coder
	// Pipeline consolidates the concatenated per-chunk codebooks.
	Pipeline consolidate.Stage
	// Run namespaces this job's cache keys and identifies its models.
	Run codebook.RunContext

	// Evaluator, when set, scores the consolidated codebook against the
	// reference at ReferencePath (built by Builder when absent).
	Evaluator     evaluate.Evaluator
	ReferencePath string
	Builder       reference.Builder

	// OutputDir receives the consolidated codebook and the report.
	OutputDir string
}

// Result is one job's outcome. Err is set when the job aborted; partial
// artifacts from completed steps may still have been persisted.
type Result struct {
	Name     string
	Codebook *codebook.Codebook
	Report   evaluate.Report
	Err      error
}

// execute runs the job's steps strictly in order.
func (j *Job) execute(ctx context.Context) Result {
	res := Result{Name: j.Name}

	dataset, err := loader.LoadDataset(j.DatasetPath)
	if err != nil {
		res.Err = errors.Wrap(err, "load step failed")
		return res
	}

	chunks, err := j.Coder.Code(ctx, dataset, j.Run)
	if err != nil {
		res.Err = errors.Wrap(err, "code step failed")
		return res
	}
	if len(chunks) == 0 {
		res.Err = errors.New("code step produced no codebooks")
		return res
	}

	combined := codebook.Concat(chunks...)
	consolidated, err := j.Pipeline.Apply(ctx, combined, j.Run)
	if err != nil {
		res.Err = errors.Wrap(err, "consolidate step failed")
		return res
	}
	res.Codebook = consolidated

	if j.OutputDir != "" {
		if err := os.MkdirAll(j.OutputDir, 0o755); err != nil {
			res.Err = errors.Wrapf(err, "failed to create output directory %s", j.OutputDir)
			return res
		}
		base := filepath.Join(j.OutputDir, j.Name)
		if err := consolidated.Save(base + ".json"); err != nil {
			res.Err = err
			return res
		}
		if err := export.WriteMarkdown(base+".md", consolidated); err != nil {
			res.Err = err
			return res
		}
	}

	if j.Evaluator == nil {
		return res
	}
	report, err := evaluate.EvaluateCodebooks(ctx,
		[]*codebook.Codebook{consolidated}, []string{j.Name},
		j.ReferencePath, j.Builder, j.Evaluator,
		filepath.Join(j.OutputDir, j.Name), j.Run, nil)
	if err != nil {
		res.Err = errors.Wrap(err, "evaluate step failed")
		return res
	}
	res.Report = report
	return res
}
