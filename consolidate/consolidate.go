// Package consolidate implements the merge/refine stage family that reduces
// a large, redundant collection of codes into a minimal, well-defined,
// hierarchically categorized codebook.
//
// Every stage shares one contract: it receives a codebook snapshot and
// returns a new snapshot, never mutating its input. Stages compose into a
// Pipeline and run strictly in declared order; later stages depend on
// earlier ones (definitions must exist before definition-aware refinement).
package consolidate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/errors"
)

// Stage is a single codebook transformation.
type Stage interface {
	Name() string
	Apply(ctx context.Context, cb *codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error)
}

// Pipeline is a linear composition of stages. Stage i+1 receives exactly
// the codebook produced by stage i; there is no reordering or parallelism
// among stages within one run.
type Pipeline struct {
	stages []Stage
	logger *zap.SugaredLogger
}

// NewPipeline composes stages in the given order. logger may be nil.
func NewPipeline(logger *zap.SugaredLogger, stages ...Stage) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{stages: stages, logger: logger}
}

// Name implements Stage, so pipelines nest.
func (p *Pipeline) Name() string { return "pipeline" }

// Apply runs every stage in order, validating the snapshot each produces.
func (p *Pipeline) Apply(ctx context.Context, cb *codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	current := cb
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "pipeline cancelled before stage %s", stage.Name())
		}
		start := time.Now()
		before := len(current.Codes)

		next, err := stage.Apply(ctx, current, run)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %s failed", stage.Name())
		}
		if err := next.Validate(); err != nil {
			return nil, errors.Wrap(
				errors.WithSecondaryError(errors.ErrInvariant, err),
				"stage "+stage.Name()+" produced an invalid codebook")
		}

		p.logger.Infow("stage complete",
			"stage", stage.Name(),
			"codes_before", before,
			"codes_after", len(next.Codes),
			"categories", len(next.Categories),
			"elapsed", time.Since(start))
		current = next
	}
	return current, nil
}
