package evaluate

import (
	"context"

	"go.uber.org/zap"

	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/embedding"
	"github.com/quiltlab/quilt/errors"
)

// CoverageEvaluator clusters reference and candidate code labels in
// embedding space and reports, per reference code, whether at least one
// candidate code landed in the same cluster. Candidate codes backed by a
// single example are excluded: one quote is not evidence of a concept.
type CoverageEvaluator struct {
	Provider embedding.Provider
	// ClusterDistance is the assignment radius for clustering. Zero means
	// DefaultClusterDistance.
	ClusterDistance float64
	Logger          *zap.SugaredLogger
}

// DefaultClusterDistance is a workable radius for label-level clusters.
const DefaultClusterDistance = 0.15

// minCandidateExamples is the evidence bar for a candidate code to count.
const minCandidateExamples = 2

// Name implements Evaluator.
func (e *CoverageEvaluator) Name() string { return "coverage" }

// Evaluate implements Evaluator.
func (e *CoverageEvaluator) Evaluate(ctx context.Context, reference *codebook.Codebook, candidates []*codebook.Codebook, names []string, run codebook.RunContext) (Report, error) {
	if e.Provider == nil {
		return nil, errors.NewConfigurationError("coverage evaluator requires an embedding provider")
	}
	if len(candidates) != len(names) {
		return nil, errors.NewConfigurationError(
			"got %d candidate codebooks but %d names", len(candidates), len(names))
	}
	radius := e.ClusterDistance
	if radius == 0 {
		radius = DefaultClusterDistance
	}
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	refIDs := reference.SortedIDs()
	if len(refIDs) == 0 {
		return nil, errors.New("reference codebook is empty")
	}

	report := make(Report, len(candidates))
	for ci, candidate := range candidates {
		// Candidate codes with enough evidence, in deterministic order.
		var candIDs []string
		for _, id := range candidate.SortedIDs() {
			if len(candidate.Codes[id].Examples) >= minCandidateExamples {
				candIDs = append(candIDs, id)
			}
		}

		// One embedding space per candidate: reference labels first,
		// candidate labels after.
		texts := make([]string, 0, len(refIDs)+len(candIDs))
		for _, id := range refIDs {
			texts = append(texts, reference.Codes[id].Label)
		}
		for _, id := range candIDs {
			texts = append(texts, candidate.Codes[id].Label)
		}
		vecs, err := e.Provider.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to embed labels for candidate %s", names[ci])
		}

		clusters, err := embedding.Cluster(vecs, embedding.ClusterConfig{MaxDistance: radius})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to cluster labels for candidate %s", names[ci])
		}

		cr := &CandidateReport{Total: len(refIDs), Codes: len(candIDs)}
		for ri, refID := range refIDs {
			match := CodeMatch{
				ReferenceID:    refID,
				ReferenceLabel: reference.Codes[refID].Label,
			}
			refCluster := clusters.Labels[ri]
			if refCluster >= 0 {
				for cj, candID := range candIDs {
					if clusters.Labels[len(refIDs)+cj] == refCluster {
						match.Covered = true
						match.MatchedBy = append(match.MatchedBy, candidate.Codes[candID].Label)
					}
				}
			}
			if match.Covered {
				cr.Covered++
			}
			cr.Matches = append(cr.Matches, match)
		}
		if cr.Total > 0 {
			cr.Coverage = float64(cr.Covered) / float64(cr.Total)
		}
		report[names[ci]] = cr

		logger.Infow("candidate evaluated",
			"evaluator", e.Name(),
			"candidate", names[ci],
			"coverage", cr.Coverage,
			"covered", cr.Covered,
			"total", cr.Total)
	}
	return report, nil
}
