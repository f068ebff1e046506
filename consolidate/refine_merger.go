package consolidate

import (
	"context"

	"go.uber.org/zap"

	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/embedding"
	"github.com/quiltlab/quilt/errors"
)

// PenaltyMode selects how the category-mismatch penalty reshapes a pair's
// distance before thresholding.
type PenaltyMode string

const (
	// PenaltySubtract adds the penalty to a mismatched pair's distance,
	// which is equivalent to subtracting it from the merge threshold for
	// that pair.
	PenaltySubtract PenaltyMode = "subtract"
	// PenaltyScale multiplies a mismatched pair's distance by (1+Penalty),
	// which behaves better near the ends of the threshold range.
	PenaltyScale PenaltyMode = "scale"
)

// RefineConfig configures a RefineMerger.
type RefineConfig struct {
	// Threshold is the maximum embedding distance for a merge.
	Threshold float64
	// Penalty handicaps pairs in different categories, making
	// same-category merges comparatively easier. Zero disables it.
	Penalty float64
	// Mode selects the penalty policy. Empty means PenaltySubtract.
	Mode PenaltyMode
	// UseDefinition embeds "label: definition" instead of the bare label.
	// Every code must already have a definition; running this before a
	// DefinitionGenerator is a configuration error.
	UseDefinition bool
	// Looping repeats merge passes against the updated codebook until a
	// pass produces zero merges. Each merge strictly reduces the code
	// count, so the loop terminates in at most the initial code count
	// passes; exceeding that bound is an invariant violation.
	Looping bool
}

// RefineMerger is the principal semantic-merge stage: it merges every pair
// of codes whose embedding distance, after the category penalty, is at or
// below the threshold.
type RefineMerger struct {
	Provider embedding.Provider
	Config   RefineConfig
	Logger   *zap.SugaredLogger
}

// Name implements Stage.
func (m *RefineMerger) Name() string {
	if m.Config.Looping {
		return "refine-merger-looping"
	}
	return "refine-merger"
}

// Apply implements Stage.
func (m *RefineMerger) Apply(ctx context.Context, cb *codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	if m.Provider == nil {
		return nil, errors.NewConfigurationError("refine merger requires an embedding provider")
	}
	if m.Config.Threshold <= 0 {
		return nil, errors.NewConfigurationError("refine merger requires a positive threshold")
	}
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	out := cb.Clone()
	initial := len(out.Codes)
	if initial == 0 {
		return out, nil
	}

	totalMerges := 0
	for pass := 0; ; pass++ {
		if pass > initial {
			return nil, errors.NewInvariantViolation(
				"refine merge did not converge after %d passes over %d codes", pass, initial)
		}
		merges, err := m.pass(ctx, out)
		if err != nil {
			return nil, err
		}
		totalMerges += merges
		logger.Debugw("refine pass complete", "pass", pass, "merges", merges, "codes", len(out.Codes))
		if !m.Config.Looping || merges == 0 {
			break
		}
	}

	logger.Debugw("refine merge complete",
		"codes_before", initial, "codes_after", len(out.Codes), "merges", totalMerges)
	return out, nil
}

// pass evaluates every pair once against a fixed embedding snapshot and
// folds matching pairs. Returns the number of folds performed.
func (m *RefineMerger) pass(ctx context.Context, cb *codebook.Codebook) (int, error) {
	ids := cb.SortedIDs()
	vectors, err := m.embedAll(ctx, cb, ids)
	if err != nil {
		return 0, err
	}

	uf := newUnionFind(ids)
	merges := 0
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := cb.Codes[uf.find(ids[i])], cb.Codes[uf.find(ids[j])]
			if a.ID == b.ID {
				continue
			}
			// Distances come from the pass's original snapshot, so merge
			// order inside a pass cannot change which pairs qualify.
			dist, err := embedding.Distance(vectors[ids[i]], vectors[ids[j]])
			if err != nil {
				return merges, errors.Wrapf(err, "distance between %q and %q", a.Label, b.Label)
			}
			if m.effectiveDistance(dist, a.Category, b.Category) > m.Config.Threshold {
				continue
			}
			merged, err := uf.union(cb, a.ID, b.ID)
			if err != nil {
				return merges, err
			}
			if merged {
				merges++
			}
		}
	}
	return merges, nil
}

// effectiveDistance applies the category-mismatch penalty. A mismatch is
// two codes that both have categories and disagree; uncategorized codes
// are never penalized.
func (m *RefineMerger) effectiveDistance(dist float64, catA, catB string) float64 {
	if m.Config.Penalty == 0 || catA == "" || catB == "" || catA == catB {
		return dist
	}
	switch m.Config.Mode {
	case PenaltyScale:
		return dist * (1 + m.Config.Penalty)
	default:
		return dist + m.Config.Penalty
	}
}

// embedAll embeds every code's text for this pass and stamps the vectors
// onto the codes so downstream stages can reuse them.
func (m *RefineMerger) embedAll(ctx context.Context, cb *codebook.Codebook, ids []string) (map[string][]float32, error) {
	texts := make([]string, len(ids))
	for i, id := range ids {
		code := cb.Codes[id]
		text, err := codeText(code, m.Config.UseDefinition)
		if err != nil {
			return nil, err
		}
		texts[i] = text
	}

	vecs, err := m.Provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed codes")
	}
	vectors := make(map[string][]float32, len(ids))
	for i, id := range ids {
		vectors[id] = vecs[i]
		cb.Codes[id].Embedding = vecs[i]
	}
	return vectors, nil
}

// codeText returns the text a code is embedded under.
func codeText(code *codebook.Code, useDefinition bool) (string, error) {
	if !useDefinition {
		return code.Label, nil
	}
	def := code.Definition()
	if def == "" {
		return "", errors.NewConfigurationError(
			"code %q has no definition; run a definition generator before definition-aware refinement", code.Label)
	}
	return code.Label + ": " + def, nil
}
