package consolidate

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/errors"
)

// DefaultLabelSimilarity is the fixed high bar for treating two labels as
// near-identical.
const DefaultLabelSimilarity = 0.9

// SimpleMerger merges codes whose labels are near-identical by string
// similarity. Deterministic, no embedding or LLM calls, so it runs first
// to cheaply strip exact and near-exact duplicates.
type SimpleMerger struct {
	// Similarity is the minimum normalized label similarity in (0, 1].
	// Zero means DefaultLabelSimilarity.
	Similarity float64
}

// Name implements Stage.
func (m *SimpleMerger) Name() string { return "simple-merger" }

// Apply implements Stage. When three or more labels chain-match, the whole
// chain folds into one code: most owners wins, ties go to the
// lexicographically first id.
func (m *SimpleMerger) Apply(ctx context.Context, cb *codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	threshold := m.Similarity
	if threshold == 0 {
		threshold = DefaultLabelSimilarity
	}
	if threshold < 0 || threshold > 1 {
		return nil, errors.NewConfigurationError("label similarity %v out of range (0, 1]", threshold)
	}

	out := cb.Clone()
	ids := out.SortedIDs()
	uf := newUnionFind(ids)

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := out.Codes[uf.find(ids[i])], out.Codes[uf.find(ids[j])]
			if a.ID == b.ID {
				continue
			}
			if LabelSimilarity(a.Label, b.Label) < threshold {
				continue
			}
			if _, err := uf.union(out, a.ID, b.ID); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// LabelSimilarity returns a normalized similarity in [0, 1] between two
// labels: 1 - levenshtein/maxlen, on case-folded, space-trimmed text.
func LabelSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
