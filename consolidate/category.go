package consolidate

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/embedding"
	"github.com/quiltlab/quilt/errors"
)

// categorySurvivor decides which of two categories absorbs the other: more
// members wins, ties go to the lexicographically first id.
func categorySurvivor(cb *codebook.Codebook, a, b string) (dst, src string) {
	ca, cbb := cb.Categories[a], cb.Categories[b]
	switch {
	case len(ca.MemberCodeIDs) > len(cbb.MemberCodeIDs):
		return a, b
	case len(ca.MemberCodeIDs) < len(cbb.MemberCodeIDs):
		return b, a
	case a < b:
		return a, b
	default:
		return b, a
	}
}

// mergeCategories folds src into dst: members move over, member codes are
// repointed, and dst keeps its own name and definition (absorbing src's
// definition only when it has none).
func mergeCategories(cb *codebook.Codebook, dst, src string) error {
	d, ok := cb.Categories[dst]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "category %s", dst)
	}
	s, ok := cb.Categories[src]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "category %s", src)
	}

	for _, codeID := range s.MemberCodeIDs {
		if code, ok := cb.Codes[codeID]; ok {
			code.Category = dst
		}
	}
	d.AddMembers(s.MemberCodeIDs...)
	if d.Definition == "" {
		d.Definition = s.Definition
	}
	delete(cb.Categories, src)
	return nil
}

// categoryMergePass folds every category pair whose distance under the
// given texts is at or below threshold. Returns the number of folds.
func categoryMergePass(ctx context.Context, cb *codebook.Codebook, provider embedding.Provider, threshold float64, text func(*codebook.Category) string) (int, error) {
	ids := cb.SortedCategoryIDs()
	if len(ids) < 2 {
		return 0, nil
	}

	texts := make([]string, len(ids))
	for i, id := range ids {
		texts[i] = text(cb.Categories[id])
	}
	vecs, err := provider.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, errors.Wrap(err, "failed to embed categories")
	}

	// Redirects for chained matches, same scheme as code merging.
	parent := make(map[string]string, len(ids))
	for _, id := range ids {
		parent[id] = id
	}
	find := func(id string) string {
		for parent[id] != id {
			id = parent[id]
		}
		return id
	}

	merges := 0
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			ra, rb := find(ids[i]), find(ids[j])
			if ra == rb {
				continue
			}
			dist, err := embedding.Distance(vecs[i], vecs[j])
			if err != nil {
				return merges, err
			}
			if dist > threshold {
				continue
			}
			dst, src := categorySurvivor(cb, ra, rb)
			if err := mergeCategories(cb, dst, src); err != nil {
				return merges, err
			}
			parent[src] = dst
			merges++
		}
	}
	return merges, nil
}

// CategoryMerger merges categories whose name embeddings fall within
// Threshold. Single pass against the original snapshot.
type CategoryMerger struct {
	Provider  embedding.Provider
	Threshold float64
}

// Name implements Stage.
func (m *CategoryMerger) Name() string { return "category-merger" }

// Apply implements Stage.
func (m *CategoryMerger) Apply(ctx context.Context, cb *codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	if m.Provider == nil {
		return nil, errors.NewConfigurationError("category merger requires an embedding provider")
	}
	if m.Threshold <= 0 {
		return nil, errors.NewConfigurationError("category merger requires a positive threshold")
	}
	out := cb.Clone()
	_, err := categoryMergePass(ctx, out, m.Provider, m.Threshold, func(cat *codebook.Category) string {
		return cat.Name
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CategoryNameMerger merges categories whose names are near-identical by
// string similarity. Deterministic, no embedding calls; the category-level
// counterpart of SimpleMerger.
type CategoryNameMerger struct {
	// Similarity is the minimum normalized name similarity in (0, 1].
	// Zero means DefaultLabelSimilarity.
	Similarity float64
}

// Name implements Stage.
func (m *CategoryNameMerger) Name() string { return "category-name-merger" }

// Apply implements Stage.
func (m *CategoryNameMerger) Apply(ctx context.Context, cb *codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	threshold := m.Similarity
	if threshold == 0 {
		threshold = DefaultLabelSimilarity
	}

	out := cb.Clone()
	ids := out.SortedCategoryIDs()
	parent := make(map[string]string, len(ids))
	for _, id := range ids {
		parent[id] = id
	}
	find := func(id string) string {
		for parent[id] != id {
			id = parent[id]
		}
		return id
	}

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			ra, rb := find(ids[i]), find(ids[j])
			if ra == rb {
				continue
			}
			if LabelSimilarity(out.Categories[ra].Name, out.Categories[rb].Name) < threshold {
				continue
			}
			dst, src := categorySurvivor(out, ra, rb)
			if err := mergeCategories(out, dst, src); err != nil {
				return nil, err
			}
			parent[src] = dst
		}
	}
	return out, nil
}

// CategoryRefiner iteratively merges categories by the embedding of their
// aggregate text (name, definition, and member labels) until a pass
// produces zero merges.
type CategoryRefiner struct {
	Provider  embedding.Provider
	Threshold float64
	Logger    *zap.SugaredLogger
}

// Name implements Stage.
func (m *CategoryRefiner) Name() string { return "category-refiner" }

// Apply implements Stage.
func (m *CategoryRefiner) Apply(ctx context.Context, cb *codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	if m.Provider == nil {
		return nil, errors.NewConfigurationError("category refiner requires an embedding provider")
	}
	if m.Threshold <= 0 {
		return nil, errors.NewConfigurationError("category refiner requires a positive threshold")
	}
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	out := cb.Clone()
	initial := len(out.Categories)
	for pass := 0; ; pass++ {
		if pass > initial {
			return nil, errors.NewInvariantViolation(
				"category refinement did not converge after %d passes over %d categories", pass, initial)
		}
		merges, err := categoryMergePass(ctx, out, m.Provider, m.Threshold, func(cat *codebook.Category) string {
			return aggregateCategoryText(out, cat)
		})
		if err != nil {
			return nil, err
		}
		logger.Debugw("category refine pass", "pass", pass, "merges", merges, "categories", len(out.Categories))
		if merges == 0 {
			break
		}
	}
	return out, nil
}

// aggregateCategoryText joins a category's name, definition, and member
// labels into the text it is clustered under.
func aggregateCategoryText(cb *codebook.Codebook, cat *codebook.Category) string {
	parts := []string{cat.Name}
	if cat.Definition != "" {
		parts = append(parts, cat.Definition)
	}
	labels := make([]string, 0, len(cat.MemberCodeIDs))
	for _, id := range cat.MemberCodeIDs {
		if code, ok := cb.Codes[id]; ok {
			labels = append(labels, code.Label)
		}
	}
	sort.Strings(labels)
	return strings.Join(append(parts, labels...), "; ")
}

// CategoryAssigner assigns every uncategorized code to the nearest
// category by embedding distance, leaving it uncategorized when no
// category is within MaxDistance. It never invents a category.
type CategoryAssigner struct {
	Provider embedding.Provider
	// MaxDistance is the closeness bound for assignment.
	MaxDistance float64
}

// Name implements Stage.
func (m *CategoryAssigner) Name() string { return "category-assigner" }

// Apply implements Stage.
func (m *CategoryAssigner) Apply(ctx context.Context, cb *codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	if m.Provider == nil {
		return nil, errors.NewConfigurationError("category assigner requires an embedding provider")
	}
	if m.MaxDistance <= 0 {
		return nil, errors.NewConfigurationError("category assigner requires a positive closeness bound")
	}

	out := cb.Clone()
	catIDs := out.SortedCategoryIDs()
	if len(catIDs) == 0 {
		return out, nil
	}

	catTexts := make([]string, len(catIDs))
	for i, id := range catIDs {
		cat := out.Categories[id]
		catTexts[i] = cat.Name
		if cat.Definition != "" {
			catTexts[i] += ": " + cat.Definition
		}
	}
	catVecs, err := m.Provider.EmbedBatch(ctx, catTexts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed categories")
	}

	for _, id := range out.SortedIDs() {
		code := out.Codes[id]
		if code.Category != "" {
			continue
		}
		vec := code.Embedding
		if vec == nil {
			vec, err = m.Provider.Embed(ctx, code.Label)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to embed code %q", code.Label)
			}
			code.Embedding = vec
		}

		bestCat := ""
		bestDist := m.MaxDistance
		for i, catID := range catIDs {
			dist, err := embedding.Distance(vec, catVecs[i])
			if err != nil {
				return nil, err
			}
			if dist <= bestDist {
				bestCat = catID
				bestDist = dist
			}
		}
		if bestCat != "" {
			code.Category = bestCat
			out.Categories[bestCat].AddMembers(id)
		}
	}
	return out, nil
}
