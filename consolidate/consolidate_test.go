package consolidate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiltlab/quilt/cache"
	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/consolidate"
	"github.com/quiltlab/quilt/errors"
	"github.com/quiltlab/quilt/internal/testutil"
)

var testRun = codebook.RunContext{RunID: "test", LLMModel: "stub-model", EmbeddingModel: "stub-embedding"}

func addCode(t *testing.T, cb *codebook.Codebook, id, label string, owners ...string) *codebook.Code {
	t.Helper()
	code := &codebook.Code{ID: id, Label: label, Owners: owners}
	require.NoError(t, cb.Add(code))
	return code
}

func TestSimpleMerger_MergesNearIdenticalLabels(t *testing.T) {
	cb := codebook.New()
	addCode(t, cb, "a", "teamwork", "chunk1")
	addCode(t, cb, "b", "Teamwork ", "chunk2", "chunk3")
	addCode(t, cb, "c", "homework", "chunk1")

	merger := &consolidate.SimpleMerger{}
	out, err := merger.Apply(context.Background(), cb, testRun)
	require.NoError(t, err)

	require.Len(t, out.Codes, 2, "near-identical labels merge, distinct ones survive")
	survivor, ok := out.Codes["b"]
	require.True(t, ok, "the code with more owners survives")
	assert.Equal(t, []string{"chunk1", "chunk2", "chunk3"}, survivor.Owners)
	assert.Contains(t, out.Codes, "c")

	// Input is untouched.
	assert.Len(t, cb.Codes, 3)
}

func TestSimpleMerger_ChainMergesToOne(t *testing.T) {
	cb := codebook.New()
	addCode(t, cb, "a", "collaboration", "chunk1")
	addCode(t, cb, "b", "collaboration", "chunk2")
	addCode(t, cb, "c", "collaboration", "chunk3")

	out, err := (&consolidate.SimpleMerger{}).Apply(context.Background(), cb, testRun)
	require.NoError(t, err)

	require.Len(t, out.Codes, 1)
	merged, ok := out.Codes["a"]
	require.True(t, ok, "owner-count ties break to the lexicographically first id")
	assert.Equal(t, []string{"chunk1", "chunk2", "chunk3"}, merged.Owners)
}

func TestLabelSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, consolidate.LabelSimilarity("Teamwork", " teamwork "), "case and whitespace are ignored")
	assert.Equal(t, 1.0, consolidate.LabelSimilarity("", ""))
	assert.InDelta(t, 1.0-1.0/9.0, consolidate.LabelSimilarity("teamwork", "teamwork!"), 1e-9)
	assert.Less(t, consolidate.LabelSimilarity("teamwork", "homework"), 0.8)
}

// stub vectors: "teamwork" and "team collaboration" are close (distance
// 0.05), "homework" is well separated (0.25 from teamwork).
func newVectors() map[string][]float32 {
	return map[string][]float32{
		"teamwork":           {1, 0},
		"team collaboration": {0.9, 0.4359},
		"homework":           {0, 1},
	}
}

func TestRefineMerger_MergesWithinThreshold(t *testing.T) {
	cb := codebook.New()
	addCode(t, cb, "a", "teamwork", "chunk1", "chunk2")
	addCode(t, cb, "b", "team collaboration", "chunk3")
	addCode(t, cb, "c", "homework", "chunk1")

	merger := &consolidate.RefineMerger{
		Provider: testutil.NewStubProvider(newVectors()),
		Config:   consolidate.RefineConfig{Threshold: 0.1},
	}
	out, err := merger.Apply(context.Background(), cb, testRun)
	require.NoError(t, err)

	require.Len(t, out.Codes, 2)
	survivor, ok := out.Codes["a"]
	require.True(t, ok, "most owners survives")
	assert.Equal(t, []string{"chunk1", "chunk2", "chunk3"}, survivor.Owners)
	assert.NotNil(t, out.Codes["c"].Embedding, "embeddings are stamped onto codes")
}

func TestRefineMerger_ThresholdMonotonicity(t *testing.T) {
	build := func() *codebook.Codebook {
		cb := codebook.New()
		addCode(t, cb, "a", "teamwork")
		addCode(t, cb, "b", "team collaboration")
		addCode(t, cb, "c", "homework")
		return cb
	}

	strict := &consolidate.RefineMerger{
		Provider: testutil.NewStubProvider(newVectors()),
		Config:   consolidate.RefineConfig{Threshold: 0.01},
	}
	loose := &consolidate.RefineMerger{
		Provider: testutil.NewStubProvider(newVectors()),
		Config:   consolidate.RefineConfig{Threshold: 0.3},
	}

	strictOut, err := strict.Apply(context.Background(), build(), testRun)
	require.NoError(t, err)
	looseOut, err := loose.Apply(context.Background(), build(), testRun)
	require.NoError(t, err)

	assert.Equal(t, 3, len(strictOut.Codes), "tight threshold merges nothing")
	assert.LessOrEqual(t, len(looseOut.Codes), len(strictOut.Codes),
		"raising the threshold can only merge more")
}

func TestRefineMerger_CategoryMismatchPenalty(t *testing.T) {
	build := func(catA, catB string) *codebook.Codebook {
		cb := codebook.New()
		require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat1", Name: "Collaboration"}))
		require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat2", Name: "School"}))
		a := addCode(t, cb, "a", "teamwork")
		a.Category = catA
		b := addCode(t, cb, "b", "team collaboration")
		b.Category = catB
		return cb
	}

	merger := &consolidate.RefineMerger{
		Provider: testutil.NewStubProvider(newVectors()),
		Config: consolidate.RefineConfig{
			Threshold: 0.1,
			Penalty:   0.1,
			Mode:      consolidate.PenaltySubtract,
		},
	}

	// Distance 0.05; penalized to 0.15 on mismatch, above the threshold.
	out, err := merger.Apply(context.Background(), build("cat1", "cat2"), testRun)
	require.NoError(t, err)
	assert.Len(t, out.Codes, 2, "different categories block the merge")

	out, err = merger.Apply(context.Background(), build("cat1", "cat1"), testRun)
	require.NoError(t, err)
	assert.Len(t, out.Codes, 1, "same category merges normally")

	// An uncategorized partner is never penalized.
	out, err = merger.Apply(context.Background(), build("cat1", ""), testRun)
	require.NoError(t, err)
	assert.Len(t, out.Codes, 1)
}

func TestRefineMerger_PenaltyScaleMode(t *testing.T) {
	cb := codebook.New()
	require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat1", Name: "Collaboration"}))
	require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat2", Name: "School"}))
	a := addCode(t, cb, "a", "teamwork")
	a.Category = "cat1"
	b := addCode(t, cb, "b", "team collaboration")
	b.Category = "cat2"

	// Scaled distance 0.05 * 1.1 = 0.055 stays under the threshold where
	// the subtract policy (0.15) would block.
	merger := &consolidate.RefineMerger{
		Provider: testutil.NewStubProvider(newVectors()),
		Config: consolidate.RefineConfig{
			Threshold: 0.1,
			Penalty:   0.1,
			Mode:      consolidate.PenaltyScale,
		},
	}
	out, err := merger.Apply(context.Background(), cb, testRun)
	require.NoError(t, err)
	assert.Len(t, out.Codes, 1)
}

func TestRefineMerger_DefinitionRequired(t *testing.T) {
	cb := codebook.New()
	addCode(t, cb, "a", "teamwork")
	addCode(t, cb, "b", "team collaboration")

	merger := &consolidate.RefineMerger{
		Provider: testutil.NewStubProvider(newVectors()),
		Config:   consolidate.RefineConfig{Threshold: 0.1, UseDefinition: true},
	}
	_, err := merger.Apply(context.Background(), cb, testRun)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err),
		"definition-aware refinement without definitions is a configuration error")
}

func TestRefineMerger_LoopingTerminates(t *testing.T) {
	cb := codebook.New()
	addCode(t, cb, "a", "teamwork", "chunk1", "chunk2")
	addCode(t, cb, "b", "team collaboration", "chunk3")
	addCode(t, cb, "c", "homework", "chunk1")

	merger := &consolidate.RefineMerger{
		Provider: testutil.NewStubProvider(newVectors()),
		Config:   consolidate.RefineConfig{Threshold: 0.1, Looping: true},
	}
	out, err := merger.Apply(context.Background(), cb, testRun)
	require.NoError(t, err)
	assert.Len(t, out.Codes, 2)
	assert.Equal(t, "refine-merger-looping", merger.Name())
}

func TestDefinitionGenerator_CachesByContent(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	model := &testutil.StubModel{Default: "Working jointly toward a shared goal."}

	cb := codebook.New()
	code := addCode(t, cb, "a", "teamwork", "chunk1")
	code.Examples = []codebook.Example{{Text: "we worked together"}}
	defined := addCode(t, cb, "b", "homework", "chunk1")
	defined.PushDefinition("School tasks done at home.")

	gen := &consolidate.DefinitionGenerator{Model: model, Store: store}
	out, err := gen.Apply(context.Background(), cb, testRun)
	require.NoError(t, err)

	assert.Equal(t, "Working jointly toward a shared goal.", out.Codes["a"].Definition())
	assert.Equal(t, "School tasks done at home.", out.Codes["b"].Definition(),
		"codes that already have definitions are untouched")
	require.Len(t, model.Calls, 1, "only the undefined code hits the model")

	// Same input again: served entirely from cache.
	_, err = gen.Apply(context.Background(), cb, testRun)
	require.NoError(t, err)
	assert.Len(t, model.Calls, 1)
}

func TestCategoryNameMerger_RepointsMembers(t *testing.T) {
	cb := codebook.New()
	require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat1", Name: "Collaboration", MemberCodeIDs: []string{"a", "b"}}))
	require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat2", Name: "collaboration "}))
	a := addCode(t, cb, "a", "teamwork")
	a.Category = "cat1"
	b := addCode(t, cb, "b", "team collaboration")
	b.Category = "cat1"
	c := addCode(t, cb, "c", "group project")
	c.Category = "cat2"
	cb.Categories["cat2"].AddMembers("c")

	out, err := (&consolidate.CategoryNameMerger{}).Apply(context.Background(), cb, testRun)
	require.NoError(t, err)

	require.Len(t, out.Categories, 1)
	survivor, ok := out.Categories["cat1"]
	require.True(t, ok, "the category with more members survives")
	assert.Equal(t, []string{"a", "b", "c"}, survivor.MemberCodeIDs)
	assert.Equal(t, "cat1", out.Codes["c"].Category)
	require.NoError(t, out.Validate())
}

func TestCategoryMerger_MergesCloseNames(t *testing.T) {
	vectors := map[string][]float32{
		"Collaboration":      {1, 0},
		"Team Collaboration": {0.9, 0.4359}, // distance 0.05
		"Logistics":          {0, 1},        // distance 0.25 from Collaboration
	}

	cb := codebook.New()
	require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat1", Name: "Collaboration", MemberCodeIDs: []string{"a", "b"}}))
	require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat2", Name: "Team Collaboration", MemberCodeIDs: []string{"c"}}))
	require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat3", Name: "Logistics", MemberCodeIDs: []string{"d"}}))
	for id, cat := range map[string]string{"a": "cat1", "b": "cat1", "c": "cat2", "d": "cat3"} {
		addCode(t, cb, id, "code "+id).Category = cat
	}

	merger := &consolidate.CategoryMerger{
		Provider:  testutil.NewStubProvider(vectors),
		Threshold: 0.1,
	}
	out, err := merger.Apply(context.Background(), cb, testRun)
	require.NoError(t, err)

	require.Len(t, out.Categories, 2)
	survivor, ok := out.Categories["cat1"]
	require.True(t, ok, "the category with more members survives")
	assert.Equal(t, []string{"a", "b", "c"}, survivor.MemberCodeIDs)
	assert.Equal(t, "cat1", out.Codes["c"].Category, "absorbed members are repointed")
	assert.Contains(t, out.Categories, "cat3", "distant categories survive")
	require.NoError(t, out.Validate())

	// Input is untouched.
	assert.Len(t, cb.Categories, 3)
	assert.Equal(t, "cat2", cb.Codes["c"].Category)
}

func TestCategoryRefiner_MergesByAggregateText(t *testing.T) {
	// The refiner clusters categories by name plus member labels, so two
	// categories with unrelated names but overlapping codes still fold.
	vectors := map[string][]float32{
		"Collaboration; teamwork":                {1, 0},
		"Group Work; group project":              {0.9, 0.4359},
		"Logistics; bus schedules":               {0, 1},
		"Collaboration; group project; teamwork": {0.9848, 0.1736},
	}

	cb := codebook.New()
	require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat1", Name: "Collaboration", MemberCodeIDs: []string{"a"}}))
	require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat2", Name: "Group Work", MemberCodeIDs: []string{"c"}}))
	require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat3", Name: "Logistics", MemberCodeIDs: []string{"d"}}))
	addCode(t, cb, "a", "teamwork").Category = "cat1"
	addCode(t, cb, "c", "group project").Category = "cat2"
	addCode(t, cb, "d", "bus schedules").Category = "cat3"

	refiner := &consolidate.CategoryRefiner{
		Provider:  testutil.NewStubProvider(vectors),
		Threshold: 0.1,
	}
	out, err := refiner.Apply(context.Background(), cb, testRun)
	require.NoError(t, err)

	require.Len(t, out.Categories, 2)
	survivor, ok := out.Categories["cat1"]
	require.True(t, ok, "member-count ties break to the lexicographically first id")
	assert.Equal(t, []string{"a", "c"}, survivor.MemberCodeIDs)
	assert.Equal(t, "cat1", out.Codes["c"].Category)
	require.NoError(t, out.Validate())
}

func TestCategoryAssigner_AssignsNearestWithinBound(t *testing.T) {
	vectors := map[string][]float32{
		"Collaboration": {1, 0},
		"teamwork":      {0.9, 0.4359}, // distance 0.05 from Collaboration
		"weather":       {0, 1},        // distance 0.25, beyond the bound
	}

	cb := codebook.New()
	require.NoError(t, cb.AddCategory(&codebook.Category{ID: "cat1", Name: "Collaboration"}))
	addCode(t, cb, "a", "teamwork")
	addCode(t, cb, "b", "weather")

	assigner := &consolidate.CategoryAssigner{
		Provider:    testutil.NewStubProvider(vectors),
		MaxDistance: 0.2,
	}
	out, err := assigner.Apply(context.Background(), cb, testRun)
	require.NoError(t, err)

	assert.Equal(t, "cat1", out.Codes["a"].Category)
	assert.Equal(t, "", out.Codes["b"].Category, "no category within the bound stays uncategorized")
	assert.Equal(t, []string{"a"}, out.Categories["cat1"].MemberCodeIDs)
	assert.Len(t, out.Categories, 1, "the assigner never invents categories")
	require.NoError(t, out.Validate())
}

// recordingStage tracks invocation order.
type recordingStage struct {
	name  string
	order *[]string
}

func (s *recordingStage) Name() string { return s.name }

func (s *recordingStage) Apply(ctx context.Context, cb *codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	*s.order = append(*s.order, s.name)
	return cb.Clone(), nil
}

// corruptingStage returns a codebook that violates category invariants.
type corruptingStage struct{}

func (corruptingStage) Name() string { return "corrupting" }

func (corruptingStage) Apply(ctx context.Context, cb *codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	out := cb.Clone()
	for _, code := range out.Codes {
		code.Category = "nonexistent"
	}
	return out, nil
}

func TestPipeline_RunsStagesInOrder(t *testing.T) {
	var order []string
	pipeline := consolidate.NewPipeline(nil,
		&recordingStage{name: "first", order: &order},
		&recordingStage{name: "second", order: &order},
	)

	cb := codebook.New()
	addCode(t, cb, "a", "teamwork")

	out, err := pipeline.Apply(context.Background(), cb, testRun)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Len(t, out.Codes, 1)
}

func TestPipeline_RejectsInvalidStageOutput(t *testing.T) {
	pipeline := consolidate.NewPipeline(nil, corruptingStage{})

	cb := codebook.New()
	addCode(t, cb, "a", "teamwork")

	_, err := pipeline.Apply(context.Background(), cb, testRun)
	require.Error(t, err)
	assert.True(t, errors.IsInvariant(err), "invalid stage output is an invariant violation")
}

func TestPipeline_HonorsCancellation(t *testing.T) {
	var order []string
	pipeline := consolidate.NewPipeline(nil, &recordingStage{name: "first", order: &order})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cb := codebook.New()
	addCode(t, cb, "a", "teamwork")

	_, err := pipeline.Apply(ctx, cb, testRun)
	require.Error(t, err)
	assert.Empty(t, order, "no stage runs after cancellation")
}
