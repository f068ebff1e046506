package reference_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiltlab/quilt/cache"
	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/internal/testutil"
	"github.com/quiltlab/quilt/reference"
)

var testRun = codebook.RunContext{RunID: "test", LLMModel: "stub-model", EmbeddingModel: "stub-embedding"}

func sourceBook(t *testing.T, labels ...string) *codebook.Codebook {
	t.Helper()
	cb := codebook.New()
	for i, label := range labels {
		code := &codebook.Code{
			ID:     string(rune('a' + i)),
			Label:  label,
			Owners: []string{"chunk"},
			Examples: []codebook.Example{
				{Text: "first quote about " + label},
				{Text: "second quote about " + label},
			},
		}
		require.NoError(t, cb.Add(code))
	}
	return cb
}

func TestSimpleBuilder_MergesAcrossSources(t *testing.T) {
	sources := []*codebook.Codebook{
		sourceBook(t, "teamwork", "homework"),
		sourceBook(t, "Teamwork"),
	}

	builder := &reference.SimpleBuilder{}
	ref, err := builder.Build(context.Background(), sources, testRun)
	require.NoError(t, err)

	assert.Len(t, ref.Codes, 2, "duplicated labels collapse across sources")
	require.NoError(t, ref.Validate())

	// Sources are untouched.
	assert.Len(t, sources[0].Codes, 2)
	assert.Len(t, sources[1].Codes, 1)
}

func TestSimpleBuilder_NoSources(t *testing.T) {
	_, err := (&reference.SimpleBuilder{}).Build(context.Background(), nil, testRun)
	assert.Error(t, err)
}

func TestRefiningBuilder_FullPipeline(t *testing.T) {
	vectors := map[string][]float32{
		"teamwork: A concept definition.":      {1, 0},
		"collaboration: A concept definition.": {0.9, 0.4359},
		"homework: A concept definition.":      {0, 1},
	}

	builder := &reference.RefiningBuilder{
		Model:    &testutil.StubModel{Default: "A concept definition."},
		Provider: testutil.NewStubProvider(vectors),
		Store:    newStore(t),
		Config: reference.RefiningBuilderConfig{
			RefineThreshold:   0.1,
			CategoryThreshold: 0.1,
			AssignMaxDistance: 0.2,
		},
	}

	sources := []*codebook.Codebook{
		sourceBook(t, "teamwork", "homework"),
		sourceBook(t, "collaboration"),
	}
	ref, err := builder.Build(context.Background(), sources, testRun)
	require.NoError(t, err)

	assert.Len(t, ref.Codes, 2, "semantically close codes merge under their definitions")
	for _, code := range ref.Codes {
		assert.NotEmpty(t, code.Definition(), "every reference code carries a definition")
	}
	require.NoError(t, ref.Validate())
}

// countingBuilder counts real builds behind the cache.
type countingBuilder struct {
	builds int
}

func (b *countingBuilder) Name() string { return "counting" }

func (b *countingBuilder) Build(ctx context.Context, sources []*codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	b.builds++
	return codebook.Concat(sources...), nil
}

func newStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestCached_SkipsRebuildForUnchangedSources(t *testing.T) {
	inner := &countingBuilder{}
	builder := reference.Cached(inner, newStore(t))

	sources := []*codebook.Codebook{sourceBook(t, "teamwork")}

	first, err := builder.Build(context.Background(), sources, testRun)
	require.NoError(t, err)
	second, err := builder.Build(context.Background(), sources, testRun)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.builds, "unchanged sources are served from cache")
	assert.Equal(t, first.ContentHash(), second.ContentHash())
}

func TestCached_RebuildsWhenSourcesChange(t *testing.T) {
	inner := &countingBuilder{}
	builder := reference.Cached(inner, newStore(t))

	_, err := builder.Build(context.Background(), []*codebook.Codebook{sourceBook(t, "teamwork")}, testRun)
	require.NoError(t, err)
	_, err = builder.Build(context.Background(), []*codebook.Codebook{sourceBook(t, "homework")}, testRun)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.builds)
}

func TestCached_RebuildsWhenModelsChange(t *testing.T) {
	inner := &countingBuilder{}
	builder := reference.Cached(inner, newStore(t))
	sources := []*codebook.Codebook{sourceBook(t, "teamwork")}

	_, err := builder.Build(context.Background(), sources, testRun)
	require.NoError(t, err)

	other := testRun
	other.EmbeddingModel = "different-model"
	_, err = builder.Build(context.Background(), sources, other)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.builds, "a different embedding model invalidates the cached reference")
}
