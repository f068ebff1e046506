// Package reference folds many raw codebooks into one canonical reference
// codebook, reusing the consolidation stage family. The result is assumed
// to be ground truth for evaluation.
package reference

import (
	"context"

	"go.uber.org/zap"

	"github.com/quiltlab/quilt/cache"
	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/consolidate"
	"github.com/quiltlab/quilt/embedding"
	"github.com/quiltlab/quilt/errors"
	"github.com/quiltlab/quilt/llm"
)

// Builder turns a set of source codebooks into one reference codebook.
type Builder interface {
	Name() string
	Build(ctx context.Context, sources []*codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error)
}

// build concatenates the sources (relabeling ids so they cannot collide)
// and runs the configured sub-pipeline over the combined book.
func build(ctx context.Context, sources []*codebook.Codebook, run codebook.RunContext, pipeline *consolidate.Pipeline) (*codebook.Codebook, error) {
	if len(sources) == 0 {
		return nil, errors.New("no source codebooks to build a reference from")
	}
	combined := codebook.Concat(sources...)
	return pipeline.Apply(ctx, combined, run)
}

// SimpleBuilder applies a light lexical merge only. Choose it when the
// sources carry little redundancy beyond duplicated labels.
type SimpleBuilder struct {
	// Similarity overrides the label-similarity bar. Zero = default.
	Similarity float64
	Logger     *zap.SugaredLogger
}

// Name implements Builder.
func (b *SimpleBuilder) Name() string { return "simple-reference-builder" }

// Build implements Builder.
func (b *SimpleBuilder) Build(ctx context.Context, sources []*codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	pipeline := consolidate.NewPipeline(b.Logger,
		&consolidate.SimpleMerger{Similarity: b.Similarity},
	)
	return build(ctx, sources, run, pipeline)
}

// RefiningBuilderConfig configures the full refining build.
type RefiningBuilderConfig struct {
	// RefineThreshold is the embedding-distance merge bound.
	RefineThreshold float64
	// CategoryThreshold is the category-level merge bound.
	CategoryThreshold float64
	// AssignMaxDistance is the closeness bound for category assignment.
	AssignMaxDistance float64
}

// RefiningBuilder runs the full consolidation: lexical merge, definition
// generation, iterative definition-aware refinement, then category
// refinement and assignment. Choose it when the sources are heavily
// redundant per-chunk codebooks.
type RefiningBuilder struct {
	Model    llm.Model
	Provider embedding.Provider
	Store    cache.Store
	Config   RefiningBuilderConfig
	Logger   *zap.SugaredLogger
}

// Name implements Builder.
func (b *RefiningBuilder) Name() string { return "refining-reference-builder" }

// Build implements Builder.
func (b *RefiningBuilder) Build(ctx context.Context, sources []*codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	pipeline := consolidate.NewPipeline(b.Logger,
		&consolidate.SimpleMerger{},
		&consolidate.DefinitionGenerator{Model: b.Model, Store: b.Store, Logger: b.Logger},
		&consolidate.RefineMerger{
			Provider: b.Provider,
			Config: consolidate.RefineConfig{
				Threshold:     b.Config.RefineThreshold,
				UseDefinition: true,
				Looping:       true,
			},
			Logger: b.Logger,
		},
		&consolidate.CategoryNameMerger{},
		&consolidate.CategoryRefiner{Provider: b.Provider, Threshold: b.Config.CategoryThreshold, Logger: b.Logger},
		&consolidate.CategoryAssigner{Provider: b.Provider, MaxDistance: b.Config.AssignMaxDistance},
	)
	return build(ctx, sources, run, pipeline)
}

// Cached wraps a Builder so the built reference is persisted under the
// content hash of its inputs: rebuilding with unchanged sources is free,
// while any source change forces a rebuild.
func Cached(b Builder, store cache.Store) Builder {
	return &cachedBuilder{inner: b, store: store}
}

type cachedBuilder struct {
	inner Builder
	store cache.Store
}

func (c *cachedBuilder) Name() string { return c.inner.Name() }

func (c *cachedBuilder) Build(ctx context.Context, sources []*codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	hashes := make([]string, len(sources))
	for i, src := range sources {
		hashes[i] = src.ContentHash()
	}
	key := "reference/" + c.inner.Name()
	hash := cache.Hash(hashes, run.LLMModel, run.EmbeddingModel)
	return cache.WithCache(c.store, key, hash, func() (*codebook.Codebook, error) {
		return c.inner.Build(ctx, sources, run)
	})
}
