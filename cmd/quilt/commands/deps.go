// Package commands implements the quilt CLI subcommands.
package commands

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quiltlab/quilt/cache"
	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/config"
	"github.com/quiltlab/quilt/consolidate"
	"github.com/quiltlab/quilt/db"
	"github.com/quiltlab/quilt/embedding"
	"github.com/quiltlab/quilt/embedding/remote"
	"github.com/quiltlab/quilt/embedding/vecstore"
	"github.com/quiltlab/quilt/errors"
	"github.com/quiltlab/quilt/export"
	"github.com/quiltlab/quilt/llm"
	"github.com/quiltlab/quilt/logger"
)

// newRunContext derives the run context from configuration. An empty
// runID gets a fresh UUID, so unrelated invocations never share cache
// namespaces by accident.
func newRunContext(cfg *config.Config, runID string) codebook.RunContext {
	if runID == "" {
		runID = uuid.NewString()
	}
	model := cfg.OpenRouter.Model
	if cfg.LocalInference.Enabled {
		model = cfg.LocalInference.Model
	}
	return codebook.RunContext{
		RunID:          runID,
		LLMModel:       model,
		EmbeddingModel: cfg.Embeddings.Model,
	}
}

func newStore(cfg *config.Config) (cache.Store, error) {
	return cache.NewFileStore(cfg.Cache.Dir)
}

// newModel selects the local provider when local inference is enabled,
// otherwise OpenRouter.
func newModel(cfg *config.Config) (llm.Model, error) {
	if cfg.LocalInference.Enabled {
		return llm.New("local", llm.ProviderConfig{
			BaseURL:        cfg.LocalInference.BaseURL,
			Model:          cfg.LocalInference.Model,
			TimeoutSeconds: cfg.LocalInference.TimeoutSeconds,
			Logger:         logger.Logger,
		})
	}
	if cfg.OpenRouter.APIKey == "" {
		return nil, errors.NewConfigurationError(
			"no LLM configured: set QUILT_OPENROUTER_API_KEY or enable local_inference")
	}
	return llm.New("openrouter", llm.ProviderConfig{
		APIKey:            cfg.OpenRouter.APIKey,
		Model:             cfg.OpenRouter.Model,
		RequestsPerMinute: cfg.OpenRouter.RequestsPerMinute,
		TimeoutSeconds:    cfg.OpenRouter.TimeoutSeconds,
		Logger:            logger.Logger,
	})
}

// newProvider builds the embedding provider, backed by the SQLite vector
// store when database.path is set. The returned cleanup closes the
// database and must be called even on error paths.
func newProvider(cfg *config.Config) (embedding.Provider, func(), error) {
	client := remote.NewClient(remote.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		APIKey:  cfg.Embeddings.APIKey,
		Model:   cfg.Embeddings.Model,
		Local:   cfg.Embeddings.Local,
		Logger:  logger.Logger,
	})
	if cfg.Database.Path == "" {
		return client, func() {}, nil
	}

	conn, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, func() {}, err
	}
	if err := db.Migrate(conn, cfg.Embeddings.Dimensions); err != nil {
		conn.Close()
		return nil, func() {}, err
	}
	return vecstore.New(conn, client, logger.Logger), func() { conn.Close() }, nil
}

// newPipeline assembles the full consolidation pipeline from configuration.
func newPipeline(cfg *config.Config, model llm.Model, provider embedding.Provider, store cache.Store) (*consolidate.Pipeline, error) {
	mode, err := parsePenaltyMode(cfg.Consolidate.PenaltyMode)
	if err != nil {
		return nil, err
	}
	return consolidate.NewPipeline(logger.Logger,
		&consolidate.SimpleMerger{Similarity: cfg.Consolidate.LabelSimilarity},
		&consolidate.DefinitionGenerator{Model: model, Store: store, Logger: logger.Logger},
		&consolidate.RefineMerger{
			Provider: provider,
			Config: consolidate.RefineConfig{
				Threshold:     cfg.Consolidate.RefineThreshold,
				Penalty:       cfg.Consolidate.RefinePenalty,
				Mode:          mode,
				UseDefinition: cfg.Consolidate.UseDefinition,
				Looping:       cfg.Consolidate.Looping,
			},
			Logger: logger.Logger,
		},
		&consolidate.CategoryNameMerger{},
		&consolidate.CategoryRefiner{
			Provider:  provider,
			Threshold: cfg.Reference.CategoryThreshold,
			Logger:    logger.Logger,
		},
		&consolidate.CategoryAssigner{
			Provider:    provider,
			MaxDistance: cfg.Reference.AssignMaxDistance,
		},
	), nil
}

// consolidatePipeline runs the configured pipeline over a combined
// codebook, wiring the model, embedding provider, and cache from config.
// The --simple path needs no collaborators at all.
func consolidatePipeline(cmd *cobra.Command, cfg *config.Config, combined *codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	if consolidateSimple {
		pipeline := consolidate.NewPipeline(logger.Logger,
			&consolidate.SimpleMerger{Similarity: cfg.Consolidate.LabelSimilarity})
		return pipeline.Apply(cmd.Context(), combined, run)
	}

	model, err := newModel(cfg)
	if err != nil {
		return nil, err
	}
	provider, cleanup, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	pipeline, err := newPipeline(cfg, model, provider, store)
	if err != nil {
		return nil, err
	}
	return pipeline.Apply(cmd.Context(), combined, run)
}

// writeCodebook persists a codebook as JSON and Markdown under dir.
func writeCodebook(cb *codebook.Codebook, dir, base string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %s", dir)
	}
	if err := cb.Save(base + ".json"); err != nil {
		return err
	}
	return export.WriteMarkdown(base+".md", cb)
}

func parsePenaltyMode(mode string) (consolidate.PenaltyMode, error) {
	switch mode {
	case "", "subtract":
		return consolidate.PenaltySubtract, nil
	case "scale":
		return consolidate.PenaltyScale, nil
	default:
		return "", errors.NewConfigurationError(
			"unknown penalty_mode %q (want subtract or scale)", mode)
	}
}
