package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/quiltlab/quilt/config"
	"github.com/quiltlab/quilt/loader"
	"github.com/quiltlab/quilt/reference"
)

// ReferenceCmd builds a reference codebook from candidate codebooks.
var ReferenceCmd = &cobra.Command{
	Use:   "reference <codebooks>",
	Short: "Build a reference codebook from candidates",
	Long: `reference — Build a reference codebook

Concatenates the candidate codebooks and consolidates them into a
reference codebook, written to reference.path from configuration.
Reference builds are cached by the content of their sources, so
rebuilding with unchanged inputs costs nothing.

Examples:
  quilt reference ./codebooks
  quilt reference ./codebooks --simple`,
	Args: cobra.ExactArgs(1),
	RunE: runReference,
}

var (
	referenceRunID  string
	referenceSimple bool
)

func init() {
	ReferenceCmd.Flags().StringVar(&referenceRunID, "run-id", "", "Run identifier for cache namespacing (default: random)")
	ReferenceCmd.Flags().BoolVar(&referenceSimple, "simple", false, "Lexical label merging only, no model calls")
}

func runReference(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	run := newRunContext(cfg, referenceRunID)

	books, _, err := loader.LoadCodebooks(args[0])
	if err != nil {
		return err
	}
	pterm.Info.Printfln("Building reference from %d codebooks", len(books))

	builder, cleanup, err := newBuilder(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ref, err := builder.Build(cmd.Context(), books, run)
	if err != nil {
		return err
	}
	if err := ref.Save(cfg.Reference.Path); err != nil {
		return err
	}

	pterm.Success.Printfln("Reference built: %d codes, %d categories (%s)",
		len(ref.Codes), len(ref.Categories), cfg.Reference.Path)
	return nil
}

// newBuilder assembles the configured reference builder, cached against
// the file store. The cleanup closes the embedding database.
func newBuilder(cfg *config.Config) (reference.Builder, func(), error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, func() {}, err
	}

	if referenceSimple {
		return reference.Cached(&reference.SimpleBuilder{
			Similarity: cfg.Consolidate.LabelSimilarity,
		}, store), func() {}, nil
	}

	model, err := newModel(cfg)
	if err != nil {
		return nil, func() {}, err
	}
	provider, cleanup, err := newProvider(cfg)
	if err != nil {
		return nil, cleanup, err
	}
	builder := reference.Cached(&reference.RefiningBuilder{
		Model:    model,
		Provider: provider,
		Store:    store,
		Config: reference.RefiningBuilderConfig{
			RefineThreshold:   cfg.Consolidate.RefineThreshold,
			CategoryThreshold: cfg.Reference.CategoryThreshold,
			AssignMaxDistance: cfg.Reference.AssignMaxDistance,
		},
	}, store)
	return builder, cleanup, nil
}
