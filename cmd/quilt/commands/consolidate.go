package commands

import (
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/config"
	"github.com/quiltlab/quilt/loader"
)

// ConsolidateCmd merges codebooks already on disk into one.
var ConsolidateCmd = &cobra.Command{
	Use:   "consolidate <codebooks>",
	Short: "Consolidate codebooks into a single codebook",
	Long: `consolidate — Merge codebooks into a single consolidated codebook

Takes a codebook JSON file or a directory of them, concatenates the
codebooks, and runs the full consolidation pipeline: lexical label
merging, definition generation, embedding-based refinement, and
category cleanup. Writes <output>.json and <output>.md.

Examples:
  quilt consolidate ./codebooks
  quilt consolidate ./codebooks --output merged --run-id sprint-12
  quilt consolidate ./codebooks --simple    # lexical merging only`,
	Args: cobra.ExactArgs(1),
	RunE: runConsolidate,
}

var (
	consolidateOutput string
	consolidateRunID  string
	consolidateSimple bool
)

func init() {
	ConsolidateCmd.Flags().StringVar(&consolidateOutput, "output", "consolidated", "Output base name (without extension)")
	ConsolidateCmd.Flags().StringVar(&consolidateRunID, "run-id", "", "Run identifier for cache namespacing (default: random)")
	ConsolidateCmd.Flags().BoolVar(&consolidateSimple, "simple", false, "Lexical label merging only, no model calls")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	run := newRunContext(cfg, consolidateRunID)

	books, names, err := loader.LoadCodebooks(args[0])
	if err != nil {
		return err
	}
	pterm.Info.Printfln("Loaded %d codebooks from %s", len(books), args[0])

	combined := codebook.Concat(books...)
	consolidated, err := consolidatePipeline(cmd, cfg, combined, run)
	if err != nil {
		return err
	}

	base := filepath.Join(cfg.Output.Dir, consolidateOutput)
	if err := writeCodebook(consolidated, cfg.Output.Dir, base); err != nil {
		return err
	}

	pterm.Success.Printfln("Consolidated %d codebooks: %d codes -> %d codes, %d categories (%s.json)",
		len(names), len(combined.Codes), len(consolidated.Codes), len(consolidated.Categories), base)
	return nil
}
