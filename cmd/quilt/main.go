package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quiltlab/quilt/cmd/quilt/commands"
	"github.com/quiltlab/quilt/logger"
)

var rootCmd = &cobra.Command{
	Use:   "quilt",
	Short: "quilt - Codebook consolidation and evaluation",
	Long: `quilt - Consolidate and evaluate qualitative-coding codebooks.

quilt merges the redundant codebooks produced by chunked LLM coding runs
into a consolidated codebook, builds reference codebooks, and scores
candidate codebooks for coverage against a reference.

Available commands:
  config      - Show and inspect quilt configuration
  run         - Code datasets and consolidate the results
  consolidate - Consolidate codebooks already on disk
  reference   - Build a reference codebook from candidates
  evaluate    - Score candidate codebooks against a reference

Examples:
  quilt config show                       # Show current configuration
  quilt consolidate ./codebooks           # Merge codebooks in a directory
  quilt reference ./codebooks             # Build reference.json
  quilt evaluate ./codebooks              # Coverage report per candidate`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize global logger before any command runs.
		// Skip for commands with machine-readable output (like 'config show').
		if cmd.Name() != "show" && cmd.Name() != "get" {
			if err := logger.Initialize(false); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ConsolidateCmd)
	rootCmd.AddCommand(commands.ReferenceCmd)
	rootCmd.AddCommand(commands.EvaluateCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
