package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/quiltlab/quilt/config"
	"github.com/quiltlab/quilt/evaluate"
	"github.com/quiltlab/quilt/logger"
)

// EvaluateCmd scores candidate codebooks against a reference codebook.
var EvaluateCmd = &cobra.Command{
	Use:   "evaluate <codebooks>",
	Short: "Score candidate codebooks against a reference",
	Long: `evaluate — Score candidate codebooks for reference coverage

Loads candidate codebooks, obtains the reference (loaded from
reference.path when present, built from the candidates otherwise),
and reports the fraction of reference codes each candidate covers.
The report is written next to the candidates as JSON.

Evaluators:
  cluster - reference and candidate codes share an embedding cluster
  network - candidate codes adjacent in the similarity graph

Examples:
  quilt evaluate ./codebooks
  quilt evaluate ./codebooks --evaluator network`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

var (
	evaluateRunID string
	evaluateName  string
)

func init() {
	EvaluateCmd.Flags().StringVar(&evaluateRunID, "run-id", "", "Run identifier for cache namespacing (default: random)")
	EvaluateCmd.Flags().StringVar(&evaluateName, "evaluator", "cluster", "Evaluator: cluster or network")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	run := newRunContext(cfg, evaluateRunID)

	provider, cleanup, err := newProvider(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var evaluator evaluate.Evaluator
	switch evaluateName {
	case "cluster":
		evaluator = &evaluate.CoverageEvaluator{
			Provider:        provider,
			ClusterDistance: cfg.Evaluate.ClusterDistance,
			Logger:          logger.Logger,
		}
	case "network":
		evaluator = &evaluate.NetworkEvaluator{
			Provider: provider,
			Config: evaluate.NetworkConfig{
				LinkMinimumDistance: cfg.Evaluate.LinkMinimumDistance,
				LinkMaximumDistance: cfg.Evaluate.LinkMaximumDistance,
				ClosestNeighbors:    cfg.Evaluate.ClosestNeighbors,
			},
			Logger: logger.Logger,
		}
	default:
		return fmt.Errorf("unknown evaluator %q (want cluster or network)", evaluateName)
	}

	builder, builderCleanup, err := newBuilder(cfg)
	if err != nil {
		return err
	}
	defer builderCleanup()

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return err
	}
	target := filepath.Join(cfg.Output.Dir, "evaluation")
	report, err := evaluate.BuildReferenceAndEvaluateCodebooks(cmd.Context(),
		[]string{args[0]}, cfg.Reference.Path, builder, evaluator, target, run, logger.Logger)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(report))
	for name := range report {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cr := report[name]
		pterm.Printf("%s: %s coverage (%d/%d reference codes)\n",
			pterm.LightCyan(name),
			pterm.Green(fmt.Sprintf("%.0f%%", cr.Coverage*100)),
			cr.Covered, cr.Total)
	}
	pterm.Success.Printfln("Report written to %s-%s.json", target, evaluator.Name())
	return nil
}
