package commands

import (
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/quiltlab/quilt/config"
	"github.com/quiltlab/quilt/errors"
	"github.com/quiltlab/quilt/evaluate"
	"github.com/quiltlab/quilt/job"
	"github.com/quiltlab/quilt/logger"
)

// RunCmd codes raw datasets with the configured model and consolidates
// the results, one job per dataset.
var RunCmd = &cobra.Command{
	Use:   "run <dataset>...",
	Short: "Code datasets and consolidate the results",
	Long: `run — Code raw datasets into consolidated codebooks

Each dataset (plain text, one message per line, or dataset JSON) is
coded chunk by chunk with the configured language model, the per-chunk
codebooks are consolidated, and the result is written to the output
directory. Datasets run as independent jobs on a bounded worker pool;
one failed dataset does not stop the others.

With --evaluate, each consolidated codebook is additionally scored
against the reference codebook.

Examples:
  quilt run interviews.txt
  quilt run data/*.txt --evaluate
  quilt run interviews.txt --chunk-size 10 --run-id pilot`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runRunID          string
	runChunkSize      int
	runWithEvaluation bool
)

func init() {
	RunCmd.Flags().StringVar(&runRunID, "run-id", "", "Run identifier for cache namespacing (default: random)")
	RunCmd.Flags().IntVar(&runChunkSize, "chunk-size", 0, "Messages coded per model call (default: 20)")
	RunCmd.Flags().BoolVar(&runWithEvaluation, "evaluate", false, "Score each result against the reference codebook")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	run := newRunContext(cfg, runRunID)

	model, err := newModel(cfg)
	if err != nil {
		return err
	}
	provider, cleanup, err := newProvider(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(cfg, model, provider, store)
	if err != nil {
		return err
	}

	coder := &job.LLMCoder{
		Model:     model,
		Store:     store,
		ChunkSize: runChunkSize,
		Logger:    logger.Logger,
	}

	jobs := make([]*job.Job, 0, len(args))
	for _, path := range args {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		j := &job.Job{
			Name:        name,
			DatasetPath: path,
			Coder:       coder,
			Pipeline:    pipeline,
			Run:         run,
			OutputDir:   cfg.Output.Dir,
		}
		if runWithEvaluation {
			j.Evaluator = &evaluate.CoverageEvaluator{
				Provider:        provider,
				ClusterDistance: cfg.Evaluate.ClusterDistance,
				Logger:          logger.Logger,
			}
			j.ReferencePath = cfg.Reference.Path
		}
		jobs = append(jobs, j)
	}

	runner := job.NewRunner(job.RunnerConfig{Workers: cfg.Runner.Workers}, logger.Logger)
	results := runner.Run(cmd.Context(), jobs)

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			pterm.Error.Printfln("%s: %v", res.Name, res.Err)
			continue
		}
		pterm.Success.Printfln("%s: %d codes, %d categories",
			res.Name, len(res.Codebook.Codes), len(res.Codebook.Categories))
	}
	if failed > 0 {
		return errors.Newf("%d of %d jobs failed", failed, len(jobs))
	}
	return nil
}
