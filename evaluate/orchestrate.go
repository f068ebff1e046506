package evaluate

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/errors"
	"github.com/quiltlab/quilt/export"
	"github.com/quiltlab/quilt/loader"
	"github.com/quiltlab/quilt/reference"
)

// BuildReferenceAndEvaluateCodebooks loads candidate codebooks from paths,
// obtains the reference (loaded from referencePath when it already exists,
// otherwise built from the candidates via builder and saved there), runs
// the evaluator, and persists the report to
// targetPath + "-" + evaluator name + ".json".
func BuildReferenceAndEvaluateCodebooks(ctx context.Context, paths []string, referencePath string, builder reference.Builder, evaluator Evaluator, targetPath string, run codebook.RunContext, logger *zap.SugaredLogger) (Report, error) {
	var candidates []*codebook.Codebook
	var names []string
	for _, path := range paths {
		books, bookNames, err := loader.LoadCodebooks(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load candidates from %s", path)
		}
		candidates = append(candidates, books...)
		names = append(names, bookNames...)
	}
	return EvaluateCodebooks(ctx, candidates, names, referencePath, builder, evaluator, targetPath, run, logger)
}

// EvaluateCodebooks is the in-memory form of
// BuildReferenceAndEvaluateCodebooks for callers that already hold the
// candidate codebooks.
func EvaluateCodebooks(ctx context.Context, candidates []*codebook.Codebook, names []string, referencePath string, builder reference.Builder, evaluator Evaluator, targetPath string, run codebook.RunContext, logger *zap.SugaredLogger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if len(candidates) == 0 {
		return nil, errors.New("no candidate codebooks to evaluate")
	}

	ref, err := loadOrBuildReference(ctx, referencePath, builder, candidates, run, logger)
	if err != nil {
		return nil, err
	}

	report, err := evaluator.Evaluate(ctx, ref, candidates, names, run)
	if err != nil {
		return nil, errors.Wrapf(err, "%s evaluation failed", evaluator.Name())
	}

	reportPath := targetPath + "-" + evaluator.Name() + ".json"
	if err := export.WriteJSON(reportPath, report); err != nil {
		return nil, err
	}
	logger.Infow("evaluation report written",
		"evaluator", evaluator.Name(),
		"candidates", len(candidates),
		"path", reportPath)
	return report, nil
}

func loadOrBuildReference(ctx context.Context, referencePath string, builder reference.Builder, candidates []*codebook.Codebook, run codebook.RunContext, logger *zap.SugaredLogger) (*codebook.Codebook, error) {
	if _, err := os.Stat(referencePath); err == nil {
		logger.Infow("loading existing reference codebook", "path", referencePath)
		return codebook.Load(referencePath)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to stat reference %s", referencePath)
	}

	if builder == nil {
		return nil, errors.NewConfigurationError(
			"reference %s does not exist and no builder was configured", referencePath)
	}

	logger.Infow("building reference codebook",
		"builder", builder.Name(), "sources", len(candidates))
	ref, err := builder.Build(ctx, candidates, run)
	if err != nil {
		return nil, errors.Wrap(err, "reference build failed")
	}
	if err := ref.Save(referencePath); err != nil {
		return nil, err
	}
	return ref, nil
}
