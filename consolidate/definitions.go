package consolidate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quiltlab/quilt/cache"
	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/errors"
	"github.com/quiltlab/quilt/llm"
)

// definitionTemperature keeps generated definitions close to the examples.
const definitionTemperature = 0.2

// maxDefinitionExamples caps how many quotes seed the prompt.
const maxDefinitionExamples = 8

// DefinitionGenerator asks the LLM collaborator for a definition of every
// code that lacks one, seeded with the code's examples. Results are cached
// by (label, examples, model), so re-runs over unchanged codes are free.
type DefinitionGenerator struct {
	Model  llm.Model
	Store  cache.Store
	Logger *zap.SugaredLogger
}

// Name implements Stage.
func (g *DefinitionGenerator) Name() string { return "definition-generator" }

// Apply implements Stage.
func (g *DefinitionGenerator) Apply(ctx context.Context, cb *codebook.Codebook, run codebook.RunContext) (*codebook.Codebook, error) {
	if g.Model == nil {
		return nil, errors.NewConfigurationError("definition generator requires an LLM model")
	}
	if g.Store == nil {
		return nil, errors.NewConfigurationError("definition generator requires a cache store")
	}
	logger := g.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	out := cb.Clone()
	generated := 0
	for _, id := range out.SortedIDs() {
		code := out.Codes[id]
		if code.Definition() != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "definition generation cancelled")
		}

		examples := exampleTexts(code)
		key := "definitions/" + cache.Hash(code.Label)[:16]
		hash := cache.Hash(code.Label, examples, g.Model.Name())

		def, err := cache.WithCache(g.Store, key, hash, func() (string, error) {
			return g.generate(ctx, code.Label, examples)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to define code %q", code.Label)
		}
		code.PushDefinition(def)
		generated++
	}

	logger.Debugw("definitions generated",
		"model", g.Model.Name(), "codes", len(out.Codes), "generated", generated)
	return out, nil
}

func (g *DefinitionGenerator) generate(ctx context.Context, label string, examples []string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are consolidating a qualitative research codebook.\n")
	fmt.Fprintf(&sb, "Write a single-sentence definition for the code %q.\n", label)
	if len(examples) > 0 {
		sb.WriteString("It was applied to these quotes:\n")
		for _, ex := range examples {
			fmt.Fprintf(&sb, "- %s\n", ex)
		}
	}
	sb.WriteString("Reply with the definition only, no preamble.")

	def, err := g.Model.Complete(ctx, sb.String(), definitionTemperature)
	if err != nil {
		return "", err
	}
	def = strings.TrimSpace(def)
	if def == "" {
		return "", errors.WrapCollaborator(errors.New("model returned an empty definition"), "definition generation")
	}
	return def, nil
}

func exampleTexts(code *codebook.Code) []string {
	n := min(len(code.Examples), maxDefinitionExamples)
	texts := make([]string, 0, n)
	for _, ex := range code.Examples[:n] {
		texts = append(texts, ex.Text)
	}
	return texts
}
