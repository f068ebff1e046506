// Package llm defines the language-model boundary the consolidation engine
// depends on and a static provider registry for selecting a client by name.
package llm

import (
	"context"
)

// Model is the completion collaborator. Provider errors propagate
// unmodified; retry policy lives inside the provider clients, not in the
// engine.
type Model interface {
	// Complete returns the model's completion for prompt at the given
	// sampling temperature.
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)

	// Name returns the model name string, used to namespace cache keys.
	Name() string
}
