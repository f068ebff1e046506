package llm

import (
	"sort"

	"go.uber.org/zap"

	"github.com/quiltlab/quilt/errors"
	"github.com/quiltlab/quilt/llm/local"
	"github.com/quiltlab/quilt/llm/openrouter"
)

// ProviderConfig holds the settings a provider factory may need.
// Unused fields are ignored by providers that don't need them.
type ProviderConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerMinute int
	TimeoutSeconds    int
	Logger            *zap.SugaredLogger
}

// providers is a static name-to-factory mapping. Providers are selected by
// name from configuration; there is deliberately no dynamic loading.
var providers = map[string]func(ProviderConfig) Model{
	"openrouter": func(cfg ProviderConfig) Model {
		return openrouter.NewClient(openrouter.Config{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			RequestsPerMinute: cfg.RequestsPerMinute,
			Logger:            cfg.Logger,
		})
	},
	"local": func(cfg ProviderConfig) Model {
		return local.NewClient(local.Config{
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			TimeoutSeconds: cfg.TimeoutSeconds,
			Logger:         cfg.Logger,
		})
	},
}

// New creates a Model for the named provider.
func New(provider string, cfg ProviderConfig) (Model, error) {
	factory, ok := providers[provider]
	if !ok {
		return nil, errors.Newf("unknown LLM provider %q (known: %v)", provider, Providers())
	}
	return factory(cfg), nil
}

// Providers lists the registered provider names.
func Providers() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
