package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Cache defaults
	v.SetDefault("cache.dir", ".quilt/cache")

	// Database defaults
	v.SetDefault("database.path", "quilt.db")

	// Local inference (Ollama) defaults
	v.SetDefault("local_inference.enabled", false)
	v.SetDefault("local_inference.base_url", "http://localhost:11434/v1")
	v.SetDefault("local_inference.model", "llama3.2:3b")
	v.SetDefault("local_inference.timeout_seconds", 300)

	// OpenRouter defaults
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini") // Cost-effective default
	v.SetDefault("openrouter.temperature", 0.2)            // Deterministic
	v.SetDefault("openrouter.max_tokens", 1000)
	v.SetDefault("openrouter.requests_per_minute", 60)
	v.SetDefault("openrouter.timeout_seconds", 120)

	// Embedding defaults
	v.SetDefault("embeddings.base_url", "https://api.openai.com/v1")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.local", false)
	v.SetDefault("embeddings.dimensions", 1536)

	// Consolidation defaults
	v.SetDefault("consolidate.label_similarity", 0.9)
	v.SetDefault("consolidate.refine_threshold", 0.1)
	v.SetDefault("consolidate.refine_penalty", 0.05)
	v.SetDefault("consolidate.penalty_mode", "subtract")
	v.SetDefault("consolidate.use_definition", true)
	v.SetDefault("consolidate.looping", true)

	// Reference defaults
	v.SetDefault("reference.path", "reference.json")
	v.SetDefault("reference.category_threshold", 0.1)
	v.SetDefault("reference.assign_max_distance", 0.2)

	// Evaluation defaults
	v.SetDefault("evaluate.cluster_distance", 0.15)
	v.SetDefault("evaluate.link_minimum_distance", 0.0)
	v.SetDefault("evaluate.link_maximum_distance", 0.15)
	v.SetDefault("evaluate.closest_neighbors", 0)

	// Runner defaults
	v.SetDefault("runner.workers", 2)

	// Output defaults
	v.SetDefault("output.dir", "out")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("openrouter.api_key", "QUILT_OPENROUTER_API_KEY")
	v.BindEnv("embeddings.api_key", "QUILT_EMBEDDINGS_API_KEY")
	v.BindEnv("database.path", "QUILT_DATABASE_PATH")
}
