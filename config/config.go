// Package config holds the quilt core configuration, loaded from TOML
// files and QUILT_-prefixed environment variables via Viper.
package config

// Config represents the core quilt configuration
type Config struct {
	Cache          CacheConfig          `mapstructure:"cache"`
	Database       DatabaseConfig       `mapstructure:"database"`
	LocalInference LocalInferenceConfig `mapstructure:"local_inference"`
	OpenRouter     OpenRouterConfig     `mapstructure:"openrouter"`
	Embeddings     EmbeddingsConfig     `mapstructure:"embeddings"`
	Consolidate    ConsolidateConfig    `mapstructure:"consolidate"`
	Reference      ReferenceConfig      `mapstructure:"reference"`
	Evaluate       EvaluateConfig       `mapstructure:"evaluate"`
	Runner         RunnerConfig         `mapstructure:"runner"`
	Output         OutputConfig         `mapstructure:"output"`
}

// CacheConfig configures the content-addressed result cache
type CacheConfig struct {
	Dir string `mapstructure:"dir"` // root directory for cached stage outputs
}

// DatabaseConfig configures the SQLite embedding store
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LocalInferenceConfig configures a local OpenAI-compatible server (Ollama)
type LocalInferenceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// OpenRouterConfig configures the hosted LLM provider
type OpenRouterConfig struct {
	APIKey            string  `mapstructure:"api_key"` // from QUILT_OPENROUTER_API_KEY
	Model             string  `mapstructure:"model"`
	Temperature       float64 `mapstructure:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
}

// EmbeddingsConfig configures the embedding provider and its SQLite cache
type EmbeddingsConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"` // from QUILT_EMBEDDINGS_API_KEY
	Model      string `mapstructure:"model"`
	Local      bool   `mapstructure:"local"` // true relaxes private-IP blocking
	Dimensions int    `mapstructure:"dimensions"`
}

// ConsolidateConfig configures the consolidation pipeline stages
type ConsolidateConfig struct {
	LabelSimilarity float64 `mapstructure:"label_similarity"` // SimpleMerger threshold
	RefineThreshold float64 `mapstructure:"refine_threshold"` // RefineMerger distance threshold
	RefinePenalty   float64 `mapstructure:"refine_penalty"`   // category mismatch penalty
	PenaltyMode     string  `mapstructure:"penalty_mode"`     // "subtract" or "scale"
	UseDefinition   bool    `mapstructure:"use_definition"`   // embed definitions, not labels
	Looping         bool    `mapstructure:"looping"`          // repeat passes to a fixed point
}

// ReferenceConfig configures reference codebook construction
type ReferenceConfig struct {
	Path              string  `mapstructure:"path"`
	CategoryThreshold float64 `mapstructure:"category_threshold"`
	AssignMaxDistance float64 `mapstructure:"assign_max_distance"`
}

// EvaluateConfig configures coverage evaluation
type EvaluateConfig struct {
	ClusterDistance     float64 `mapstructure:"cluster_distance"` // cluster evaluator radius
	LinkMinimumDistance float64 `mapstructure:"link_minimum_distance"`
	LinkMaximumDistance float64 `mapstructure:"link_maximum_distance"`
	ClosestNeighbors    int     `mapstructure:"closest_neighbors"`
}

// RunnerConfig configures the job runner
type RunnerConfig struct {
	Workers int `mapstructure:"workers"` // number of concurrent jobs (default: 2)
}

// OutputConfig configures where artifacts are written
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}
