package config

// Config holds ghostline configuration.
// Stored at: ~/.ghostline/config.yaml
type Config struct {
	Providers ProvidersCfg `mapstructure:"providers" yaml:"providers"`
	Embedding EmbeddingCfg `mapstructure:"embedding" yaml:"embedding"`
	Quality   QualityCfg   `mapstructure:"quality" yaml:"quality"`
	Retrieval RetrievalCfg `mapstructure:"retrieval" yaml:"retrieval"`
	Ingest    IngestCfg    `mapstructure:"ingest" yaml:"ingest"`
	Outline   BoundsCfg    `mapstructure:"outline" yaml:"outline"`
	Chapter   BoundsCfg    `mapstructure:"chapter" yaml:"chapter"`
	Book      BookCfg      `mapstructure:"book" yaml:"book"`
	Workers   WorkersCfg   `mapstructure:"workers" yaml:"workers"`
}

// ProvidersCfg names the primary and fallback LLM providers.
type ProvidersCfg struct {
	Primary  ProviderCfg `mapstructure:"primary" yaml:"primary"`
	Fallback ProviderCfg `mapstructure:"fallback" yaml:"fallback"`
}

// ProviderCfg configures a single LLM provider.
type ProviderCfg struct {
	Type           string `mapstructure:"type" yaml:"type"`                       // "anthropic", "openai"
	Model          string `mapstructure:"model" yaml:"model"`                     // Model name
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`                 // API key (supports ${ENV_VAR} syntax)
	MaxRetries     int    `mapstructure:"max_retries" yaml:"max_retries"`         // Retry attempts for transient failures
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"` // Per-call timeout
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
}

// EmbeddingCfg configures the embedding backend.
type EmbeddingCfg struct {
	Provider   string `mapstructure:"provider" yaml:"provider"` // "openai", "local"
	Model      string `mapstructure:"model" yaml:"model"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"`
}

// QualityCfg holds the chapter quality-gate thresholds.
type QualityCfg struct {
	VoiceThreshold    float64 `mapstructure:"voice_threshold" yaml:"voice_threshold"`
	FactThreshold     float64 `mapstructure:"fact_threshold" yaml:"fact_threshold"`
	CohesionThreshold float64 `mapstructure:"cohesion_threshold" yaml:"cohesion_threshold"`
}

// RetrievalCfg configures source-chunk retrieval for drafting.
type RetrievalCfg struct {
	TopK                int     `mapstructure:"top_k" yaml:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	ContextTokens       int     `mapstructure:"context_tokens" yaml:"context_tokens"` // Token budget for build_context
	CanonWindow         int     `mapstructure:"canon_window" yaml:"canon_window"`     // Previous canon blocks fed to the drafter
}

// IngestCfg configures source material chunking.
type IngestCfg struct {
	ChunkWords   int `mapstructure:"chunk_words" yaml:"chunk_words"`
	OverlapWords int `mapstructure:"overlap_words" yaml:"overlap_words"`
}

// BoundsCfg caps a bounded agent loop.
type BoundsCfg struct {
	MaxTurns       int     `mapstructure:"max_turns" yaml:"max_turns"`
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxCostUSD     float64 `mapstructure:"max_cost_usd" yaml:"max_cost_usd"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// BookCfg holds generation defaults applied when a project does not override them.
type BookCfg struct {
	TargetChapters        int `mapstructure:"target_chapters" yaml:"target_chapters"`
	TargetWordsPerChapter int `mapstructure:"target_words_per_chapter" yaml:"target_words_per_chapter"`
}

// WorkersCfg configures the background task pool.
type WorkersCfg struct {
	Count     int `mapstructure:"count" yaml:"count"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersCfg{
			Primary: ProviderCfg{
				Type:           "anthropic",
				Model:          "claude-sonnet-4-5",
				APIKey:         "${ANTHROPIC_API_KEY}",
				MaxRetries:     3,
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			Fallback: ProviderCfg{
				Type:           "openai",
				Model:          "gpt-4o",
				APIKey:         "${OPENAI_API_KEY}",
				MaxRetries:     3,
				TimeoutSeconds: 120,
				Enabled:        true,
			},
		},
		Embedding: EmbeddingCfg{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			APIKey:     "${OPENAI_API_KEY}",
			Dimensions: 1536,
		},
		Quality: QualityCfg{
			VoiceThreshold:    0.70,
			FactThreshold:     0.90,
			CohesionThreshold: 0,
		},
		Retrieval: RetrievalCfg{
			TopK:                20,
			SimilarityThreshold: 0.2,
			ContextTokens:       6000,
			CanonWindow:         3,
		},
		Ingest: IngestCfg{
			ChunkWords:   400,
			OverlapWords: 60,
		},
		Outline: BoundsCfg{
			MaxTurns:       3,
			MaxTokens:      100_000,
			MaxCostUSD:     5.0,
			TimeoutSeconds: 600,
		},
		Chapter: BoundsCfg{
			MaxTurns:       3,
			MaxTokens:      200_000,
			MaxCostUSD:     10.0,
			TimeoutSeconds: 900,
		},
		Book: BookCfg{
			TargetChapters:        3,
			TargetWordsPerChapter: 2000,
		},
		Workers: WorkersCfg{
			Count:     4,
			QueueSize: 64,
		},
	}
}

// ResolvedPrimaryKey returns the primary provider API key with ${ENV_VAR} references expanded.
func (c *Config) ResolvedPrimaryKey() string {
	return ResolveEnvVars(c.Providers.Primary.APIKey)
}

// ResolvedFallbackKey returns the fallback provider API key with ${ENV_VAR} references expanded.
func (c *Config) ResolvedFallbackKey() string {
	return ResolveEnvVars(c.Providers.Fallback.APIKey)
}

// ResolvedEmbeddingKey returns the embedding API key with ${ENV_VAR} references expanded.
func (c *Config) ResolvedEmbeddingKey() string {
	return ResolveEnvVars(c.Embedding.APIKey)
}
