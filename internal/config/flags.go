package config

import (
	"os"
	"strings"
)

// Environment flags recognized at runtime. These are read directly from the
// environment rather than the config file so operators can toggle behavior
// per invocation.
const (
	EnvStrictMode           = "GHOSTLINE_STRICT_MODE"
	EnvAllowLLMFallback     = "GHOSTLINE_ALLOW_LLM_FALLBACK"
	EnvRAGRerank            = "GHOSTLINE_RAG_RERANK"
	EnvDestructiveSanitizer = "GHOSTLINE_DESTRUCTIVE_SANITIZER"
	EnvFallbackModel        = "OPENAI_FALLBACK_MODEL"

	// DefaultFallbackModel is used when OPENAI_FALLBACK_MODEL is unset.
	DefaultFallbackModel = "gpt-4o"
)

// Flags holds the resolved runtime feature flags.
type Flags struct {
	// StrictMode makes recoverable failures fatal: no placeholder outputs,
	// no silent gate downgrades, provider failures abort the run.
	StrictMode bool

	// AllowLLMFallback enables the primary-to-fallback provider switch on
	// quota exhaustion.
	AllowLLMFallback bool

	// RAGRerank enables coverage-aware reranking of retrieval candidates.
	RAGRerank bool

	// DestructiveSanitizer enables the legacy grounding sanitizer that
	// rewrites chapter content. Off by default; the normal path is identity.
	DestructiveSanitizer bool

	// FallbackModel is the model used when falling back to the secondary provider.
	FallbackModel string
}

// FlagsFromEnv reads the runtime flags from the environment.
func FlagsFromEnv() Flags {
	return Flags{
		StrictMode:           BoolEnv(EnvStrictMode, false),
		AllowLLMFallback:     BoolEnv(EnvAllowLLMFallback, true),
		RAGRerank:            BoolEnv(EnvRAGRerank, true),
		DestructiveSanitizer: BoolEnv(EnvDestructiveSanitizer, false),
		FallbackModel:        StringEnv(EnvFallbackModel, DefaultFallbackModel),
	}
}

// BoolEnv parses a boolean environment variable. Accepts 1/true/yes/on
// case-insensitively; anything else is false. Unset returns the default.
func BoolEnv(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// StringEnv returns the environment variable value or a default when unset or blank.
func StringEnv(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}
