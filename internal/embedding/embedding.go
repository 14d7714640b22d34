// Package embedding turns text into vectors for similarity search. Two
// engines are provided: the OpenAI API backend used in production and a
// deterministic local backend for offline runs and tests.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/ledger"
)

// Engine embeds text into fixed-dimension vectors.
type Engine interface {
	// Embed returns the vector for one text. Empty text embeds to the zero
	// vector without touching the backend.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the engine's output vector size.
	Dimensions() int

	// Name identifies the engine ("openai", "local").
	Name() string
}

// NewFromConfig builds the configured engine. An OpenAI engine without an
// API key falls back to the local engine so ingest still works offline.
func NewFromConfig(cfg config.EmbeddingCfg, led *ledger.Ledger, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Provider {
	case "openai", "":
		key := config.ResolveEnvVars(cfg.APIKey)
		if key == "" {
			logger.Warn("no embedding API key configured, using local engine")
			return NewLocalEngine(cfg.Dimensions), nil
		}
		return NewOpenAIEngine(OpenAIEngineConfig{
			APIKey:     key,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Ledger:     led,
			Logger:     logger,
		}), nil
	case "local":
		return NewLocalEngine(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// Cosine returns the cosine similarity of two vectors, clamped to [-1, 1].
// Mismatched lengths or zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim))
}

// IsZero reports whether a vector is all zeros (the empty-text embedding).
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
