package voice

import (
	"context"
	"log/slog"
	"math"

	"github.com/ghostline-ai/ghostline/internal/book"
	"github.com/ghostline-ai/ghostline/internal/embedding"
)

// SimilarityResult is the outcome of one voice comparison.
type SimilarityResult struct {
	StylometrySimilarity float64 `json:"stylometry_similarity"`
	EmbeddingSimilarity  float64 `json:"embedding_similarity"`
	Overall              float64 `json:"overall"`
	PassesThreshold      bool    `json:"passes_threshold"`
}

// StylometrySimilarity scores two stylometries in [0, 1]: one minus the
// weighted mean absolute difference of their normalized feature vectors,
// floored at zero.
func StylometrySimilarity(a, b book.Stylometry) float64 {
	va, vb := Vector(a), Vector(b)
	var sum, weightSum float64
	for i := range va {
		sum += featureWeights[i] * math.Abs(va[i]-vb[i])
		weightSum += featureWeights[i]
	}
	return math.Max(0, 1-sum/weightSum)
}

// Comparator blends stylometric and embedding similarity.
type Comparator struct {
	engine embedding.Engine
	logger *slog.Logger
}

// NewComparator creates a voice comparator.
func NewComparator(engine embedding.Engine, logger *slog.Logger) *Comparator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Comparator{engine: engine, logger: logger.With("component", "voice")}
}

// Compare scores how alike two texts read.
// overall = embeddingWeight·embedding + (1-embeddingWeight)·stylometry.
// Embedding failures degrade to stylometry-only rather than failing the
// comparison.
func (c *Comparator) Compare(ctx context.Context, text1, text2 string, embeddingWeight, threshold float64) *SimilarityResult {
	result := &SimilarityResult{
		StylometrySimilarity: StylometrySimilarity(ComputeStylometry(text1), ComputeStylometry(text2)),
	}

	weight := clamp01(embeddingWeight)
	if weight > 0 && c.engine != nil {
		v1, err1 := c.engine.Embed(ctx, text1)
		v2, err2 := c.engine.Embed(ctx, text2)
		if err1 != nil || err2 != nil {
			c.logger.Warn("embedding failed during voice comparison, using stylometry only",
				"error1", err1, "error2", err2)
			weight = 0
		} else {
			result.EmbeddingSimilarity = embedding.Cosine(v1, v2)
		}
	} else {
		weight = 0
	}

	result.Overall = weight*result.EmbeddingSimilarity + (1-weight)*result.StylometrySimilarity
	result.PassesThreshold = result.Overall >= threshold
	return result
}

// CompareToProfile scores a text against a stored voice profile, using the
// profile's own embedding weight and threshold.
func (c *Comparator) CompareToProfile(ctx context.Context, text string, profile *book.VoiceProfile) *SimilarityResult {
	result := &SimilarityResult{
		StylometrySimilarity: StylometrySimilarity(ComputeStylometry(text), profile.Stylometry),
	}

	weight := clamp01(profile.EmbeddingWeight)
	if weight > 0 && c.engine != nil && len(profile.Embedding) > 0 {
		vec, err := c.engine.Embed(ctx, text)
		if err != nil {
			c.logger.Warn("embedding failed during profile comparison, using stylometry only", "error", err)
			weight = 0
		} else {
			result.EmbeddingSimilarity = embedding.Cosine(vec, profile.Embedding)
		}
	} else {
		weight = 0
	}

	result.Overall = weight*result.EmbeddingSimilarity + (1-weight)*result.StylometrySimilarity
	result.PassesThreshold = result.Overall >= profile.SimilarityThreshold
	return result
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
