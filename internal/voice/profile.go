package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ghostline-ai/ghostline/internal/agents"
	"github.com/ghostline-ai/ghostline/internal/book"
	"github.com/ghostline-ai/ghostline/internal/embedding"
)

// Profile defaults. The threshold matches the chapter voice gate; the blend
// weighs embeddings and stylometry equally.
const (
	DefaultSimilarityThreshold = 0.70
	DefaultEmbeddingWeight     = 0.5
)

// Builder creates voice profiles from writing samples.
type Builder struct {
	engine  embedding.Engine
	analyst *agents.VoiceAnalyst
	logger  *slog.Logger
}

// NewBuilder creates a profile builder.
func NewBuilder(engine embedding.Engine, analyst *agents.VoiceAnalyst, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{engine: engine, analyst: analyst, logger: logger.With("component", "voice")}
}

// BuildProfile measures the samples' stylometry, embeds them, and asks the
// voice analyst to name the traits only a reader can. Analyst and embedding
// failures degrade the profile rather than failing it: stylometry alone
// still gates voice.
func (b *Builder) BuildProfile(ctx context.Context, projectID string, samples []string) (*book.VoiceProfile, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no writing samples to profile")
	}
	joined := strings.Join(samples, "\n\n")
	if strings.TrimSpace(joined) == "" {
		return nil, fmt.Errorf("writing samples are empty")
	}

	profile := &book.VoiceProfile{
		ProjectID:           projectID,
		Stylometry:          ComputeStylometry(joined),
		SimilarityThreshold: DefaultSimilarityThreshold,
		EmbeddingWeight:     DefaultEmbeddingWeight,
	}

	if b.engine != nil {
		vec, err := b.engine.Embed(ctx, joined)
		if err != nil {
			b.logger.Warn("failed to embed writing samples, profile will gate on stylometry only", "error", err)
			profile.EmbeddingWeight = 0
		} else {
			profile.Embedding = vec
		}
	} else {
		profile.EmbeddingWeight = 0
	}

	if b.analyst != nil {
		traits, _, err := b.analyst.Analyze(ctx, samples)
		if err != nil {
			b.logger.Warn("voice analysis failed, profile keeps stylometry only", "error", err)
		} else {
			profile.CommonPhrases = traits.CommonPhrases
			profile.SentenceStarters = traits.SentenceStarters
			profile.TransitionWords = traits.TransitionWords
			profile.StyleDescription = traits.StyleDescription
		}
	}

	return profile, nil
}

// Guidance renders a profile as the voice guidance block fed to the planner
// and drafter prompts.
func Guidance(p *book.VoiceProfile) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	if p.StyleDescription != "" {
		b.WriteString(p.StyleDescription)
		b.WriteString("\n")
	}
	if len(p.CommonPhrases) > 0 {
		fmt.Fprintf(&b, "Phrases the author uses: %s\n", strings.Join(p.CommonPhrases, "; "))
	}
	if len(p.SentenceStarters) > 0 {
		fmt.Fprintf(&b, "Typical sentence openers: %s\n", strings.Join(p.SentenceStarters, "; "))
	}
	if len(p.TransitionWords) > 0 {
		fmt.Fprintf(&b, "Typical transitions: %s\n", strings.Join(p.TransitionWords, "; "))
	}
	if s := p.Stylometry; s.AvgSentenceLength > 0 {
		fmt.Fprintf(&b, "Average sentence length: %.0f words.\n", s.AvgSentenceLength)
	}
	return strings.TrimSpace(b.String())
}
