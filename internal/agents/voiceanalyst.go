package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/llm"
	"github.com/ghostline-ai/ghostline/internal/prompts"
)

// VoiceAnalyst extracts style traits from writing samples. The deterministic
// half of a voice profile (stylometry, embedding) is computed in
// internal/voice; this agent supplies the parts only a reader can name.
type VoiceAnalyst struct {
	agent
}

// NewVoiceAnalyst creates the voice analyst agent.
func NewVoiceAnalyst(client *llm.Client, resolver *prompts.Resolver, flags config.Flags, logger *slog.Logger) *VoiceAnalyst {
	return &VoiceAnalyst{
		agent: newAgent("voice_analyst", "analyst", prompts.KeyVoiceAnalyst, 0.3, 2048,
			client, resolver, flags, logger),
	}
}

// VoiceTraits is the reader-observable half of a voice profile.
type VoiceTraits struct {
	CommonPhrases    []string `json:"common_phrases"`
	SentenceStarters []string `json:"sentence_starters"`
	TransitionWords  []string `json:"transition_words"`
	StyleDescription string   `json:"style_description"`
}

// Analyze names the author's style habits from samples. A bad reply returns
// empty traits rather than an error; the stylometric half of the profile
// still works without them.
func (v *VoiceAnalyst) Analyze(ctx context.Context, samples []string) (*VoiceTraits, *Output, error) {
	if !v.live() {
		if v.flags.StrictMode {
			return nil, nil, v.errNoProvider()
		}
		return &VoiceTraits{StyleDescription: "Voice analysis skipped: no provider configured."},
			placeholderOutput(), nil
	}

	result, err := v.invoke(ctx, v.buildUserPrompt(samples), nil)
	if err != nil {
		return nil, nil, err
	}

	traits, perr := Parse[VoiceTraits](result.Content)
	if perr != nil {
		v.logger.Warn("voice analyst reply unparseable, using empty traits", "error", perr)
		return &VoiceTraits{}, outputFrom(result), nil
	}
	return &traits, outputFrom(result), nil
}

func (v *VoiceAnalyst) buildUserPrompt(samples []string) string {
	var b strings.Builder
	b.WriteString("Writing samples:\n")
	for i, s := range samples {
		fmt.Fprintf(&b, "--- Sample %d ---\n%s\n", i+1, truncateText(s, 8000))
	}
	b.WriteString("---\n\nExtract the author's style traits. Return the JSON object only.")
	return b.String()
}
