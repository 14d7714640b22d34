package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ghostline-ai/ghostline/internal/book"
	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/llm"
	"github.com/ghostline-ai/ghostline/internal/prompts"
)

// VoiceEditor rewrites drafted prose toward the author's voice without
// touching citations or meaning.
type VoiceEditor struct {
	agent
}

// NewVoiceEditor creates the voice editor agent.
func NewVoiceEditor(client *llm.Client, resolver *prompts.Resolver, flags config.Flags, logger *slog.Logger) *VoiceEditor {
	return &VoiceEditor{
		agent: newAgent("voice_editor", "editor", prompts.KeyVoiceEditor, 0.5, 8192,
			client, resolver, flags, logger),
	}
}

// EditInput is a chapter plus the voice to edit it toward.
type EditInput struct {
	Content        string
	Profile        *book.VoiceProfile
	WritingSamples []string
}

// Edit returns the voice-edited chapter. Offline it returns the content
// unchanged; there is no voice to edit toward without a model.
func (e *VoiceEditor) Edit(ctx context.Context, in EditInput) (string, *Output, error) {
	if !e.live() {
		if e.flags.StrictMode {
			return "", nil, e.errNoProvider()
		}
		return in.Content, placeholderOutput(), nil
	}

	result, err := e.invoke(ctx, e.buildUserPrompt(in), nil)
	if err != nil {
		return "", nil, err
	}

	edited := strings.TrimSpace(result.Content)
	if edited == "" {
		// An empty edit means the model gave up; keep the draft rather
		// than losing the chapter.
		e.logger.Warn("voice editor returned empty content, keeping draft")
		return in.Content, outputFrom(result), nil
	}
	return edited, outputFrom(result), nil
}

func (e *VoiceEditor) buildUserPrompt(in EditInput) string {
	var b strings.Builder

	if in.Profile != nil && in.Profile.StyleDescription != "" {
		fmt.Fprintf(&b, "Author voice profile:\n%s\n", in.Profile.StyleDescription)
		if len(in.Profile.CommonPhrases) > 0 {
			fmt.Fprintf(&b, "Common phrases: %s\n", strings.Join(in.Profile.CommonPhrases, "; "))
		}
		if len(in.Profile.SentenceStarters) > 0 {
			fmt.Fprintf(&b, "Typical sentence starters: %s\n", strings.Join(in.Profile.SentenceStarters, "; "))
		}
		if len(in.Profile.TransitionWords) > 0 {
			fmt.Fprintf(&b, "Typical transitions: %s\n", strings.Join(in.Profile.TransitionWords, "; "))
		}
	}

	for i, sample := range in.WritingSamples {
		if i >= 2 {
			break // two samples are plenty of signal for line edits
		}
		fmt.Fprintf(&b, "\nWriting sample %d:\n---\n%s\n---\n", i+1, truncateText(sample, 6000))
	}

	fmt.Fprintf(&b, "\nChapter to edit:\n---\n%s\n---\n", truncateText(in.Content, 50000))
	b.WriteString("\nReturn the complete edited chapter. Citation markers must survive character for character.")
	return b.String()
}
