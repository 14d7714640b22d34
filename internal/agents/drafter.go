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

// ContentDrafter writes chapter prose grounded in source excerpts with
// inline citation markers.
type ContentDrafter struct {
	agent
}

// NewContentDrafter creates the drafter agent.
func NewContentDrafter(client *llm.Client, resolver *prompts.Resolver, flags config.Flags, logger *slog.Logger) *ContentDrafter {
	return &ContentDrafter{
		agent: newAgent("content_drafter", "drafter", prompts.KeyContentDrafter, 0.7, 8192,
			client, resolver, flags, logger),
	}
}

// DraftInput is the material a chapter is drafted from.
type DraftInput struct {
	Chapter       book.OutlineChapter
	SourceContext string // retrieval context blocks, with Source: headers
	Canon         []book.CanonBlock
	VoiceGuidance string
	TargetWords   int
}

// RevisionNotes carries everything a revision turn adds on top of the
// original draft input.
type RevisionNotes struct {
	CurrentDraft string
	Feedback     []string
	StyleIssues  []string
	QuoteBank    []string // verbatim source quotes the revision may cite
	Iteration    int
}

// Draft writes the first version of a chapter.
func (d *ContentDrafter) Draft(ctx context.Context, in DraftInput) (string, *Output, error) {
	if !d.live() {
		if d.flags.StrictMode {
			return "", nil, d.errNoProvider()
		}
		d.logger.Warn("no provider configured, returning placeholder chapter", "chapter", in.Chapter.Number)
		return placeholderChapter(in), placeholderOutput(), nil
	}

	result, err := d.invoke(ctx, d.buildDraftPrompt(in), map[string]any{
		"chapter": in.Chapter.Number,
	})
	if err != nil {
		return "", nil, err
	}

	content := strings.TrimSpace(result.Content)
	if content == "" {
		return "", outputFrom(result), fmt.Errorf("drafter returned empty chapter %d", in.Chapter.Number)
	}
	return content, outputFrom(result), nil
}

// Revise rewrites a draft to address accumulated reviewer feedback while
// holding the grounding constraints fixed.
func (d *ContentDrafter) Revise(ctx context.Context, in DraftInput, notes RevisionNotes) (string, *Output, error) {
	if !d.live() {
		if d.flags.StrictMode {
			return "", nil, d.errNoProvider()
		}
		// Nothing to improve offline; hand the draft back.
		return notes.CurrentDraft, placeholderOutput(), nil
	}

	result, err := d.invoke(ctx, d.buildRevisePrompt(in, notes), map[string]any{
		"chapter":   in.Chapter.Number,
		"iteration": notes.Iteration,
	})
	if err != nil {
		return "", nil, err
	}

	content := strings.TrimSpace(result.Content)
	if content == "" {
		return "", outputFrom(result), fmt.Errorf("reviser returned empty chapter %d", in.Chapter.Number)
	}
	return content, outputFrom(result), nil
}

func (d *ContentDrafter) buildDraftPrompt(in DraftInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Chapter %d: %s\n", in.Chapter.Number, in.Chapter.Title)
	fmt.Fprintf(&b, "Chapter summary: %s\n", in.Chapter.Summary)
	if len(in.Chapter.KeyPoints) > 0 {
		b.WriteString("Key points to cover:\n")
		for _, kp := range in.Chapter.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", kp)
		}
	}
	fmt.Fprintf(&b, "Target length: about %d words\n", in.TargetWords)

	writeCanon(&b, in.Canon)

	if in.VoiceGuidance != "" {
		fmt.Fprintf(&b, "\nAuthor voice guidance:\n%s\n", in.VoiceGuidance)
	}

	fmt.Fprintf(&b, "\nSource material (cite these files by the exact name in each Source: header):\n%s\n",
		truncateText(in.SourceContext, 60000))

	b.WriteString("\nWrite the full chapter now. Every factual claim needs an inline citation marker with a verbatim quote.")
	return b.String()
}

func (d *ContentDrafter) buildRevisePrompt(in DraftInput, notes RevisionNotes) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Revise chapter %d: %s (revision %d)\n", in.Chapter.Number, in.Chapter.Title, notes.Iteration)

	b.WriteString(`
Hard constraints, in priority order:
1. Keep every verbatim quote inside citation markers intact. Do not reword quoted text.
2. Every factual claim keeps (or gains) a citation marker [citation: filename - "verbatim quote"].
3. Quote only from the source material below or the quote bank. Never invent quoted text.
4. Fix every reviewer issue listed. Do not introduce new unsupported claims while fixing them.
`)

	if len(notes.Feedback) > 0 {
		b.WriteString("\nReviewer feedback to address:\n")
		for _, f := range notes.Feedback {
			fmt.Fprintf(&b, "- %s\n", truncateText(f, 1000))
		}
	}
	if len(notes.StyleIssues) > 0 {
		b.WriteString("\nStyle problems detected (each must be gone after revision):\n")
		for _, issue := range notes.StyleIssues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}

	if in.VoiceGuidance != "" {
		fmt.Fprintf(&b, "\nAuthor voice guidance:\n%s\n", in.VoiceGuidance)
	}

	if len(notes.QuoteBank) > 0 {
		b.WriteString("\nQuote bank (verbatim source passages safe to cite):\n")
		for _, q := range notes.QuoteBank {
			fmt.Fprintf(&b, "- %q\n", q)
		}
	}

	fmt.Fprintf(&b, "\nSource material:\n%s\n", truncateText(in.SourceContext, 40000))

	fmt.Fprintf(&b, "\nCurrent draft:\n---\n%s\n---\n", truncateText(notes.CurrentDraft, 40000))
	fmt.Fprintf(&b, "\nReturn the complete revised chapter (about %d words) in markdown. No commentary.", in.TargetWords)
	return b.String()
}

// writeCanon renders the grounded memory from previous chapters.
func writeCanon(b *strings.Builder, canon []book.CanonBlock) {
	if len(canon) == 0 {
		return
	}
	b.WriteString("\nWhat previous chapters established (do not contradict or re-explain):\n")
	for _, c := range canon {
		fmt.Fprintf(b, "Chapter %d (%s): %s\n", c.ChapterNumber, c.Title, c.OutlineSummary)
		for _, pt := range c.KeyPoints {
			fmt.Fprintf(b, "  - %s\n", pt)
		}
		for _, commit := range c.GroundedCommitments {
			fmt.Fprintf(b, "  - established: %s\n", commit)
		}
	}
}

// placeholderChapter is minimal but structurally valid offline output.
func placeholderChapter(in DraftInput) string {
	return fmt.Sprintf("# %s\n\nPlaceholder content for chapter %d. %s\n",
		in.Chapter.Title, in.Chapter.Number, in.Chapter.Summary)
}
