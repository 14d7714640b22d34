package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ghostline-ai/ghostline/internal/book"
	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/llm"
	"github.com/ghostline-ai/ghostline/internal/prompts"
)

// OutlinePlanner designs the book's chapter structure from source summaries.
type OutlinePlanner struct {
	agent
}

// NewOutlinePlanner creates the planner agent.
func NewOutlinePlanner(client *llm.Client, resolver *prompts.Resolver, flags config.Flags, logger *slog.Logger) *OutlinePlanner {
	return &OutlinePlanner{
		agent: newAgent("outline_planner", "planner", prompts.KeyOutlinePlanner, 0.7, 4096,
			client, resolver, flags, logger),
	}
}

// PlanInput is everything the planner sees. PriorOutline and Feedback are set
// on refinement turns.
type PlanInput struct {
	Title           string
	Description     string
	SourceSummaries []string
	TargetChapters  int
	VoiceGuidance   string
	PriorOutline    *book.Outline
	Feedback        []string
}

// Plan produces an outline. The reply is schema-validated before use; a
// malformed outline here would poison every chapter after it.
func (p *OutlinePlanner) Plan(ctx context.Context, in PlanInput) (*book.Outline, *Output, error) {
	if !p.live() {
		if p.flags.StrictMode {
			return nil, nil, p.errNoProvider()
		}
		p.logger.Warn("no provider configured, returning placeholder outline")
		return placeholderOutline(in), placeholderOutput(), nil
	}

	result, err := p.invoke(ctx, p.buildUserPrompt(in), map[string]any{
		"target_chapters": in.TargetChapters,
		"refinement":      in.PriorOutline != nil,
	})
	if err != nil {
		return nil, nil, err
	}

	outline, err := Parse[book.Outline](result.Content)
	if err != nil {
		return nil, outputFrom(result), fmt.Errorf("planner reply unusable: %w", err)
	}
	if err := ValidateSchema(OutlineSchema, outline); err != nil {
		return nil, outputFrom(result), fmt.Errorf("planner reply unusable: %w", err)
	}

	outline.Trim(in.TargetChapters)
	return &outline, outputFrom(result), nil
}

func (p *OutlinePlanner) buildUserPrompt(in PlanInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Book title: %s\n", in.Title)
	if in.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", in.Description)
	}
	fmt.Fprintf(&b, "Target chapter count: %d\n", in.TargetChapters)
	if in.VoiceGuidance != "" {
		fmt.Fprintf(&b, "\nAuthor voice guidance:\n%s\n", in.VoiceGuidance)
	}

	b.WriteString("\nSource material summaries:\n")
	for i, s := range in.SourceSummaries {
		fmt.Fprintf(&b, "---\n%d. %s\n", i+1, truncateText(s, 2000))
	}
	b.WriteString("---\n")

	if in.PriorOutline != nil {
		prior, err := json.MarshalIndent(in.PriorOutline, "", "  ")
		if err == nil {
			fmt.Fprintf(&b, "\nPrevious outline:\n%s\n", prior)
		}
		b.WriteString("\nReviewer feedback to address (revise the outline above, do not start over):\n")
		for _, f := range in.Feedback {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	fmt.Fprintf(&b, "\nDesign the outline now with exactly %d chapters. Return the JSON object only.", in.TargetChapters)
	return b.String()
}

// placeholderOutline keeps offline runs moving with a minimal valid outline.
func placeholderOutline(in PlanInput) *book.Outline {
	title := in.Title
	if title == "" {
		title = "Untitled"
	}
	n := in.TargetChapters
	if n <= 0 {
		n = 3
	}
	outline := &book.Outline{
		Title:   title,
		Premise: "Placeholder outline generated without a model provider.",
	}
	for i := 1; i <= n; i++ {
		outline.Chapters = append(outline.Chapters, book.OutlineChapter{
			Number:  i,
			Title:   fmt.Sprintf("Chapter %d", i),
			Summary: fmt.Sprintf("Placeholder summary for chapter %d.", i),
		})
	}
	return outline
}
