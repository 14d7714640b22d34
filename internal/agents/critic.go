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

// OutlineCritic reviews planner outlines and either approves or returns
// targeted feedback.
type OutlineCritic struct {
	agent
}

// NewOutlineCritic creates the critic agent.
func NewOutlineCritic(client *llm.Client, resolver *prompts.Resolver, flags config.Flags, logger *slog.Logger) *OutlineCritic {
	return &OutlineCritic{
		agent: newAgent("outline_critic", "critic", prompts.KeyOutlineCritic, 0.4, 2048,
			client, resolver, flags, logger),
	}
}

// Critique is the critic's verdict.
type Critique struct {
	Approved bool     `json:"approved"`
	Feedback []string `json:"feedback"`
}

// Review critiques an outline against the source summaries it must be
// grounded in. An unparseable reply counts as approval with a warning: one
// flaky critique must not wedge the outline loop.
func (c *OutlineCritic) Review(ctx context.Context, outline *book.Outline, sourceSummaries []string) (*Critique, *Output, error) {
	if !c.live() {
		if c.flags.StrictMode {
			return nil, nil, c.errNoProvider()
		}
		c.logger.Warn("no provider configured, auto-approving outline")
		return &Critique{Approved: true}, placeholderOutput(), nil
	}

	result, err := c.invoke(ctx, c.buildUserPrompt(outline, sourceSummaries), nil)
	if err != nil {
		return nil, nil, err
	}

	critique, perr := Parse[Critique](result.Content)
	if perr != nil {
		c.logger.Warn("critic reply unparseable, treating as approval", "error", perr)
		return &Critique{Approved: true}, outputFrom(result), nil
	}
	if err := ValidateSchema(CritiqueSchema, critique); err != nil {
		c.logger.Warn("critic reply off-schema, treating as approval", "error", err)
		return &Critique{Approved: true}, outputFrom(result), nil
	}

	// An unapproved critique with no feedback gives the planner nothing to
	// act on; treat it as approval rather than spinning.
	if !critique.Approved && len(critique.Feedback) == 0 {
		c.logger.Warn("critic rejected outline without feedback, treating as approval")
		critique.Approved = true
	}

	return &critique, outputFrom(result), nil
}

func (c *OutlineCritic) buildUserPrompt(outline *book.Outline, sourceSummaries []string) string {
	var b strings.Builder

	outlineJSON, err := json.MarshalIndent(outline, "", "  ")
	if err != nil {
		outlineJSON = []byte("{}")
	}
	fmt.Fprintf(&b, "Outline under review:\n%s\n", outlineJSON)

	if len(sourceSummaries) > 0 {
		b.WriteString("\nSource material the book must be grounded in:\n")
		for i, s := range sourceSummaries {
			fmt.Fprintf(&b, "---\n%d. %s\n", i+1, truncateText(s, 1500))
		}
		b.WriteString("---\n")
	}

	b.WriteString("\nReview the outline now. Return the JSON verdict only.")
	return b.String()
}
