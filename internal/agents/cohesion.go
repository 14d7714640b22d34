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

// CohesionAnalyst scores how well a chapter sits with the rest of the book.
type CohesionAnalyst struct {
	agent
}

// NewCohesionAnalyst creates the cohesion analyst agent.
func NewCohesionAnalyst(client *llm.Client, resolver *prompts.Resolver, flags config.Flags, logger *slog.Logger) *CohesionAnalyst {
	return &CohesionAnalyst{
		agent: newAgent("cohesion_analyst", "analyst", prompts.KeyCohesionAnalyst, 0.3, 2048,
			client, resolver, flags, logger),
	}
}

// CohesionReport is the analyst's verdict.
type CohesionReport struct {
	CohesionScore float64  `json:"cohesion_score"`
	Issues        []string `json:"issues"`
	Strengths     []string `json:"strengths"`
	Summary       string   `json:"summary"`
}

// Analyze scores a chapter's continuity. Never fails on a bad reply: an
// unparseable analysis falls back to a neutral 0.5 so cohesion (which is
// informational by default) cannot wedge the revision loop.
func (c *CohesionAnalyst) Analyze(ctx context.Context, content string, previousSummaries []string, outlineContext string) (*CohesionReport, *Output, error) {
	if !c.live() {
		if c.flags.StrictMode {
			return nil, nil, c.errNoProvider()
		}
		return &CohesionReport{CohesionScore: 1.0, Summary: "Cohesion check skipped: no provider configured."},
			placeholderOutput(), nil
	}

	result, err := c.invoke(ctx, c.buildUserPrompt(content, previousSummaries, outlineContext), nil)
	if err != nil {
		return nil, nil, err
	}

	report, perr := Parse[CohesionReport](result.Content)
	if perr != nil {
		c.logger.Warn("cohesion reply unparseable, using neutral score", "error", perr)
		return &CohesionReport{CohesionScore: 0.5, Summary: "Could not parse"}, outputFrom(result), nil
	}

	clampScore(&report.CohesionScore)
	return &report, outputFrom(result), nil
}

func (c *CohesionAnalyst) buildUserPrompt(content string, previousSummaries []string, outlineContext string) string {
	var b strings.Builder

	if len(previousSummaries) > 0 {
		b.WriteString("What previous chapters covered:\n")
		for i, s := range previousSummaries {
			fmt.Fprintf(&b, "Chapter %d: %s\n", i+1, truncateText(s, 1200))
		}
	} else {
		b.WriteString("This is the first chapter; judge internal flow and how it sets up the book.\n")
	}

	if outlineContext != "" {
		fmt.Fprintf(&b, "\nSurrounding outline:\n%s\n", truncateText(outlineContext, 3000))
	}

	fmt.Fprintf(&b, "\nChapter to evaluate:\n---\n%s\n---\n", truncateText(content, 50000))
	b.WriteString("\nEvaluate cohesion now. Return the JSON report only.")
	return b.String()
}
