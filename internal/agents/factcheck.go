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

// FactChecker maps chapter claims to source quotes and scores accuracy.
type FactChecker struct {
	agent
}

// NewFactChecker creates the fact checker agent.
func NewFactChecker(client *llm.Client, resolver *prompts.Resolver, flags config.Flags, logger *slog.Logger) *FactChecker {
	return &FactChecker{
		agent: newAgent("fact_checker", "checker", prompts.KeyFactChecker, 0.2, 4096,
			client, resolver, flags, logger),
	}
}

// FactReport is the checker's verdict on one chapter.
type FactReport struct {
	AccuracyScore          float64             `json:"accuracy_score"`
	Summary                string              `json:"summary"`
	Findings               []string            `json:"findings"`
	UnsupportedClaims      []string            `json:"unsupported_claims"`
	LowConfidenceCitations []string            `json:"low_confidence_citations"`
	ClaimMappings          []book.ClaimMapping `json:"claim_mappings"`
}

// Check fact-checks chapter content against its source excerpts. Unlike the
// other analysts, a reply the parser cannot use scores 0 with an error
// finding: an unreadable fact check must force a revision, not pass one.
func (f *FactChecker) Check(ctx context.Context, content, sourceContext string) (*FactReport, *Output, error) {
	if !f.live() {
		if f.flags.StrictMode {
			return nil, nil, f.errNoProvider()
		}
		// Offline runs cannot verify anything; score permissively so the
		// deterministic citation gate remains the arbiter.
		return &FactReport{AccuracyScore: 1.0, Summary: "Fact check skipped: no provider configured."},
			placeholderOutput(), nil
	}

	result, err := f.invoke(ctx, f.buildUserPrompt(content, sourceContext), nil)
	if err != nil {
		return nil, nil, err
	}

	report, perr := Parse[FactReport](result.Content)
	if perr != nil {
		f.logger.Warn("fact checker reply unparseable, scoring 0", "error", perr)
		return &FactReport{
			AccuracyScore: 0,
			Summary:       "Fact check reply could not be parsed.",
			Findings:      []string{fmt.Sprintf("fact check parse error: %v", perr)},
		}, outputFrom(result), nil
	}

	clampScore(&report.AccuracyScore)
	return &report, outputFrom(result), nil
}

func (f *FactChecker) buildUserPrompt(content, sourceContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source excerpts:\n%s\n", truncateText(sourceContext, 50000))
	fmt.Fprintf(&b, "\nChapter to verify:\n---\n%s\n---\n", truncateText(content, 50000))
	b.WriteString("\nMap every factual claim to its source. Return the JSON report only.")
	return b.String()
}

// clampScore keeps model-reported scores inside [0, 1].
func clampScore(s *float64) {
	if *s < 0 {
		*s = 0
	}
	if *s > 1 {
		*s = 1
	}
}
