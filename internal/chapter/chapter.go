// Package chapter runs the bounded drafting loop for a single chapter:
// draft, voice edit, fact check, cohesion check, then revise until the
// quality gates pass or the budget runs out, and finalize. The loop always
// produces a chapter; when a budget cap trips, the best effort so far is
// finalized with quality_gates_passed=false and full diagnostics.
package chapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ghostline-ai/ghostline/internal/agents"
	"github.com/ghostline-ai/ghostline/internal/book"
	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/grounding"
	"github.com/ghostline-ai/ghostline/internal/ledger"
	"github.com/ghostline-ai/ghostline/internal/metrics"
	"github.com/ghostline-ai/ghostline/internal/store"
	"github.com/ghostline-ai/ghostline/internal/voice"
)

// ErrGateFailed marks a finalized chapter that did not pass the quality
// gates. Strict-mode callers treat it as fatal; the default mode records it
// and moves on.
var ErrGateFailed = errors.New("chapter failed quality gates")

// quoteBankSize caps the verbatim quote candidates offered to a revision.
const quoteBankSize = 20

// referenceTextLimit bounds the writing-sample reference fed to voice
// comparison, which embeds the text on every check.
const referenceTextLimit = 20000

// Input is everything one chapter run needs.
type Input struct {
	ProjectID         string
	WorkflowID        string
	Chapter           book.OutlineChapter
	SourceChunks      []store.ChunkMatch
	SourceContext     string            // rendered retrieval blocks with Source: headers
	SourceTexts       map[string]string // filename -> full extracted text, preferred for verification
	Canon             []book.CanonBlock
	PreviousSummaries []string
	OutlineContext    string
	VoiceProfile      *book.VoiceProfile
	WritingSamples    []string
	TargetWords       int
}

// State is the loop's working memory. It is returned even on error so the
// caller can persist partial progress and diagnostics.
type State struct {
	ChapterOutline book.OutlineChapter `json:"chapter_outline"`
	TargetWords    int                 `json:"target_words"`

	DraftContent  string `json:"draft_content,omitempty"`
	EditedContent string `json:"edited_content,omitempty"`
	FinalContent  string `json:"final_content,omitempty"`
	ContentClean  string `json:"content_clean,omitempty"`

	VoiceScore    float64 `json:"voice_score"`
	FactScore     float64 `json:"fact_score"`
	CohesionScore float64 `json:"cohesion_score"`

	VoiceFeedback    []string `json:"voice_feedback,omitempty"`
	FactFeedback     []string `json:"fact_feedback,omitempty"`
	CohesionFeedback []string `json:"cohesion_feedback,omitempty"`
	StyleIssues      []string `json:"style_issues,omitempty"`

	ClaimMappings  []book.ClaimMapping  `json:"claim_mappings,omitempty"`
	CitationReport *book.CitationReport `json:"citation_report,omitempty"`
	Citations      []book.Citation      `json:"citations,omitempty"`

	QualityGatesPassed bool                 `json:"quality_gates_passed"`
	GateReport         *book.GateReport     `json:"quality_gate_report,omitempty"`
	RevisionHistory    []book.RevisionEntry `json:"revision_history,omitempty"`

	Iteration  int     `json:"iteration"`
	TokensUsed int     `json:"tokens_used"`
	CostUSD    float64 `json:"cost_usd"`
}

// observe folds one agent call into the running totals.
func (st *State) observe(out *agents.Output) {
	if out == nil {
		return
	}
	st.TokensUsed += out.TokensUsed
	st.CostUSD += out.CostUSD
}

// overBudget reports whether a loop cap has tripped, and which one.
func (st *State) overBudget(b config.BoundsCfg) (string, bool) {
	switch {
	case b.MaxTurns > 0 && st.Iteration >= b.MaxTurns:
		return "max_turns", true
	case b.MaxTokens > 0 && st.TokensUsed >= b.MaxTokens:
		return "max_tokens", true
	case b.MaxCostUSD > 0 && st.CostUSD >= b.MaxCostUSD:
		return "max_cost", true
	}
	return "", false
}

// Chapter assembles the finished chapter record from finalized state.
func (st *State) Chapter() *book.Chapter {
	return &book.Chapter{
		Number:             st.ChapterOutline.Number,
		Title:              st.ChapterOutline.Title,
		ContentRaw:         st.FinalContent,
		ContentClean:       st.ContentClean,
		WordCount:          len(strings.Fields(st.ContentClean)),
		VoiceScore:         st.VoiceScore,
		FactScore:          st.FactScore,
		CohesionScore:      st.CohesionScore,
		Citations:          st.Citations,
		CitationReport:     st.CitationReport,
		QualityGatesPassed: st.QualityGatesPassed,
		QualityGateReport:  st.GateReport,
		RevisionHistory:    st.RevisionHistory,
	}
}

func (st *State) appendHistory(stage string) {
	st.RevisionHistory = append(st.RevisionHistory, book.RevisionEntry{
		Stage:         stage,
		Iteration:     st.Iteration,
		VoiceScore:    st.VoiceScore,
		FactScore:     st.FactScore,
		CohesionScore: st.CohesionScore,
		StyleIssues:   append([]string(nil), st.StyleIssues...),
		Feedback:      st.allFeedback(),
		Timestamp:     time.Now().UTC(),
	})
}

func (st *State) allFeedback() []string {
	var fb []string
	fb = append(fb, st.VoiceFeedback...)
	fb = append(fb, st.FactFeedback...)
	fb = append(fb, st.CohesionFeedback...)
	return fb
}

// Subgraph is the chapter drafting loop.
type Subgraph struct {
	drafter    *agents.ContentDrafter
	editor     *agents.VoiceEditor
	checker    *agents.FactChecker
	analyst    *agents.CohesionAnalyst
	comparator *voice.Comparator

	bounds  config.BoundsCfg
	quality config.QualityCfg
	flags   config.Flags
	logger  *slog.Logger
}

// New creates the chapter subgraph.
func New(
	drafter *agents.ContentDrafter,
	editor *agents.VoiceEditor,
	checker *agents.FactChecker,
	analyst *agents.CohesionAnalyst,
	comparator *voice.Comparator,
	bounds config.BoundsCfg,
	quality config.QualityCfg,
	flags config.Flags,
	logger *slog.Logger,
) *Subgraph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subgraph{
		drafter:    drafter,
		editor:     editor,
		checker:    checker,
		analyst:    analyst,
		comparator: comparator,
		bounds:     bounds,
		quality:    quality,
		flags:      flags,
		logger:     logger.With("component", "chapter"),
	}
}

// Run drafts one chapter through the full review loop. The returned state is
// always finalized: FinalContent, ContentClean, the gate report, and the
// revision history are populated whether or not the gates passed.
func (s *Subgraph) Run(ctx context.Context, in Input) (*State, error) {
	if s.bounds.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.bounds.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	ctx = ledger.WithStage(ledger.WithChapter(ctx, in.Chapter.Number), "chapter")

	state := &State{ChapterOutline: in.Chapter, TargetWords: in.TargetWords}
	sources := buildSources(in)
	logger := s.logger.With("chapter", in.Chapter.Number)

	draft, out, err := s.drafter.Draft(ctx, s.draftInput(in))
	state.observe(out)
	if err != nil {
		return state, fmt.Errorf("chapter %d draft failed: %w", in.Chapter.Number, err)
	}
	state.DraftContent = draft
	state.EditedContent = draft

	for {
		if err := s.voiceEdit(ctx, state, in); err != nil {
			return state, err
		}
		if err := s.factCheck(ctx, state, in, sources); err != nil {
			return state, err
		}
		if err := s.cohesionCheck(ctx, state, in); err != nil {
			return state, err
		}
		state.StyleIssues = grounding.ComputeStyleIssues(state.EditedContent)

		stage := "draft"
		if state.Iteration > 0 {
			stage = "revision"
		}
		state.appendHistory(stage)

		gates := s.evaluate(state)
		if gates.VoiceOK && gates.FactOK && gates.CohesionOK && gates.CitationsOK && gates.StyleOK {
			logger.Info("chapter passed review", "iteration", state.Iteration)
			break
		}
		if reason, over := state.overBudget(s.bounds); over {
			logger.Warn("chapter loop hit budget, finalizing best effort",
				"cap", reason,
				"iteration", state.Iteration,
				"tokens", state.TokensUsed,
				"cost_usd", state.CostUSD)
			break
		}

		state.Iteration++
		logger.Info("revising chapter",
			"iteration", state.Iteration,
			"voice", state.VoiceScore,
			"fact", state.FactScore,
			"citations_ok", gates.CitationsOK,
			"style_issues", len(state.StyleIssues))

		revised, out, err := s.drafter.Revise(ctx, s.draftInput(in), agents.RevisionNotes{
			CurrentDraft: state.EditedContent,
			Feedback:     append(state.allFeedback(), citationFeedback(state.CitationReport)...),
			StyleIssues:  state.StyleIssues,
			QuoteBank:    grounding.BuildQuoteBank(sources, state.EditedContent, quoteBankSize),
			Iteration:    state.Iteration,
		})
		state.observe(out)
		if err != nil {
			return state, fmt.Errorf("chapter %d revision %d failed: %w", in.Chapter.Number, state.Iteration, err)
		}
		state.EditedContent = revised
	}

	s.finalize(state, sources)
	logger.Info("chapter finalized",
		"passed", state.QualityGatesPassed,
		"words", len(strings.Fields(state.ContentClean)),
		"iterations", state.Iteration,
		"tokens", state.TokensUsed,
		"cost_usd", state.CostUSD)
	return state, nil
}

func (s *Subgraph) draftInput(in Input) agents.DraftInput {
	return agents.DraftInput{
		Chapter:       in.Chapter,
		SourceContext: in.SourceContext,
		Canon:         in.Canon,
		VoiceGuidance: voice.Guidance(in.VoiceProfile),
		TargetWords:   in.TargetWords,
	}
}

// voiceEdit compares the chapter against the author's writing samples and
// only spends an editor call when the similarity is below threshold. Without
// samples there is no voice to match and the gate passes trivially.
func (s *Subgraph) voiceEdit(ctx context.Context, state *State, in Input) error {
	ref := referenceText(in.WritingSamples)
	if ref == "" {
		state.VoiceScore = 1.0
		state.VoiceFeedback = nil
		return nil
	}
	if s.comparator == nil {
		if s.flags.StrictMode {
			return fmt.Errorf("chapter %d: voice comparison unavailable", in.Chapter.Number)
		}
		s.logger.Warn("voice comparator missing, skipping voice gate")
		state.VoiceScore = 1.0
		return nil
	}

	weight, threshold := s.voiceKnobs(in.VoiceProfile)
	pre := s.comparator.Compare(ctx, ref, state.EditedContent, weight, threshold)
	if pre.PassesThreshold {
		state.VoiceScore = pre.Overall
		state.VoiceFeedback = nil
		return nil
	}

	edited, out, err := s.editor.Edit(ctx, agents.EditInput{
		Content:        state.EditedContent,
		Profile:        in.VoiceProfile,
		WritingSamples: in.WritingSamples,
	})
	state.observe(out)
	if err != nil {
		return fmt.Errorf("chapter %d voice edit failed: %w", in.Chapter.Number, err)
	}
	state.EditedContent = edited

	post := s.comparator.Compare(ctx, ref, edited, weight, threshold)
	state.VoiceScore = post.Overall
	if post.PassesThreshold {
		state.VoiceFeedback = nil
		return nil
	}
	state.VoiceFeedback = []string{fmt.Sprintf(
		"Voice similarity %.2f is below the %.2f threshold. Match the author's sentence length, vocabulary, and transitions more closely.",
		post.Overall, threshold)}
	return nil
}

func (s *Subgraph) voiceKnobs(profile *book.VoiceProfile) (weight, threshold float64) {
	weight = voice.DefaultEmbeddingWeight
	threshold = s.quality.VoiceThreshold
	if profile != nil {
		if profile.EmbeddingWeight > 0 {
			weight = profile.EmbeddingWeight
		}
		if profile.SimilarityThreshold > 0 {
			threshold = profile.SimilarityThreshold
		}
	}
	return weight, threshold
}

// factCheck runs the model fact check and the deterministic citation
// verification. The deterministic report is authoritative for the gate; the
// model's claim mappings are kept for canon, with each quote re-verified.
func (s *Subgraph) factCheck(ctx context.Context, state *State, in Input, sources []grounding.Source) error {
	report, out, err := s.checker.Check(ctx, state.EditedContent, in.SourceContext)
	state.observe(out)
	if err != nil {
		return fmt.Errorf("chapter %d fact check failed: %w", in.Chapter.Number, err)
	}

	state.FactScore = report.AccuracyScore
	state.CitationReport = grounding.VerifyInlineCitations(state.EditedContent, sources)
	state.ClaimMappings = verifyClaims(report.ClaimMappings, sources)
	state.FactFeedback = factFeedback(report, s.quality.FactThreshold)
	return nil
}

func (s *Subgraph) cohesionCheck(ctx context.Context, state *State, in Input) error {
	report, out, err := s.analyst.Analyze(ctx, state.EditedContent, in.PreviousSummaries, in.OutlineContext)
	state.observe(out)
	if err != nil {
		return fmt.Errorf("chapter %d cohesion check failed: %w", in.Chapter.Number, err)
	}
	state.CohesionScore = report.CohesionScore
	state.CohesionFeedback = report.Issues
	return nil
}

// evaluate scores the revision-loop gates. Fact and cohesion participate
// here but not in the final gate.
func (s *Subgraph) evaluate(state *State) *book.GateReport {
	return &book.GateReport{
		VoiceOK:     state.VoiceScore >= s.quality.VoiceThreshold,
		FactOK:      state.FactScore >= s.quality.FactThreshold,
		CohesionOK:  state.CohesionScore >= s.quality.CohesionThreshold,
		CitationsOK: state.CitationReport.CitationsOK(),
		StyleOK:     len(state.StyleIssues) == 0,
		StyleIssues: state.StyleIssues,
	}
}

// finalize sanitizes the surviving content, reruns verification on the final
// text, and evaluates the publication gate: voice, citations, and style.
// Fact score stays advisory; it already drove the revision loop.
func (s *Subgraph) finalize(state *State, sources []grounding.Source) {
	content := grounding.Sanitize(state.EditedContent, s.flags.DestructiveSanitizer)
	state.FinalContent = content
	state.CitationReport = grounding.VerifyInlineCitations(content, sources)
	state.StyleIssues = grounding.ComputeStyleIssues(content)
	state.ContentClean = grounding.StripMarkers(content)
	state.Citations = grounding.CitationIndex(state.ContentClean, state.CitationReport)

	gates := s.evaluate(state)
	state.GateReport = gates
	state.QualityGatesPassed = gates.VoiceOK && gates.CitationsOK && gates.StyleOK

	metrics.ObserveGate("voice", gates.VoiceOK)
	metrics.ObserveGate("fact", gates.FactOK)
	metrics.ObserveGate("cohesion", gates.CohesionOK)
	metrics.ObserveGate("citations", gates.CitationsOK)
	metrics.ObserveGate("style", gates.StyleOK)
	metrics.ChapterWordCount.Observe(float64(len(strings.Fields(state.ContentClean))))

	state.appendHistory("finalize")
}

// buildSources assembles the verification corpus, preferring full extracted
// texts over retrieved chunks: a verbatim quote can come from any part of a
// source document, not only the parts retrieval surfaced.
func buildSources(in Input) []grounding.Source {
	if len(in.SourceTexts) > 0 {
		names := make([]string, 0, len(in.SourceTexts))
		for name := range in.SourceTexts {
			names = append(names, name)
		}
		sort.Strings(names)

		sources := make([]grounding.Source, 0, len(names))
		for _, name := range names {
			sources = append(sources, grounding.Source{Filename: name, Text: in.SourceTexts[name]})
		}
		return sources
	}

	byFile := make(map[string]int)
	var sources []grounding.Source
	for _, m := range in.SourceChunks {
		if i, ok := byFile[m.Filename]; ok {
			sources[i].Text += "\n" + m.Content
			continue
		}
		byFile[m.Filename] = len(sources)
		sources = append(sources, grounding.Source{
			Filename:   m.Filename,
			Text:       m.Content,
			MaterialID: m.SourceMaterialID,
		})
	}
	return sources
}

// verifyClaims re-checks every model-reported quote deterministically. The
// model's own quote_verified claim is never trusted.
func verifyClaims(claims []book.ClaimMapping, sources []grounding.Source) []book.ClaimMapping {
	out := make([]book.ClaimMapping, len(claims))
	copy(out, claims)
	for i := range out {
		out[i].QuoteVerified = grounding.VerifyQuote(out[i].SourceFilename, out[i].Quote, sources)
		if !out[i].QuoteVerified {
			out[i].IsSupported = false
		}
	}
	return out
}

// factFeedback turns a fact report into actionable revision notes.
func factFeedback(report *agents.FactReport, threshold float64) []string {
	var fb []string
	if report.AccuracyScore < threshold && report.Summary != "" {
		fb = append(fb, fmt.Sprintf("Fact accuracy %.2f (target %.2f): %s", report.AccuracyScore, threshold, report.Summary))
	}
	for _, claim := range report.UnsupportedClaims {
		fb = append(fb, fmt.Sprintf("Unsupported claim, remove it or cite a verbatim source quote: %s", claim))
	}
	for _, c := range report.LowConfidenceCitations {
		fb = append(fb, fmt.Sprintf("Low-confidence citation, tighten the quote or drop the claim: %s", c))
	}
	return fb
}

// citationFeedback turns deterministic verification failures into revision
// notes naming the exact markers at fault.
func citationFeedback(report *book.CitationReport) []string {
	if report == nil || report.CitationsOK() {
		return nil
	}
	var fb []string
	if report.InlineTotal == 0 {
		return []string{"The chapter has no citation markers. Every factual claim needs [citation: filename - \"verbatim quote\"]."}
	}
	if report.InlineInvalidFormat > 0 {
		fb = append(fb, fmt.Sprintf("%d citation markers are malformed. The exact form is [citation: filename - \"verbatim quote\"].", report.InlineInvalidFormat))
	}
	shown := 0
	for _, c := range report.Citations {
		if c.Verified {
			continue
		}
		fb = append(fb, fmt.Sprintf("Citation quote not found in %s: %q. Quote the source verbatim or remove the claim.", c.Filename, truncate(c.Quote, 80)))
		shown++
		if shown >= 5 {
			remaining := report.InlineUnverified - shown
			if remaining > 0 {
				fb = append(fb, fmt.Sprintf("%d more citations failed verification.", remaining))
			}
			break
		}
	}
	return fb
}

// referenceText joins writing samples into one comparison reference.
func referenceText(samples []string) string {
	joined := strings.TrimSpace(strings.Join(samples, "\n\n"))
	if len(joined) > referenceTextLimit {
		joined = joined[:referenceTextLimit]
	}
	return joined
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
