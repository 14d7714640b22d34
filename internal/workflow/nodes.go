package workflow

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ghostline-ai/ghostline/internal/book"
	"github.com/ghostline-ai/ghostline/internal/chapter"
	"github.com/ghostline-ai/ghostline/internal/outline"
	"github.com/ghostline-ai/ghostline/internal/store"
	"github.com/ghostline-ai/ghostline/internal/voice"
)

// step executes the node named by state.Node and returns the next node, or
// "" when the machine is finished.
func (o *Orchestrator) step(ctx context.Context, state *State) (string, error) {
	switch state.Node {
	case nodeIngest:
		return o.ingest(ctx, state)
	case nodeEmbed:
		return o.embed(ctx, state)
	case nodeGenerateOutline:
		return o.generateOutline(ctx, state)
	case nodeRequestApproval:
		return o.requestApproval(state)
	case nodeWaitForApproval:
		return o.waitForApproval(ctx, state)
	case nodeDraftChapter:
		return o.draftChapter(ctx, state)
	case nodeSafetyCheck:
		return o.safetyCheck(state)
	case nodeFinalize:
		return o.finalize(ctx, state)
	case nodeComplete:
		return o.complete(state)
	default:
		return "", fmt.Errorf("workflow %s: unknown node %q", state.WorkflowID, state.Node)
	}
}

// ingest loads the run's source materials, summarizes them for the outline
// planner, and builds the author voice profile from any writing samples.
func (o *Orchestrator) ingest(ctx context.Context, state *State) (string, error) {
	state.Phase = PhaseIngesting
	state.Progress = progressIngest

	materials, err := o.store.GetSourceMaterials(ctx, state.SourceMaterialIDs)
	if err != nil {
		return "", fmt.Errorf("load source materials: %w", err)
	}
	if len(materials) == 0 {
		materials, err = o.store.ListSourceMaterials(ctx, state.ProjectID)
		if err != nil {
			return "", fmt.Errorf("list source materials: %w", err)
		}
	}

	state.SourceSummaries = nil
	for i := range materials {
		if materials[i].IsWritingSample {
			continue
		}
		state.SourceSummaries = append(state.SourceSummaries, summarizeMaterial(&materials[i]))
	}
	if len(state.SourceSummaries) == 0 {
		o.logger.Warn("no source material to ground the book", "project_id", state.ProjectID)
		state.Warnings = append(state.Warnings, "no source material uploaded; drafting will be ungrounded")
	}

	if err := o.buildVoiceProfile(ctx, state); err != nil {
		// Voice profiling is best effort: a missing profile means the voice
		// gate passes trivially instead of blocking the run.
		o.logger.Warn("voice profile unavailable", "error", err)
		state.Warnings = append(state.Warnings, "voice profile unavailable: "+err.Error())
	}
	return nodeEmbed, nil
}

func (o *Orchestrator) buildVoiceProfile(ctx context.Context, state *State) error {
	samples, err := o.store.ListWritingSamples(ctx, state.ProjectID)
	if err != nil {
		return err
	}
	texts := make([]string, 0, len(samples))
	for i := range samples {
		if strings.TrimSpace(samples[i].ExtractedText) != "" {
			texts = append(texts, samples[i].ExtractedText)
		}
	}
	if len(texts) == 0 || o.voices == nil {
		// No samples this run; reuse a profile from an earlier one if the
		// project has it.
		if existing, err := o.store.GetVoiceProfile(ctx, state.ProjectID); err == nil {
			state.VoiceProfile = existing
		}
		return nil
	}

	profile, err := o.voices.BuildProfile(ctx, state.ProjectID, texts)
	if err != nil {
		return err
	}
	state.VoiceProfile = profile
	if err := o.store.SaveVoiceProfile(ctx, profile); err != nil {
		o.logger.Warn("persist voice profile", "error", err)
	}
	return nil
}

// embed backfills vectors for any chunks ingested without one. Embedding
// failures are recorded and skipped; retrieval falls back to keyword
// overlap when vectors are missing.
func (o *Orchestrator) embed(ctx context.Context, state *State) (string, error) {
	state.Phase = PhaseEmbedding
	state.Progress = progressEmbed

	if o.embedder == nil {
		return nodeGenerateOutline, nil
	}
	chunks, err := o.store.ListChunks(ctx, state.ProjectID)
	if err != nil {
		return "", fmt.Errorf("list chunks: %w", err)
	}
	var missing []store.Chunk
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 && strings.TrimSpace(chunks[i].Content) != "" {
			missing = append(missing, chunks[i])
		}
	}
	if len(missing) == 0 {
		return nodeGenerateOutline, nil
	}

	const batchSize = 64
	embedded := 0
	for low := 0; low < len(missing); low += batchSize {
		high := low + batchSize
		if high > len(missing) {
			high = len(missing)
		}
		batch := missing[low:high]
		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Content
		}
		vectors, err := o.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			o.logger.Warn("embedding backfill failed, retrieval will use keyword overlap", "error", err)
			state.Warnings = append(state.Warnings, "embedding unavailable: "+err.Error())
			return nodeGenerateOutline, nil
		}
		for i := range batch {
			if i >= len(vectors) {
				break
			}
			if err := o.store.UpdateChunkEmbedding(ctx, batch[i].ID, vectors[i]); err != nil {
				return "", fmt.Errorf("store chunk embedding: %w", err)
			}
			embedded++
		}
	}
	o.logger.Info("embedding backfill complete", "chunks", embedded, "engine", o.embedder.Name())
	return nodeGenerateOutline, nil
}

// generateOutline runs the outline subgraph and persists the result for
// review.
func (o *Orchestrator) generateOutline(ctx context.Context, state *State) (string, error) {
	state.Phase = PhaseOutlining
	state.Progress = progressOutline

	project, err := o.store.GetProject(ctx, state.ProjectID)
	if err != nil {
		return "", fmt.Errorf("load project: %w", err)
	}
	ost, err := o.outline.Run(ctx, outline.Input{
		Title:           project.Title,
		Description:     project.Description,
		SourceSummaries: state.SourceSummaries,
		TargetChapters:  state.TargetChapters,
		VoiceGuidance:   voice.Guidance(state.VoiceProfile),
	})
	if ost != nil {
		state.TotalTokens += ost.TokensUsed
		state.TotalCost += ost.CostUSD
	}
	if err != nil {
		return "", fmt.Errorf("outline generation: %w", err)
	}
	if ost.Outline == nil || len(ost.Outline.Chapters) == 0 {
		return "", fmt.Errorf("outline generation produced no chapters")
	}
	state.Outline = ost.Outline
	if got := len(ost.Outline.Chapters); got != state.TargetChapters {
		o.logger.Warn("outline chapter count differs from target", "got", got, "target", state.TargetChapters)
	}

	rec := &store.OutlineRecord{
		ProjectID:  state.ProjectID,
		WorkflowID: state.WorkflowID,
		Outline:    ost.Outline,
	}
	if err := o.store.SaveOutline(ctx, rec); err != nil {
		o.logger.Warn("persist outline", "error", err)
	} else {
		state.OutlineID = rec.ID
	}
	return nodeRequestApproval, nil
}

// requestApproval parks the run for human review of the outline.
func (o *Orchestrator) requestApproval(state *State) (string, error) {
	state.Phase = PhaseOutlineReview
	state.Progress = progressOutlineReview
	state.PendingUserAction = ActionApproveOutline
	return nodeWaitForApproval, nil
}

// waitForApproval consumes the approval recorded by Resume and opens the
// drafting loop. The run loop parks before this node while approval is
// outstanding, so reaching it unapproved is a bug.
func (o *Orchestrator) waitForApproval(ctx context.Context, state *State) (string, error) {
	if !state.OutlineApproved {
		return "", fmt.Errorf("workflow %s: outline not approved", state.WorkflowID)
	}
	state.PendingUserAction = ""
	if state.OutlineID != "" {
		if err := o.store.ApproveOutline(ctx, state.OutlineID); err != nil {
			o.logger.Warn("mark outline approved", "outline_id", state.OutlineID, "error", err)
		}
	}
	state.CurrentChapter = 1
	return nodeDraftChapter, nil
}

// draftChapter runs the chapter subgraph for the current chapter and
// advances to the next one, or to the safety check after the last. Partial
// output is kept even when the subgraph errors so a failed run still shows
// what it produced.
func (o *Orchestrator) draftChapter(ctx context.Context, state *State) (string, error) {
	state.Phase = PhaseDrafting
	if state.Outline == nil || len(state.Outline.Chapters) == 0 {
		return "", fmt.Errorf("workflow %s: no outline to draft from", state.WorkflowID)
	}
	cur := state.CurrentChapter
	total := len(state.Outline.Chapters)
	if cur < 1 || cur > total {
		return "", fmt.Errorf("chapter %d outside outline range 1..%d", cur, total)
	}
	outlineCh := state.Outline.Chapters[cur-1]
	logger := o.logger.With("workflow_id", state.WorkflowID, "chapter", cur)
	logger.Info("drafting chapter", "title", outlineCh.Title)

	in, err := o.chapterInput(ctx, state, outlineCh)
	if err != nil {
		return "", err
	}

	st, runErr := o.chapter.Run(ctx, in)
	if st != nil {
		state.TotalTokens += st.TokensUsed
		state.TotalCost += st.CostUSD

		ch := st.Chapter()
		state.upsertChapter(ch)
		if serr := o.store.SaveChapter(ctx, state.ProjectID, state.WorkflowID, ch); serr != nil {
			logger.Warn("persist chapter", "error", serr)
		}
		state.ChapterSummaries = setAt(state.ChapterSummaries, cur-1, chapterSummary(outlineCh, ch))
		state.ChapterCanon = upsertCanon(state.ChapterCanon, buildCanon(outlineCh, st))
	}

	switch {
	case runErr != nil:
		if o.flags.StrictMode {
			return "", fmt.Errorf("chapter %d (%q): %w", cur, outlineCh.Title, runErr)
		}
		logger.Warn("chapter draft errored, keeping partial content", "error", runErr)
		state.Warnings = append(state.Warnings, fmt.Sprintf("chapter %d: %v", cur, runErr))
	case st != nil && !st.QualityGatesPassed:
		if o.flags.StrictMode {
			return "", fmt.Errorf("chapter %d (%q): %w", cur, outlineCh.Title, chapter.ErrGateFailed)
		}
		logger.Warn("chapter failed quality gates",
			"voice_score", st.VoiceScore,
			"fact_score", st.FactScore,
			"style_issues", len(st.StyleIssues),
		)
		state.Warnings = append(state.Warnings, fmt.Sprintf("chapter %d failed quality gates", cur))
	}

	state.Progress = chapterProgress(cur, total)
	if cur < total {
		state.CurrentChapter = cur + 1
		return nodeDraftChapter, nil
	}
	return nodeSafetyCheck, nil
}

// chapterInput assembles everything one chapter run needs: retrieved
// source context, full source texts for citation verification, the rolling
// canon window, and the author voice.
func (o *Orchestrator) chapterInput(ctx context.Context, state *State, outlineCh book.OutlineChapter) (chapter.Input, error) {
	project, err := o.store.GetProject(ctx, state.ProjectID)
	if err != nil {
		return chapter.Input{}, fmt.Errorf("load project: %w", err)
	}

	in := chapter.Input{
		ProjectID:         state.ProjectID,
		WorkflowID:        state.WorkflowID,
		Chapter:           outlineCh,
		Canon:             lastCanon(state.ChapterCanon, o.cfg.Retrieval.CanonWindow),
		PreviousSummaries: state.ChapterSummaries,
		OutlineContext:    outlineContext(state.Outline, outlineCh.Number),
		VoiceProfile:      state.VoiceProfile,
		TargetWords:       state.TargetWordsPerChapter,
	}

	if o.retriever != nil {
		query := retrievalQuery(project, outlineCh)
		res, err := o.retriever.Retrieve(ctx, state.ProjectID, query)
		if err != nil {
			if o.flags.StrictMode {
				return chapter.Input{}, fmt.Errorf("retrieve sources for chapter %d: %w", outlineCh.Number, err)
			}
			o.logger.Warn("retrieval failed, drafting without source context",
				"chapter", outlineCh.Number, "error", err)
		} else {
			in.SourceChunks = res.Chunks
			in.SourceContext = res.BuildContext(o.cfg.Retrieval.ContextTokens, true)
		}
	}

	texts, err := o.store.SourceTextsByFilename(ctx, state.ProjectID)
	if err != nil {
		o.logger.Warn("source texts unavailable, verifying citations against chunks only", "error", err)
	} else {
		in.SourceTexts = texts
	}

	samples, err := o.store.ListWritingSamples(ctx, state.ProjectID)
	if err == nil {
		for i := range samples {
			if strings.TrimSpace(samples[i].ExtractedText) != "" {
				in.WritingSamples = append(in.WritingSamples, samples[i].ExtractedText)
			}
		}
	}
	return in, nil
}

// safetyCheck screens the assembled manuscript. The screener is
// deterministic and cannot error; a missing screener passes the run with a
// note rather than blocking it.
func (o *Orchestrator) safetyCheck(state *State) (string, error) {
	state.Phase = PhaseSafetyCheck
	state.Progress = progressSafety

	if o.screener == nil {
		state.SafetyPassed = true
		return nodeFinalize, nil
	}
	var b strings.Builder
	for i := range state.Chapters {
		b.WriteString(state.Chapters[i].ContentClean)
		b.WriteString("\n\n")
	}
	res := o.screener.Screen(b.String())
	state.SafetyPassed = res.IsSafe
	state.SafetyFindings = res.Findings
	state.SuggestedDisclaimer = res.SuggestedDisclaimer

	if !res.IsSafe {
		o.logger.Warn("safety screening flagged the manuscript", "findings", len(res.Findings))
		if o.flags.StrictMode {
			return "", fmt.Errorf("safety screening found %d blocking findings", len(res.Findings))
		}
		state.Warnings = append(state.Warnings, fmt.Sprintf("safety screening flagged %d findings", len(res.Findings)))
	}
	return nodeFinalize, nil
}

// finalize reconciles the run's cost totals against the ledger, which is
// the billing authority, and stamps the project as updated.
func (o *Orchestrator) finalize(ctx context.Context, state *State) (string, error) {
	state.Phase = PhaseFinalizing
	state.Progress = progressFinalize

	if o.ledger != nil {
		sum, err := o.ledger.Summarize(ctx, store.CallFilter{WorkflowRunID: state.WorkflowID})
		switch {
		case err != nil:
			o.logger.Warn("ledger summary unavailable, keeping accumulated totals", "error", err)
		case sum.TotalCalls > 0:
			state.TotalTokens = sum.TotalTokens
			state.TotalCost = sum.TotalCostUSD
		}
	}
	if err := o.store.TouchProject(ctx, state.ProjectID); err != nil {
		o.logger.Warn("touch project", "error", err)
	}
	return nodeComplete, nil
}

// complete marks the run finished.
func (o *Orchestrator) complete(state *State) (string, error) {
	state.Phase = PhaseCompleted
	state.Progress = progressComplete
	state.PendingUserAction = ""
	o.logger.Info("workflow complete",
		"workflow_id", state.WorkflowID,
		"chapters", len(state.Chapters),
		"words", state.WordCount(),
		"tokens", state.TotalTokens,
		"cost_usd", state.TotalCost,
	)
	return "", nil
}

// chapterProgress maps chapter completion onto the 30..90 progress band.
func chapterProgress(cur, total int) int {
	if total <= 0 {
		return progressOutlineReview
	}
	return progressOutlineReview + int(math.Round(60*float64(cur)/float64(total)))
}

// retrievalQuery builds the search text for a chapter from the project
// framing and the chapter's own outline entry.
func retrievalQuery(project *store.Project, ch book.OutlineChapter) string {
	parts := make([]string, 0, 4+len(ch.KeyPoints))
	for _, p := range []string{project.Title, project.Description, ch.Title, ch.Summary} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	for _, p := range ch.KeyPoints {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// outlineContext renders the outline entries adjacent to a chapter so the
// cohesion analyst can see where it sits in the book.
func outlineContext(o *book.Outline, number int) string {
	if o == nil {
		return ""
	}
	var b strings.Builder
	for _, ch := range o.Chapters {
		if ch.Number < number-1 || ch.Number > number+1 {
			continue
		}
		marker := " "
		if ch.Number == number {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s Chapter %d: %s. %s\n", marker, ch.Number, ch.Title, ch.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

// summarizeMaterial condenses one source document for the outline planner.
func summarizeMaterial(m *store.SourceMaterial) string {
	const maxChars = 1200
	text := strings.Join(strings.Fields(m.ExtractedText), " ")
	if len(text) > maxChars {
		cut := strings.LastIndexByte(text[:maxChars], ' ')
		if cut <= 0 {
			cut = maxChars
		}
		text = text[:cut] + "..."
	}
	return fmt.Sprintf("%s (%d words): %s", m.Filename, m.WordCount, text)
}

// setAt writes v at idx, growing the slice as needed so chapter summaries
// stay positional under redrafts.
func setAt(list []string, idx int, v string) []string {
	for len(list) <= idx {
		list = append(list, "")
	}
	list[idx] = v
	return list
}
