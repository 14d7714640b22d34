package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ghostline-ai/ghostline/internal/agents"
	"github.com/ghostline-ai/ghostline/internal/chapter"
	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/ledger"
	"github.com/ghostline-ai/ghostline/internal/llm"
	"github.com/ghostline-ai/ghostline/internal/outline"
	"github.com/ghostline-ai/ghostline/internal/prompts"
	"github.com/ghostline-ai/ghostline/internal/providers"
	"github.com/ghostline-ai/ghostline/internal/retrieval"
	"github.com/ghostline-ai/ghostline/internal/safety"
	"github.com/ghostline-ai/ghostline/internal/store"
	"github.com/ghostline-ai/ghostline/internal/voice"
)

const sleepText = "Consistent sleep and wake times anchor the circadian rhythm. Short naps before mid-afternoon do not disturb it."

const outlineReply = `{
  "title": "The Sleep Ledger",
  "premise": "Better nights are built from steady habits.",
  "chapters": [
    {"number": 1, "title": "Anchors", "summary": "Why steady schedules come first."},
    {"number": 2, "title": "Naps", "summary": "Using short naps without paying for them."}
  ]
}`

const approveReply = `{"approved": true, "feedback": []}`

// chapterDraft passes every deterministic gate against sleepText.
const chapterDraft = `## Getting Started

Sleep matters more than most people admit. As the guide puts it, "consistent sleep and wake times anchor the circadian rhythm" [citation: sleep.md - "consistent sleep and wake times anchor the circadian rhythm"] and everything else follows from that anchor holding steady.`

// fabricatedDraft cites a quote that is not in the source, so the citation
// gate fails while everything else passes.
const fabricatedDraft = `## Getting Started

Sleep matters more than most people admit. As the guide puts it, "sleep is the only medicine that matters" [citation: sleep.md - "sleep is the only medicine that matters"] and the rest of the chapter builds on that single idea.`

const factReply = "```json\n" + `{
  "accuracy_score": 0.95,
  "summary": "Claims are grounded.",
  "claim_mappings": [
    {"claim": "Steady schedules anchor the rhythm.", "source_filename": "sleep.md", "quote": "consistent sleep and wake times anchor the circadian rhythm", "quote_verified": true, "is_supported": true, "confidence": 0.9}
  ]
}` + "\n```"

const cohesionReply = "```json\n" + `{"cohesion_score": 0.9, "issues": [], "summary": "Flows well."}` + "\n```"

// fullScript replays a complete two-chapter run: plan, approve, then
// draft/fact/cohesion for each chapter.
func fullScript() []string {
	return []string{
		outlineReply, approveReply,
		chapterDraft, factReply, cohesionReply,
		chapterDraft, factReply, cohesionReply,
	}
}

type testEnv struct {
	orch       *Orchestrator
	store      *store.Store
	saver      *MemorySaver
	mock       *providers.MockClient
	projectID  string
	materialID string
}

// newTestEnv seeds a project with one source document and wires an
// orchestrator whose "anthropic" provider replays script.
func newTestEnv(t *testing.T, flags config.Flags, chapterBounds config.BoundsCfg, script ...string) *testEnv {
	t.Helper()
	st, err := store.OpenMemory(nil)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	project := &store.Project{
		UserID:      "u1",
		Title:       "The Sleep Ledger",
		Description: "A short field guide to sleeping on a schedule.",
	}
	if err := st.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	material := &store.SourceMaterial{
		ProjectID:     project.ID,
		Filename:      "sleep.md",
		DocumentType:  "md",
		ExtractedText: sleepText,
		WordCount:     len(strings.Fields(sleepText)),
	}
	if err := st.CreateSourceMaterial(ctx, material); err != nil {
		t.Fatalf("CreateSourceMaterial() error = %v", err)
	}
	err = st.InsertChunks(ctx, []store.Chunk{{
		ProjectID:        project.ID,
		SourceMaterialID: material.ID,
		Filename:         "sleep.md",
		Content:          sleepText,
		ChunkIndex:       0,
		WordCount:        len(strings.Fields(sleepText)),
	}})
	if err != nil {
		t.Fatalf("InsertChunks() error = %v", err)
	}

	mock := providers.NewMockClient()
	mock.Latency = 0
	mock.Script = script

	reg := providers.NewRegistry()
	reg.Register("anthropic", mock)

	cfg := config.DefaultConfig()
	cfg.Outline = config.BoundsCfg{MaxTurns: 3}
	cfg.Chapter = chapterBounds

	led := ledger.New(st, nil)
	client := llm.New(reg, led, cfg, flags, nil)
	resolver := prompts.NewResolver("", nil)

	outlineSub := outline.New(
		agents.NewOutlinePlanner(client, resolver, flags, nil),
		agents.NewOutlineCritic(client, resolver, flags, nil),
		cfg.Outline, nil,
	)
	chapterSub := chapter.New(
		agents.NewContentDrafter(client, resolver, flags, nil),
		agents.NewVoiceEditor(client, resolver, flags, nil),
		agents.NewFactChecker(client, resolver, flags, nil),
		agents.NewCohesionAnalyst(client, resolver, flags, nil),
		voice.NewComparator(nil, nil),
		cfg.Chapter, cfg.Quality, flags, nil,
	)

	saver := NewMemorySaver()
	orch, err := New(Deps{
		Store:     st,
		Saver:     saver,
		Retriever: retrieval.New(st, nil, cfg.Retrieval, flags, nil),
		Ledger:    led,
		Outline:   outlineSub,
		Chapter:   chapterSub,
		Screener:  safety.NewScreener(flags),
		Config:    cfg,
		Flags:     flags,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{
		orch:       orch,
		store:      st,
		saver:      saver,
		mock:       mock,
		projectID:  project.ID,
		materialID: material.ID,
	}
}

func (e *testEnv) start(t *testing.T, chapters int) *State {
	t.Helper()
	state, err := e.orch.Start(context.Background(), StartRequest{
		ProjectID:         e.projectID,
		SourceMaterialIDs: []string{e.materialID},
		TargetChapters:    chapters,
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return state
}

func TestStartPausesForOutlineReview(t *testing.T) {
	env := newTestEnv(t, config.Flags{}, config.BoundsCfg{MaxTurns: 3},
		outlineReply, approveReply)

	state := env.start(t, 2)

	if state.Phase != PhaseOutlineReview {
		t.Errorf("Phase = %q, want %q", state.Phase, PhaseOutlineReview)
	}
	if state.Progress != 30 {
		t.Errorf("Progress = %d, want 30", state.Progress)
	}
	if state.PendingUserAction != ActionApproveOutline {
		t.Errorf("PendingUserAction = %q, want %q", state.PendingUserAction, ActionApproveOutline)
	}
	if !state.Paused() || state.Done() {
		t.Errorf("Paused() = %v, Done() = %v, want paused and not done", state.Paused(), state.Done())
	}
	if state.Outline == nil || len(state.Outline.Chapters) != 2 {
		t.Fatalf("Outline = %+v, want 2 chapters", state.Outline)
	}
	if len(state.SourceSummaries) != 1 || !strings.Contains(state.SourceSummaries[0], "sleep.md") {
		t.Errorf("SourceSummaries = %v, want one entry naming sleep.md", state.SourceSummaries)
	}
	// Planner and critic only; no chapter drafting before approval.
	if got := env.mock.RequestCount(); got != 2 {
		t.Errorf("RequestCount() = %d, want 2", got)
	}
	// One checkpoint per transition: create, ingest, embed, outline, approval.
	if got := env.saver.Count(state.WorkflowID); got != 5 {
		t.Errorf("checkpoint count = %d, want 5", got)
	}

	loaded, err := env.orch.GetState(context.Background(), state.WorkflowID)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if loaded.Phase != PhaseOutlineReview || loaded.Progress != 30 {
		t.Errorf("reloaded state = %q/%d, want outline_review/30", loaded.Phase, loaded.Progress)
	}
}

func TestResumeApprovalRunsToCompletion(t *testing.T) {
	env := newTestEnv(t, config.Flags{}, config.BoundsCfg{MaxTurns: 3}, fullScript()...)
	ctx := context.Background()

	started := env.start(t, 2)
	final, err := env.orch.Resume(ctx, started.WorkflowID, ResumeInput{ApproveOutline: true})
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	if final.Phase != PhaseCompleted || final.Progress != 100 || !final.Done() {
		t.Fatalf("final state = %s/%d done=%v, want completed/100/true; error=%q warnings=%v",
			final.Phase, final.Progress, final.Done(), final.Error, final.Warnings)
	}
	if len(final.Chapters) != 2 {
		t.Fatalf("Chapters = %d, want 2", len(final.Chapters))
	}
	for i, ch := range final.Chapters {
		if ch.Number != i+1 {
			t.Errorf("Chapters[%d].Number = %d, want %d", i, ch.Number, i+1)
		}
		if ch.ContentClean == "" || ch.WordCount == 0 {
			t.Errorf("chapter %d empty: words=%d", ch.Number, ch.WordCount)
		}
		if !ch.QualityGatesPassed {
			t.Errorf("chapter %d failed gates: %+v", ch.Number, ch.QualityGateReport)
		}
		if strings.Contains(ch.ContentClean, "[citation:") {
			t.Errorf("chapter %d clean content still has markers", ch.Number)
		}
	}
	if final.TotalTokens == 0 {
		t.Error("TotalTokens = 0, want accounting from the run's calls")
	}
	if !final.SafetyPassed {
		t.Errorf("SafetyPassed = false, findings %v", final.SafetyFindings)
	}
	if len(final.ChapterSummaries) != 2 || len(final.ChapterCanon) != 2 {
		t.Errorf("summaries/canon = %d/%d, want 2/2", len(final.ChapterSummaries), len(final.ChapterCanon))
	}
	if got := final.ChapterCanon[0].GroundedCommitments; len(got) != 1 {
		t.Errorf("ChapterCanon[0].GroundedCommitments = %v, want the one verified claim", got)
	}
	if got := env.mock.RequestCount(); got != 8 {
		t.Errorf("RequestCount() = %d, want 8", got)
	}

	persisted, err := env.store.ChaptersByWorkflow(ctx, final.WorkflowID)
	if err != nil {
		t.Fatalf("ChaptersByWorkflow() error = %v", err)
	}
	if len(persisted) != 2 {
		t.Errorf("persisted chapters = %d, want 2", len(persisted))
	}
	rec, err := env.store.LatestOutline(ctx, env.projectID)
	if err != nil {
		t.Fatalf("LatestOutline() error = %v", err)
	}
	if !rec.Approved {
		t.Error("outline record not marked approved")
	}
}

func TestResumeIsIdempotentAfterCompletion(t *testing.T) {
	env := newTestEnv(t, config.Flags{}, config.BoundsCfg{MaxTurns: 3}, fullScript()...)
	ctx := context.Background()

	started := env.start(t, 2)
	if _, err := env.orch.Resume(ctx, started.WorkflowID, ResumeInput{ApproveOutline: true}); err != nil {
		t.Fatalf("first Resume() error = %v", err)
	}
	calls := env.mock.RequestCount()

	again, err := env.orch.Resume(ctx, started.WorkflowID, ResumeInput{ApproveOutline: true})
	if err != nil {
		t.Fatalf("second Resume() error = %v", err)
	}
	if again.Phase != PhaseCompleted || len(again.Chapters) != 2 {
		t.Errorf("second resume state = %s with %d chapters, want completed with 2", again.Phase, len(again.Chapters))
	}
	if got := env.mock.RequestCount(); got != calls {
		t.Errorf("RequestCount() after no-op resume = %d, want %d", got, calls)
	}
}

func TestResumeFeedbackWithoutApprovalStaysPaused(t *testing.T) {
	env := newTestEnv(t, config.Flags{}, config.BoundsCfg{MaxTurns: 3},
		outlineReply, approveReply)
	ctx := context.Background()

	started := env.start(t, 2)
	state, err := env.orch.Resume(ctx, started.WorkflowID, ResumeInput{Feedback: "Tighten the nap chapter."})
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	if !state.Paused() || state.Phase != PhaseOutlineReview {
		t.Errorf("state = %s paused=%v, want still parked in outline_review", state.Phase, state.Paused())
	}
	if len(state.UserFeedback) != 1 || state.UserFeedback[0] != "Tighten the nap chapter." {
		t.Errorf("UserFeedback = %v, want the recorded note", state.UserFeedback)
	}
	if got := env.mock.RequestCount(); got != 2 {
		t.Errorf("RequestCount() = %d, want 2 (no drafting without approval)", got)
	}
}

func TestCancelledResumeLeavesCheckpointAndRecovers(t *testing.T) {
	env := newTestEnv(t, config.Flags{}, config.BoundsCfg{MaxTurns: 3}, fullScript()...)
	ctx := context.Background()

	started := env.start(t, 2)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := env.orch.Resume(cancelled, started.WorkflowID, ResumeInput{ApproveOutline: true})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Resume() with cancelled context error = %v, want ErrCancelled", err)
	}
	if got := env.mock.RequestCount(); got != 2 {
		t.Errorf("RequestCount() after cancelled resume = %d, want 2 (no node ran)", got)
	}

	// The approval was checkpointed before cancellation, so a plain resume
	// carries on from wait_for_approval.
	final, err := env.orch.Resume(ctx, started.WorkflowID, ResumeInput{})
	if err != nil {
		t.Fatalf("recovery Resume() error = %v", err)
	}
	if final.Phase != PhaseCompleted || len(final.Chapters) != 2 {
		t.Errorf("recovered state = %s with %d chapters, want completed with 2", final.Phase, len(final.Chapters))
	}
}

func TestStrictModeFailsRunWhenGatesFail(t *testing.T) {
	flags := config.Flags{StrictMode: true}
	// MaxTurns 1 permits a single revision before best-effort finalize.
	env := newTestEnv(t, flags, config.BoundsCfg{MaxTurns: 1},
		outlineReply, approveReply,
		fabricatedDraft, factReply, cohesionReply,
		fabricatedDraft, factReply, cohesionReply,
	)
	ctx := context.Background()

	started := env.start(t, 1)
	state, err := env.orch.Resume(ctx, started.WorkflowID, ResumeInput{ApproveOutline: true})
	if !errors.Is(err, chapter.ErrGateFailed) {
		t.Fatalf("Resume() error = %v, want chapter.ErrGateFailed", err)
	}
	if state.Phase != PhaseFailed || state.Error == "" {
		t.Errorf("state = %s error=%q, want failed with recorded error", state.Phase, state.Error)
	}

	// The failed chapter is still persisted for triage.
	loaded, gerr := env.orch.GetState(ctx, started.WorkflowID)
	if gerr != nil {
		t.Fatalf("GetState() error = %v", gerr)
	}
	if len(loaded.Chapters) != 1 || loaded.Chapters[0].QualityGatesPassed {
		t.Errorf("checkpointed chapters = %+v, want one failed chapter", loaded.Chapters)
	}
}

func TestResumeUnknownWorkflow(t *testing.T) {
	env := newTestEnv(t, config.Flags{}, config.BoundsCfg{MaxTurns: 3})

	_, err := env.orch.Resume(context.Background(), "w-missing", ResumeInput{ApproveOutline: true})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Resume() error = %v, want store.ErrNotFound", err)
	}
}

func TestStartUnknownProject(t *testing.T) {
	env := newTestEnv(t, config.Flags{}, config.BoundsCfg{MaxTurns: 3})

	_, err := env.orch.Start(context.Background(), StartRequest{ProjectID: "p-missing"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Start() error = %v, want store.ErrNotFound", err)
	}
}

func TestChapterProgress(t *testing.T) {
	tests := []struct {
		cur, total, want int
	}{
		{1, 3, 50},
		{2, 3, 70},
		{3, 3, 90},
		{1, 2, 60},
		{2, 2, 90},
		{1, 1, 90},
	}
	for _, tt := range tests {
		if got := chapterProgress(tt.cur, tt.total); got != tt.want {
			t.Errorf("chapterProgress(%d, %d) = %d, want %d", tt.cur, tt.total, got, tt.want)
		}
	}
}
