package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

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
	"github.com/ghostline-ai/ghostline/internal/workflow"
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

const chapterDraft = `## Getting Started

Sleep matters more than most people admit. As the guide puts it, "consistent sleep and wake times anchor the circadian rhythm" [citation: sleep.md - "consistent sleep and wake times anchor the circadian rhythm"] and everything else follows from that anchor holding steady.`

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

type runnerEnv struct {
	runner    *Runner
	store     *store.Store
	mock      *providers.MockClient
	projectID string
}

// newRunnerEnv wires a runner over a seeded in-memory store whose
// "anthropic" provider replays script. ctx is the runner's base context.
func newRunnerEnv(t *testing.T, ctx context.Context, flags config.Flags, chapterBounds config.BoundsCfg, script ...string) *runnerEnv {
	t.Helper()
	st, err := store.OpenMemory(nil)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	seed := context.Background()
	project := &store.Project{
		UserID:      "u1",
		Title:       "The Sleep Ledger",
		Description: "A short field guide to sleeping on a schedule.",
	}
	if err := st.CreateProject(seed, project); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	material := &store.SourceMaterial{
		ProjectID:     project.ID,
		Filename:      "sleep.md",
		DocumentType:  "md",
		ExtractedText: sleepText,
		WordCount:     len(strings.Fields(sleepText)),
	}
	if err := st.CreateSourceMaterial(seed, material); err != nil {
		t.Fatalf("CreateSourceMaterial() error = %v", err)
	}
	err = st.InsertChunks(seed, []store.Chunk{{
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

	orch, err := workflow.New(workflow.Deps{
		Store:     st,
		Saver:     workflow.NewMemorySaver(),
		Retriever: retrieval.New(st, nil, cfg.Retrieval, flags, nil),
		Ledger:    led,
		Outline: outline.New(
			agents.NewOutlinePlanner(client, resolver, flags, nil),
			agents.NewOutlineCritic(client, resolver, flags, nil),
			cfg.Outline, nil,
		),
		Chapter: chapter.New(
			agents.NewContentDrafter(client, resolver, flags, nil),
			agents.NewVoiceEditor(client, resolver, flags, nil),
			agents.NewFactChecker(client, resolver, flags, nil),
			agents.NewCohesionAnalyst(client, resolver, flags, nil),
			voice.NewComparator(nil, nil),
			cfg.Chapter, cfg.Quality, flags, nil,
		),
		Screener: safety.NewScreener(flags),
		Config:   cfg,
		Flags:    flags,
	})
	if err != nil {
		t.Fatalf("workflow.New() error = %v", err)
	}

	runner := New(ctx, Deps{Store: st, Orch: orch, Config: cfg})
	t.Cleanup(func() { runner.Close() })
	return &runnerEnv{runner: runner, store: st, mock: mock, projectID: project.ID}
}

// submitAndWait runs one task to its first settled state.
func (e *runnerEnv) submitAndWait(t *testing.T, chapters int) (string, *workflow.State, error) {
	t.Helper()
	ctx := context.Background()
	taskID, err := e.runner.Submit(ctx, &TaskRequest{
		ProjectID:      e.projectID,
		TargetChapters: chapters,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	st, werr := e.runner.Wait(waitCtx, taskID)
	return taskID, st, werr
}

func TestSubmitPausesForOutlineReview(t *testing.T) {
	env := newRunnerEnv(t, context.Background(), config.Flags{}, config.BoundsCfg{MaxTurns: 3},
		outlineReply, approveReply)

	taskID, state, err := env.submitAndWait(t, 2)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !state.Paused() || state.PendingUserAction != workflow.ActionApproveOutline {
		t.Fatalf("state = %s pending=%q, want paused awaiting approval", state.Phase, state.PendingUserAction)
	}

	task, err := env.store.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.Status != store.TaskPaused {
		t.Errorf("Status = %q, want %q", task.Status, store.TaskPaused)
	}
	if task.Progress != 30 || task.CurrentStep != workflow.PhaseOutlineReview {
		t.Errorf("row = %d/%q, want 30/outline_review", task.Progress, task.CurrentStep)
	}
	if task.WorkflowID != state.WorkflowID {
		t.Errorf("WorkflowID = %q, want %q", task.WorkflowID, state.WorkflowID)
	}
	if task.StartedAt == nil {
		t.Error("StartedAt = nil, want stamped when the worker picked it up")
	}
	if task.CompletedAt != nil {
		t.Error("CompletedAt set on a paused task")
	}

	var out Output
	if err := json.Unmarshal(task.Output, &out); err != nil {
		t.Fatalf("Output unmarshal error = %v (raw %s)", err, task.Output)
	}
	if out.WorkflowRunID != state.WorkflowID || out.PendingUserAction != workflow.ActionApproveOutline {
		t.Errorf("Output = %+v, want run id and pending action recorded", out)
	}
}

func TestResumeCompletesTask(t *testing.T) {
	env := newRunnerEnv(t, context.Background(), config.Flags{}, config.BoundsCfg{MaxTurns: 3},
		outlineReply, approveReply,
		chapterDraft, factReply, cohesionReply,
		chapterDraft, factReply, cohesionReply,
	)
	ctx := context.Background()

	taskID, _, err := env.submitAndWait(t, 2)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if err := env.runner.Resume(ctx, taskID, workflow.ResumeInput{ApproveOutline: true}); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	state, err := env.runner.Wait(waitCtx, taskID)
	if err != nil {
		t.Fatalf("Wait() after resume error = %v", err)
	}
	if !state.Done() {
		t.Fatalf("state = %s, want completed; error=%q", state.Phase, state.Error)
	}

	task, err := env.store.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.Status != store.TaskCompleted || task.Progress != 100 {
		t.Errorf("row = %q/%d, want completed/100", task.Status, task.Progress)
	}
	if task.CompletedAt == nil {
		t.Error("CompletedAt = nil, want stamped on completion")
	}

	var out Output
	if err := json.Unmarshal(task.Output, &out); err != nil {
		t.Fatalf("Output unmarshal error = %v", err)
	}
	if out.Chapters != 2 || out.Words == 0 || out.TotalTokens == 0 {
		t.Errorf("Output = %+v, want 2 chapters with word and token counts", out)
	}
	if out.PendingUserAction != "" {
		t.Errorf("PendingUserAction = %q, want cleared after completion", out.PendingUserAction)
	}
	if got := env.mock.RequestCount(); got != 8 {
		t.Errorf("RequestCount() = %d, want 8", got)
	}
}

func TestBaseContextCancelledMarksTaskCancelled(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	cancel()
	env := newRunnerEnv(t, base, config.Flags{}, config.BoundsCfg{MaxTurns: 3},
		outlineReply, approveReply)

	taskID, _, err := env.submitAndWait(t, 2)
	if !errors.Is(err, workflow.ErrCancelled) && !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want cancellation", err)
	}

	task, gerr := env.store.GetTask(context.Background(), taskID)
	if gerr != nil {
		t.Fatalf("GetTask() error = %v", gerr)
	}
	if task.Status != store.TaskCancelled {
		t.Errorf("Status = %q, want %q", task.Status, store.TaskCancelled)
	}
	if task.CompletedAt == nil {
		t.Error("CompletedAt = nil, want stamped on cancellation")
	}
	if got := env.mock.RequestCount(); got != 0 {
		t.Errorf("RequestCount() = %d, want 0 (no provider call under a dead context)", got)
	}
}

func TestStrictGateFailureMarksTaskFailed(t *testing.T) {
	env := newRunnerEnv(t, context.Background(), config.Flags{StrictMode: true}, config.BoundsCfg{MaxTurns: 1},
		outlineReply, approveReply,
		fabricatedDraft, factReply, cohesionReply,
		fabricatedDraft, factReply, cohesionReply,
	)
	ctx := context.Background()

	taskID, _, err := env.submitAndWait(t, 1)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if err := env.runner.Resume(ctx, taskID, workflow.ResumeInput{ApproveOutline: true}); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, werr := env.runner.Wait(waitCtx, taskID)
	if !errors.Is(werr, chapter.ErrGateFailed) {
		t.Fatalf("Wait() error = %v, want chapter.ErrGateFailed", werr)
	}

	task, gerr := env.store.GetTask(ctx, taskID)
	if gerr != nil {
		t.Fatalf("GetTask() error = %v", gerr)
	}
	if task.Status != store.TaskFailed {
		t.Errorf("Status = %q, want %q", task.Status, store.TaskFailed)
	}
	if task.ErrorMessage == "" || len(task.ErrorMessage) > 2048 {
		t.Errorf("ErrorMessage length = %d, want non-empty and capped", len(task.ErrorMessage))
	}
	if task.CurrentStep != workflow.PhaseFailed {
		t.Errorf("CurrentStep = %q, want %q", task.CurrentStep, workflow.PhaseFailed)
	}
}

func TestResumeGuards(t *testing.T) {
	env := newRunnerEnv(t, context.Background(), config.Flags{}, config.BoundsCfg{MaxTurns: 3})
	ctx := context.Background()

	if err := env.runner.Resume(ctx, "t-missing", workflow.ResumeInput{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Resume(unknown) error = %v, want store.ErrNotFound", err)
	}

	// A task that never produced a workflow has nothing to continue.
	orphan := &store.Task{ProjectID: env.projectID}
	if err := env.store.CreateTask(ctx, orphan); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	err := env.runner.Resume(ctx, orphan.ID, workflow.ResumeInput{})
	if err == nil || !strings.Contains(err.Error(), "no workflow") {
		t.Errorf("Resume(orphan) error = %v, want no-workflow refusal", err)
	}

	// Rows still marked running cannot be re-queued.
	busy := &store.Task{ProjectID: env.projectID}
	if err := env.store.CreateTask(ctx, busy); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	busy.WorkflowID = "wf-busy"
	busy.Status = store.TaskRunning
	if err := env.store.UpdateTask(ctx, busy); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	err = env.runner.Resume(ctx, busy.ID, workflow.ResumeInput{})
	if err == nil || !strings.Contains(err.Error(), "wait for it to pause") {
		t.Errorf("Resume(running) error = %v, want busy refusal", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newRunnerEnv(t, context.Background(), config.Flags{}, config.BoundsCfg{MaxTurns: 3})

	if _, err := env.runner.Submit(context.Background(), &TaskRequest{}); err == nil {
		t.Error("Submit() with blank project accepted, want error")
	}
	if _, err := env.runner.Submit(context.Background(), nil); err == nil {
		t.Error("Submit(nil) accepted, want error")
	}
}

func TestSubmitAfterCloseMarksRowFailed(t *testing.T) {
	env := newRunnerEnv(t, context.Background(), config.Flags{}, config.BoundsCfg{MaxTurns: 3})
	ctx := context.Background()

	if err := env.runner.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := env.runner.Submit(ctx, &TaskRequest{ProjectID: env.projectID}); err == nil {
		t.Fatal("Submit() after Close accepted, want error")
	}

	// The rejected submission leaves a failed row behind for triage.
	task, err := env.store.LatestTask(ctx, env.projectID)
	if err != nil {
		t.Fatalf("LatestTask() error = %v", err)
	}
	if task.Status != store.TaskFailed || task.ErrorMessage == "" {
		t.Errorf("row = %q/%q, want failed with reason", task.Status, task.ErrorMessage)
	}
}

func TestWaitAndCancelUnknownTask(t *testing.T) {
	env := newRunnerEnv(t, context.Background(), config.Flags{}, config.BoundsCfg{MaxTurns: 3})

	if _, err := env.runner.Wait(context.Background(), "t-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Wait(unknown) error = %v, want store.ErrNotFound", err)
	}
	if env.runner.Cancel("t-missing") {
		t.Error("Cancel(unknown) = true, want false")
	}
}

func TestCancelSettledTaskReturnsFalse(t *testing.T) {
	env := newRunnerEnv(t, context.Background(), config.Flags{}, config.BoundsCfg{MaxTurns: 3},
		outlineReply, approveReply)

	taskID, _, err := env.submitAndWait(t, 2)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if env.runner.Cancel(taskID) {
		t.Error("Cancel() on a settled task = true, want false")
	}
}

func TestTruncateErr(t *testing.T) {
	long := errors.New(strings.Repeat("x", maxErrorMessage+100))
	if got := truncateErr(long); len(got) != maxErrorMessage {
		t.Errorf("len = %d, want %d", len(got), maxErrorMessage)
	}
	if got := truncateErr(errors.New("short")); got != "short" {
		t.Errorf("got %q, want %q", got, "short")
	}
	if got := truncateErr(nil); got != "" {
		t.Errorf("truncateErr(nil) = %q, want empty", got)
	}
}
