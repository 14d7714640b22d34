// Package workflow orchestrates one book generation run as a durable state
// machine: ingest sources, embed them, plan the outline, pause for human
// approval, draft chapters through the quality loop, screen the manuscript,
// and finalize. Every node transition is checkpointed through a Saver, so a
// run resumes at the exact node it stopped on after a pause, a crash, or a
// cancellation. One goroutine drives a given workflow id at a time;
// concurrency across workflows belongs to the task runner.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ghostline-ai/ghostline/internal/book"
	"github.com/ghostline-ai/ghostline/internal/chapter"
	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/embedding"
	"github.com/ghostline-ai/ghostline/internal/ledger"
	"github.com/ghostline-ai/ghostline/internal/metrics"
	"github.com/ghostline-ai/ghostline/internal/outline"
	"github.com/ghostline-ai/ghostline/internal/retrieval"
	"github.com/ghostline-ai/ghostline/internal/safety"
	"github.com/ghostline-ai/ghostline/internal/store"
	"github.com/ghostline-ai/ghostline/internal/voice"
)

// ErrCancelled reports that a run stopped because its context was cancelled.
// State stays at the last checkpoint; resume picks up from there.
var ErrCancelled = errors.New("workflow cancelled")

// Workflow phases reported to callers and mirrored onto the task row.
const (
	PhasePending       = "pending"
	PhaseIngesting     = "ingesting"
	PhaseEmbedding     = "embedding"
	PhaseOutlining     = "outlining"
	PhaseOutlineReview = "outline_review"
	PhaseDrafting      = "drafting"
	PhaseSafetyCheck   = "safety_check"
	PhaseFinalizing    = "finalizing"
	PhaseCompleted     = "completed"
	PhaseFailed        = "failed"
)

// ActionApproveOutline is the user action that releases the outline gate.
const ActionApproveOutline = "approve_outline"

// Node names. State.Node always holds the next node to execute; the run
// loop advances it one node at a time, checkpointing after each transition.
const (
	nodeIngest          = "ingest"
	nodeEmbed           = "embed"
	nodeGenerateOutline = "generate_outline"
	nodeRequestApproval = "request_approval"
	nodeWaitForApproval = "wait_for_approval"
	nodeDraftChapter    = "draft_chapter"
	nodeSafetyCheck     = "safety_check"
	nodeFinalize        = "finalize"
	nodeComplete        = "complete"
)

// Progress milestones. Chapter drafting interpolates from the review
// milestone up to 90 as chapters finish.
const (
	progressIngest        = 10
	progressEmbed         = 20
	progressOutline       = 25
	progressOutlineReview = 30
	progressSafety        = 92
	progressFinalize      = 95
	progressComplete      = 100
)

// DefaultWordsPerPage converts a target page count into per-chapter word
// targets when the caller does not give a density.
const DefaultWordsPerPage = 250

// maxErrorLen bounds persisted error strings.
const maxErrorLen = 2048

// State is the full durable snapshot of one run. It is what a Saver
// serializes, so every field a resumed run needs must live here rather
// than in orchestrator memory.
type State struct {
	WorkflowID string `json:"workflow_id"`
	ProjectID  string `json:"project_id"`
	UserID     string `json:"user_id,omitempty"`

	Node     string `json:"node,omitempty"`
	Phase    string `json:"phase"`
	Progress int    `json:"progress"`

	SourceMaterialIDs []string           `json:"source_material_ids,omitempty"`
	SourceSummaries   []string           `json:"source_summaries,omitempty"`
	VoiceProfile      *book.VoiceProfile `json:"voice_profile,omitempty"`

	TargetChapters        int `json:"target_chapters"`
	TargetPages           int `json:"target_pages,omitempty"`
	TargetWordsPerChapter int `json:"target_words_per_chapter"`

	Outline         *book.Outline `json:"outline,omitempty"`
	OutlineID       string        `json:"outline_id,omitempty"`
	OutlineApproved bool          `json:"outline_approved"`
	UserFeedback    []string      `json:"user_feedback,omitempty"`

	CurrentChapter   int               `json:"current_chapter,omitempty"`
	Chapters         []book.Chapter    `json:"chapters,omitempty"`
	ChapterSummaries []string          `json:"chapter_summaries,omitempty"`
	ChapterCanon     []book.CanonBlock `json:"chapter_canon,omitempty"`

	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`

	PendingUserAction string `json:"pending_user_action,omitempty"`

	SafetyPassed        bool             `json:"safety_passed"`
	SafetyFindings      []safety.Finding `json:"safety_findings,omitempty"`
	SuggestedDisclaimer string           `json:"suggested_disclaimer,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Done reports whether the run has no more nodes to execute.
func (s *State) Done() bool { return s.Node == "" }

// Paused reports whether the run is parked waiting on a user action.
func (s *State) Paused() bool { return s.Node != "" && s.PendingUserAction != "" }

// WordCount sums the words across all drafted chapters.
func (s *State) WordCount() int {
	total := 0
	for i := range s.Chapters {
		total += s.Chapters[i].WordCount
	}
	return total
}

// upsertChapter records a finished chapter, replacing any earlier draft of
// the same number so a resumed redraft stays idempotent.
func (s *State) upsertChapter(ch *book.Chapter) {
	for i := range s.Chapters {
		if s.Chapters[i].Number == ch.Number {
			s.Chapters[i] = *ch
			return
		}
	}
	s.Chapters = append(s.Chapters, *ch)
}

// StartRequest begins a run for a project.
type StartRequest struct {
	ProjectID         string
	UserID            string
	SourceMaterialIDs []string
	TargetChapters    int
	TargetPages       int
	WordsPerPage      int
}

// ResumeInput carries the user's answer to a pending action plus any
// free-form feedback, which is recorded either way.
type ResumeInput struct {
	ApproveOutline bool
	Feedback       string
}

// Deps wires the orchestrator to its collaborators. Everything is passed
// explicitly; the orchestrator holds no globals.
type Deps struct {
	Store     *store.Store
	Saver     Saver
	Retriever *retrieval.Retriever
	Embedder  embedding.Engine
	Ledger    *ledger.Ledger
	Outline   *outline.Subgraph
	Chapter   *chapter.Subgraph
	Voices    *voice.Builder
	Screener  *safety.Screener
	Config    *config.Config
	Flags     config.Flags
	Logger    *slog.Logger
}

// Orchestrator drives the node state machine for book generation runs.
type Orchestrator struct {
	store     *store.Store
	saver     Saver
	retriever *retrieval.Retriever
	embedder  embedding.Engine
	ledger    *ledger.Ledger
	outline   *outline.Subgraph
	chapter   *chapter.Subgraph
	voices    *voice.Builder
	screener  *safety.Screener
	cfg       *config.Config
	flags     config.Flags
	logger    *slog.Logger
}

// New builds an orchestrator, defaulting the saver to SQLite checkpoints
// on the given store.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("workflow: store is required")
	}
	if deps.Outline == nil || deps.Chapter == nil {
		return nil, errors.New("workflow: outline and chapter subgraphs are required")
	}
	if deps.Saver == nil {
		deps.Saver = NewSQLiteSaver(deps.Store)
	}
	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		store:     deps.Store,
		saver:     deps.Saver,
		retriever: deps.Retriever,
		embedder:  deps.Embedder,
		ledger:    deps.Ledger,
		outline:   deps.Outline,
		chapter:   deps.Chapter,
		voices:    deps.Voices,
		screener:  deps.Screener,
		cfg:       deps.Config,
		flags:     deps.Flags,
		logger:    deps.Logger.With("component", "workflow"),
	}, nil
}

// Start creates a run for the project and executes it until it completes,
// pauses for approval, or fails. The returned state is always the latest
// checkpointed snapshot, even alongside an error.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*State, error) {
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, errors.New("workflow start: project id is required")
	}
	project, err := o.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("workflow start: %w", err)
	}

	chapters := req.TargetChapters
	if chapters <= 0 {
		chapters = project.TargetChapters
	}
	if chapters <= 0 {
		chapters = o.cfg.Book.TargetChapters
	}
	if chapters <= 0 {
		chapters = 1
	}
	words := project.TargetWordsPerChapter
	if words <= 0 {
		words = o.cfg.Book.TargetWordsPerChapter
	}
	if req.TargetPages > 0 {
		perPage := req.WordsPerPage
		if perPage <= 0 {
			perPage = DefaultWordsPerPage
		}
		words = req.TargetPages * perPage / chapters
	}
	userID := req.UserID
	if userID == "" {
		userID = project.UserID
	}

	now := time.Now().UTC()
	state := &State{
		WorkflowID:            uuid.NewString(),
		ProjectID:             req.ProjectID,
		UserID:                userID,
		Node:                  nodeIngest,
		Phase:                 PhasePending,
		SourceMaterialIDs:     req.SourceMaterialIDs,
		TargetChapters:        chapters,
		TargetPages:           req.TargetPages,
		TargetWordsPerChapter: words,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := o.saver.Save(ctx, state.WorkflowID, state); err != nil {
		return nil, fmt.Errorf("checkpoint workflow %s: %w", state.WorkflowID, err)
	}
	o.logger.Info("workflow started",
		"workflow_id", state.WorkflowID,
		"project_id", state.ProjectID,
		"target_chapters", chapters,
		"target_words_per_chapter", words,
	)
	return o.run(ctx, state)
}

// Resume loads the latest checkpoint, applies the user action, and
// continues execution from the suspended node. Resuming a completed run
// is a no-op that returns the final state. Resuming a failed run clears
// the recorded error and retries the node that failed.
func (o *Orchestrator) Resume(ctx context.Context, workflowID string, in ResumeInput) (*State, error) {
	state, err := o.saver.Latest(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("resume workflow %s: %w", workflowID, err)
	}
	if fb := strings.TrimSpace(in.Feedback); fb != "" {
		state.UserFeedback = append(state.UserFeedback, fb)
	}
	if in.ApproveOutline && state.PendingUserAction == ActionApproveOutline {
		state.OutlineApproved = true
		state.PendingUserAction = ""
	}
	if state.Error != "" && state.Node != "" {
		state.Error = ""
	}
	state.UpdatedAt = time.Now().UTC()
	if err := o.saver.Save(ctx, state.WorkflowID, state); err != nil {
		return nil, fmt.Errorf("checkpoint workflow %s: %w", workflowID, err)
	}
	return o.run(ctx, state)
}

// GetState returns the latest checkpointed snapshot without executing
// anything.
func (o *Orchestrator) GetState(ctx context.Context, workflowID string) (*State, error) {
	return o.saver.Latest(ctx, workflowID)
}

// run executes nodes until the machine finishes, parks on a user gate, or
// fails. Cancellation is checked between nodes and leaves the state at the
// last checkpoint.
func (o *Orchestrator) run(ctx context.Context, state *State) (*State, error) {
	metrics.ActiveWorkflows.Inc()
	defer metrics.ActiveWorkflows.Dec()

	cc, _ := ledger.CostContextFrom(ctx)
	cc.ProjectID = state.ProjectID
	cc.WorkflowRunID = state.WorkflowID
	ctx = ledger.WithCostContext(ctx, cc)

	logger := o.logger.With("workflow_id", state.WorkflowID, "project_id", state.ProjectID)

	for state.Node != "" {
		if ctx.Err() != nil {
			logger.Warn("workflow cancelled", "node", state.Node)
			return state, fmt.Errorf("workflow %s stopped at %s: %w", state.WorkflowID, state.Node, ErrCancelled)
		}
		if state.Node == nodeWaitForApproval && !state.OutlineApproved {
			// Interrupt gate: execution parks before this node until the
			// user approves the outline through Resume.
			logger.Info("workflow paused", "pending_user_action", state.PendingUserAction)
			return state, nil
		}

		node := state.Node
		started := time.Now()
		next, err := o.step(ctx, state)
		metrics.WorkflowPhaseDuration.WithLabelValues(node).Observe(time.Since(started).Seconds())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Warn("workflow cancelled", "node", node)
				return state, fmt.Errorf("workflow %s stopped at %s: %w", state.WorkflowID, node, ErrCancelled)
			}
			metrics.WorkflowPhaseTotal.WithLabelValues(node, "error").Inc()
			logger.Error("workflow node failed", "node", node, "error", err)
			state.Phase = PhaseFailed
			state.Error = truncate(err.Error(), maxErrorLen)
			state.UpdatedAt = time.Now().UTC()
			if serr := o.saver.Save(ctx, state.WorkflowID, state); serr != nil {
				logger.Error("checkpoint after failure", "error", serr)
			}
			return state, err
		}
		metrics.WorkflowPhaseTotal.WithLabelValues(node, "ok").Inc()

		state.Node = next
		state.UpdatedAt = time.Now().UTC()
		if err := o.saver.Save(ctx, state.WorkflowID, state); err != nil {
			return state, fmt.Errorf("checkpoint workflow %s after %s: %w", state.WorkflowID, node, err)
		}
		logger.Debug("workflow node complete", "node", node, "next", next, "progress", state.Progress)
	}
	return state, nil
}

// truncate clips s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
