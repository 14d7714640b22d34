// Package tasks runs book generation workflows as bounded background jobs.
// A Runner owns a fixed worker pool and a submission queue; each job drives
// one workflow run and mirrors its outcome onto the persisted task row, so
// callers can poll progress from the database while the run is live and
// read the result after the process that ran it is gone.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/convlog"
	"github.com/ghostline-ai/ghostline/internal/ledger"
	"github.com/ghostline-ai/ghostline/internal/store"
	"github.com/ghostline-ai/ghostline/internal/workflow"
)

// maxErrorMessage bounds the error text persisted on a task row.
const maxErrorMessage = 2048

// TaskRequest describes one book generation job.
type TaskRequest struct {
	ProjectID         string
	UserID            string
	SourceMaterialIDs []string
	TargetChapters    int
	TargetPages       int
	WordsPerPage      int
}

// Output is the JSON blob recorded on the task row when a run settles.
type Output struct {
	WorkflowRunID     string  `json:"workflow_run_id,omitempty"`
	ConversationLog   string  `json:"conversation_log,omitempty"`
	Chapters          int     `json:"chapters"`
	Words             int     `json:"words"`
	TotalTokens       int     `json:"total_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	PendingUserAction string  `json:"pending_user_action,omitempty"`
}

// Deps wires a Runner to its collaborators.
type Deps struct {
	Store  *store.Store
	Orch   *workflow.Orchestrator
	Logs   *convlog.Log
	Config *config.Config
	Logger *slog.Logger
}

// job is one unit of queued work: either a fresh start or a resume.
type job struct {
	taskID     string
	req        *TaskRequest
	workflowID string
	input      workflow.ResumeInput
}

// result delivers a settled run to anyone blocked in Wait.
type result struct {
	done  chan struct{}
	state *workflow.State
	err   error
}

// Runner executes generation tasks on a fixed-size worker pool.
type Runner struct {
	store  *store.Store
	orch   *workflow.Orchestrator
	logs   *convlog.Log
	logger *slog.Logger

	baseCtx context.Context
	queue   chan *job
	group   *errgroup.Group

	mu        sync.Mutex
	active    map[string]context.CancelFunc
	cancelled map[string]bool
	results   map[string]*result
	closed    bool
}

// New starts the worker pool. ctx is the base context for every task;
// cancelling it stops in-flight runs at their next node boundary.
func New(ctx context.Context, deps Deps) *Runner {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	count := cfg.Workers.Count
	if count <= 0 {
		count = 1
	}
	queueSize := cfg.Workers.QueueSize
	if queueSize <= 0 {
		queueSize = count
	}

	r := &Runner{
		store:     deps.Store,
		orch:      deps.Orch,
		logs:      deps.Logs,
		logger:    logger.With("component", "tasks"),
		baseCtx:   ctx,
		queue:     make(chan *job, queueSize),
		group:     new(errgroup.Group),
		active:    make(map[string]context.CancelFunc),
		cancelled: make(map[string]bool),
		results:   make(map[string]*result),
	}
	for i := 0; i < count; i++ {
		r.group.Go(func() error {
			for j := range r.queue {
				r.execute(j)
			}
			return nil
		})
	}
	return r
}

// Submit records a pending task and queues it. A full queue rejects the
// submission and marks the row failed so the refusal is visible later.
func (r *Runner) Submit(ctx context.Context, req *TaskRequest) (string, error) {
	if req == nil || strings.TrimSpace(req.ProjectID) == "" {
		return "", errors.New("task submit: project id is required")
	}
	task := &store.Task{
		ProjectID:   req.ProjectID,
		Status:      store.TaskPending,
		CurrentStep: "queued",
	}
	if err := r.store.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	if err := r.enqueue(&job{taskID: task.ID, req: req}); err != nil {
		r.markRejected(task, err)
		return "", err
	}
	r.logger.Info("task queued", "task_id", task.ID, "project_id", req.ProjectID)
	return task.ID, nil
}

// Resume queues a continuation of a paused, failed, or cancelled task.
// Running and still-queued tasks cannot be resumed.
func (r *Runner) Resume(ctx context.Context, taskID string, in workflow.ResumeInput) error {
	task, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.WorkflowID == "" {
		return fmt.Errorf("task %s has no workflow to resume", taskID)
	}
	if task.Status == store.TaskRunning || task.Status == store.TaskPending {
		return fmt.Errorf("task %s is %s; wait for it to pause", taskID, task.Status)
	}
	if err := r.enqueue(&job{taskID: taskID, workflowID: task.WorkflowID, input: in}); err != nil {
		return err
	}
	r.logger.Info("task resume queued", "task_id", taskID, "workflow_id", task.WorkflowID)
	return nil
}

// Wait blocks until the task settles and returns its final workflow state
// and terminal error. Only tasks submitted through this runner are tracked.
func (r *Runner) Wait(ctx context.Context, taskID string) (*workflow.State, error) {
	r.mu.Lock()
	res := r.results[taskID]
	r.mu.Unlock()
	if res == nil {
		return nil, fmt.Errorf("task %s is not tracked by this runner: %w", taskID, store.ErrNotFound)
	}
	select {
	case <-res.done:
		return res.state, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops a running task at its next node boundary, or withdraws a
// queued one. It reports whether there was anything to cancel.
func (r *Runner) Cancel(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.active[taskID]; ok {
		cancel()
		return true
	}
	if res, ok := r.results[taskID]; ok {
		select {
		case <-res.done:
			return false
		default:
			r.cancelled[taskID] = true
			return true
		}
	}
	return false
}

// Close stops accepting work and waits for in-flight tasks to settle.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	return r.group.Wait()
}

func (r *Runner) enqueue(j *job) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.New("task runner is shut down")
	}
	res := &result{done: make(chan struct{})}
	r.results[j.taskID] = res
	r.mu.Unlock()

	select {
	case r.queue <- j:
		return nil
	default:
		r.mu.Lock()
		delete(r.results, j.taskID)
		r.mu.Unlock()
		return fmt.Errorf("task queue full (%d waiting)", cap(r.queue))
	}
}

func (r *Runner) execute(j *job) {
	r.mu.Lock()
	if r.cancelled[j.taskID] {
		delete(r.cancelled, j.taskID)
		r.mu.Unlock()
		r.finish(j, nil, workflow.ErrCancelled)
		return
	}
	ctx, cancel := context.WithCancel(r.baseCtx)
	r.active[j.taskID] = cancel
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.active, j.taskID)
		r.mu.Unlock()
	}()

	ctx = ledger.WithCostContext(ctx, ledger.CostContext{TaskID: j.taskID})
	if err := r.store.MarkTaskStarted(ctx, j.taskID); err != nil {
		r.logger.Warn("mark task started", "task_id", j.taskID, "error", err)
	}

	var st *workflow.State
	var err error
	if j.workflowID != "" {
		st, err = r.orch.Resume(ctx, j.workflowID, j.input)
	} else {
		st, err = r.orch.Start(ctx, workflow.StartRequest{
			ProjectID:         j.req.ProjectID,
			UserID:            j.req.UserID,
			SourceMaterialIDs: j.req.SourceMaterialIDs,
			TargetChapters:    j.req.TargetChapters,
			TargetPages:       j.req.TargetPages,
			WordsPerPage:      j.req.WordsPerPage,
		})
	}
	r.finish(j, st, err)
}

// finish maps the run outcome onto the task row and releases waiters.
// Bookkeeping uses a fresh context so a cancelled task still gets its row
// updated.
func (r *Runner) finish(j *job, st *workflow.State, err error) {
	ctx := context.Background()
	task, gerr := r.store.GetTask(ctx, j.taskID)
	if gerr != nil {
		r.logger.Error("load task for completion", "task_id", j.taskID, "error", gerr)
		task = &store.Task{ID: j.taskID}
	}

	now := time.Now().UTC()
	switch {
	case errors.Is(err, workflow.ErrCancelled) || errors.Is(err, context.Canceled):
		task.Status = store.TaskCancelled
		task.ErrorMessage = truncateErr(err)
		task.CompletedAt = &now
	case err != nil:
		task.Status = store.TaskFailed
		task.ErrorMessage = truncateErr(err)
		task.CompletedAt = &now
	case st != nil && st.Paused():
		task.Status = store.TaskPaused
		task.ErrorMessage = ""
	default:
		task.Status = store.TaskCompleted
		task.ErrorMessage = ""
		task.CompletedAt = &now
	}
	if st != nil {
		task.WorkflowID = st.WorkflowID
		task.Progress = st.Progress
		task.CurrentStep = st.Phase
		if data, merr := json.Marshal(r.output(st)); merr == nil {
			task.Output = data
		}
	}
	if uerr := r.store.UpdateTask(ctx, task); uerr != nil {
		r.logger.Error("update task", "task_id", j.taskID, "error", uerr)
	}
	r.logger.Info("task settled",
		"task_id", j.taskID,
		"status", task.Status,
		"progress", task.Progress,
		"step", task.CurrentStep,
	)

	r.mu.Lock()
	res := r.results[j.taskID]
	r.mu.Unlock()
	if res != nil {
		res.state = st
		res.err = err
		close(res.done)
	}
}

// markRejected records a submission the queue refused.
func (r *Runner) markRejected(task *store.Task, cause error) {
	now := time.Now().UTC()
	task.Status = store.TaskFailed
	task.ErrorMessage = truncateErr(cause)
	task.CompletedAt = &now
	if err := r.store.UpdateTask(context.Background(), task); err != nil {
		r.logger.Error("mark task rejected", "task_id", task.ID, "error", err)
	}
}

func (r *Runner) output(st *workflow.State) Output {
	out := Output{
		WorkflowRunID:     st.WorkflowID,
		Chapters:          len(st.Chapters),
		Words:             st.WordCount(),
		TotalTokens:       st.TotalTokens,
		TotalCostUSD:      st.TotalCost,
		PendingUserAction: st.PendingUserAction,
	}
	if r.logs != nil {
		out.ConversationLog = r.logs.PathFor(st.WorkflowID)
	}
	return out
}

// truncateErr clips an error message to the persisted limit without
// splitting a rune.
func truncateErr(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) <= maxErrorMessage {
		return msg
	}
	cut := maxErrorMessage
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
