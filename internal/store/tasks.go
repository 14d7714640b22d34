package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a generation task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is the persisted record of one background generation run.
type Task struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id"`
	WorkflowID   string          `json:"workflow_id"`
	TaskType     string          `json:"task_type"`
	Status       TaskStatus      `json:"status"`
	Progress     int             `json:"progress"`
	CurrentStep  string          `json:"current_step"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// CreateTask inserts a new pending task. A blank ID is assigned a UUID.
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.TaskType == "" {
		t.TaskType = "book_generation"
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if len(t.Output) == 0 {
		t.Output = json.RawMessage("{}")
	}
	t.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generation_tasks (id, project_id, workflow_id, task_type, status, progress, current_step, error_message, output_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.WorkflowID, t.TaskType, string(t.Status), t.Progress, t.CurrentStep, t.ErrorMessage, string(t.Output), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, workflow_id, task_type, status, progress, current_step, error_message, output_json, created_at, started_at, completed_at
		FROM generation_tasks WHERE id = ?`, id)
	return scanTask(row)
}

// LatestTask returns the most recent task for a project, if any.
func (s *Store) LatestTask(ctx context.Context, projectID string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, workflow_id, task_type, status, progress, current_step, error_message, output_json, created_at, started_at, completed_at
		FROM generation_tasks WHERE project_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, projectID)
	return scanTask(row)
}

// UpdateTask applies the given mutation to a task's mutable fields.
func (s *Store) UpdateTask(ctx context.Context, t *Task) error {
	if len(t.Output) == 0 {
		t.Output = json.RawMessage("{}")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE generation_tasks
		SET workflow_id = ?, status = ?, progress = ?, current_step = ?, error_message = ?, output_json = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		t.WorkflowID, string(t.Status), t.Progress, t.CurrentStep, t.ErrorMessage, string(t.Output), t.StartedAt, t.CompletedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

// MarkTaskStarted transitions a task to running and stamps started_at.
func (s *Store) MarkTaskStarted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE generation_tasks SET status = ?, started_at = ? WHERE id = ?`,
		string(TaskRunning), now, id)
	if err != nil {
		return fmt.Errorf("failed to mark task started: %w", err)
	}
	return nil
}

func scanTask(row *sql.Row) (*Task, error) {
	var t Task
	var status, output string
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&t.ID, &t.ProjectID, &t.WorkflowID, &t.TaskType, &status, &t.Progress,
		&t.CurrentStep, &t.ErrorMessage, &output, &t.CreatedAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	t.Status = TaskStatus(status)
	t.Output = json.RawMessage(output)
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}
