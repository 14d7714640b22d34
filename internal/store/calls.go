package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CallLog is one row of the LLM usage log: tokens, cost, latency, and
// attribution for a single provider call.
type CallLog struct {
	ID             string    `json:"id"`
	AgentName      string    `json:"agent_name"`
	AgentRole      string    `json:"agent_role"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	CallType       string    `json:"call_type"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	InputCost      float64   `json:"input_cost"`
	OutputCost     float64   `json:"output_cost"`
	TotalCost      float64   `json:"total_cost"`
	DurationMs     int64     `json:"duration_ms"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	ProjectID      string    `json:"project_id,omitempty"`
	TaskID         string    `json:"task_id,omitempty"`
	WorkflowRunID  string    `json:"workflow_run_id,omitempty"`
	ChapterNumber  int       `json:"chapter_number,omitempty"`
	IsFallback     bool      `json:"is_fallback"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
	PromptPreview  string    `json:"prompt_preview,omitempty"`
	ResponsePreview string   `json:"response_preview,omitempty"`
	Metadata       string    `json:"metadata,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CallFilter narrows usage-log queries. Zero values mean "no constraint".
type CallFilter struct {
	ProjectID     string
	TaskID        string
	WorkflowRunID string
	AgentName     string
	Provider      string
	Model         string
	ChapterNumber int
	Since         time.Time
	Until         time.Time
	OnlyErrors    bool
	Limit         int
}

// InsertCallLog appends one usage-log row.
func (s *Store) InsertCallLog(ctx context.Context, c *CallLog) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CallType == "" {
		c.CallType = "generate"
	}
	if c.Metadata == "" {
		c.Metadata = "{}"
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_usage_logs (
			id, agent_name, agent_role, provider, model, call_type,
			input_tokens, output_tokens, input_cost, output_cost, total_cost,
			duration_ms, success, error, project_id, task_id, workflow_run_id,
			chapter_number, is_fallback, fallback_reason, prompt_preview,
			response_preview, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AgentName, c.AgentRole, c.Provider, c.Model, c.CallType,
		c.InputTokens, c.OutputTokens, c.InputCost, c.OutputCost, c.TotalCost,
		c.DurationMs, boolToInt(c.Success), c.Error, c.ProjectID, c.TaskID, c.WorkflowRunID,
		c.ChapterNumber, boolToInt(c.IsFallback), c.FallbackReason, c.PromptPreview,
		c.ResponsePreview, c.Metadata, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert usage log: %w", err)
	}
	return nil
}

// QueryCalls returns usage-log rows matching the filter, newest first.
func (s *Store) QueryCalls(ctx context.Context, f CallFilter) ([]CallLog, error) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		conds = append(conds, cond)
		args = append(args, val)
	}
	if f.ProjectID != "" {
		add("project_id = ?", f.ProjectID)
	}
	if f.TaskID != "" {
		add("task_id = ?", f.TaskID)
	}
	if f.WorkflowRunID != "" {
		add("workflow_run_id = ?", f.WorkflowRunID)
	}
	if f.AgentName != "" {
		add("agent_name = ?", f.AgentName)
	}
	if f.Provider != "" {
		add("provider = ?", f.Provider)
	}
	if f.Model != "" {
		add("model = ?", f.Model)
	}
	if f.ChapterNumber > 0 {
		add("chapter_number = ?", f.ChapterNumber)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at <= ?", f.Until)
	}
	if f.OnlyErrors {
		conds = append(conds, "success = 0")
	}

	query := `
		SELECT id, agent_name, agent_role, provider, model, call_type,
			input_tokens, output_tokens, input_cost, output_cost, total_cost,
			duration_ms, success, error, project_id, task_id, workflow_run_id,
			chapter_number, is_fallback, fallback_reason, prompt_preview,
			response_preview, metadata, created_at
		FROM llm_usage_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage logs: %w", err)
	}
	defer rows.Close()

	var calls []CallLog
	for rows.Next() {
		var c CallLog
		var success, isFallback int
		if err := rows.Scan(&c.ID, &c.AgentName, &c.AgentRole, &c.Provider, &c.Model, &c.CallType,
			&c.InputTokens, &c.OutputTokens, &c.InputCost, &c.OutputCost, &c.TotalCost,
			&c.DurationMs, &success, &c.Error, &c.ProjectID, &c.TaskID, &c.WorkflowRunID,
			&c.ChapterNumber, &isFallback, &c.FallbackReason, &c.PromptPreview,
			&c.ResponsePreview, &c.Metadata, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage log: %w", err)
		}
		c.Success = success != 0
		c.IsFallback = isFallback != 0
		calls = append(calls, c)
	}
	return calls, rows.Err()
}
