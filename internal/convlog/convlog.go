// Package convlog writes a per-run JSONL audit trail of every model call a
// workflow makes. One file per workflow run, one line per call, in the order
// the calls were recorded. The trail is for humans reviewing a run; the
// usage ledger in the database stays the cost authority.
package convlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ghostline-ai/ghostline/internal/store"
)

// Entry is one line of the conversation log.
type Entry struct {
	Timestamp       time.Time `json:"ts"`
	WorkflowRunID   string    `json:"workflow_run_id"`
	Agent           string    `json:"agent"`
	Role            string    `json:"role,omitempty"`
	CallType        string    `json:"call_type,omitempty"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	ChapterNumber   int       `json:"chapter,omitempty"`
	PromptPreview   string    `json:"prompt_preview,omitempty"`
	ResponsePreview string    `json:"response_preview,omitempty"`
	InputTokens     int       `json:"input_tokens"`
	OutputTokens    int       `json:"output_tokens"`
	CostUSD         float64   `json:"cost_usd"`
	DurationMs      int64     `json:"duration_ms"`
	Success         bool      `json:"success"`
	IsFallback      bool      `json:"is_fallback,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Log appends call entries to per-run JSONL files under dir. Writes never
// fail the call being logged: on error the entry is dropped with a warning.
type Log struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	files map[string]*os.File
}

// New creates a conversation log rooted at dir. The directory is created on
// first write.
func New(dir string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		dir:    dir,
		logger: logger.With("component", "convlog"),
		files:  make(map[string]*os.File),
	}
}

// PathFor returns the log file path for a workflow run. The naming matches
// home.ConversationLogPath so task output can point at the file.
func (l *Log) PathFor(runID string) string {
	return filepath.Join(l.dir, fmt.Sprintf("run_%s.jsonl", runID))
}

// Record appends one call to the run's log. Calls without a workflow run ID
// (ad-hoc CLI invocations) are skipped.
func (l *Log) Record(row *store.CallLog) {
	if row == nil || row.WorkflowRunID == "" {
		return
	}

	entry := Entry{
		Timestamp:       row.CreatedAt,
		WorkflowRunID:   row.WorkflowRunID,
		Agent:           row.AgentName,
		Role:            row.AgentRole,
		CallType:        row.CallType,
		Provider:        row.Provider,
		Model:           row.Model,
		ChapterNumber:   row.ChapterNumber,
		PromptPreview:   row.PromptPreview,
		ResponsePreview: row.ResponsePreview,
		InputTokens:     row.InputTokens,
		OutputTokens:    row.OutputTokens,
		CostUSD:         row.TotalCost,
		DurationMs:      row.DurationMs,
		Success:         row.Success,
		IsFallback:      row.IsFallback,
		Error:           row.Error,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		l.logger.Warn("failed to encode conversation entry", "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.file(row.WorkflowRunID)
	if err != nil {
		l.logger.Warn("failed to open conversation log", "run", row.WorkflowRunID, "error", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Warn("failed to write conversation entry", "run", row.WorkflowRunID, "error", err)
	}
}

// Close closes every open run file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for runID, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(l.files, runID)
	}
	return firstErr
}

// file returns the open append handle for a run, creating it (and the log
// directory) on first use. Caller holds l.mu.
func (l *Log) file(runID string) (*os.File, error) {
	if f, ok := l.files[runID]; ok {
		return f, nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(l.PathFor(runID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l.files[runID] = f
	return f, nil
}
