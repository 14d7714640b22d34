package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ghostline-ai/ghostline/internal/providers"
	"github.com/ghostline-ai/ghostline/internal/store"
)

// previewLimit bounds the prompt/response excerpts stored with each row.
const previewLimit = 500

// RecordOptions provides attribution for recording an LLM call.
type RecordOptions struct {
	AgentName      string
	AgentRole      string
	CallType       string // "generate" (default), "embed"
	IsFallback     bool
	FallbackReason string
	PromptPreview  string
	Metadata       map[string]any
}

// Record writes one usage row for a chat result. Attribution is taken from
// the CostContext on ctx. Recording failures are returned for the caller to
// log; by policy a lost row never fails the call it describes.
func (l *Ledger) Record(ctx context.Context, result *providers.ChatResult, opts RecordOptions) (*store.CallLog, error) {
	if result == nil {
		return nil, fmt.Errorf("cannot record nil result")
	}

	inCost, outCost, total := l.Cost(result.Provider, result.ModelUsed, result.PromptTokens, result.CompletionTokens)

	row := &store.CallLog{
		AgentName:       opts.AgentName,
		AgentRole:       opts.AgentRole,
		Provider:        result.Provider,
		Model:           result.ModelUsed,
		CallType:        opts.CallType,
		InputTokens:     result.PromptTokens,
		OutputTokens:    result.CompletionTokens,
		InputCost:       inCost,
		OutputCost:      outCost,
		TotalCost:       total,
		DurationMs:      result.ExecutionTime.Milliseconds(),
		Success:         result.Success,
		Error:           result.ErrorMessage,
		IsFallback:      opts.IsFallback,
		FallbackReason:  opts.FallbackReason,
		PromptPreview:   truncate(opts.PromptPreview, previewLimit),
		ResponsePreview: truncate(result.Content, previewLimit),
		CreatedAt:       time.Now().UTC(),
	}

	if cc, ok := CostContextFrom(ctx); ok {
		row.ProjectID = cc.ProjectID
		row.TaskID = cc.TaskID
		row.WorkflowRunID = cc.WorkflowRunID
		row.ChapterNumber = cc.ChapterNumber
	}

	if len(opts.Metadata) > 0 {
		if data, err := json.Marshal(opts.Metadata); err == nil {
			row.Metadata = string(data)
		} else {
			l.logger.Warn("failed to serialize usage metadata", "error", err)
		}
	}

	if err := l.store.InsertCallLog(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}

	l.logger.Debug("recorded llm call",
		"agent", opts.AgentName,
		"provider", row.Provider,
		"model", row.Model,
		"tokens", row.InputTokens+row.OutputTokens,
		"cost_usd", row.TotalCost,
		"success", row.Success)

	return row, nil
}

// Calls returns raw usage rows matching the filter, newest first.
func (l *Ledger) Calls(ctx context.Context, f store.CallFilter) ([]store.CallLog, error) {
	return l.store.QueryCalls(ctx, f)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
