package ledger

import (
	"context"
	"fmt"

	"github.com/ghostline-ai/ghostline/internal/store"
)

// Summary aggregates usage rows matching a filter.
type Summary struct {
	TotalCalls      int     `json:"total_calls"`
	SuccessfulCalls int     `json:"successful_calls"`
	FailedCalls     int     `json:"failed_calls"`
	SuccessRate     float64 `json:"success_rate"`

	TotalInputTokens  int `json:"total_input_tokens"`
	TotalOutputTokens int `json:"total_output_tokens"`
	TotalTokens       int `json:"total_tokens"`

	TotalCostUSD   float64 `json:"total_cost_usd"`
	AvgCostPerCall float64 `json:"avg_cost_per_call"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`

	FallbackCalls int `json:"fallback_calls"`

	ByModel    map[string]float64 `json:"by_model,omitempty"`
	ByProvider map[string]float64 `json:"by_provider,omitempty"`
	ByAgent    map[string]float64 `json:"by_agent,omitempty"`
	ByChapter  map[string]float64 `json:"by_chapter,omitempty"`
}

// Summarize folds the usage rows matching the filter into a Summary.
func (l *Ledger) Summarize(ctx context.Context, f store.CallFilter) (*Summary, error) {
	calls, err := l.store.QueryCalls(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}

	s := &Summary{
		ByModel:    make(map[string]float64),
		ByProvider: make(map[string]float64),
		ByAgent:    make(map[string]float64),
		ByChapter:  make(map[string]float64),
	}

	var totalLatency int64
	for _, c := range calls {
		s.TotalCalls++
		if c.Success {
			s.SuccessfulCalls++
		} else {
			s.FailedCalls++
		}
		if c.IsFallback {
			s.FallbackCalls++
		}

		s.TotalInputTokens += c.InputTokens
		s.TotalOutputTokens += c.OutputTokens
		s.TotalCostUSD += c.TotalCost
		totalLatency += c.DurationMs

		s.ByModel[c.Model] += c.TotalCost
		s.ByProvider[c.Provider] += c.TotalCost
		if c.AgentName != "" {
			s.ByAgent[c.AgentName] += c.TotalCost
		}
		if c.ChapterNumber > 0 {
			s.ByChapter[fmt.Sprintf("chapter_%d", c.ChapterNumber)] += c.TotalCost
		}
	}
	s.TotalTokens = s.TotalInputTokens + s.TotalOutputTokens

	if s.TotalCalls > 0 {
		s.SuccessRate = float64(s.SuccessfulCalls) / float64(s.TotalCalls)
		s.AvgCostPerCall = s.TotalCostUSD / float64(s.TotalCalls)
		s.AvgLatencyMs = float64(totalLatency) / float64(s.TotalCalls)
	}
	return s, nil
}

// ProjectCost returns the total recorded cost for a project.
func (l *Ledger) ProjectCost(ctx context.Context, projectID string) (float64, error) {
	s, err := l.Summarize(ctx, store.CallFilter{ProjectID: projectID})
	if err != nil {
		return 0, err
	}
	return s.TotalCostUSD, nil
}

// WorkflowCost returns the total recorded cost for one workflow run.
func (l *Ledger) WorkflowCost(ctx context.Context, workflowRunID string) (float64, error) {
	s, err := l.Summarize(ctx, store.CallFilter{WorkflowRunID: workflowRunID})
	if err != nil {
		return 0, err
	}
	return s.TotalCostUSD, nil
}
