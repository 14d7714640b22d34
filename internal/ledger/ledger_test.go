package ledger

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ghostline-ai/ghostline/internal/providers"
	"github.com/ghostline-ai/ghostline/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory(nil)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, nil), st
}

func TestLookupPricing(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		model     string
		wantIn    float64
		wantKnown bool
	}{
		{"exact anthropic", "anthropic", "claude-sonnet-4-5", 0.003, true},
		{"dated release inherits family", "anthropic", "claude-sonnet-4-5-20250929", 0.003, true},
		{"embedding output free", "openai", "text-embedding-3-small", 0.00002, true},
		{"mock provider free", "mock", "anything", 0, true},
		{"unknown model conservative default", "anthropic", "claude-mystery-9", 0.01, false},
		{"unknown provider conservative default", "acme", "m1", 0.01, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, known := LookupPricing(tt.provider, tt.model)
			if known != tt.wantKnown {
				t.Errorf("known = %v, want %v", known, tt.wantKnown)
			}
			if math.Abs(p.InputPer1K-tt.wantIn) > 1e-12 {
				t.Errorf("InputPer1K = %v, want %v", p.InputPer1K, tt.wantIn)
			}
		})
	}
}

func TestCost(t *testing.T) {
	l, _ := newTestLedger(t)

	in, out, total := l.Cost("anthropic", "claude-sonnet-4-5", 1000, 1000)
	if math.Abs(in-0.003) > 1e-12 || math.Abs(out-0.015) > 1e-12 {
		t.Errorf("per-1k costs = %v/%v, want 0.003/0.015", in, out)
	}
	if math.Abs(total-0.018) > 1e-12 {
		t.Errorf("total = %v, want 0.018", total)
	}

	_, out, _ = l.Cost("openai", "text-embedding-3-small", 5000, 0)
	if out != 0 {
		t.Errorf("embedding output cost = %v, want 0", out)
	}
}

func TestRecordStampsCostContext(t *testing.T) {
	l, st := newTestLedger(t)

	ctx := WithCostContext(context.Background(), CostContext{
		ProjectID:     "p1",
		TaskID:        "t1",
		WorkflowRunID: "w1",
	})
	ctx = WithChapter(ctx, 2)

	result := &providers.ChatResult{
		Content:          "drafted text",
		PromptTokens:     2000,
		CompletionTokens: 1000,
		ExecutionTime:    1500 * time.Millisecond,
		Provider:         "anthropic",
		ModelUsed:        "claude-sonnet-4-5",
		Success:          true,
	}

	row, err := l.Record(ctx, result, RecordOptions{
		AgentName:     "content_drafter",
		AgentRole:     "drafter",
		CallType:      "generate",
		PromptPreview: strings.Repeat("p", 600),
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if row.ProjectID != "p1" || row.TaskID != "t1" || row.WorkflowRunID != "w1" || row.ChapterNumber != 2 {
		t.Errorf("attribution not stamped: %+v", row)
	}
	if len(row.PromptPreview) != 500 {
		t.Errorf("prompt preview not truncated to 500, got %d", len(row.PromptPreview))
	}
	wantTotal := 2.0*0.003 + 1.0*0.015
	if math.Abs(row.TotalCost-wantTotal) > 1e-9 {
		t.Errorf("TotalCost = %v, want %v", row.TotalCost, wantTotal)
	}

	got, err := st.QueryCalls(context.Background(), store.CallFilter{WorkflowRunID: "w1"})
	if err != nil {
		t.Fatalf("QueryCalls() error = %v", err)
	}
	if len(got) != 1 || got[0].AgentName != "content_drafter" {
		t.Errorf("expected one persisted row for w1, got %+v", got)
	}
}

func TestSummarize(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := WithCostContext(context.Background(), CostContext{ProjectID: "p1", WorkflowRunID: "w1"})

	ok := &providers.ChatResult{PromptTokens: 1000, CompletionTokens: 500, Provider: "anthropic", ModelUsed: "claude-sonnet-4-5", Success: true, ExecutionTime: time.Second}
	if _, err := l.Record(WithChapter(ctx, 1), ok, RecordOptions{AgentName: "content_drafter"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := l.Record(WithChapter(ctx, 1), ok, RecordOptions{AgentName: "fact_checker"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	failed := &providers.ChatResult{PromptTokens: 100, Provider: "openai", ModelUsed: "gpt-4o", Success: false, ErrorMessage: "timeout"}
	if _, err := l.Record(ctx, failed, RecordOptions{AgentName: "content_drafter", IsFallback: true, FallbackReason: "quota"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	s, err := l.Summarize(ctx, store.CallFilter{ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if s.TotalCalls != 3 || s.SuccessfulCalls != 2 || s.FailedCalls != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", s.TotalCalls, s.SuccessfulCalls, s.FailedCalls)
	}
	if math.Abs(s.SuccessRate-2.0/3.0) > 1e-9 {
		t.Errorf("SuccessRate = %v", s.SuccessRate)
	}
	if s.FallbackCalls != 1 {
		t.Errorf("FallbackCalls = %d, want 1", s.FallbackCalls)
	}
	if s.TotalTokens != 3100 {
		t.Errorf("TotalTokens = %d, want 3100", s.TotalTokens)
	}
	if len(s.ByAgent) != 2 {
		t.Errorf("ByAgent = %v, want 2 agents", s.ByAgent)
	}
	if _, ok := s.ByChapter["chapter_1"]; !ok {
		t.Errorf("ByChapter missing chapter_1: %v", s.ByChapter)
	}
	if s.ByModel["claude-sonnet-4-5"] <= 0 {
		t.Errorf("ByModel missing sonnet cost: %v", s.ByModel)
	}
}

func TestCostContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := CostContextFrom(ctx); ok {
		t.Error("empty context should carry no attribution")
	}

	ctx = WithCostContext(ctx, CostContext{ProjectID: "p1", Stage: "outline"})
	ctx = WithStage(ctx, "chapter_draft")
	cc, ok := CostContextFrom(ctx)
	if !ok || cc.ProjectID != "p1" || cc.Stage != "chapter_draft" {
		t.Errorf("unexpected attribution: %+v", cc)
	}
}
