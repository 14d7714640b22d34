package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/ledger"
	"github.com/ghostline-ai/ghostline/internal/providers"
	"github.com/ghostline-ai/ghostline/internal/store"
)

// quotaClient always fails with a quota-exhaustion error.
type quotaClient struct{ name string }

func (c *quotaClient) Name() string { return c.name }

func (c *quotaClient) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	return &providers.ChatResult{
			Provider:     c.name,
			ModelUsed:    req.Model,
			Success:      false,
			ErrorType:    "quota",
			ErrorMessage: "your credit balance is too low",
		}, &quotaErr{}
}

type quotaErr struct{}

func (e *quotaErr) Error() string { return "400: your credit balance is too low, see plans & billing" }

func newTestClient(t *testing.T, flags config.Flags) (*Client, *providers.MockClient, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory(nil)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := providers.NewRegistry()
	fallbackMock := providers.NewMockClient()
	fallbackMock.ResponseText = "fallback says hi"
	reg.Register("anthropic", &quotaClient{name: "anthropic"})
	reg.Register("openai", fallbackMock)

	cfg := config.DefaultConfig()
	led := ledger.New(st, nil)
	return New(reg, led, cfg, flags, nil), fallbackMock, st
}

func TestInvokeFallsBackOnQuotaError(t *testing.T) {
	flags := config.Flags{AllowLLMFallback: true, FallbackModel: "gpt-4o"}
	c, fallbackMock, st := newTestClient(t, flags)
	ctx := ledger.WithCostContext(context.Background(), ledger.CostContext{WorkflowRunID: "w1"})

	req := &Request{
		Messages:  []providers.Message{{Role: "user", Content: "draft chapter one"}},
		AgentRole: "drafter",
	}

	res, err := c.Invoke(ctx, "content_drafter", req)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.Content != "fallback says hi" {
		t.Errorf("expected fallback response, got %q", res.Content)
	}
	if !c.UsingFallback("content_drafter") {
		t.Error("expected sticky fallback for agent")
	}

	// Second call goes straight to the fallback.
	if _, err := c.Invoke(ctx, "content_drafter", req); err != nil {
		t.Fatalf("second Invoke() error = %v", err)
	}
	if fallbackMock.RequestCount() != 2 {
		t.Errorf("expected 2 fallback calls, got %d", fallbackMock.RequestCount())
	}

	// Ledger has the failed primary call and both fallback calls.
	rows, err := st.QueryCalls(ctx, store.CallFilter{WorkflowRunID: "w1"})
	if err != nil {
		t.Fatalf("QueryCalls() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 recorded calls, got %d", len(rows))
	}
	var fallbackRows, failedRows int
	for _, r := range rows {
		if r.IsFallback {
			fallbackRows++
			if r.FallbackReason == "" {
				t.Error("fallback row missing reason")
			}
		}
		if !r.Success {
			failedRows++
		}
	}
	if fallbackRows != 2 || failedRows != 1 {
		t.Errorf("fallback/failed rows = %d/%d, want 2/1", fallbackRows, failedRows)
	}
}

func TestInvokeNoFallbackInStrictMode(t *testing.T) {
	flags := config.Flags{StrictMode: true, AllowLLMFallback: true}
	c, fallbackMock, _ := newTestClient(t, flags)

	req := &Request{Messages: []providers.Message{{Role: "user", Content: "go"}}}
	_, err := c.Invoke(context.Background(), "content_drafter", req)
	if err == nil {
		t.Fatal("expected quota error to propagate in strict mode")
	}
	if !strings.Contains(err.Error(), "credit balance") {
		t.Errorf("unexpected error: %v", err)
	}
	if fallbackMock.RequestCount() != 0 {
		t.Error("strict mode must not call the fallback provider")
	}
}

func TestInvokeNoFallbackWhenDisabled(t *testing.T) {
	flags := config.Flags{AllowLLMFallback: false}
	c, fallbackMock, _ := newTestClient(t, flags)

	_, err := c.Invoke(context.Background(), "outline_planner", &Request{
		Messages: []providers.Message{{Role: "user", Content: "plan"}},
	})
	if err == nil {
		t.Fatal("expected error when fallback disabled")
	}
	if fallbackMock.RequestCount() != 0 {
		t.Error("disabled fallback must not be called")
	}
	if c.UsingFallback("outline_planner") {
		t.Error("agent must not be marked as switched")
	}
}

func TestFallbackStickyPerAgent(t *testing.T) {
	flags := config.Flags{AllowLLMFallback: true}
	c, _, _ := newTestClient(t, flags)
	ctx := context.Background()

	req := &Request{Messages: []providers.Message{{Role: "user", Content: "x"}}}
	if _, err := c.Invoke(ctx, "content_drafter", req); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !c.UsingFallback("content_drafter") {
		t.Error("drafter should be on fallback")
	}
	if c.UsingFallback("fact_checker") {
		t.Error("fact_checker should still be on primary")
	}
}

func TestFallbackModelOverride(t *testing.T) {
	flags := config.Flags{AllowLLMFallback: true, FallbackModel: "gpt-4o-mini"}
	c, fallbackMock, _ := newTestClient(t, flags)

	if _, err := c.Invoke(context.Background(), "a", &Request{
		Messages: []providers.Message{{Role: "user", Content: "x"}},
	}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	reqs := fallbackMock.Requests()
	if len(reqs) != 1 || reqs[0].Model != "gpt-4o-mini" {
		t.Errorf("expected fallback model override, got %+v", reqs)
	}
}

func TestLastUserMessage(t *testing.T) {
	msgs := []providers.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "mid"},
		{Role: "user", Content: "latest"},
	}
	if got := lastUserMessage(msgs); got != "latest" {
		t.Errorf("lastUserMessage() = %q, want %q", got, "latest")
	}
	if got := lastUserMessage(nil); got != "" {
		t.Errorf("lastUserMessage(nil) = %q, want empty", got)
	}
}
