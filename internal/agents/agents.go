// Package agents implements the role-specialized LLM callers that power
// generation: outline planner/critic, content drafter, voice editor, fact
// checker, cohesion analyst, and voice analyst. Agents share one calling
// convention (system prompt from the registry, user prompt built per call,
// tolerant JSON parsing of the reply) and differ only in role.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/llm"
	"github.com/ghostline-ai/ghostline/internal/prompts"
	"github.com/ghostline-ai/ghostline/internal/providers"
)

// Output is the call accounting every agent returns alongside its typed
// result. Subgraphs fold TokensUsed and CostUSD into their budgets.
type Output struct {
	Content     string        `json:"content"`
	TokensUsed  int           `json:"tokens_used"`
	CostUSD     float64       `json:"cost_usd"`
	Duration    time.Duration `json:"duration"`
	Provider    string        `json:"provider,omitempty"`
	Model       string        `json:"model,omitempty"`
	Placeholder bool          `json:"placeholder,omitempty"`
}

// agent carries what every role needs to make a call.
type agent struct {
	name        string // ledger attribution + sticky failover key
	role        string
	promptKey   string
	temperature float64
	maxTokens   int

	client   *llm.Client
	resolver *prompts.Resolver
	flags    config.Flags
	logger   *slog.Logger
}

func newAgent(name, role, promptKey string, temperature float64, maxTokens int,
	client *llm.Client, resolver *prompts.Resolver, flags config.Flags, logger *slog.Logger) agent {
	if logger == nil {
		logger = slog.Default()
	}
	return agent{
		name:        name,
		role:        role,
		promptKey:   promptKey,
		temperature: temperature,
		maxTokens:   maxTokens,
		client:      client,
		resolver:    resolver,
		flags:       flags,
		logger:      logger.With("agent", name),
	}
}

// live reports whether a real provider is available. When false, agents
// return placeholder output so offline runs still exercise the pipeline,
// unless strict mode demands real calls.
func (a *agent) live() bool {
	return a.client != nil && a.client.Live()
}

// errNoProvider is what strict mode returns instead of a placeholder.
func (a *agent) errNoProvider() error {
	return fmt.Errorf("agent %s: no provider configured and strict mode forbids placeholders", a.name)
}

// invoke makes one chat call with the agent's system prompt.
func (a *agent) invoke(ctx context.Context, userPrompt string, metadata map[string]any) (*providers.ChatResult, error) {
	system := a.resolver.MustText(a.promptKey)
	return a.client.Invoke(ctx, a.name, &llm.Request{
		Messages: []providers.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: userPrompt},
		},
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
		AgentRole:   a.role,
		CallType:    "generate",
		Metadata:    metadata,
	})
}

// outputFrom converts a chat result into the shared accounting shape.
func outputFrom(result *providers.ChatResult) *Output {
	if result == nil {
		return &Output{}
	}
	return &Output{
		Content:    result.Content,
		TokensUsed: result.TotalTokens,
		CostUSD:    result.CostUSD,
		Duration:   result.ExecutionTime,
		Provider:   result.Provider,
		Model:      result.ModelUsed,
	}
}

// placeholderOutput marks results fabricated in offline mode.
func placeholderOutput() *Output {
	return &Output{Placeholder: true}
}

// truncateText keeps prompts inside token limits; long inputs are cut with a
// visible marker rather than silently.
func truncateText(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars] + "\n\n[... truncated for length ...]"
}
