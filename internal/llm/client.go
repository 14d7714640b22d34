// Package llm provides the model client used by all agents: it routes chat
// requests to the configured primary provider, fails over to the fallback on
// quota exhaustion, and records every call in the usage ledger.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/ledger"
	"github.com/ghostline-ai/ghostline/internal/metrics"
	"github.com/ghostline-ai/ghostline/internal/providers"
	"github.com/ghostline-ai/ghostline/internal/store"
)

// ConversationSink receives every recorded call, in order, for the per-run
// conversation audit log.
type ConversationSink interface {
	Record(row *store.CallLog)
}

// defaultTimeout bounds a single chat call when config does not say otherwise.
const defaultTimeout = 120 * time.Second

// Choice names a provider/model pair.
type Choice struct {
	Provider string
	Model    string
}

// Request is one agent-level chat request.
type Request struct {
	Messages    []providers.Message
	Temperature float64
	MaxTokens   int

	// Attribution recorded with the call
	AgentRole string
	CallType  string // "generate" (default)
	Metadata  map[string]any
}

// Client routes chat requests and accounts for them. Failover to the
// fallback provider is sticky per agent: once an agent's primary runs out of
// credit, its later calls go straight to the fallback.
type Client struct {
	registry *providers.Registry
	ledger   *ledger.Ledger
	logger   *slog.Logger
	flags    config.Flags

	primary  Choice
	fallback Choice
	timeout  time.Duration

	mu         sync.Mutex
	onFallback map[string]string // agent name -> reason for the switch
	conv       ConversationSink
}

// AttachConversationLog sets the sink that mirrors recorded calls into the
// per-run conversation log. Pass nil to detach.
func (c *Client) AttachConversationLog(sink ConversationSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conv = sink
}

// New creates a model client from configuration.
func New(reg *providers.Registry, led *ledger.Ledger, cfg *config.Config, flags config.Flags, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := defaultTimeout
	if cfg.Providers.Primary.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Providers.Primary.TimeoutSeconds) * time.Second
	}

	fallbackModel := cfg.Providers.Fallback.Model
	if flags.FallbackModel != "" {
		fallbackModel = flags.FallbackModel
	}

	return &Client{
		registry:   reg,
		ledger:     led,
		logger:     logger.With("component", "llm"),
		flags:      flags,
		primary:    Choice{Provider: cfg.Providers.Primary.Type, Model: cfg.Providers.Primary.Model},
		fallback:   Choice{Provider: cfg.Providers.Fallback.Type, Model: fallbackModel},
		timeout:    timeout,
		onFallback: make(map[string]string),
	}
}

// Live reports whether the primary provider has a registered client. Agents
// use this to decide between real calls and placeholder output.
func (c *Client) Live() bool {
	return c.registry != nil && c.registry.Has(c.primary.Provider)
}

// UsingFallback reports whether an agent has been switched to the fallback
// provider.
func (c *Client) UsingFallback(agentName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.onFallback[agentName]
	return ok
}

// Primary returns the primary provider/model choice.
func (c *Client) Primary() Choice { return c.primary }

// Fallback returns the fallback provider/model choice.
func (c *Client) Fallback() Choice { return c.fallback }

// Invoke sends one chat request on behalf of an agent. The result is
// recorded in the ledger before it is returned; a ledger write failure fails
// the call.
func (c *Client) Invoke(ctx context.Context, agentName string, req *Request) (*providers.ChatResult, error) {
	choice := c.primary
	isFallback := false
	reason := ""

	c.mu.Lock()
	if r, ok := c.onFallback[agentName]; ok {
		choice, isFallback, reason = c.fallback, true, r
	}
	c.mu.Unlock()

	result, err := c.call(ctx, agentName, req, choice, isFallback, reason)
	if err == nil {
		return result, nil
	}

	if providers.IsQuotaError(err) && !isFallback && c.canFallback() {
		reason = truncate(err.Error(), 200)
		c.logger.Warn("primary provider out of credit, switching agent to fallback",
			"agent", agentName,
			"from", c.primary.Provider,
			"to", c.fallback.Provider,
			"reason", reason)
		metrics.LLMFallbacksTotal.WithLabelValues(c.primary.Provider, c.fallback.Provider).Inc()

		c.mu.Lock()
		c.onFallback[agentName] = reason
		c.mu.Unlock()

		return c.call(ctx, agentName, req, c.fallback, true, reason)
	}

	return nil, err
}

func (c *Client) call(ctx context.Context, agentName string, req *Request, choice Choice, isFallback bool, reason string) (*providers.ChatResult, error) {
	client, err := c.registry.Get(choice.Provider)
	if err != nil {
		return nil, fmt.Errorf("no client for provider %s: %w", choice.Provider, err)
	}

	chatReq := &providers.ChatRequest{
		Messages:    req.Messages,
		Model:       choice.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Timeout:     c.timeout,
		RequestID:   uuid.NewString(),
	}

	result, callErr := client.Chat(ctx, chatReq)

	if result != nil {
		// Ledger write failures never fail the call; the call happened
		// and its result is still good. The row is lost, warn and move on.
		costUSD, recErr := c.account(ctx, agentName, req, result, isFallback, reason)
		if recErr != nil {
			c.logger.Warn("usage recording failed", "agent", agentName, "error", recErr)
		}
		result.CostUSD = costUSD
		metrics.ObserveLLMCall(result.Provider, result.ModelUsed, agentName,
			result.PromptTokens, result.CompletionTokens, costUSD,
			result.ExecutionTime, result.Success)
	}

	if callErr != nil {
		return nil, fmt.Errorf("agent %s: %w", agentName, callErr)
	}
	return result, nil
}

// account records a call in the ledger and returns the row's total cost.
func (c *Client) account(ctx context.Context, agentName string, req *Request, result *providers.ChatResult, isFallback bool, reason string) (float64, error) {
	row, err := c.ledger.Record(ctx, result, ledger.RecordOptions{
		AgentName:      agentName,
		AgentRole:      req.AgentRole,
		CallType:       req.CallType,
		IsFallback:     isFallback,
		FallbackReason: reason,
		PromptPreview:  lastUserMessage(req.Messages),
		Metadata:       req.Metadata,
	})
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	sink := c.conv
	c.mu.Unlock()
	if sink != nil {
		sink.Record(row)
	}
	return row.TotalCost, nil
}

func (c *Client) canFallback() bool {
	if c.flags.StrictMode || !c.flags.AllowLLMFallback {
		return false
	}
	return c.fallback.Provider != "" && c.registry.Has(c.fallback.Provider)
}

func lastUserMessage(messages []providers.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
