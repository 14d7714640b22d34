package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	anthropicDefaultModel     = "claude-sonnet-4-5"
	anthropicDefaultMaxTokens = 8192
)

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int
	Timeout    time.Duration
	BaseURL    string // Optional (tests)
}

// AnthropicClient implements ChatClient using the official Anthropic SDK.
type AnthropicClient struct {
	model     string
	maxTokens int
	client    anthropic.Client
}

// NewAnthropicClient creates a new Anthropic chat client.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.Model == "" {
		cfg.Model = anthropicDefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = anthropicDefaultMaxTokens
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    anthropic.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *AnthropicClient) Name() string {
	return AnthropicName
}

// Chat sends a chat completion request to the Anthropic Messages API.
func (c *AnthropicClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	result := &ChatResult{
		Provider:  AnthropicName,
		ModelUsed: model,
		RequestID: req.RequestID,
		Attempts:  1,
	}

	system, rest := splitSystem(req.Messages)
	msgs := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	msg, err := c.client.Messages.New(ctx, params)
	result.ExecutionTime = time.Since(start)
	if err != nil {
		result.Success = false
		result.ErrorType = classifyError(err)
		result.ErrorMessage = err.Error()
		return result, fmt.Errorf("anthropic chat: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	result.Content = sb.String()
	result.PromptTokens = int(msg.Usage.InputTokens)
	result.CompletionTokens = int(msg.Usage.OutputTokens)
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	result.Success = true
	return result, nil
}
