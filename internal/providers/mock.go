package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is a ChatClient for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int    // Fail after N requests (0 = never)
	FailMessage  string // Error text when failing (defaults to a generic message)
	ResponseText string

	// Script, when non-empty, overrides ResponseText: call N returns
	// Script[N], and calls past the end repeat the last entry.
	Script []string

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	requests     []*ChatRequest
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// RequestCount returns the number of Chat calls received.
func (c *MockClient) RequestCount() int {
	return int(c.requestCount.Load())
}

// Requests returns copies of the requests received, in order.
func (c *MockClient) Requests() []*ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ChatRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	fail := c.ShouldFail || (c.FailAfter > 0 && int(count) > c.FailAfter)
	if fail {
		msg := c.FailMessage
		if msg == "" {
			msg = "mock client configured to fail"
		}
		result.Success = false
		result.ErrorMessage = msg
		result.ExecutionTime = time.Since(start)
		err := fmt.Errorf("%s", msg)
		result.ErrorType = classifyError(err)
		return result, err
	}

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			result.Success = false
			result.ErrorType = classifyError(ctx.Err())
			result.ErrorMessage = ctx.Err().Error()
			return result, ctx.Err()
		}
	}

	text := c.ResponseText
	if len(c.Script) > 0 {
		idx := int(count) - 1
		if idx >= len(c.Script) {
			idx = len(c.Script) - 1
		}
		text = c.Script[idx]
	}

	var promptChars int
	for _, m := range req.Messages {
		promptChars += len(m.Content)
	}

	result.Content = text
	// Rough estimate: ~4 characters per token.
	result.PromptTokens = promptChars / 4
	result.CompletionTokens = len(text) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	result.Success = true
	result.ExecutionTime = time.Since(start)
	return result, nil
}
