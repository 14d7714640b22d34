package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/ghostline-ai/ghostline/internal/ledger"
	"github.com/ghostline-ai/ghostline/internal/providers"
)

const (
	openAIDefaultModel = "text-embedding-3-small"
	openAIDefaultDims  = 1536
	openAIBatchSize    = 64
)

// OpenAIEngineConfig holds configuration for the OpenAI embedding engine.
type OpenAIEngineConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	Ledger     *ledger.Ledger // optional: records embed calls when set
	Logger     *slog.Logger
	BaseURL    string // Optional (tests)
}

// OpenAIEngine embeds text through the OpenAI embeddings API.
type OpenAIEngine struct {
	model     string
	dims      int
	batchSize int
	client    openai.Client
	ledger    *ledger.Ledger
	logger    *slog.Logger
}

// NewOpenAIEngine creates an OpenAI embedding engine.
func NewOpenAIEngine(cfg OpenAIEngineConfig) *OpenAIEngine {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = openAIDefaultDims
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = openAIBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEngine{
		model:     cfg.Model,
		dims:      cfg.Dimensions,
		batchSize: cfg.BatchSize,
		client:    openai.NewClient(opts...),
		ledger:    cfg.Ledger,
		logger:    cfg.Logger.With("component", "embedding"),
	}
}

// Name returns the engine identifier.
func (e *OpenAIEngine) Name() string { return "openai" }

// Dimensions returns the output vector size.
func (e *OpenAIEngine) Dimensions() int { return e.dims }

// Embed returns the vector for one text.
func (e *OpenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in API-sized batches, preserving input order.
// Empty texts get zero vectors without an API call.
func (e *OpenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// The API rejects empty inputs, so route them around it.
	var pending []string
	var pendingIdx []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, e.dims)
			continue
		}
		pending = append(pending, t)
		pendingIdx = append(pendingIdx, i)
	}

	for start := 0; start < len(pending); start += e.batchSize {
		end := start + e.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		vecs, err := e.embedOnce(ctx, pending[start:end])
		if err != nil {
			return nil, err
		}
		for j, v := range vecs {
			out[pendingIdx[start+j]] = v
		}
	}
	return out, nil
}

func (e *OpenAIEngine) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: batch,
		},
	}
	if e.dims > 0 && strings.HasPrefix(e.model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(e.dims))
	}

	start := time.Now()
	var resp *openai.CreateEmbeddingResponse
	err := retry.Do(
		func() error {
			var callErr error
			resp, callErr = e.client.Embeddings.New(ctx, params)
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	elapsed := time.Since(start)

	e.record(ctx, len(batch), resp, elapsed, err)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(batch))
	}

	vecs := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		v := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float32(x)
		}
		if len(v) != e.dims {
			return nil, fmt.Errorf("openai embeddings: dimension mismatch: got %d, want %d", len(v), e.dims)
		}
		vecs[d.Index] = v
	}
	return vecs, nil
}

// record accounts the embed call in the ledger when one is attached.
func (e *OpenAIEngine) record(ctx context.Context, batchLen int, resp *openai.CreateEmbeddingResponse, elapsed time.Duration, callErr error) {
	if e.ledger == nil {
		return
	}

	result := &providers.ChatResult{
		Provider:      providers.OpenAIName,
		ModelUsed:     e.model,
		ExecutionTime: elapsed,
		Success:       callErr == nil,
	}
	if callErr != nil {
		result.ErrorMessage = callErr.Error()
	}
	if resp != nil {
		result.PromptTokens = int(resp.Usage.PromptTokens)
		result.TotalTokens = int(resp.Usage.TotalTokens)
	}

	if _, err := e.ledger.Record(ctx, result, ledger.RecordOptions{
		AgentName: "embedding",
		CallType:  "embed",
		Metadata:  map[string]any{"batch_size": batchLen},
	}); err != nil {
		e.logger.Warn("failed to record embedding usage", "error", err)
	}
}
