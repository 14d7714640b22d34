package ledger

import "context"

// CostContext carries the attribution that ties an LLM call to the work that
// made it. It travels explicitly on the context so nested callers (subgraphs,
// retrieval, embeddings) record against the right project, task, and chapter
// without any global state.
type CostContext struct {
	ProjectID     string `json:"project_id,omitempty"`
	TaskID        string `json:"task_id,omitempty"`
	WorkflowRunID string `json:"workflow_run_id,omitempty"`
	ChapterNumber int    `json:"chapter_number,omitempty"`
	Stage         string `json:"stage,omitempty"`
}

type costCtxKey struct{}

// WithCostContext returns a context carrying the given attribution.
func WithCostContext(ctx context.Context, cc CostContext) context.Context {
	return context.WithValue(ctx, costCtxKey{}, cc)
}

// CostContextFrom extracts the attribution from a context, if present.
func CostContextFrom(ctx context.Context) (CostContext, bool) {
	cc, ok := ctx.Value(costCtxKey{}).(CostContext)
	return cc, ok
}

// WithChapter returns a context whose attribution is narrowed to a chapter.
// The rest of the attribution is preserved.
func WithChapter(ctx context.Context, number int) context.Context {
	cc, _ := CostContextFrom(ctx)
	cc.ChapterNumber = number
	return WithCostContext(ctx, cc)
}

// WithStage returns a context whose attribution names the current
// workflow stage.
func WithStage(ctx context.Context, stage string) context.Context {
	cc, _ := CostContextFrom(ctx)
	cc.Stage = stage
	return WithCostContext(ctx, cc)
}
