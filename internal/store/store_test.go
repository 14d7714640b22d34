package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ghostline-ai/ghostline/internal/book"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory(nil)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("create assigns id and defaults", func(t *testing.T) {
		p := &Project{Title: "Field Notes"}
		if err := s.CreateProject(ctx, p); err != nil {
			t.Fatalf("CreateProject() error = %v", err)
		}
		if p.ID == "" {
			t.Error("expected generated id")
		}
		if p.TargetChapters != 3 || p.TargetWordsPerChapter != 2000 {
			t.Errorf("expected default targets 3/2000, got %d/%d", p.TargetChapters, p.TargetWordsPerChapter)
		}

		got, err := s.GetProject(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetProject() error = %v", err)
		}
		if got.Title != "Field Notes" {
			t.Errorf("expected title round-trip, got %q", got.Title)
		}
	})

	t.Run("missing project returns ErrNotFound", func(t *testing.T) {
		_, err := s.GetProject(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSourceMaterials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &Project{Title: "Sources"}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	for _, m := range []SourceMaterial{
		{ProjectID: p.ID, Filename: "Notes.md", ExtractedText: "The river floods in spring.", WordCount: 5},
		{ProjectID: p.ID, Filename: "sample.txt", ExtractedText: "I write short sentences.", WordCount: 4, IsWritingSample: true},
	} {
		m := m
		if err := s.CreateSourceMaterial(ctx, &m); err != nil {
			t.Fatalf("CreateSourceMaterial() error = %v", err)
		}
	}

	t.Run("writing samples filter", func(t *testing.T) {
		samples, err := s.ListWritingSamples(ctx, p.ID)
		if err != nil {
			t.Fatalf("ListWritingSamples() error = %v", err)
		}
		if len(samples) != 1 || samples[0].Filename != "sample.txt" {
			t.Errorf("expected one writing sample, got %+v", samples)
		}
	})

	t.Run("texts keyed by lowercase filename", func(t *testing.T) {
		texts, err := s.SourceTextsByFilename(ctx, p.ID)
		if err != nil {
			t.Fatalf("SourceTextsByFilename() error = %v", err)
		}
		if _, ok := texts["notes.md"]; !ok {
			t.Errorf("expected lowercase key notes.md, got keys %v", keys(texts))
		}
	})
}

func TestChunksRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := []Chunk{
		{ProjectID: "p1", SourceMaterialID: "s1", Filename: "a.md", Content: "alpha", ChunkIndex: 0, WordCount: 1, Embedding: []float32{1, 0, 0}},
		{ProjectID: "p1", SourceMaterialID: "s1", Filename: "a.md", Content: "beta", ChunkIndex: 1, WordCount: 1},
	}
	if err := s.InsertChunks(ctx, chunks); err != nil {
		t.Fatalf("InsertChunks() error = %v", err)
	}

	got, err := s.ListChunks(ctx, "p1")
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if len(got[0].Embedding) != 3 || got[0].Embedding[0] != 1 {
		t.Errorf("embedding did not round-trip: %v", got[0].Embedding)
	}
	if got[1].Embedding != nil {
		t.Errorf("expected nil embedding for unembedded chunk, got %v", got[1].Embedding)
	}

	n, err := s.CountChunks(ctx, "p1")
	if err != nil {
		t.Fatalf("CountChunks() error = %v", err)
	}
	if n != 2 {
		t.Errorf("expected count 2, got %d", n)
	}
}

func TestVectorSearch(t *testing.T) {
	s := newTestStore(t)
	if !s.VectorSearchAvailable() {
		t.Skip("sqlite-vec unavailable")
	}
	ctx := context.Background()

	chunks := []Chunk{
		{ProjectID: "p1", SourceMaterialID: "s1", Filename: "a.md", Content: "east", ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
		{ProjectID: "p1", SourceMaterialID: "s1", Filename: "a.md", Content: "north", ChunkIndex: 1, Embedding: []float32{0, 1, 0}},
		{ProjectID: "p1", SourceMaterialID: "s1", Filename: "a.md", Content: "northeast", ChunkIndex: 2, Embedding: []float32{0.7, 0.7, 0}},
	}
	if err := s.InsertChunks(ctx, chunks); err != nil {
		t.Fatalf("InsertChunks() error = %v", err)
	}

	matches, err := s.SearchChunks(ctx, "p1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Content != "east" {
		t.Errorf("expected nearest chunk first, got %q", matches[0].Content)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Error("expected descending similarity")
	}
}

func TestOutlines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &OutlineRecord{
		ProjectID:  "p1",
		WorkflowID: "w1",
		Outline: &book.Outline{
			Title:    "Tides",
			Chapters: []book.OutlineChapter{{Number: 1, Title: "Ebb", Summary: "low water"}},
		},
	}
	if err := s.SaveOutline(ctx, rec); err != nil {
		t.Fatalf("SaveOutline() error = %v", err)
	}

	got, err := s.LatestOutline(ctx, "p1")
	if err != nil {
		t.Fatalf("LatestOutline() error = %v", err)
	}
	if got.Approved {
		t.Error("new outline should not be approved")
	}
	if got.Outline.Title != "Tides" || len(got.Outline.Chapters) != 1 {
		t.Errorf("outline did not round-trip: %+v", got.Outline)
	}

	if err := s.ApproveOutline(ctx, got.ID); err != nil {
		t.Fatalf("ApproveOutline() error = %v", err)
	}
	got, err = s.LatestOutline(ctx, "p1")
	if err != nil {
		t.Fatalf("LatestOutline() after approve error = %v", err)
	}
	if !got.Approved {
		t.Error("expected approved outline")
	}

	if err := s.ApproveOutline(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing outline, got %v", err)
	}
}

func TestChapters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch1 := &book.Chapter{Number: 1, Title: "One", ContentClean: "first pass", WordCount: 2}
	ch2 := &book.Chapter{Number: 2, Title: "Two", ContentClean: "second", WordCount: 1}
	if err := s.SaveChapter(ctx, "p1", "w1", ch2); err != nil {
		t.Fatalf("SaveChapter() error = %v", err)
	}
	if err := s.SaveChapter(ctx, "p1", "w1", ch1); err != nil {
		t.Fatalf("SaveChapter() error = %v", err)
	}

	t.Run("ordered by number", func(t *testing.T) {
		got, err := s.ChaptersByWorkflow(ctx, "w1")
		if err != nil {
			t.Fatalf("ChaptersByWorkflow() error = %v", err)
		}
		if len(got) != 2 || got[0].Number != 1 || got[1].Number != 2 {
			t.Errorf("expected chapters ordered by number, got %+v", got)
		}
	})

	t.Run("resave replaces same chapter", func(t *testing.T) {
		ch1b := &book.Chapter{Number: 1, Title: "One Revised", ContentClean: "redone", WordCount: 1}
		if err := s.SaveChapter(ctx, "p1", "w1", ch1b); err != nil {
			t.Fatalf("SaveChapter() resave error = %v", err)
		}
		got, err := s.ChaptersByWorkflow(ctx, "w1")
		if err != nil {
			t.Fatalf("ChaptersByWorkflow() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected resave to replace, got %d chapters", len(got))
		}
		if got[0].Title != "One Revised" {
			t.Errorf("expected replaced title, got %q", got[0].Title)
		}
	})
}

func TestTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &Task{ProjectID: "p1"}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if task.Status != TaskPending || task.TaskType != "book_generation" {
		t.Errorf("expected pending book_generation task, got %s/%s", task.Status, task.TaskType)
	}

	if err := s.MarkTaskStarted(ctx, task.ID); err != nil {
		t.Fatalf("MarkTaskStarted() error = %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.Status != TaskRunning || got.StartedAt == nil {
		t.Errorf("expected running task with started_at, got %+v", got)
	}

	now := time.Now().UTC()
	got.Status = TaskCompleted
	got.Progress = 100
	got.CurrentStep = "complete"
	got.Output = json.RawMessage(`{"chapters":2}`)
	got.CompletedAt = &now
	if err := s.UpdateTask(ctx, got); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}

	latest, err := s.LatestTask(ctx, "p1")
	if err != nil {
		t.Fatalf("LatestTask() error = %v", err)
	}
	if latest.Status != TaskCompleted || latest.Progress != 100 {
		t.Errorf("expected completed task at 100%%, got %s/%d", latest.Status, latest.Progress)
	}
	if string(latest.Output) != `{"chapters":2}` {
		t.Errorf("output did not round-trip: %s", latest.Output)
	}
}

func TestCallLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	calls := []CallLog{
		{AgentName: "content_drafter", Provider: "anthropic", Model: "claude-sonnet-4-5", InputTokens: 100, OutputTokens: 50, TotalCost: 0.001, Success: true, WorkflowRunID: "w1", ChapterNumber: 1},
		{AgentName: "fact_checker", Provider: "anthropic", Model: "claude-sonnet-4-5", InputTokens: 200, OutputTokens: 20, TotalCost: 0.002, Success: true, WorkflowRunID: "w1", ChapterNumber: 1},
		{AgentName: "content_drafter", Provider: "openai", Model: "gpt-4o", InputTokens: 100, OutputTokens: 10, Success: false, Error: "timeout", WorkflowRunID: "w2", IsFallback: true},
	}
	for i := range calls {
		if err := s.InsertCallLog(ctx, &calls[i]); err != nil {
			t.Fatalf("InsertCallLog() error = %v", err)
		}
	}

	t.Run("filter by workflow", func(t *testing.T) {
		got, err := s.QueryCalls(ctx, CallFilter{WorkflowRunID: "w1"})
		if err != nil {
			t.Fatalf("QueryCalls() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 calls for w1, got %d", len(got))
		}
	})

	t.Run("filter errors only", func(t *testing.T) {
		got, err := s.QueryCalls(ctx, CallFilter{OnlyErrors: true})
		if err != nil {
			t.Fatalf("QueryCalls() error = %v", err)
		}
		if len(got) != 1 || got[0].Error != "timeout" {
			t.Errorf("expected one failed call, got %+v", got)
		}
		if !got[0].IsFallback {
			t.Error("expected fallback flag to round-trip")
		}
	})

	t.Run("filter by agent", func(t *testing.T) {
		got, err := s.QueryCalls(ctx, CallFilter{AgentName: "content_drafter"})
		if err != nil {
			t.Fatalf("QueryCalls() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 drafter calls, got %d", len(got))
		}
	})
}

func TestCheckpoints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("save and load latest", func(t *testing.T) {
		first := &Checkpoint{ThreadID: "w1", ID: "000001", Data: []byte("one")}
		if err := s.SaveCheckpoint(ctx, first); err != nil {
			t.Fatalf("SaveCheckpoint() error = %v", err)
		}
		second := &Checkpoint{ThreadID: "w1", ID: "000002", ParentID: "000001", Data: []byte("two"), CreatedAt: time.Now().UTC().Add(time.Second)}
		if err := s.SaveCheckpoint(ctx, second); err != nil {
			t.Fatalf("SaveCheckpoint() error = %v", err)
		}

		got, err := s.LatestCheckpoint(ctx, "w1")
		if err != nil {
			t.Fatalf("LatestCheckpoint() error = %v", err)
		}
		if got.ID != "000002" || string(got.Data) != "two" {
			t.Errorf("expected latest checkpoint 000002, got %s (%q)", got.ID, got.Data)
		}
		if got.ParentID != "000001" {
			t.Errorf("expected parent 000001, got %q", got.ParentID)
		}
	})

	t.Run("resave same id replaces data", func(t *testing.T) {
		cp := &Checkpoint{ThreadID: "w2", ID: "000001", Data: []byte("a")}
		if err := s.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("SaveCheckpoint() error = %v", err)
		}
		cp.Data = []byte("b")
		if err := s.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("SaveCheckpoint() resave error = %v", err)
		}
		got, err := s.GetCheckpoint(ctx, "w2", "000001")
		if err != nil {
			t.Fatalf("GetCheckpoint() error = %v", err)
		}
		if string(got.Data) != "b" {
			t.Errorf("expected replaced data, got %q", got.Data)
		}
	})

	t.Run("missing thread returns ErrNotFound", func(t *testing.T) {
		_, err := s.LatestCheckpoint(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("requires ids", func(t *testing.T) {
		if err := s.SaveCheckpoint(ctx, &Checkpoint{ThreadID: "w3"}); err == nil {
			t.Error("expected error for missing checkpoint id")
		}
	})
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0.25, -1.5, 3.75}
	out := DecodeVector(EncodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("expected %d floats, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d: expected %v, got %v", i, in[i], out[i])
		}
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
