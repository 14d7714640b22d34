package outline

import (
	"context"
	"strings"
	"testing"

	"github.com/ghostline-ai/ghostline/internal/agents"
	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/ledger"
	"github.com/ghostline-ai/ghostline/internal/llm"
	"github.com/ghostline-ai/ghostline/internal/prompts"
	"github.com/ghostline-ai/ghostline/internal/providers"
	"github.com/ghostline-ai/ghostline/internal/store"
)

const outlineReply = `{
  "title": "Field Notes",
  "premise": "Observation beats theory.",
  "chapters": [
    {"number": 1, "title": "Watching", "summary": "How to look."},
    {"number": 2, "title": "Recording", "summary": "How to write it down."},
    {"number": 3, "title": "Returning", "summary": "Why repetition matters."}
  ]
}`

const revisedOutlineReply = `{
  "title": "Field Notes, Revised",
  "premise": "Observation beats theory.",
  "chapters": [
    {"number": 1, "title": "Watching", "summary": "How to look, grounded in the journals."},
    {"number": 2, "title": "Recording", "summary": "How to write it down."},
    {"number": 3, "title": "Returning", "summary": "Why repetition matters."}
  ]
}`

const approveReply = `{"approved": true, "feedback": []}`
const rejectReply = `{"approved": false, "feedback": ["needs more grounding in the journal entries"]}`

// newSubgraph wires a subgraph whose "anthropic" provider replays script.
func newSubgraph(t *testing.T, bounds config.BoundsCfg, script ...string) (*Subgraph, *providers.MockClient) {
	t.Helper()
	st, err := store.OpenMemory(nil)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mock := providers.NewMockClient()
	mock.Latency = 0
	mock.Script = script

	reg := providers.NewRegistry()
	reg.Register("anthropic", mock)

	client := llm.New(reg, ledger.New(st, nil), config.DefaultConfig(), config.Flags{}, nil)
	resolver := prompts.NewResolver("", nil)
	planner := agents.NewOutlinePlanner(client, resolver, config.Flags{}, nil)
	critic := agents.NewOutlineCritic(client, resolver, config.Flags{}, nil)
	return New(planner, critic, bounds, nil), mock
}

func newOfflineSubgraph(t *testing.T) *Subgraph {
	t.Helper()
	st, err := store.OpenMemory(nil)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	client := llm.New(providers.NewRegistry(), ledger.New(st, nil), config.DefaultConfig(), config.Flags{}, nil)
	resolver := prompts.NewResolver("", nil)
	planner := agents.NewOutlinePlanner(client, resolver, config.Flags{}, nil)
	critic := agents.NewOutlineCritic(client, resolver, config.Flags{}, nil)
	return New(planner, critic, config.BoundsCfg{MaxTurns: 3}, nil)
}

func TestRunApprovesFirstPass(t *testing.T) {
	sg, _ := newSubgraph(t, config.BoundsCfg{MaxTurns: 3}, outlineReply, approveReply)

	state, err := sg.Run(context.Background(), Input{
		Title:           "Field Notes",
		SourceSummaries: []string{"Journal entries about birdwatching."},
		TargetChapters:  3,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !state.Approved {
		t.Error("Approved = false, want true")
	}
	if state.Iteration != 1 {
		t.Errorf("Iteration = %d, want 1", state.Iteration)
	}
	if len(state.Feedback) != 0 {
		t.Errorf("Feedback = %v, want empty after approval", state.Feedback)
	}
	if len(state.Outline.Chapters) != 3 {
		t.Errorf("chapters = %d, want 3", len(state.Outline.Chapters))
	}
	if state.TokensUsed == 0 || state.Turns != 2 {
		t.Errorf("accounting: tokens=%d turns=%d, want tokens>0 turns=2", state.TokensUsed, state.Turns)
	}
}

func TestRunRefinesOnRejection(t *testing.T) {
	sg, mock := newSubgraph(t, config.BoundsCfg{MaxTurns: 3},
		outlineReply, rejectReply, revisedOutlineReply, approveReply)

	state, err := sg.Run(context.Background(), Input{
		Title:           "Field Notes",
		SourceSummaries: []string{"Journal entries about birdwatching."},
		TargetChapters:  3,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !state.Approved || state.Iteration != 2 {
		t.Errorf("approved=%v iteration=%d, want approved after 2 iterations", state.Approved, state.Iteration)
	}
	if state.Outline.Title != "Field Notes, Revised" {
		t.Errorf("outline title = %q, want the refined outline", state.Outline.Title)
	}

	reqs := mock.Requests()
	if len(reqs) != 4 {
		t.Fatalf("provider calls = %d, want 4", len(reqs))
	}
	refinePrompt := reqs[2].Messages[len(reqs[2].Messages)-1].Content
	if !strings.Contains(refinePrompt, "needs more grounding in the journal entries") {
		t.Error("refine prompt does not carry the critic feedback")
	}
	if !strings.Contains(refinePrompt, "Previous outline") {
		t.Error("refine prompt does not carry the prior outline")
	}
}

func TestRunStopsAtMaxTurns(t *testing.T) {
	sg, mock := newSubgraph(t, config.BoundsCfg{MaxTurns: 1}, outlineReply, rejectReply)

	state, err := sg.Run(context.Background(), Input{
		Title:          "Field Notes",
		TargetChapters: 3,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.Approved {
		t.Error("Approved = true after budget stop, want false")
	}
	if len(state.Feedback) == 0 {
		t.Error("budget stop should keep the rejection feedback for diagnostics")
	}
	if state.Outline == nil || len(state.Outline.Chapters) != 3 {
		t.Error("budget stop should keep the last outline")
	}
	if calls := len(mock.Requests()); calls != 2 {
		t.Errorf("provider calls = %d, want 2 (no refine after cap)", calls)
	}
}

func TestRunStopsAtTokenBudget(t *testing.T) {
	sg, mock := newSubgraph(t, config.BoundsCfg{MaxTurns: 10, MaxTokens: 1},
		outlineReply, rejectReply)

	state, err := sg.Run(context.Background(), Input{Title: "T", TargetChapters: 3})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.Approved {
		t.Error("Approved = true, want false")
	}
	if calls := len(mock.Requests()); calls != 2 {
		t.Errorf("provider calls = %d, want 2", calls)
	}
}

func TestRunTrimsToTarget(t *testing.T) {
	sg, _ := newSubgraph(t, config.BoundsCfg{MaxTurns: 3}, outlineReply, approveReply)

	state, err := sg.Run(context.Background(), Input{Title: "T", TargetChapters: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(state.Outline.Chapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(state.Outline.Chapters))
	}
	if state.Outline.Chapters[1].Number != 2 {
		t.Errorf("renumbering broken: %+v", state.Outline.Chapters[1])
	}
}

func TestRunOffline(t *testing.T) {
	sg := newOfflineSubgraph(t)

	state, err := sg.Run(context.Background(), Input{Title: "T", TargetChapters: 4})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !state.Approved {
		t.Error("offline critic should auto-approve")
	}
	if len(state.Outline.Chapters) != 4 {
		t.Errorf("chapters = %d, want 4 placeholders", len(state.Outline.Chapters))
	}
}
