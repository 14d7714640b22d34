// Package outline runs the bounded Planner/Critic loop that turns source
// summaries into an approved book outline. The loop is capped by turns,
// tokens, cost, and wall clock; when a cap trips, the latest outline is
// returned unapproved rather than discarded.
package outline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ghostline-ai/ghostline/internal/agents"
	"github.com/ghostline-ai/ghostline/internal/book"
	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/ledger"
)

// Input seeds one outline run.
type Input struct {
	Title           string
	Description     string
	SourceSummaries []string
	TargetChapters  int
	VoiceGuidance   string
}

// State is the loop's working memory; it is returned even on error so the
// caller can persist partial progress and diagnostics.
type State struct {
	SourceSummaries []string      `json:"source_summaries,omitempty"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	TargetChapters  int           `json:"target_chapters"`
	VoiceGuidance   string        `json:"voice_guidance,omitempty"`
	Outline         *book.Outline `json:"outline,omitempty"`
	Iteration       int           `json:"iteration"`
	Feedback        []string      `json:"feedback,omitempty"`
	Approved        bool          `json:"approved"`
	TokensUsed      int           `json:"tokens_used"`
	CostUSD         float64       `json:"cost_usd"`
	Turns           int           `json:"turns"`
}

// observe folds one agent call into the running totals.
func (s *State) observe(out *agents.Output) {
	if out == nil {
		return
	}
	s.TokensUsed += out.TokensUsed
	s.CostUSD += out.CostUSD
	s.Turns++
}

// overBudget reports whether a loop cap has tripped, and which one.
func (s *State) overBudget(b config.BoundsCfg) (string, bool) {
	switch {
	case b.MaxTurns > 0 && s.Iteration >= b.MaxTurns:
		return "max_turns", true
	case b.MaxTokens > 0 && s.TokensUsed >= b.MaxTokens:
		return "max_tokens", true
	case b.MaxCostUSD > 0 && s.CostUSD >= b.MaxCostUSD:
		return "max_cost", true
	}
	return "", false
}

// Subgraph is the Planner/Critic loop.
type Subgraph struct {
	planner *agents.OutlinePlanner
	critic  *agents.OutlineCritic
	bounds  config.BoundsCfg
	logger  *slog.Logger
}

// New creates the outline subgraph.
func New(planner *agents.OutlinePlanner, critic *agents.OutlineCritic, bounds config.BoundsCfg, logger *slog.Logger) *Subgraph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subgraph{
		planner: planner,
		critic:  critic,
		bounds:  bounds,
		logger:  logger.With("component", "outline"),
	}
}

// Run executes plan, critique, and as many refine rounds as the budget
// allows. The returned state always carries the latest outline, trimmed to
// the target chapter count and renumbered.
func (s *Subgraph) Run(ctx context.Context, in Input) (*State, error) {
	if s.bounds.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.bounds.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	ctx = ledger.WithStage(ctx, "outline")

	state := &State{
		SourceSummaries: in.SourceSummaries,
		Title:           in.Title,
		Description:     in.Description,
		TargetChapters:  in.TargetChapters,
		VoiceGuidance:   in.VoiceGuidance,
	}

	outline, out, err := s.planner.Plan(ctx, agents.PlanInput{
		Title:           in.Title,
		Description:     in.Description,
		SourceSummaries: in.SourceSummaries,
		TargetChapters:  in.TargetChapters,
		VoiceGuidance:   in.VoiceGuidance,
	})
	state.observe(out)
	if err != nil {
		return state, fmt.Errorf("outline planning failed: %w", err)
	}
	state.Outline = outline

	for {
		critique, out, err := s.critic.Review(ctx, state.Outline, state.SourceSummaries)
		state.observe(out)
		if err != nil {
			return state, fmt.Errorf("outline critique failed: %w", err)
		}
		state.Iteration++

		if critique.Approved {
			state.Approved = true
			state.Feedback = nil
			break
		}
		state.Feedback = critique.Feedback

		if reason, over := state.overBudget(s.bounds); over {
			s.logger.Warn("outline loop hit budget, keeping last outline unapproved",
				"cap", reason,
				"iteration", state.Iteration,
				"tokens", state.TokensUsed,
				"cost_usd", state.CostUSD)
			break
		}

		s.logger.Info("refining outline",
			"iteration", state.Iteration,
			"feedback_items", len(state.Feedback))

		outline, out, err := s.planner.Plan(ctx, agents.PlanInput{
			Title:           in.Title,
			Description:     in.Description,
			SourceSummaries: in.SourceSummaries,
			TargetChapters:  in.TargetChapters,
			VoiceGuidance:   in.VoiceGuidance,
			PriorOutline:    state.Outline,
			Feedback:        state.Feedback,
		})
		state.observe(out)
		if err != nil {
			return state, fmt.Errorf("outline refinement failed: %w", err)
		}
		state.Outline = outline
	}

	state.Outline.Trim(in.TargetChapters)

	s.logger.Info("outline loop finished",
		"approved", state.Approved,
		"iterations", state.Iteration,
		"chapters", len(state.Outline.Chapters),
		"tokens", state.TokensUsed,
		"cost_usd", state.CostUSD)
	return state, nil
}
