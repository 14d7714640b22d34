package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ghostline-ai/ghostline/internal/chapter"
	"github.com/ghostline-ai/ghostline/internal/svcctx"
	"github.com/ghostline-ai/ghostline/internal/tasks"
	"github.com/ghostline-ai/ghostline/internal/workflow"
)

var (
	generateChapters     int
	generatePages        int
	generateWordsPerPage int
	generateSources      []string
	generateUser         string
)

var generateCmd = &cobra.Command{
	Use:   "generate <project-id>",
	Short: "Generate a book from the project's ingested sources",
	Long: `Starts a book generation run: summarizes sources, builds a voice
profile, plans an outline, then pauses for your approval. Approve with
"ghostline resume" to draft the chapters.`,
	Args: cobra.ExactArgs(1),
	RunE: withServices(func(ctx context.Context, args []string) error {
		runner := svcctx.RunnerFrom(ctx)
		taskID, err := runner.Submit(ctx, &tasks.TaskRequest{
			ProjectID:         args[0],
			UserID:            generateUser,
			SourceMaterialIDs: generateSources,
			TargetChapters:    generateChapters,
			TargetPages:       generatePages,
			WordsPerPage:      generateWordsPerPage,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Started task %s\n", taskID)

		state, err := runner.Wait(ctx, taskID)
		return reportRun(taskID, state, err)
	}),
}

// reportRun prints the outcome of a workflow run and maps its error for
// the exit-code switch in main. Cancellations and gate failures pass
// through unwrapped; any other run error is tagged as a run failure.
func reportRun(taskID string, state *workflow.State, err error) error {
	if err != nil {
		if errors.Is(err, workflow.ErrCancelled) || errors.Is(err, context.Canceled) {
			fmt.Fprintf(color.Error, "%s task %s cancelled\n", color.YellowString("!"), taskID)
			return err
		}
		if errors.Is(err, chapter.ErrGateFailed) {
			fmt.Fprintf(color.Error, "%s quality gates failed: %v\n", color.RedString("x"), err)
			return err
		}
		return &runFailure{err: err}
	}

	switch {
	case state.Paused():
		printPaused(taskID, state)
	case state.Done():
		printSummary(state)
	}
	return nil
}

func printPaused(taskID string, state *workflow.State) {
	fmt.Printf("\n%s run paused: %s\n", color.YellowString("||"), state.PendingUserAction)
	if o := state.Outline; o != nil {
		fmt.Printf("\n%s\n", color.New(color.Bold).Sprint(o.Title))
		if o.Premise != "" {
			fmt.Printf("%s\n", o.Premise)
		}
		fmt.Println()
		for _, ch := range o.Chapters {
			fmt.Printf("  %2d. %s\n", ch.Number, ch.Title)
			if ch.Summary != "" {
				fmt.Printf("      %s\n", ch.Summary)
			}
		}
	}
	fmt.Printf("\nApprove:  ghostline resume %s --approve\n", state.ProjectID)
	fmt.Printf("Revise:   ghostline resume %s --feedback \"...\"\n", state.ProjectID)
}

func printSummary(state *workflow.State) {
	fmt.Printf("\n%s book generated\n", color.GreenString("ok"))
	if o := state.Outline; o != nil && o.Title != "" {
		fmt.Printf("  Title:    %s\n", o.Title)
	}
	fmt.Printf("  Chapters: %d\n", len(state.Chapters))
	fmt.Printf("  Words:    %d\n", state.WordCount())
	fmt.Printf("  Tokens:   %d\n", state.TotalTokens)
	fmt.Printf("  Cost:     $%.4f\n", state.TotalCost)
	for _, ch := range state.Chapters {
		gate := color.GreenString("pass")
		if !ch.QualityGatesPassed {
			gate = color.YellowString("warn")
		}
		fmt.Printf("    %2d. %s (%d words, voice %.2f, facts %.2f) [%s]\n",
			ch.Number, ch.Title, ch.WordCount, ch.VoiceScore, ch.FactScore, gate)
	}
	if state.SuggestedDisclaimer != "" {
		fmt.Printf("\n  Suggested disclaimer: %s\n", state.SuggestedDisclaimer)
	}
	for _, w := range state.Warnings {
		fmt.Printf("  %s %s\n", color.YellowString("warn:"), w)
	}
}

func init() {
	generateCmd.Flags().IntVar(&generateChapters, "chapters", 0, "target chapter count (overrides project setting)")
	generateCmd.Flags().IntVar(&generatePages, "pages", 0, "target page count for the whole book")
	generateCmd.Flags().IntVar(&generateWordsPerPage, "words-per-page", 0, "words per page when --pages is set")
	generateCmd.Flags().StringSliceVar(&generateSources, "source", nil, "restrict to specific source material ids (default: all)")
	generateCmd.Flags().StringVar(&generateUser, "user", "", "user id recorded on the run")
	rootCmd.AddCommand(generateCmd)
}
