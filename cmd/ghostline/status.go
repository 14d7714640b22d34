package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ghostline-ai/ghostline/internal/store"
	"github.com/ghostline-ai/ghostline/internal/svcctx"
)

var statusTaskID string

var statusCmd = &cobra.Command{
	Use:   "status <project-id>",
	Short: "Show the latest generation task and its run state",
	Args:  cobra.ExactArgs(1),
	RunE: withServices(func(ctx context.Context, args []string) error {
		st := svcctx.StoreFrom(ctx)

		var task *store.Task
		var err error
		if statusTaskID != "" {
			task, err = st.GetTask(ctx, statusTaskID)
		} else {
			task, err = st.LatestTask(ctx, args[0])
		}
		if err != nil {
			return err
		}

		fmt.Printf("Task %s\n", color.CyanString(task.ID))
		fmt.Printf("  Status:   %s\n", colorStatus(task.Status))
		fmt.Printf("  Progress: %d%%\n", task.Progress)
		if task.CurrentStep != "" {
			fmt.Printf("  Step:     %s\n", task.CurrentStep)
		}
		fmt.Printf("  Created:  %s\n", task.CreatedAt.Format(time.RFC3339))
		if task.StartedAt != nil {
			fmt.Printf("  Started:  %s\n", task.StartedAt.Format(time.RFC3339))
		}
		if task.CompletedAt != nil {
			fmt.Printf("  Finished: %s\n", task.CompletedAt.Format(time.RFC3339))
		}
		if task.ErrorMessage != "" {
			fmt.Printf("  Error:    %s\n", color.RedString(task.ErrorMessage))
		}

		if task.WorkflowID == "" {
			return nil
		}
		state, err := svcctx.OrchestratorFrom(ctx).GetState(ctx, task.WorkflowID)
		if err != nil {
			return fmt.Errorf("load workflow state: %w", err)
		}

		fmt.Printf("\nRun %s\n", color.CyanString(state.WorkflowID))
		fmt.Printf("  Phase:    %s\n", state.Phase)
		if state.PendingUserAction != "" {
			fmt.Printf("  Waiting:  %s (resume with: ghostline resume %s --approve)\n",
				state.PendingUserAction, state.ProjectID)
		}
		if o := state.Outline; o != nil {
			fmt.Printf("  Outline:  %s (%d chapters planned)\n", o.Title, len(o.Chapters))
		}
		if n := len(state.Chapters); n > 0 {
			fmt.Printf("  Drafted:  %d chapters, %d words\n", n, state.WordCount())
		}
		fmt.Printf("  Tokens:   %d\n", state.TotalTokens)
		fmt.Printf("  Cost:     $%.4f\n", state.TotalCost)
		return nil
	}),
}

func colorStatus(s store.TaskStatus) string {
	switch s {
	case store.TaskCompleted:
		return color.GreenString(string(s))
	case store.TaskFailed, store.TaskCancelled:
		return color.RedString(string(s))
	case store.TaskPaused:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func init() {
	statusCmd.Flags().StringVar(&statusTaskID, "task", "", "task id to inspect (default: latest task for the project)")
	rootCmd.AddCommand(statusCmd)
}
