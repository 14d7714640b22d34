package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghostline-ai/ghostline/internal/svcctx"
	"github.com/ghostline-ai/ghostline/internal/workflow"
)

var (
	resumeApprove  bool
	resumeFeedback string
	resumeTaskID   string
)

var resumeCmd = &cobra.Command{
	Use:   "resume <project-id>",
	Short: "Resume a paused run, approving the outline or requesting changes",
	Args:  cobra.ExactArgs(1),
	RunE: withServices(func(ctx context.Context, args []string) error {
		if !resumeApprove && resumeFeedback == "" {
			return errors.New("nothing to do: pass --approve or --feedback")
		}

		taskID := resumeTaskID
		if taskID == "" {
			task, err := svcctx.StoreFrom(ctx).LatestTask(ctx, args[0])
			if err != nil {
				return fmt.Errorf("no task found for project %s: %w", args[0], err)
			}
			taskID = task.ID
		}

		runner := svcctx.RunnerFrom(ctx)
		if err := runner.Resume(ctx, taskID, workflow.ResumeInput{
			ApproveOutline: resumeApprove,
			Feedback:       resumeFeedback,
		}); err != nil {
			return err
		}
		fmt.Printf("Resumed task %s\n", taskID)

		state, err := runner.Wait(ctx, taskID)
		return reportRun(taskID, state, err)
	}),
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeApprove, "approve", false, "approve the pending outline and continue drafting")
	resumeCmd.Flags().StringVar(&resumeFeedback, "feedback", "", "feedback for the planner; without --approve this requests an outline revision")
	resumeCmd.Flags().StringVar(&resumeTaskID, "task", "", "task id to resume (default: latest task for the project)")
	rootCmd.AddCommand(resumeCmd)
}
