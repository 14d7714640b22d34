package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ghostline-ai/ghostline/internal/store"
	"github.com/ghostline-ai/ghostline/internal/svcctx"
)

var (
	costsWorkflow string
	costsAgent    string
	costsProvider string
	costsErrors   bool
)

var costsCmd = &cobra.Command{
	Use:   "costs <project-id>",
	Short: "Summarize LLM usage and spend for a project",
	Args:  cobra.ExactArgs(1),
	RunE: withServices(func(ctx context.Context, args []string) error {
		sum, err := svcctx.LedgerFrom(ctx).Summarize(ctx, store.CallFilter{
			ProjectID:     args[0],
			WorkflowRunID: costsWorkflow,
			AgentName:     costsAgent,
			Provider:      costsProvider,
			OnlyErrors:    costsErrors,
		})
		if err != nil {
			return err
		}
		if sum.TotalCalls == 0 {
			fmt.Println("No recorded calls match.")
			return nil
		}

		fmt.Printf("Calls:   %d (%d ok, %d failed, %.0f%% success)\n",
			sum.TotalCalls, sum.SuccessfulCalls, sum.FailedCalls, sum.SuccessRate*100)
		fmt.Printf("Tokens:  %d in, %d out, %d total\n",
			sum.TotalInputTokens, sum.TotalOutputTokens, sum.TotalTokens)
		fmt.Printf("Cost:    %s ($%.4f/call avg)\n",
			color.New(color.Bold).Sprintf("$%.4f", sum.TotalCostUSD), sum.AvgCostPerCall)
		fmt.Printf("Latency: %.0fms avg\n", sum.AvgLatencyMs)
		if sum.FallbackCalls > 0 {
			fmt.Printf("%s %d calls served by the fallback provider\n",
				color.YellowString("note:"), sum.FallbackCalls)
		}

		printBreakdown("By agent", sum.ByAgent)
		printBreakdown("By model", sum.ByModel)
		printBreakdown("By provider", sum.ByProvider)
		printBreakdown("By chapter", sum.ByChapter)
		return nil
	}),
}

func printBreakdown(label string, byKey map[string]float64) {
	if len(byKey) == 0 {
		return
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return byKey[keys[i]] > byKey[keys[j]] })

	fmt.Printf("\n%s:\n", label)
	for _, k := range keys {
		fmt.Printf("  %-24s $%.4f\n", k, byKey[k])
	}
}

func init() {
	costsCmd.Flags().StringVar(&costsWorkflow, "workflow", "", "restrict to one workflow run id")
	costsCmd.Flags().StringVar(&costsAgent, "agent", "", "restrict to one agent (planner, drafter, ...)")
	costsCmd.Flags().StringVar(&costsProvider, "provider", "", "restrict to one provider")
	costsCmd.Flags().BoolVar(&costsErrors, "errors", false, "only failed calls")
	rootCmd.AddCommand(costsCmd)
}
