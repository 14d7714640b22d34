package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ghostline-ai/ghostline/internal/ingest"
	"github.com/ghostline-ai/ghostline/internal/svcctx"
)

var ingestVoiceSample bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <project-id> <file>...",
	Short: "Ingest source material or writing samples into a project",
	Long: `Extracts text from the given files, stores a copy under the ghostline
home directory, and chunks source material for retrieval. Files ingested
with --voice-sample feed the author voice profile and are not chunked.`,
	Args: cobra.MinimumNArgs(2),
	RunE: withServices(func(ctx context.Context, args []string) error {
		res, err := svcctx.IngestFrom(ctx).Ingest(ctx, ingest.Request{
			ProjectID:       args[0],
			Paths:           args[1:],
			IsWritingSample: ingestVoiceSample,
		})
		if err != nil {
			return err
		}

		for _, f := range res.Files {
			line := fmt.Sprintf("%s  %s (%d words", color.GreenString("ok"), f.Filename, f.WordCount)
			if f.ChunkCount > 0 {
				line += fmt.Sprintf(", %d chunks", f.ChunkCount)
			}
			line += ")"
			fmt.Println(line)
		}
		fmt.Printf("\nIngested %d file(s): %d words", len(res.Files), res.TotalWords)
		if res.TotalChunks > 0 {
			fmt.Printf(", %d chunks", res.TotalChunks)
		}
		fmt.Println()
		return nil
	}),
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestVoiceSample, "voice-sample", false, "ingest as a writing sample for voice matching instead of source material")
	rootCmd.AddCommand(ingestCmd)
}
