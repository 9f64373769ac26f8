package cli

import (
	"context"

	"docqa/internal/models"

	"github.com/spf13/cobra"
)

func newStatsCommand(open Opener) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats [document-id]",
		Short: "Show index statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var documentID *int64
			if len(args) == 1 {
				id, err := parseDocumentID(args[0])
				if err != nil {
					return err
				}
				documentID = &id
			}

			return withCore(cmd, open, func(ctx context.Context, core Core) error {
				stats := core.Stats(ctx, documentID)
				if asJSON {
					return printJSON(cmd, stats)
				}
				printStats(cmd, stats)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output statistics as JSON")
	return cmd
}

func printStats(cmd *cobra.Command, stats models.StatsRecord) {
	if stats.DocumentID != nil {
		cmd.Printf("Document %d: %d chunks\n", *stats.DocumentID, stats.TotalChunks)
		for _, c := range stats.Chunks {
			cmd.Printf("  chunk %d/%d  %s\n", c.ChunkIndex+1, c.TotalChunks, c.Title)
		}
		return
	}

	cmd.Printf("Documents: %d\n", stats.TotalDocuments)
	cmd.Printf("Chunks:    %d\n", stats.TotalChunks)
	for _, d := range stats.Documents {
		cmd.Printf("  [%d] %s (%d chunks)\n", d.DocumentID, d.Title, d.ChunkCount)
	}
}
