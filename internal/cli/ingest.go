package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newIngestCommand(open Opener) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "ingest [document-id] [file]",
		Short: "Index a PDF document",
		Long: `Extracts the text of a PDF, splits it into overlapping chunks and stores
their embeddings under the given document id. Re-ingesting an id replaces its chunks.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			path := args[1]
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			return withCore(cmd, open, func(ctx context.Context, core Core) error {
				if !core.Ingest(ctx, id, path, title) {
					return fmt.Errorf("document %d could not be indexed", id)
				}
				stats := core.Stats(ctx, &id)
				cmd.Printf("✓ Indexed document %d (%s): %d chunks\n", id, title, stats.TotalChunks)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "document title (defaults to the file name)")
	return cmd
}
