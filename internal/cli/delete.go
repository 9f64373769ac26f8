package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newDeleteCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [document-id]",
		Short: "Remove a document's chunks from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}

			return withCore(cmd, open, func(ctx context.Context, core Core) error {
				if core.Delete(ctx, id) {
					cmd.Printf("✓ Removed document %d from the index\n", id)
				} else {
					cmd.Printf("Nothing indexed for document %d\n", id)
				}
				return nil
			})
		},
	}
}
