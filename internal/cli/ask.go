package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"docqa/internal/models"

	"github.com/spf13/cobra"
)

type askOptions struct {
	file       string
	title      string
	noSemantic bool
	json       bool
}

func newAskCommand(open Opener) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask [document-id] [question]",
		Short: "Ask a question about an indexed document",
		Long: `Retrieves the chunks of the document closest to the question and asks the
configured language-model backends in order. The document text is read from --file
when no chunk matches or semantic search is disabled.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}

			title := opts.title
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(opts.file), filepath.Ext(opts.file))
			}
			doc := &models.Document{ID: id, Title: title, FilePath: opts.file}

			return withCore(cmd, open, func(ctx context.Context, core Core) error {
				record, err := core.AskDocument(ctx, doc, args[1], !opts.noSemantic)
				if err != nil {
					return fmt.Errorf("ask failed: %w", err)
				}
				if opts.json {
					return printJSON(cmd, record)
				}
				printAnswer(cmd, record)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "path of the document's PDF")
	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "document title (defaults to the file name)")
	cmd.Flags().BoolVar(&opts.noSemantic, "no-semantic", false, "answer from the full document text")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output the answer record as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printAnswer(cmd *cobra.Command, record *models.AnswerRecord) {
	cmd.Println(record.Answer)
	cmd.Println()
	cmd.Printf("Backend: %s (%.2fs)\n", record.Backend, record.ProcessingTime)

	if len(record.Sources) == 0 {
		cmd.Println("Sources: full document text")
		return
	}

	cmd.Println("Sources:")
	for i, s := range record.Sources {
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, s.ID, s.Similarity)
		cmd.Printf("      %s\n", strings.ReplaceAll(s.Preview, "\n", " "))
	}
}
