// Package cli implements the docqa command line: ingest, ask, stats and delete
// against the local vector index, without the HTTP server or PostgreSQL.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"docqa/internal/models"

	"github.com/spf13/cobra"
)

// Core is what the commands need from the retrieval pipeline
type Core interface {
	Ingest(ctx context.Context, documentID int64, filePath, title string) bool
	AskDocument(ctx context.Context, doc *models.Document, question string, useSemanticSearch bool) (*models.AnswerRecord, error)
	Delete(ctx context.Context, documentID int64) bool
	Stats(ctx context.Context, documentID *int64) models.StatsRecord
}

// Opener builds the core for one command and returns a function releasing it
type Opener func(ctx context.Context) (Core, func() error, error)

// NewRootCommand assembles the command tree. The core is opened lazily so
// --help and argument errors never touch the index.
func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "Ask questions about PDF documents",
		Long: `docqa indexes PDF documents into a local vector index and answers
questions about them with retrieval-augmented generation.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newIngestCommand(open),
		newAskCommand(open),
		newStatsCommand(open),
		newDeleteCommand(open),
	)
	return root
}

// withCore opens the core, runs fn and releases the core
func withCore(cmd *cobra.Command, open Opener, fn func(ctx context.Context, core Core) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	core, closeFn, err := open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer func() {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close index: %w", cerr)
		}
	}()

	return fn(ctx, core)
}

func parseDocumentID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document id %q: must be a positive integer", arg)
	}
	return id, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
