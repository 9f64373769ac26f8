package services

import (
	"context"

	"docqa/internal/models"
)

// Interfaces are declared here, where they are used. Implementations live in
// extractor, chunker, embedding/*, vectorindex/*, llm/*, openai and repository,
// and never import this package.

// TextExtractor turns a stored PDF into plain text
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// TextSplitter cuts normalized text into overlapping chunks
type TextSplitter interface {
	Split(text string) []string
}

// Embedder maps texts to fixed-dimension vectors. One call embeds a whole batch.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// VectorIndex is the persistent store of (id, vector, text, metadata) entries
type VectorIndex interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32, texts []string, metas []models.ChunkMetadata) error
	Query(ctx context.Context, vector []float32, k int, documentID *int64) ([]models.IndexMatch, error)
	Get(ctx context.Context, documentID *int64) ([]models.IndexEntry, error)
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// Searcher finds the chunks closest to a query
type Searcher interface {
	Search(ctx context.Context, query string, documentID *int64, k int) []models.SearchResult
}

// Backend is one item of the generation fallback chain
type Backend interface {
	Name() string
	Generate(ctx context.Context, req models.GenerationRequest) (string, error)
}

// DocumentRepository defines what the core needs from document storage.
// GetByID returns an error wrapping models.ErrNotFound for unknown ids.
type DocumentRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Document, error)
}

// EventPublisher receives index change notifications
type EventPublisher interface {
	Publish(event models.IndexEvent)
}
