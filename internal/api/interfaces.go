package api

import (
	"context"

	"docqa/internal/models"
)

/*
CONSUMER-DRIVEN INTERFACES

This package is the consumer of the RAG service and the document repository,
so the interfaces it needs live here. Handlers can be tested with small fakes.
*/

// QAService is what handlers need from the retrieval pipeline
type QAService interface {
	Ingest(ctx context.Context, documentID int64, filePath, title string) bool
	Ask(ctx context.Context, documentID int64, question string, useSemanticSearch bool) (*models.AnswerRecord, error)
	Delete(ctx context.Context, documentID int64) bool
	Stats(ctx context.Context, documentID *int64) models.StatsRecord
	BackendNames() []string
}

// DocumentStore is what handlers need from document storage
type DocumentStore interface {
	Create(ctx context.Context, doc *models.DocumentCreate) (*models.Document, error)
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	List(ctx context.Context, limit, offset int) ([]*models.Document, error)
	Delete(ctx context.Context, id int64) error
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping() error
}
