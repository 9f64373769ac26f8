package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docqa/internal/middleware"
	"docqa/internal/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

/*
RAG (Retrieval Augmented Generation)

	Question -> embed -> nearest chunks of the document -> grounding prompt -> fallback chain -> answer

RAGService is the single entry point the HTTP API and the CLI use.
*/

// RAGService ties indexing, retrieval and answer synthesis together
type RAGService struct {
	retriever   *Retriever
	synthesizer *Synthesizer
	documents   DocumentRepository
	events      EventPublisher
	log         zerolog.Logger
}

// NewRAGService creates the facade. documents may be nil when no document
// store is configured (CLI); events may be nil when nobody listens.
func NewRAGService(
	retriever *Retriever,
	synthesizer *Synthesizer,
	documents DocumentRepository,
	events EventPublisher,
	log zerolog.Logger,
) *RAGService {
	if events == nil {
		events = noopPublisher{}
	}
	return &RAGService{
		retriever:   retriever,
		synthesizer: synthesizer,
		documents:   documents,
		events:      events,
		log:         log,
	}
}

// Ingest indexes a document and reports whether it is searchable
func (s *RAGService) Ingest(ctx context.Context, documentID int64, filePath, title string) bool {
	chunks, err := s.retriever.IndexDocument(ctx, documentID, filePath, title)

	eventType := models.EventIngested
	if err != nil {
		eventType = models.EventIngestFailed
	}
	event := models.NewIndexEvent(eventType, documentID)
	event.Title = title
	event.Chunks = chunks
	s.events.Publish(event)

	return err == nil
}

// Ask answers a question about a stored document
func (s *RAGService) Ask(ctx context.Context, documentID int64, question string, useSemanticSearch bool) (*models.AnswerRecord, error) {
	ctx, span := middleware.StartSpan(ctx, "RAG.Ask",
		attribute.Int64("document.id", documentID),
	)
	defer span.End()

	if err := validateQuestion(documentID, question); err != nil {
		return nil, err
	}
	if s.documents == nil {
		return nil, fmt.Errorf("%w: document %d (no document store configured)", models.ErrNotFound, documentID)
	}

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			middleware.AddSpanError(ctx, err)
		}
		return nil, err
	}

	return s.AskDocument(ctx, doc, question, useSemanticSearch)
}

// AskDocument answers a question about an already resolved document
func (s *RAGService) AskDocument(ctx context.Context, doc *models.Document, question string, useSemanticSearch bool) (*models.AnswerRecord, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is required", models.ErrValidation)
	}
	if err := validateQuestion(doc.ID, question); err != nil {
		return nil, err
	}
	return s.synthesizer.Answer(ctx, doc, strings.TrimSpace(question), useSemanticSearch)
}

// Delete removes a document's chunks from the index
func (s *RAGService) Delete(ctx context.Context, documentID int64) bool {
	removed := s.retriever.DeleteDocument(ctx, documentID)
	if removed {
		s.events.Publish(models.NewIndexEvent(models.EventDeleted, documentID))
	}
	return removed
}

// Stats describes the index
func (s *RAGService) Stats(ctx context.Context, documentID *int64) models.StatsRecord {
	return s.retriever.Stats(ctx, documentID)
}

// BackendNames lists the fallback chain in order
func (s *RAGService) BackendNames() []string {
	return s.synthesizer.chain.Names()
}

func validateQuestion(documentID int64, question string) error {
	if documentID <= 0 {
		return fmt.Errorf("%w: document_id must be a positive integer", models.ErrValidation)
	}
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("%w: question is required", models.ErrValidation)
	}
	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(models.IndexEvent) {}
