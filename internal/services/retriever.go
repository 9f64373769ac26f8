package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docqa/internal/metrics"
	"docqa/internal/middleware"
	"docqa/internal/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

/*
Indexing flow:

	PDF -> Extract -> Split -> Embed (one batch) -> [lock doc] Delete old ids -> Upsert -> [unlock]

Re-ingesting a document first drops its previous entries, so a shorter
revision never leaves stale trailing chunks behind.
*/

// DefaultTopK is the number of chunks returned when the caller does not ask for a specific count
const DefaultTopK = 5

// Retriever owns the vector index: it indexes documents and answers similarity queries.
type Retriever struct {
	extractor TextExtractor
	splitter  TextSplitter
	embedder  Embedder
	index     VectorIndex
	locks     *documentLocks
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewRetriever creates a retriever over the given index
func NewRetriever(
	extractor TextExtractor,
	splitter TextSplitter,
	embedder Embedder,
	index VectorIndex,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Retriever {
	return &Retriever{
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		index:     index,
		locks:     newDocumentLocks(),
		metrics:   m,
		log:       log,
	}
}

// AddDocument indexes a PDF and reports whether it is now searchable
func (r *Retriever) AddDocument(ctx context.Context, documentID int64, filePath, title string) bool {
	_, err := r.IndexDocument(ctx, documentID, filePath, title)
	return err == nil
}

// IndexDocument indexes a PDF and returns the number of chunks written.
// A document without extractable text returns models.ErrEmptyDocument and leaves the index untouched.
func (r *Retriever) IndexDocument(ctx context.Context, documentID int64, filePath, title string) (int, error) {
	ctx, span := middleware.StartSpan(ctx, "Retriever.IndexDocument",
		attribute.Int64("document.id", documentID),
		attribute.String("document.title", title),
	)
	defer span.End()

	log := r.log.With().Int64("document_id", documentID).Logger()
	start := time.Now()

	chunks, err := r.indexDocument(ctx, documentID, filePath, title)
	switch {
	case errors.Is(err, models.ErrEmptyDocument):
		log.Warn().Str("path", filePath).Msg("No text extracted from document")
		r.metrics.RecordIngest(metrics.OutcomeEmpty, 0)
		return 0, err
	case err != nil:
		middleware.AddSpanError(ctx, err)
		log.Error().Err(err).Str("path", filePath).Msg("Failed to index document")
		r.metrics.RecordIngest(metrics.OutcomeFailed, 0)
		return 0, fmt.Errorf("%w: %w", models.ErrIndexingFailed, err)
	}

	span.SetAttributes(attribute.Int("document.chunks", chunks))
	r.metrics.RecordIngest(metrics.OutcomeIndexed, chunks)
	log.Info().
		Int("chunks", chunks).
		Dur("duration", time.Since(start)).
		Msg("Document indexed")

	return chunks, nil
}

func (r *Retriever) indexDocument(ctx context.Context, documentID int64, filePath, title string) (int, error) {
	text, err := r.extractor.Extract(ctx, filePath)
	if err != nil {
		return 0, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, models.ErrEmptyDocument
	}

	chunks := r.splitter.Split(text)
	if len(chunks) == 0 {
		return 0, models.ErrEmptyDocument
	}

	vectors, err := r.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	ids := make([]string, len(chunks))
	metas := make([]models.ChunkMetadata, len(chunks))
	for i := range chunks {
		ids[i] = models.ChunkID(documentID, i)
		metas[i] = models.ChunkMetadata{
			DocumentID:  documentID,
			Title:       title,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
		}
	}

	unlock := r.locks.Lock(documentID)
	defer unlock()

	// Upsert before pruning: a failed upsert leaves the previous version searchable
	if err := r.index.Upsert(ctx, ids, vectors, chunks, metas); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	if err := r.pruneEntries(ctx, documentID, ids); err != nil {
		return 0, fmt.Errorf("drop stale entries: %w", err)
	}

	return len(chunks), nil
}

// pruneEntries removes the entries of a document whose ids are not in keep.
// Callers hold the document lock.
func (r *Retriever) pruneEntries(ctx context.Context, documentID int64, keep []string) error {
	entries, err := r.index.Get(ctx, &documentID)
	if err != nil {
		return err
	}

	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}

	var stale []string
	for _, e := range entries {
		if !kept[e.ID] {
			stale = append(stale, e.ID)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return r.index.Delete(ctx, stale)
}

// Search returns up to k chunks closest to query, most similar first.
// k <= 0 means DefaultTopK. Failures are logged and yield an empty slice.
func (r *Retriever) Search(ctx context.Context, query string, documentID *int64, k int) []models.SearchResult {
	if k <= 0 {
		k = DefaultTopK
	}

	ctx, span := middleware.StartSpan(ctx, "Retriever.Search",
		attribute.Int("search.k", k),
	)
	defer span.End()
	if documentID != nil {
		span.SetAttributes(attribute.Int64("document.id", *documentID))
	}

	start := time.Now()
	results, err := r.search(ctx, query, documentID, k)
	r.metrics.RecordSearch(len(results), err, time.Since(start))
	if err != nil {
		middleware.AddSpanError(ctx, err)
		r.log.Error().Err(err).Msg("Semantic search failed")
		return []models.SearchResult{}
	}

	span.SetAttributes(attribute.Int("search.results", len(results)))
	return results
}

func (r *Retriever) search(ctx context.Context, query string, documentID *int64, k int) ([]models.SearchResult, error) {
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	matches, err := r.index.Query(ctx, vectors[0], k, documentID)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	results := make([]models.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, models.SearchResult{
			ID:         m.ID,
			Text:       m.Text,
			Metadata:   m.Metadata,
			Similarity: 1 - m.Distance,
		})
	}
	return results, nil
}

// DeleteDocument removes every chunk of a document.
// It returns false when the document had no entries or the deletion failed.
func (r *Retriever) DeleteDocument(ctx context.Context, documentID int64) bool {
	ctx, span := middleware.StartSpan(ctx, "Retriever.DeleteDocument",
		attribute.Int64("document.id", documentID),
	)
	defer span.End()

	log := r.log.With().Int64("document_id", documentID).Logger()

	unlock := r.locks.Lock(documentID)
	defer unlock()

	entries, err := r.index.Get(ctx, &documentID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		log.Error().Err(err).Msg("Failed to list document chunks")
		return false
	}
	if len(entries) == 0 {
		r.metrics.RecordDelete(false)
		return false
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := r.index.Delete(ctx, ids); err != nil {
		middleware.AddSpanError(ctx, err)
		log.Error().Err(err).Msg("Failed to delete document chunks")
		return false
	}

	r.metrics.RecordDelete(true)
	log.Info().Int("chunks", len(ids)).Msg("Document removed from index")
	return true
}

// Stats describes one document's chunks, or the whole index when documentID is nil.
// Errors are logged and produce a zero-valued record.
func (r *Retriever) Stats(ctx context.Context, documentID *int64) models.StatsRecord {
	ctx, span := middleware.StartSpan(ctx, "Retriever.Stats")
	defer span.End()

	entries, err := r.index.Get(ctx, documentID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		r.log.Error().Err(err).Msg("Failed to read index statistics")
		return models.StatsRecord{}
	}

	if documentID != nil {
		id := *documentID
		chunks := make([]models.ChunkMetadata, len(entries))
		for i, e := range entries {
			chunks[i] = e.Metadata
		}
		rec := models.StatsRecord{
			DocumentID:  &id,
			TotalChunks: len(entries),
			Chunks:      chunks,
		}
		if len(entries) > 0 {
			rec.TotalDocuments = 1
		}
		return rec
	}

	// Entries arrive ordered by document id, so summaries do too.
	var docs []models.DocumentSummary
	for _, e := range entries {
		if n := len(docs); n > 0 && docs[n-1].DocumentID == e.Metadata.DocumentID {
			docs[n-1].ChunkCount++
			continue
		}
		docs = append(docs, models.DocumentSummary{
			DocumentID: e.Metadata.DocumentID,
			Title:      e.Metadata.Title,
			ChunkCount: 1,
		})
	}

	return models.StatsRecord{
		TotalDocuments: len(docs),
		TotalChunks:    len(entries),
		Documents:      docs,
	}
}
