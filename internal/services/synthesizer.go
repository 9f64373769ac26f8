package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"docqa/internal/metrics"
	"docqa/internal/middleware"
	"docqa/internal/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// previewRunes is the length of a source preview
const previewRunes = 200

// Synthesizer answers a question about one document:
// BUILD_CONTEXT (semantic search or full text) -> GENERATE (fallback chain) -> RESPOND.
type Synthesizer struct {
	searcher  Searcher
	extractor TextExtractor
	chain     *FallbackChain
	topK      int
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewSynthesizer creates a synthesizer. topK <= 0 means DefaultTopK.
func NewSynthesizer(
	searcher Searcher,
	extractor TextExtractor,
	chain *FallbackChain,
	topK int,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Synthesizer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Synthesizer{
		searcher:  searcher,
		extractor: extractor,
		chain:     chain,
		topK:      topK,
		metrics:   m,
		log:       log,
	}
}

// Answer runs the full pipeline for doc. It only fails when every backend,
// the heuristic included, failed.
func (s *Synthesizer) Answer(ctx context.Context, doc *models.Document, question string, useSemanticSearch bool) (*models.AnswerRecord, error) {
	ctx, span := middleware.StartSpan(ctx, "Synthesizer.Answer",
		attribute.Int64("document.id", doc.ID),
		attribute.Bool("semantic_search.requested", useSemanticSearch),
	)
	defer span.End()

	start := time.Now()

	contextText, sources, semanticUsed := s.buildContext(ctx, doc, question, useSemanticSearch)
	span.SetAttributes(
		attribute.Bool("semantic_search.used", semanticUsed),
		attribute.Int("context.length", len(contextText)),
	)

	req := models.GenerationRequest{
		Title:    doc.Title,
		Question: question,
		Context:  contextText,
		Prompt:   BuildPrompt(doc.Title, contextText, question),
	}

	answer, backend, err := s.chain.Generate(ctx, req)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	s.metrics.RecordAnswer(backend)
	middleware.AddSpanEvent(ctx, "answer_generated",
		attribute.String("backend", backend),
		attribute.Int("sources", len(sources)),
	)

	elapsed := time.Since(start).Seconds()
	s.log.Info().
		Int64("document_id", doc.ID).
		Str("backend", backend).
		Bool("semantic_search", semanticUsed).
		Float64("processing_time", elapsed).
		Msg("Question answered")

	return &models.AnswerRecord{
		Answer:             answer,
		Question:           question,
		DocumentID:         doc.ID,
		DocumentTitle:      doc.Title,
		Sources:            sources,
		SemanticSearchUsed: semanticUsed,
		Backend:            backend,
		ProcessingTime:     elapsed,
	}, nil
}

// buildContext prefers the closest chunks; without them it falls back to the whole document text.
func (s *Synthesizer) buildContext(ctx context.Context, doc *models.Document, question string, useSemanticSearch bool) (string, []models.Source, bool) {
	if useSemanticSearch {
		results := s.searcher.Search(ctx, question, &doc.ID, s.topK)
		if len(results) > 0 {
			texts := make([]string, len(results))
			sources := make([]models.Source, len(results))
			for i, r := range results {
				texts[i] = r.Text
				sources[i] = models.Source{
					ID:         r.ID,
					Similarity: roundTo(r.Similarity, 3),
					Preview:    preview(r.Text, previewRunes),
				}
			}
			return strings.Join(texts, "\n\n"), sources, true
		}
		s.log.Debug().Int64("document_id", doc.ID).Msg("No semantic matches, using full document text")
	}

	text, err := s.extractor.Extract(ctx, doc.FilePath)
	if err != nil {
		s.log.Warn().Err(err).Int64("document_id", doc.ID).Msg("Failed to extract document text for context")
		return "", []models.Source{}, false
	}
	return strings.TrimSpace(text), []models.Source{}, false
}

// BuildPrompt renders the grounding prompt sent to language-model backends
func BuildPrompt(title, contextText, question string) string {
	return fmt.Sprintf(`You are answering questions about the document "%s".
Use only the information in the context below. If the context does not contain
enough information to answer, say explicitly that the document does not cover it.

Context:
%s

Question: %s

Answer:`, title, contextText, question)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// preview returns at most n runes of text
func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
