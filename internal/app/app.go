// Package app constructs the retrieval pipeline from configuration.
// The HTTP server and the CLI both build their core through Open.
package app

import (
	"errors"
	"fmt"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/embedding/local"
	ollamaembed "docqa/internal/embedding/ollama"
	"docqa/internal/extractor"
	ollamallm "docqa/internal/llm/ollama"
	"docqa/internal/logger"
	"docqa/internal/metrics"
	"docqa/internal/openai"
	"docqa/internal/services"
	"docqa/internal/vectorindex/pgvector"
	"docqa/internal/vectorindex/sqlite"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Options carries the optional collaborators of the core
type Options struct {
	// DB is required for VECTOR_BACKEND=pgvector
	DB *gorm.DB

	// Documents resolves ids for Ask; nil limits the core to AskDocument
	Documents services.DocumentRepository
	Events    services.EventPublisher

	// Metrics defaults to a fresh private registry
	Metrics *metrics.Metrics
}

// App owns every long-lived component of the pipeline
type App struct {
	RAG      *services.RAGService
	Metrics  *metrics.Metrics
	Embedder services.Embedder
	Index    services.VectorIndex
	Backends []services.Backend

	log zerolog.Logger
}

// Open builds the core: extractor, chunker, embedder, vector index, backends,
// retriever, synthesizer and facade
func Open(cfg *config.Config, opts Options, log zerolog.Logger) (*App, error) {
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	index, err := newIndex(cfg, opts.DB, embedder)
	if err != nil {
		return nil, err
	}

	backends := newBackends(cfg)

	ext := extractor.New(logger.Component(log, "extractor"))
	splitter := chunker.New(
		chunker.WithChunkSize(cfg.ChunkSize),
		chunker.WithOverlap(cfg.ChunkOverlap),
	)

	retriever := services.NewRetriever(ext, splitter, embedder, index, m, logger.Component(log, "retriever"))
	chain := services.NewFallbackChain(backends, cfg.LLMTimeout, m, logger.Component(log, "fallback"))
	synthesizer := services.NewSynthesizer(retriever, ext, chain, cfg.SearchTopK, m, logger.Component(log, "synthesizer"))
	rag := services.NewRAGService(retriever, synthesizer, opts.Documents, opts.Events, logger.Component(log, "rag"))

	log.Info().
		Str("vector_backend", cfg.VectorBackend).
		Str("embedder", embedder.ModelName()).
		Int("dimensions", embedder.Dimensions()).
		Strs("backends", chain.Names()).
		Msg("✓ Retrieval pipeline ready")

	return &App{
		RAG:      rag,
		Metrics:  m,
		Embedder: embedder,
		Index:    index,
		Backends: backends,
		log:      log,
	}, nil
}

// Close releases the vector index
func (a *App) Close() error {
	if err := a.Index.Close(); err != nil {
		return fmt.Errorf("close vector index: %w", err)
	}
	return nil
}

func newEmbedder(cfg *config.Config) (services.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingLocal:
		return local.New(cfg.EmbeddingDimensions), nil
	case config.EmbeddingOllama:
		return ollamaembed.New(ollamaembed.Config{
			BaseURL:    cfg.OllamaBaseURL,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDimensions,
			Workers:    cfg.EmbeddingWorkers,
		}), nil
	case config.EmbeddingOpenAI:
		client := openai.NewClient(cfg.OpenAIAPIKey)
		if cfg.EmbeddingModel != "" {
			client.EmbeddingModel = cfg.EmbeddingModel
		}
		if cfg.EmbeddingDimensions > 0 {
			client.Dims = cfg.EmbeddingDimensions
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func newIndex(cfg *config.Config, db *gorm.DB, embedder services.Embedder) (services.VectorIndex, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendSQLite:
		return sqlite.NewStore(cfg.DataDir, embedder.ModelName(), embedder.Dimensions())
	case config.VectorBackendPgvector:
		if db == nil {
			return nil, errors.New("pgvector index requires a database connection")
		}
		return pgvector.NewStore(db, embedder.Dimensions())
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

// newBackends turns the configured descriptors into chain items in order.
// The heuristic is appended by the chain itself.
func newBackends(cfg *config.Config) []services.Backend {
	backends := make([]services.Backend, 0, len(cfg.Backends))

	for _, b := range cfg.Backends {
		switch b.Kind {
		case config.BackendOllama:
			backends = append(backends, ollamallm.New(ollamallm.Config{
				Name:        b.Name,
				BaseURL:     b.BaseURL,
				Model:       b.Model,
				Temperature: b.Temperature,
				MaxTokens:   b.MaxTokens,
			}))
		case config.BackendOpenAI:
			client := openai.NewClient(cfg.OpenAIAPIKey)
			if b.BaseURL != "" {
				client.BaseURL = b.BaseURL
			}
			client.ChatModel = b.Model
			backends = append(backends, client.Backend(b.Name, b.Temperature, b.MaxTokens))
		}
	}
	return backends
}
