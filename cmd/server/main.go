package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docqa/internal/api"
	"docqa/internal/app"
	"docqa/internal/config"
	"docqa/internal/db"
	"docqa/internal/events"
	"docqa/internal/logger"
	"docqa/internal/metrics"
	"docqa/internal/middleware"
	"docqa/internal/repository"
	"docqa/internal/telemetry"
)

const version = "0.1.0"

/*
LEARNING: GRACEFUL SHUTDOWN PATTERN WITH OBSERVABILITY

This main function demonstrates:
1. Service initialization and dependency injection
2. Distributed tracing with Jaeger and Prometheus metrics
3. A websocket hub running next to the HTTP server
4. Graceful shutdown handling (listening for SIGINT/SIGTERM)
5. Proper resource cleanup order
*/

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Str("version", version).Msg("🚀 Starting docqa server...")

	// Initialize Jaeger tracing
	// Learning: Do this FIRST so all operations are traced
	jaegerShutdown := telemetry.Noop
	if cfg.TracingEnabled {
		jaegerShutdown, err = telemetry.InitJaeger("docqa", version, cfg.JaegerEndpoint, log)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️  Failed to initialize Jaeger (continuing without tracing)")
			jaegerShutdown = telemetry.Noop
		}
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("⚠️  Failed to shutdown Jaeger")
		}
	}()

	// Initialize GORM database
	database, err := db.NewGorm(cfg, logger.Component(log, "db"))
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to connect to database")
	}
	defer database.Close()

	docRepo := repository.NewDocumentRepository(database.DB)

	// Start the event hub before the core so the first ingest already has a publisher
	hub := events.NewHub(logger.Component(log, "events"))
	hub.Start()

	m := metrics.New()

	// Initialize the retrieval pipeline
	// Learning: extraction, chunking, embeddings, vector index and the backend chain
	// are all constructed here and injected; nothing is a global singleton
	core, err := app.Open(cfg, app.Options{
		DB:        database.DB,
		Documents: docRepo,
		Events:    hub,
		Metrics:   m,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to open retrieval pipeline")
	}

	// Initialize handlers with dependency injection
	handler := api.NewHandler(core.RAG, docRepo, database, cfg.UploadDir, cfg.MaxUploadBytes(), logger.Component(log, "api"))

	// Setup routes
	limiter := middleware.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	router := api.SetupRoutes(handler, hub, m, limiter, logger.Component(log, "http"))

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	// Learning: This allows us to handle shutdown signals concurrently
	go func() {
		log.Info().Msgf("🌐 Server listening on http://%s", addr)
		log.Info().Msg("📚 API Endpoints:")
		log.Info().Msg("   POST   /api/upload              - Upload and index a PDF")
		log.Info().Msg("   POST   /api/ask                 - Ask a question about a document")
		log.Info().Msg("   GET    /api/stats[/:id]         - Index statistics")
		log.Info().Msg("   DELETE /api/delete/:id          - Remove a document")
		log.Info().Msg("   GET    /api/documents[/:id]     - List documents")
		log.Info().Msg("   GET    /metrics                 - Prometheus metrics")
		log.Info().Msg("   GET    /ws/events               - Index event stream")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("❌ Server error")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	// Learning: This is the graceful shutdown pattern
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Shutting down server...")

	// Shutdown HTTP server with timeout
	// Learning: Give the server 30 seconds to finish existing requests
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️  Server forced to shutdown")
	}

	// Shutdown the event hub
	// Learning: This closes all active WebSocket connections gracefully
	hub.Shutdown()

	// Close the vector index before the database it may live in
	if err := core.Close(); err != nil {
		log.Warn().Err(err).Msg("⚠️  Failed to close retrieval pipeline")
	}

	log.Info().Msg("✓ Server shutdown complete")
}
