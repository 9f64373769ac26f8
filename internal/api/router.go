package api

import (
	"net/http"

	"docqa/internal/metrics"
	"docqa/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SetupRoutes wires handlers, middleware, /metrics and the index event stream.
// events may be nil when no websocket feed is wanted; a nil limiter disables rate limiting.
func SetupRoutes(h *Handler, events http.Handler, m *metrics.Metrics, limiter *rate.Limiter, log zerolog.Logger) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	// Learning: Middleware runs in order - tracing first, then metrics, then recovery, then CORS
	r.Use(middleware.TracingMiddleware(log))
	if m != nil {
		r.Use(middleware.MetricsMiddleware(m))
	}
	r.Use(middleware.ErrorRecoveryMiddleware(log))
	r.Use(middleware.CORSMiddleware)

	// Health check endpoint
	// Learning: registered before the /api subrouter so probes bypass the rate limit
	r.HandleFunc("/api/health", h.Health).Methods(http.MethodGet)

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.RateLimitMiddleware(limiter))

	// Learning: mux only runs middleware on a matched route, so mutating
	// routes also accept OPTIONS for CORS preflight to reach CORSMiddleware
	api.HandleFunc("/", h.Root).Methods(http.MethodGet)
	api.HandleFunc("/upload", h.Upload).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/ask", h.Ask).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	api.HandleFunc("/stats/{id}", h.Stats).Methods(http.MethodGet)
	api.HandleFunc("/delete/{id}", h.Delete).Methods(http.MethodDelete, http.MethodPost, http.MethodOptions)

	// Document endpoints
	api.HandleFunc("/documents", h.ListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", h.GetDocument).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", h.Delete).Methods(http.MethodDelete, http.MethodOptions)

	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}

	// WebSocket routes
	if events != nil {
		r.Handle("/ws/events", events)
	}

	return r
}
